package feedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/kozaktomas/photo-styler/internal/params"
)

const openAIModel = openai.ChatModelGPT4_1Mini

type OpenAIDelegate struct {
	client *openai.Client
}

func NewOpenAIDelegate(apiKey string) *OpenAIDelegate {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIDelegate{client: &client}
}

func (d *OpenAIDelegate) Name() string {
	return openAIModel
}

func (d *OpenAIDelegate) Interpret(ctx context.Context, text string, axes []params.Axis) (params.Delta, error) {
	resp, err := d.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openAIModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(buildFeedbackPrompt(axes)),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(text),
					},
				},
			},
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		MaxTokens: openai.Int(200),
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from OpenAI")
	}

	return parseDelegateResponse(resp.Choices[0].Message.Content)
}
