package feedback

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/kozaktomas/photo-styler/internal/params"
)

const geminiModel = "gemini-2.5-flash"

type GeminiDelegate struct {
	client *genai.Client
}

func NewGeminiDelegate(ctx context.Context, apiKey string) (*GeminiDelegate, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiDelegate{client: client}, nil
}

func (d *GeminiDelegate) Name() string {
	return geminiModel
}

func (d *GeminiDelegate) Interpret(ctx context.Context, text string, axes []params.Axis) (params.Delta, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildFeedbackPrompt(axes) + "\n\n" + text},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	result, err := d.client.Models.GenerateContent(ctx, geminiModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini API error: %w", err)
	}

	content := result.Text()
	if content == "" {
		return nil, errors.New("no response from Gemini")
	}

	return parseDelegateResponse(content)
}
