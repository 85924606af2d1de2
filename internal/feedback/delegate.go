package feedback

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kozaktomas/photo-styler/internal/params"
)

//go:embed prompts/feedback.txt
var feedbackPrompt string

// Delegate is a language-model backend that turns free-form feedback
// into per-axis deltas. A delegate may fail or time out; the interpreter
// falls back to the rules table when it does.
type Delegate interface {
	Name() string
	Interpret(ctx context.Context, text string, axes []params.Axis) (params.Delta, error)
}

// delegateResponse is the JSON contract every delegate prompt asks for.
type delegateResponse struct {
	Deltas map[string]float64 `json:"deltas"`
}

func buildFeedbackPrompt(axes []params.Axis) string {
	names := make([]string, len(axes))
	for i, a := range axes {
		names[i] = "- " + string(a)
	}
	return fmt.Sprintf(feedbackPrompt, strings.Join(names, "\n"))
}

// parseDelegateResponse decodes the delegate's JSON answer into a raw
// delta. Axis names are passed through untouched; the interpreter drops
// and logs the ones the model invented.
func parseDelegateResponse(content string) (params.Delta, error) {
	var resp delegateResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse delegate JSON: %w", err)
	}

	delta := params.Delta{}
	for name, v := range resp.Deltas {
		delta[params.Axis(name)] = v
	}
	return delta, nil
}

// extractJSON pulls the first balanced JSON object out of a response
// that may be wrapped in prose or markdown fences.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	if start == -1 {
		return content
	}

	depth := 0
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return content[start:]
}
