package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/photo-styler/internal/config"
	"github.com/kozaktomas/photo-styler/internal/feedback"
	"github.com/kozaktomas/photo-styler/internal/fingerprint"
)

func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	if mustGetBool(cmd, "verbose") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newEmbedder(cfg *config.Config) *fingerprint.EmbeddingClient {
	return fingerprint.NewEmbeddingClient(cfg.Embedding.URL, cfg.Embedding.Model)
}

// newInterpreter wires the feedback interpreter with the configured
// delegate, or rules-only when FEEDBACK_DELEGATE is unset.
func newInterpreter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*feedback.Interpreter, error) {
	opts := []feedback.InterpreterOption{
		feedback.WithInterpreterLogger(logger),
		feedback.WithDelegateTimeout(time.Duration(cfg.Feedback.TimeoutSeconds) * time.Second),
	}

	switch cfg.Feedback.Delegate {
	case "":
		// rules only
	case "openai":
		if cfg.OpenAI.Token == "" {
			return nil, fmt.Errorf("FEEDBACK_DELEGATE=openai requires OPENAI_TOKEN")
		}
		opts = append(opts, feedback.WithDelegate(feedback.NewOpenAIDelegate(cfg.OpenAI.Token)))
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("FEEDBACK_DELEGATE=gemini requires GEMINI_API_KEY")
		}
		d, err := feedback.NewGeminiDelegate(ctx, cfg.Gemini.APIKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, feedback.WithDelegate(d))
	case "ollama":
		opts = append(opts, feedback.WithDelegate(feedback.NewOllamaDelegate(cfg.Ollama.URL, cfg.Ollama.Model)))
	default:
		return nil, fmt.Errorf("unknown feedback delegate %q (use openai, gemini or ollama)", cfg.Feedback.Delegate)
	}

	return feedback.NewInterpreter(opts...)
}
