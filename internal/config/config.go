package config

import (
	"os"
	"strconv"
)

type Config struct {
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	Ollama    OllamaConfig
	Embedding EmbeddingConfig
	Render    RenderConfig
	Feedback  FeedbackConfig
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type OllamaConfig struct {
	URL   string // defaults to http://localhost:11434
	Model string // defaults to llama3.2:3b
}

type EmbeddingConfig struct {
	URL   string // defaults to http://localhost:8000
	Model string // defaults to clip
	Dim   int    // defaults to 768
}

type RenderConfig struct {
	Concurrency int // parallel renders in batch mode (default 4)
}

type FeedbackConfig struct {
	Delegate       string // "openai", "gemini", "ollama" or empty for rules only
	TimeoutSeconds int    // bound on a single delegate call (default 10)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Ollama: OllamaConfig{
			URL:   os.Getenv("OLLAMA_URL"),
			Model: os.Getenv("OLLAMA_MODEL"),
		},
		Embedding: EmbeddingConfig{
			URL:   os.Getenv("EMBEDDING_URL"),
			Model: os.Getenv("EMBEDDING_MODEL"),
			Dim:   envInt("EMBEDDING_DIM", 768),
		},
		Render: RenderConfig{
			Concurrency: envInt("RENDER_CONCURRENCY", 4),
		},
		Feedback: FeedbackConfig{
			Delegate:       os.Getenv("FEEDBACK_DELEGATE"),
			TimeoutSeconds: envInt("FEEDBACK_TIMEOUT_SECONDS", 10),
		},
	}
}
