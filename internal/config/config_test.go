package config

import "testing"

func TestEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected int
	}{
		{"unset", "", 42},
		{"valid", "7", 7},
		{"zero rejected", "0", 42},
		{"negative rejected", "-3", 42},
		{"garbage rejected", "many", 42},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.value != "" {
				t.Setenv("PHOTO_STYLER_TEST_INT", tc.value)
			}
			if got := envInt("PHOTO_STYLER_TEST_INT", 42); got != tc.expected {
				t.Errorf("envInt(%q) = %d; want %d", tc.value, got, tc.expected)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Embedding.Dim != 768 {
		t.Errorf("expected default embedding dim 768, got %d", cfg.Embedding.Dim)
	}
	if cfg.Render.Concurrency != 4 {
		t.Errorf("expected default render concurrency 4, got %d", cfg.Render.Concurrency)
	}
	if cfg.Feedback.TimeoutSeconds != 10 {
		t.Errorf("expected default feedback timeout 10s, got %d", cfg.Feedback.TimeoutSeconds)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OPENAI_TOKEN", "sk-test")
	t.Setenv("RENDER_CONCURRENCY", "8")
	t.Setenv("FEEDBACK_DELEGATE", "ollama")

	cfg := Load()

	if cfg.OpenAI.Token != "sk-test" {
		t.Errorf("expected OpenAI token from env, got %q", cfg.OpenAI.Token)
	}
	if cfg.Render.Concurrency != 8 {
		t.Errorf("expected render concurrency 8, got %d", cfg.Render.Concurrency)
	}
	if cfg.Feedback.Delegate != "ollama" {
		t.Errorf("expected ollama delegate, got %q", cfg.Feedback.Delegate)
	}
}
