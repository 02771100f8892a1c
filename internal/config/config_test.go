package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/essay-pipeline/internal/llm"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DEFAULT_LLM", "")
	t.Setenv("SERVER_WRITE_TIMEOUT", "")

	cfg := Load()
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Zero(t, cfg.ServerWriteTimeout)
	assert.Equal(t, "openai", cfg.DefaultLLM)
	assert.Equal(t, time.Second, cfg.StreamPollInterval)
	assert.Equal(t, 10*time.Second, cfg.StreamFinishTimeout)
	assert.Equal(t, 64, cfg.StreamBuffer)
	assert.InDelta(t, 0.7, cfg.LLMTemperature, 1e-9)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("LLM_MAX_TOKENS", "not-a-number")
	t.Setenv("STREAM_POLL_INTERVAL", "250ms")
	t.Setenv("NATS_ENABLED", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")

	cfg := Load()
	assert.Equal(t, "9000", cfg.ServerPort)
	assert.InDelta(t, 0.2, cfg.LLMTemperature, 1e-9)
	assert.Equal(t, 4096, cfg.LLMMaxTokens)
	assert.Equal(t, 250*time.Millisecond, cfg.StreamPollInterval)
	assert.True(t, cfg.NATSEnabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DefaultLLM:          "openai",
			OpenAIAPIKey:        "sk-test",
			StreamPollInterval:  time.Second,
			StreamFinishTimeout: time.Second,
		}
	}

	require.NoError(t, base().Validate())
	require.NoError(t, base().Validate(llm.ProviderOpenAI))

	cfg := base()
	cfg.OpenAIAPIKey = ""
	assert.ErrorIs(t, cfg.Validate(), ErrNoCredentials)

	cfg = base()
	err := cfg.Validate(llm.ProviderGemini)
	assert.ErrorIs(t, err, ErrNoCredentials)
	assert.Contains(t, err.Error(), "gemini")

	cfg = base()
	cfg.DefaultLLM = "cohere"
	assert.ErrorIs(t, cfg.Validate(), llm.ErrUnknownProvider)

	cfg = base()
	cfg.StreamFinishTimeout = 0
	assert.Error(t, cfg.Validate())
}

func TestLLMSettings(t *testing.T) {
	cfg := &Config{OpenAIBaseURL: "http://localhost:11434/v1", LLMMaxTokens: 512, BackendTimeout: time.Minute}
	s := cfg.LLMSettings()
	assert.Equal(t, "http://localhost:11434/v1", s.OpenAIBaseURL)
	assert.Equal(t, 512, s.MaxTokens)
	assert.Equal(t, time.Minute, s.Timeout)
}
