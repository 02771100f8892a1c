package llm

import (
	"context"
	"fmt"
	"time"
)

// Settings holds the credentials and generation defaults for every provider.
// It is resolved once at startup.
type Settings struct {
	AnthropicAPIKey string
	AnthropicModel  string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	GeminiAPIKey string
	GeminiModel  string

	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Dialer opens provider connections from fixed settings.
type Dialer struct {
	settings Settings
}

// NewDialer creates a dialer for the given settings.
func NewDialer(settings Settings) *Dialer {
	if settings.MaxTokens <= 0 {
		settings.MaxTokens = 4096
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 2 * time.Minute
	}
	return &Dialer{settings: settings}
}

// Available reports whether credentials exist for the provider.
func (d *Dialer) Available(p Provider) bool {
	switch p {
	case ProviderAnthropic:
		return d.settings.AnthropicAPIKey != ""
	case ProviderOpenAI:
		return d.settings.OpenAIAPIKey != ""
	case ProviderGemini:
		return d.settings.GeminiAPIKey != ""
	default:
		return false
	}
}

// Dial opens a new connection to the provider.
func (d *Dialer) Dial(ctx context.Context, p Provider) (Connection, error) {
	s := d.settings
	switch p {
	case ProviderAnthropic:
		return NewAnthropicClient(s.AnthropicAPIKey, s.AnthropicModel, s.Temperature, s.MaxTokens, s.Timeout)
	case ProviderOpenAI:
		return NewOpenAIClient(s.OpenAIAPIKey, s.OpenAIBaseURL, s.OpenAIModel, s.Temperature, s.MaxTokens, s.Timeout)
	case ProviderGemini:
		return NewGeminiClient(ctx, s.GeminiAPIKey, s.GeminiModel, s.Temperature, s.MaxTokens, s.Timeout)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, p)
	}
}
