// Package llm provides the model-provider connections that back pipeline roles.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/capitalize-ai/essay-pipeline/internal/model"
)

var (
	// ErrUnknownProvider is returned when a provider key is not one of the supported backends.
	ErrUnknownProvider = errors.New("unknown llm provider")

	// ErrMissingAPIKey is returned when dialing a provider without credentials.
	ErrMissingAPIKey = errors.New("llm api key is required")

	// ErrConnectionClosed is returned by Send after Close.
	ErrConnectionClosed = errors.New("llm connection closed")

	// ErrNoCandidates is returned when a provider answers without any candidate output.
	ErrNoCandidates = errors.New("llm response has no candidates")
)

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
)

// ParseProvider validates a provider key.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(s); p {
	case ProviderAnthropic, ProviderOpenAI, ProviderGemini:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Connection is an open session with one model provider. Several roles may
// share one Connection; calls on it are never concurrent within a run.
type Connection interface {
	// Send asks the model to speak as the role described by instructions,
	// given the conversation so far.
	Send(ctx context.Context, instructions string, history []model.Message) (*CompletionResponse, error)

	// Provider returns the backend variant behind this connection.
	Provider() Provider

	// Close releases the connection. Send fails afterwards.
	Close() error
}

// transport is the HTTP plumbing shared by every provider connection.
type transport struct {
	httpClient *http.Client
	closed     atomic.Bool
}

func newTransport(timeout time.Duration) *transport {
	return &transport{httpClient: &http.Client{Timeout: timeout}}
}

func (t *transport) checkOpen() error {
	if t.closed.Load() {
		return ErrConnectionClosed
	}
	return nil
}

func (t *transport) Close() error {
	if t.closed.Swap(true) {
		return ErrConnectionClosed
	}
	t.httpClient.CloseIdleConnections()
	return nil
}
