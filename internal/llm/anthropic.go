package llm

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/capitalize-ai/essay-pipeline/internal/model"
)

const defaultAnthropicModel = "claude-3-5-sonnet-20241022"

// AnthropicClient is the Anthropic LLM client.
type AnthropicClient struct {
	*transport
	client      *anthropic.Client
	model       string
	temperature float64
	maxTokens   int
}

var _ Connection = (*AnthropicClient)(nil)

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey, modelName string, temperature float64, maxTokens int, timeout time.Duration) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if modelName == "" {
		modelName = defaultAnthropicModel
	}

	t := newTransport(timeout)
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(t.httpClient),
	)

	return &AnthropicClient{
		transport:   t,
		client:      client,
		model:       modelName,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

// Provider returns the provider name.
func (c *AnthropicClient) Provider() Provider {
	return ProviderAnthropic
}

// Send sends a completion request.
func (c *AnthropicClient) Send(ctx context.Context, instructions string, history []model.Message) (*CompletionResponse, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	start := time.Now()

	params := anthropic.MessageNewParams{
		Model:       anthropic.F(anthropic.Model(c.model)),
		MaxTokens:   anthropic.F(int64(c.maxTokens)),
		Temperature: anthropic.F(c.temperature),
		Messages: anthropic.F([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(RenderTranscript(history))),
		}),
	}
	if instructions != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{
			anthropic.NewTextBlock(instructions),
		})
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	// Extract content
	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content += block.Text
		}
	}

	return &CompletionResponse{
		Content:    content,
		Model:      string(resp.Model),
		TokensIn:   int(resp.Usage.InputTokens),
		TokensOut:  int(resp.Usage.OutputTokens),
		StopReason: string(resp.StopReason),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
