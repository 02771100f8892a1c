package llm

import (
	"context"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/capitalize-ai/essay-pipeline/internal/model"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIClient is the OpenAI LLM client. It also serves any
// OpenAI-compatible endpoint through a custom base URL.
type OpenAIClient struct {
	*transport
	client      *openai.Client
	model       string
	temperature float64
	maxTokens   int
}

var _ Connection = (*OpenAIClient)(nil)

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey, baseURL, modelName string, temperature float64, maxTokens int, timeout time.Duration) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if modelName == "" {
		modelName = defaultOpenAIModel
	}

	t := newTransport(timeout)
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = t.httpClient

	return &OpenAIClient{
		transport:   t,
		client:      openai.NewClientWithConfig(cfg),
		model:       modelName,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

// Provider returns the provider name.
func (c *OpenAIClient) Provider() Provider {
	return ProviderOpenAI
}

// Send sends a completion request.
func (c *OpenAIClient) Send(ctx context.Context, instructions string, history []model.Message) (*CompletionResponse, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	start := time.Now()

	var messages []openai.ChatCompletionMessage
	if instructions != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: instructions,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: RenderTranscript(history),
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: float32(c.temperature),
	})
	if err != nil {
		return nil, err
	}

	var content, stopReason string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		stopReason = string(resp.Choices[0].FinishReason)
	}

	return &CompletionResponse{
		Content:    content,
		Model:      resp.Model,
		TokensIn:   resp.Usage.PromptTokens,
		TokensOut:  resp.Usage.CompletionTokens,
		StopReason: stopReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
