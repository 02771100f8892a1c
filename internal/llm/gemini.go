package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/capitalize-ai/essay-pipeline/internal/model"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiClient is the Google Gemini LLM client.
type GeminiClient struct {
	*transport
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int
}

var _ Connection = (*GeminiClient)(nil)

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, apiKey, modelName string, temperature float64, maxTokens int, timeout time.Duration) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if modelName == "" {
		modelName = defaultGeminiModel
	}

	t := newTransport(timeout)
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: t.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	return &GeminiClient{
		transport:   t,
		client:      gc,
		model:       modelName,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

// Provider returns the provider name.
func (c *GeminiClient) Provider() Provider {
	return ProviderGemini
}

// Send sends a completion request.
func (c *GeminiClient) Send(ctx context.Context, instructions string, history []model.Message) (*CompletionResponse, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	start := time.Now()

	temperature := float32(c.temperature)
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(c.maxTokens),
		Temperature:     &temperature,
	}
	if instructions != "" {
		config.SystemInstruction = genai.NewContentFromText(instructions, genai.RoleUser)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(RenderTranscript(history), genai.RoleUser),
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, ErrNoCandidates
	}

	candidate := resp.Candidates[0]
	var b strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part != nil && !part.Thought {
				b.WriteString(part.Text)
			}
		}
	}

	out := &CompletionResponse{
		Content:    b.String(),
		Model:      c.model,
		StopReason: string(candidate.FinishReason),
		LatencyMs:  time.Since(start).Milliseconds(),
	}
	if resp.UsageMetadata != nil {
		out.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		out.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}
