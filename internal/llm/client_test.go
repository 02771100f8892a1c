package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/essay-pipeline/internal/model"
)

func TestParseProvider(t *testing.T) {
	for _, p := range []Provider{ProviderAnthropic, ProviderOpenAI, ProviderGemini} {
		got, err := ParseProvider(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParseProvider("cohere")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestTransportClose(t *testing.T) {
	tr := newTransport(time.Second)
	require.NoError(t, tr.checkOpen())
	require.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.checkOpen(), ErrConnectionClosed)
	assert.ErrorIs(t, tr.Close(), ErrConnectionClosed)
}

func TestOpenAIClientSend(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-test",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "An outline."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("sk-test", srv.URL+"/v1", "gpt-test", 0.5, 256, time.Second)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, c.Provider())

	resp, err := c.Send(context.Background(), "You are a planner.", []model.Message{
		{Source: "User", Kind: model.KindHuman, Content: "topic: X", Sequence: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "An outline.", resp.Content)
	assert.Equal(t, "gpt-test", resp.Model)
	assert.Equal(t, 12, resp.TokensIn)
	assert.Equal(t, 3, resp.TokensOut)
	assert.Equal(t, "stop", resp.StopReason)

	assert.Equal(t, "gpt-test", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	assert.InDelta(t, 0.5, got.Temperature, 1e-6)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "You are a planner.", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "[User]\ntopic: X", got.Messages[1].Content)

	require.NoError(t, c.Close())
	_, err = c.Send(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestOpenAIClientUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "slow down", "type": "rate_limit_error"}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("sk-test", srv.URL+"/v1", "", 0, 16, time.Second)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Send(context.Background(), "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slow down")
}

func TestConstructorsRequireKeys(t *testing.T) {
	_, err := NewAnthropicClient("", "", 0, 16, time.Second)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	_, err = NewOpenAIClient("", "", "", 0, 16, time.Second)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	_, err = NewGeminiClient(context.Background(), "", "", 0, 16, time.Second)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
