package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialerAvailable(t *testing.T) {
	d := NewDialer(Settings{OpenAIAPIKey: "sk-test"})

	assert.True(t, d.Available(ProviderOpenAI))
	assert.False(t, d.Available(ProviderAnthropic))
	assert.False(t, d.Available(ProviderGemini))
	assert.False(t, d.Available(Provider("cohere")))
}

func TestDialerDial(t *testing.T) {
	d := NewDialer(Settings{AnthropicAPIKey: "ak", OpenAIAPIKey: "sk"})

	for _, p := range []Provider{ProviderAnthropic, ProviderOpenAI} {
		conn, err := d.Dial(context.Background(), p)
		require.NoError(t, err, p)
		assert.Equal(t, p, conn.Provider())
		assert.NoError(t, conn.Close())
	}

	a, err := d.Dial(context.Background(), ProviderOpenAI)
	require.NoError(t, err)
	b, err := d.Dial(context.Background(), ProviderOpenAI)
	require.NoError(t, err)
	assert.NotSame(t, a, b, "every dial opens a fresh connection")

	_, err = d.Dial(context.Background(), ProviderGemini)
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = d.Dial(context.Background(), Provider("cohere"))
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
