package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/essay-pipeline/internal/llm"
	"github.com/capitalize-ai/essay-pipeline/internal/mock"
)

func TestCloseConnectionsDeduplicates(t *testing.T) {
	shared := &mock.Connection{}

	closed, err := CloseConnections(shared, shared, nil, shared)
	assert.NoError(t, err)
	assert.Equal(t, 1, closed)
	assert.Equal(t, 1, shared.Closes())
}

func TestCloseConnectionsContinuesAfterFailure(t *testing.T) {
	boom := errors.New("socket already gone")
	failing := &mock.Connection{ProviderName: llm.ProviderOpenAI, CloseFn: func() error { return boom }}
	healthy := &mock.Connection{ProviderName: llm.ProviderGemini}

	closed, err := CloseConnections(failing, failing, healthy)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "openai")
	assert.Equal(t, 2, closed)
	assert.Equal(t, 1, failing.Closes())
	assert.Equal(t, 1, healthy.Closes())
}

func TestCloseConnectionsJoinsErrors(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	a := &mock.Connection{CloseFn: func() error { return first }}
	b := &mock.Connection{CloseFn: func() error { return second }}

	_, err := CloseConnections(a, b)
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
}
