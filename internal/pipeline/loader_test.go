package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/essay-pipeline/internal/llm"
)

func TestBuiltinDefinitions(t *testing.T) {
	defs, err := Builtin(llm.ProviderOpenAI)
	require.NoError(t, err)

	reg, err := NewRegistry(defs...)
	require.NoError(t, err)

	names := make([]string, 0, len(defs))
	for _, d := range reg.List() {
		names = append(names, d.Name)
		assert.Equal(t, DefaultInitiator, d.Initiator)
		assert.Equal(t, DefaultSentinel, d.Sentinel)
		assert.False(t, d.Cyclic)
		for _, r := range d.Roles {
			assert.Equal(t, llm.ProviderOpenAI, r.Provider)
			assert.NotEmpty(t, strings.TrimSpace(r.Instructions), r.ID)
		}
	}
	assert.Equal(t, []string{"writing-chinese", "writing-english", "revision-chinese", "revision-english"}, names)

	writing, err := reg.Get("writing-english")
	require.NoError(t, err)
	assert.Equal(t, []string{"EnglishPlanner", "EnglishWriter", "EnglishScorer", "EnglishReviser"}, writing.Info().Roles)
	assert.Equal(t, "EnglishReviser", writing.Terminal)
	assert.Equal(t, 15, writing.MaxRounds)

	revision, err := reg.Get("revision-chinese")
	require.NoError(t, err)
	assert.Equal(t, []string{"ChineseScorer", "ChinesePlanner", "ChineseReviser"}, revision.Info().Roles)
	assert.Equal(t, 12, revision.MaxRounds)

	_, err = reg.Get("poetry")
	assert.ErrorIs(t, err, ErrUnknownPipeline)
	assert.Equal(t, []llm.Provider{llm.ProviderOpenAI}, reg.Providers())
}

func TestParseDefinitionsYAML(t *testing.T) {
	data := []byte(`
pipelines:
  - name: loop
    initiator: Editor
    cyclic: true
    sentinel: ""
    max_rounds: 4
    roles:
      - id: Drafter
        provider: gemini
        instructions: draft
      - id: Critic
        instructions: critique
`)
	defs, err := ParseDefinitionsYAML(data, llm.ProviderAnthropic)
	require.NoError(t, err)
	require.Len(t, defs, 1)

	d := defs[0]
	assert.Equal(t, "Editor", d.Initiator)
	assert.Empty(t, d.Sentinel)
	assert.True(t, d.Cyclic)
	assert.Equal(t, "Critic", d.Terminal)
	assert.Equal(t, []llm.Provider{llm.ProviderGemini, llm.ProviderAnthropic}, d.Providers())

	next, ok := d.Successor("Critic")
	require.True(t, ok)
	assert.Equal(t, "Drafter", next)
}

func TestParseDefinitionsYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		is   error
	}{
		{"empty payload", "  \n", nil},
		{"no pipelines", "pipelines: []", nil},
		{"malformed yaml", "pipelines: [", nil},
		{"unknown provider", "pipelines:\n  - name: p\n    roles:\n      - id: A\n        provider: cohere\n", llm.ErrUnknownProvider},
		{"no roles", "pipelines:\n  - name: p\n", ErrInvalidDefinition},
		{"duplicate role", "pipelines:\n  - name: p\n    roles:\n      - id: A\n      - id: A\n", ErrInvalidDefinition},
		{"foreign terminal", "pipelines:\n  - name: p\n    terminal: Z\n    roles:\n      - id: A\n", ErrInvalidDefinition},
		{"role named like the initiator", "pipelines:\n  - name: p\n    roles:\n      - id: User\n", ErrInvalidDefinition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinitionsYAML([]byte(tt.data), llm.ProviderAnthropic)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestLoadDefinitionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipelines.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipelines:\n  - name: single\n    roles:\n      - id: Writer\n"), 0o600))

	defs, err := LoadDefinitionsFile(path, llm.ProviderAnthropic)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "single", defs[0].Name)

	_, err = LoadDefinitionsFile(filepath.Join(t.TempDir(), "missing.yaml"), llm.ProviderAnthropic)
	assert.Error(t, err)
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	a := essayDefinition(t)
	b := essayDefinition(t)

	_, err := NewRegistry(a, b)
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}
