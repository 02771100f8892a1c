package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/essay-pipeline/internal/llm"
	"github.com/capitalize-ai/essay-pipeline/internal/mock"
	"github.com/capitalize-ai/essay-pipeline/internal/model"
)

var essayRoles = []string{"Planner", "Writer", "Scorer", "Reviser"}

func compileRoles(t *testing.T, mutate func(*Definition), ids ...string) *Definition {
	t.Helper()
	roles := make([]Role, len(ids))
	for i, id := range ids {
		roles[i] = Role{ID: id, Instructions: id, Provider: llm.ProviderAnthropic}
	}
	d := Definition{Name: "essay", Roles: roles, Sentinel: DefaultSentinel}
	if mutate != nil {
		mutate(&d)
	}
	def, err := Compile(d)
	require.NoError(t, err)
	return def
}

func essayDefinition(t *testing.T) *Definition {
	return compileRoles(t, nil, essayRoles...)
}

func history(sources ...string) []model.Message {
	conv := model.NewConversation()
	for _, s := range sources {
		kind := model.KindAssistant
		if s == DefaultInitiator {
			kind = model.KindHuman
		}
		conv.Append(s, kind, s+" output")
	}
	return conv.Messages()
}

// echoConnection answers as "<instructions> output", unless replies overrides a role.
func echoConnection(replies map[string]string) *mock.Connection {
	return &mock.Connection{
		SendFn: func(_ context.Context, instructions string, _ []model.Message) (*llm.CompletionResponse, error) {
			if reply, ok := replies[instructions]; ok {
				return &llm.CompletionResponse{Content: reply}, nil
			}
			return &llm.CompletionResponse{Content: instructions + " output"}, nil
		},
	}
}

func collect(events *[]model.Event) Publisher {
	return func(ev model.Event) {
		*events = append(*events, ev)
	}
}
