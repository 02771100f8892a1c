package pipeline

import (
	"strings"

	"github.com/capitalize-ai/essay-pipeline/internal/model"
)

// ExtractResult returns the final artifact of a run: the latest non-empty
// output of the terminal role, else the latest non-empty message of anyone.
// A trailing sentinel is trimmed. Nil means no result exists.
func ExtractResult(def *Definition, history []model.Message) *string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Source != def.Terminal {
			continue
		}
		if text := visible(def, history[i].Content); text != "" {
			return &text
		}
	}
	for i := len(history) - 1; i >= 0; i-- {
		if text := visible(def, history[i].Content); text != "" {
			return &text
		}
	}
	return nil
}

func visible(def *Definition, content string) string {
	text := strings.TrimSpace(content)
	if def.Sentinel != "" {
		text = strings.TrimSpace(strings.TrimSuffix(text, def.Sentinel))
	}
	return text
}
