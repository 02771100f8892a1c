package llm

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/essay-pipeline/internal/model"
)

// RenderTranscript flattens the conversation into a single prompt, one block
// per non-empty message labelled with its source role. Providers that require
// strict user/assistant alternation receive it as one user turn.
func RenderTranscript(history []model.Message) string {
	var b strings.Builder
	for _, msg := range history {
		if msg.Empty() {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s]\n%s", msg.Source, strings.TrimSpace(msg.Content))
	}
	return b.String()
}
