package pipeline

import (
	"github.com/capitalize-ai/essay-pipeline/internal/model"
)

// FallbackFunc picks the next speaker when the fixed successor would repeat
// the last speaker. Returning "" means nobody speaks next.
type FallbackFunc func(def *Definition, history []model.Message) string

// NextInOrder is the default fallback: the first role after the last speaker
// in declared order, wrapping around, that is not the last speaker.
func NextInOrder(def *Definition, history []model.Message) string {
	if len(history) == 0 {
		return def.First()
	}
	last := history[len(history)-1].Source
	start, ok := def.roles[last]
	if !ok {
		return ""
	}
	for i := 1; i < len(def.Roles); i++ {
		candidate := def.Roles[(start+i)%len(def.Roles)].ID
		if candidate != last {
			return candidate
		}
	}
	return ""
}

// Scheduler decides who speaks next from the conversation history alone.
// It holds no state, so identical histories always yield the same answer.
type Scheduler struct {
	def *Definition
}

// NewScheduler creates a scheduler for a compiled definition.
func NewScheduler(def *Definition) *Scheduler {
	return &Scheduler{def: def}
}

// Next returns the id of the next speaker, or false when nobody should speak:
// the last speaker is the terminal role of a non-cyclic pipeline, or unknown.
func (s *Scheduler) Next(history []model.Message) (string, bool) {
	if len(history) == 0 {
		return s.def.First(), true
	}

	last := history[len(history)-1].Source
	next, ok := s.def.Successor(last)
	if !ok {
		return "", false
	}
	if next != last || s.def.AllowRepeat {
		return next, true
	}

	fallback := s.def.Fallback
	if fallback == nil {
		fallback = NextInOrder
	}
	picked := fallback(s.def, history)
	if picked == "" || picked == last {
		return "", false
	}
	if _, member := s.def.Role(picked); !member {
		return "", false
	}
	return picked, true
}
