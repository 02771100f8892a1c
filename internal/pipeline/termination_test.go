package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/essay-pipeline/internal/model"
)

func TestDetectorCauses(t *testing.T) {
	def := compileRoles(t, func(d *Definition) { d.MaxRounds = 3 }, essayRoles...)
	d := NewDetector(def)

	withSentinel := history("User", "Planner")
	withSentinel[1].Content = "plan ready TERMINATE"

	finished := history("User", "Planner", "Writer", "Scorer", "Reviser")
	finished[4].Content = "essay TERMINATE"

	tests := []struct {
		name    string
		history []model.Message
		rounds  int
		want    Cause
	}{
		{"fresh run continues", history("User"), 0, CauseNone},
		{"mid run continues", history("User", "Planner"), 1, CauseNone},
		{"sentinel anywhere in latest message", withSentinel, 1, CauseSentinel},
		{"round ceiling", history("User", "Planner", "Writer", "Scorer"), 3, CauseMaxRounds},
		{"no speaker wins over sentinel and ceiling", finished, 4, CauseNoSpeaker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Check(tt.history, tt.rounds))
			assert.Equal(t, tt.want != CauseNone, d.IsDone(tt.history, tt.rounds))
		})
	}
}

func TestDetectorSentinelOnlyInLatestMessage(t *testing.T) {
	d := NewDetector(essayDefinition(t))
	h := history("User", "Planner", "Writer")
	h[1].Content = "TERMINATE"

	assert.Equal(t, CauseNone, d.Check(h, 2))
}

func TestDetectorSentinelDisabled(t *testing.T) {
	def := compileRoles(t, func(d *Definition) { d.Sentinel = "" }, essayRoles...)
	h := history("User", "Planner")
	h[1].Content = "TERMINATE"

	assert.Equal(t, CauseNone, NewDetector(def).Check(h, 1))
}
