package pipeline

import (
	"strings"

	"github.com/capitalize-ai/essay-pipeline/internal/model"
)

// Cause records why a run stopped scheduling.
type Cause string

const (
	CauseNone      Cause = ""
	CauseNoSpeaker Cause = "no_speaker"
	CauseSentinel  Cause = "sentinel"
	CauseMaxRounds Cause = "max_rounds"
)

// Detector decides when a run is finished.
type Detector struct {
	def       *Definition
	scheduler *Scheduler
}

// NewDetector creates a termination detector for a compiled definition.
func NewDetector(def *Definition) *Detector {
	return &Detector{def: def, scheduler: NewScheduler(def)}
}

// Check returns the first matching cause, in priority order: no next speaker,
// sentinel in the latest message, round ceiling reached. CauseNone means continue.
func (d *Detector) Check(history []model.Message, rounds int) Cause {
	if _, ok := d.scheduler.Next(history); !ok {
		return CauseNoSpeaker
	}
	if d.def.Sentinel != "" && len(history) > 0 {
		if strings.Contains(history[len(history)-1].Content, d.def.Sentinel) {
			return CauseSentinel
		}
	}
	if rounds >= d.def.MaxRounds {
		return CauseMaxRounds
	}
	return CauseNone
}

// IsDone reports whether the run should stop.
func (d *Detector) IsDone(history []model.Message, rounds int) bool {
	return d.Check(history, rounds) != CauseNone
}
