package pipeline

import "errors"

// Sentinel errors for common failure modes.
var (
	// ErrCancelled indicates the caller went away and the run stopped early.
	ErrCancelled = errors.New("task cancelled (client disconnected)")

	// ErrNoProgress indicates the run stopped before any role spoke.
	ErrNoProgress = errors.New("pipeline produced no messages")

	// ErrPanicked indicates a role panicked mid-run.
	ErrPanicked = errors.New("pipeline run panicked")

	// ErrAlreadyStarted indicates Run was called on a runner that is not idle.
	ErrAlreadyStarted = errors.New("pipeline runner already started")

	// ErrUnknownPipeline indicates the requested pipeline is not configured.
	ErrUnknownPipeline = errors.New("unknown pipeline")

	// ErrInvalidDefinition indicates a pipeline definition failed validation.
	ErrInvalidDefinition = errors.New("invalid pipeline definition")
)
