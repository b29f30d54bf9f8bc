package society

import "errors"

var (
	// ErrEmptyTranscript is returned when a run ends without a single round.
	ErrEmptyTranscript = errors.New("dialogue produced no transcript entries")

	// ErrMissingContent is returned when a round ends without termination
	// but the solver produced no message to continue from.
	ErrMissingContent = errors.New("turn result carries no message")

	// ErrNotInitialized is returned by Advance before Initialize.
	ErrNotInitialized = errors.New("orchestrator is not initialized")

	// ErrNoTask is returned for an empty task prompt.
	ErrNoTask = errors.New("task prompt is empty")

	// ErrNoFactory is returned when no agent factory is configured.
	ErrNoFactory = errors.New("agent factory is nil")
)
