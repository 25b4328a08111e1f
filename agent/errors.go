package agent

import "errors"

var (
	// ErrToolCycleLimit is returned when the model keeps requesting tool
	// calls past the configured cycle cap. The turn is abandoned; history up
	// to that point is preserved for inspection.
	ErrToolCycleLimit = errors.New("agent: tool cycle limit exceeded")

	// ErrRetryExhausted is returned when the model keeps producing empty
	// content past the active-retry budget.
	ErrRetryExhausted = errors.New("agent: empty response retry budget exhausted")
)
