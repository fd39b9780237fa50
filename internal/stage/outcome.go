// Package stage holds the contract shared by the transfer and extraction
// drivers and the workflow manager that sequences them.
package stage

import "vrdl/internal/services"

// Result is the terminal classification of one stage run.
type Result string

const (
	Succeeded Result = "succeeded"
	Failed    Result = "failed"
	Cancelled Result = "cancelled"
)

// Outcome is what a driver reports when a run ends. Drivers never mutate the
// queue; the workflow manager applies the outcome.
type Outcome struct {
	Result Result
	// Err is set for Failed outcomes and wraps a services marker.
	Err error
	// NextStage reports that a following stage should start.
	NextStage bool
}

// Success builds a successful outcome.
func Success(next bool) Outcome {
	return Outcome{Result: Succeeded, NextStage: next}
}

// Failure builds a failed outcome.
func Failure(err error) Outcome {
	return Outcome{Result: Failed, Err: err}
}

// Cancel builds a cancelled outcome.
func Cancel() Outcome {
	return Outcome{Result: Cancelled, Err: services.ErrCancelled}
}

// Message returns the text recorded on the queue item for a failed outcome.
func (o Outcome) Message() string {
	if o.Result != Failed {
		return ""
	}
	return services.UserMessage(o.Err)
}
