package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTaskTimeout marks a task that kept returning StepContinue past its deadline.
	ErrTaskTimeout = errors.New("task timed out")

	// ErrAbortRequested marks a task whose step returned StepAbort.
	ErrAbortRequested = errors.New("task requested abort")
)

// TimeoutError describes a timed-out task.
type TimeoutError struct {
	Task    string
	Limit   time.Duration
	Overrun time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s took too long to execute (limit %s, overrun %s)", e.Task, e.Limit, e.Overrun)
}

func (e *TimeoutError) Unwrap() error { return ErrTaskTimeout }

// FaultError wraps a panic recovered from a step function.
type FaultError struct {
	Task  string
	Value any
	Stack []byte
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.Task, e.Value)
}

// Unwrap exposes the panic value when the step panicked with an error.
func (e *FaultError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// =============================================================================
// Outcome: How a task left the scheduler
// =============================================================================

type Outcome int

const (
	OutcomeDone Outcome = iota
	OutcomeTimeout
	OutcomeAborted
	OutcomeFault
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeAborted:
		return "aborted"
	case OutcomeFault:
		return "fault"
	default:
		return "unknown"
	}
}
