package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StepFunc is the unit of work polled once per tick until it reports
// StepDone or StepAbort, or until its task times out.
type StepFunc func(ctx context.Context) StepResult

// Action is fire-and-forget work. It runs exactly once and its task
// completes on the same tick.
type Action func(ctx context.Context)

// =============================================================================
// StepResult: What a step function wants the scheduler to do next
// =============================================================================

type StepResult int

const (
	// StepContinue: Not finished, poll again on the next tick
	StepContinue StepResult = iota

	// StepDone: Finished, retire the task
	StepDone

	// StepAbort: Cancel the task AND everything still queued on the scheduler
	StepAbort
)

func (r StepResult) String() string {
	switch r {
	case StepContinue:
		return "continue"
	case StepDone:
		return "done"
	case StepAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// =============================================================================
// TaskTraits: Per-task timeout and abort policy
// =============================================================================

// AbortPolicy decides whether a timeout also clears the queued work.
type AbortPolicy int

const (
	// AbortPolicyDefault uses the scheduler's AbortOnTimeout setting
	AbortPolicyDefault AbortPolicy = iota

	// AbortPolicyKeepQueue discards only the timed-out task
	AbortPolicyKeepQueue

	// AbortPolicyClearQueue discards the timed-out task and clears both queues,
	// since the remaining work presumably depended on it
	AbortPolicyClearQueue
)

func (p AbortPolicy) String() string {
	switch p {
	case AbortPolicyDefault:
		return "default"
	case AbortPolicyKeepQueue:
		return "keep_queue"
	case AbortPolicyClearQueue:
		return "clear_queue"
	default:
		return "unknown"
	}
}

// TaskTraits holds optional per-task settings. Zero fields fall back to the
// scheduler defaults.
type TaskTraits struct {
	// Name labels the task in diagnostics. Derived from the function symbol when empty.
	Name string

	// TimeLimit bounds how long the task may keep returning StepContinue.
	// Zero or negative means the scheduler's DefaultTimeLimit.
	TimeLimit time.Duration

	AbortOnTimeout AbortPolicy
}

func DefaultTaskTraits() TaskTraits {
	return TaskTraits{}
}

func TraitsNamed(name string) TaskTraits {
	return TaskTraits{Name: name}
}

func TraitsWithTimeLimit(limit time.Duration) TaskTraits {
	return TaskTraits{TimeLimit: limit}
}

func TraitsAbortOnTimeout() TaskTraits {
	return TaskTraits{AbortOnTimeout: AbortPolicyClearQueue}
}

// WithName returns a copy of t labelled name.
func (t TaskTraits) WithName(name string) TaskTraits {
	t.Name = name
	return t
}

// WithTimeLimit returns a copy of t with the given time limit.
func (t TaskTraits) WithTimeLimit(limit time.Duration) TaskTraits {
	t.TimeLimit = limit
	return t
}

// WithAbortPolicy returns a copy of t with the given abort policy.
func (t TaskTraits) WithAbortPolicy(policy AbortPolicy) TaskTraits {
	t.AbortOnTimeout = policy
	return t
}

// =============================================================================
// QueueKind: Which scheduler queue a task came from
// =============================================================================

type QueueKind int

const (
	QueueNormal QueueKind = iota
	QueueImmediate
)

func (k QueueKind) String() string {
	switch k {
	case QueueNormal:
		return "normal"
	case QueueImmediate:
		return "immediate"
	default:
		return "unknown"
	}
}

// =============================================================================
// Task: Immutable queued unit of work
// =============================================================================

// TaskID uniquely identifies a task for history and diagnostics.
type TaskID = uuid.UUID

// Task is built by the scheduler at enqueue time with every default already
// resolved. It never changes afterwards.
type Task struct {
	id             TaskID
	name           string
	step           StepFunc
	timeLimit      time.Duration
	abortOnTimeout bool
	queue          QueueKind
}

func (t *Task) ID() TaskID               { return t.id }
func (t *Task) Name() string             { return t.name }
func (t *Task) TimeLimit() time.Duration { return t.timeLimit }
func (t *Task) AbortOnTimeout() bool     { return t.abortOnTimeout }
func (t *Task) Queue() QueueKind         { return t.queue }

// actionStep adapts a fire-and-forget action to the polling contract.
func actionStep(action Action) StepFunc {
	return func(ctx context.Context) StepResult {
		action(ctx)
		return StepDone
	}
}
