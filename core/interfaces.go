package core

import (
	"context"
	"time"

	"github.com/jacobsa/timeutil"
)

// DefaultTimeLimit is the time limit given to tasks when neither the task nor
// the scheduler configuration specifies one.
const DefaultTimeLimit = 10 * time.Second

// =============================================================================
// PanicHandler: Interface for handling step function panics
// =============================================================================

// PanicHandler is called when a step function panics during Advance.
// The scheduler has already discarded the task and logged the fault; the
// handler is an extra hook for crash reporting.
//
// It is called without the scheduler lock held, so it may call back into the scheduler.
type PanicHandler interface {
	// HandlePanic is called when a step panics.
	//
	// Parameters:
	// - ctx: The step context (carries the scheduler)
	// - schedulerName: The name of the scheduler that owned the task
	// - taskName: The diagnostic label of the faulting task
	// - panicInfo: The panic value recovered from the step
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, schedulerName string, taskName string, panicInfo any, stackTrace []byte)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting scheduler metrics.
// Implementations can send metrics to monitoring systems (see observability/prometheus).
//
// Methods are called from inside Advance and should be non-blocking and fast.
type Metrics interface {
	// RecordTaskStarted records that a task became current.
	RecordTaskStarted(schedulerName string, queue QueueKind)

	// RecordTaskFinished records how a task left the scheduler.
	//
	// Parameters:
	// - schedulerName: The name of the scheduler
	// - outcome: Done, Timeout, Aborted or Fault
	// - duration: Time between the task becoming current and finishing
	// - steps: How many times its step function was invoked
	RecordTaskFinished(schedulerName string, outcome Outcome, duration time.Duration, steps int)

	// RecordTasksDropped records queued tasks discarded without running.
	// reason is one of "abort", "abort_signal", "timeout", "disposed".
	RecordTasksDropped(schedulerName string, reason string, count int)

	// RecordQueueDepth records NumQueuedTasks after each Advance.
	RecordQueueDepth(schedulerName string, depth int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskStarted is a no-op.
func (m *NilMetrics) RecordTaskStarted(schedulerName string, queue QueueKind) {}

// RecordTaskFinished is a no-op.
func (m *NilMetrics) RecordTaskFinished(schedulerName string, outcome Outcome, duration time.Duration, steps int) {
}

// RecordTasksDropped is a no-op.
func (m *NilMetrics) RecordTasksDropped(schedulerName string, reason string, count int) {}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(schedulerName string, depth int) {}

// =============================================================================
// SchedulerConfig: Configuration for Scheduler
// =============================================================================

// SchedulerConfig holds configuration options for Scheduler.
// All collaborators are optional; if not provided, default implementations are used.
type SchedulerConfig struct {
	// Name labels the scheduler in diagnostics and metrics.
	Name string

	// DefaultTimeLimit applies to tasks enqueued without an explicit limit. Defaults to 10s.
	DefaultTimeLimit time.Duration

	// AbortOnTimeout applies to tasks enqueued with AbortPolicyDefault.
	AbortOnTimeout bool

	// TimeoutSilently routes timeout diagnostics to Debug instead of Warn.
	TimeoutSilently bool

	// Clock measures deadlines. Defaults to timeutil.RealClock().
	Clock timeutil.Clock

	// Registry, when set, tracks the scheduler for bulk teardown.
	Registry *Registry

	// Logger receives diagnostics. Defaults to NoOpLogger.
	Logger Logger

	// Metrics receives task counters. Defaults to NilMetrics.
	Metrics Metrics

	// PanicHandler is an optional hook for step panics.
	PanicHandler PanicHandler

	// HistorySize bounds RecentTasks. Defaults to 100.
	HistorySize int
}

// DefaultSchedulerConfig returns a config with default collaborators.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		DefaultTimeLimit: DefaultTimeLimit,
		Clock:            timeutil.RealClock(),
		Logger:           NewNoOpLogger(),
		Metrics:          &NilMetrics{},
		HistorySize:      defaultTaskHistoryCapacity,
	}
}
