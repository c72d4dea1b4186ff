package tickrunner

import "github.com/Swind/go-tick-runner/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the tickrunner package for most use cases.

// Scheduler advances queued step functions once per tick
type Scheduler = core.Scheduler

// SchedulerConfig holds scheduler defaults and collaborators
type SchedulerConfig = core.SchedulerConfig

// StepFunc is polled once per tick until it returns StepDone or StepAbort
type StepFunc = core.StepFunc

// Action is fire-and-forget work that completes on its first tick
type Action = core.Action

// StepResult is the tri-state result of a step
type StepResult = core.StepResult

// TaskTraits defines per-task name, time limit and abort policy
type TaskTraits = core.TaskTraits

// AbortPolicy decides whether a timeout also clears the queues
type AbortPolicy = core.AbortPolicy

// TickHandler receives ticks from a TickSource
type TickHandler = core.TickHandler

// TickSource is the periodic callback registration contract
type TickSource = core.TickSource

// ManualTickSource is a host-driven TickSource
type ManualTickSource = core.ManualTickSource

// TickLoop is a TickSource backed by a dedicated goroutine
type TickLoop = core.TickLoop

// Registry tracks live schedulers for bulk teardown
type Registry = core.Registry

// Logger is the diagnostics sink interface
type Logger = core.Logger

// Metrics is the metrics sink interface
type Metrics = core.Metrics

// Step result constants
const (
	StepContinue StepResult = core.StepContinue
	StepDone     StepResult = core.StepDone
	StepAbort    StepResult = core.StepAbort
)

// Abort policy constants
const (
	AbortPolicyDefault    AbortPolicy = core.AbortPolicyDefault
	AbortPolicyKeepQueue  AbortPolicy = core.AbortPolicyKeepQueue
	AbortPolicyClearQueue AbortPolicy = core.AbortPolicyClearQueue
)

// Convenience functions for creating TaskTraits
var (
	DefaultTaskTraits      = core.DefaultTaskTraits
	TraitsNamed            = core.TraitsNamed
	TraitsWithTimeLimit    = core.TraitsWithTimeLimit
	TraitsAbortOnTimeout   = core.TraitsAbortOnTimeout
	DefaultSchedulerConfig = core.DefaultSchedulerConfig
)

// NewScheduler creates a scheduler subscribed to source.
// This is re-exported for users who drive their own tick source.
func NewScheduler(source TickSource, config *SchedulerConfig) *Scheduler {
	return core.NewScheduler(source, config)
}

// NewManualTickSource creates a tick source that fires only on Fire().
func NewManualTickSource() *ManualTickSource {
	return core.NewManualTickSource()
}

// NewRegistry creates an empty scheduler registry.
func NewRegistry(logger Logger) *Registry {
	return core.NewRegistry(logger)
}

// CurrentScheduler retrieves the running scheduler from a step context
var CurrentScheduler = core.CurrentScheduler
