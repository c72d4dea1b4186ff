package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jacobsa/timeutil"
)

// Scheduler advances a queue of step functions once per tick.
//
// At most one task is current at a time. When idle, the next task is taken
// from the immediate queue first and from the normal queue otherwise; each
// later tick invokes the current task's step exactly once and interprets its
// StepResult. A task that keeps returning StepContinue past its deadline times
// out. Timeouts are only noticed on a tick, so a task can overrun its limit by
// up to one tick period.
//
// All methods are safe for concurrent use, but steps always run on the
// goroutine calling Advance (normally the tick source's) and must not block.
type Scheduler struct {
	mu sync.Mutex

	name         string
	clock        timeutil.Clock
	source       TickSource
	registry     *Registry
	logger       Logger
	metrics      Metrics
	panicHandler PanicHandler
	history      *executionHistory

	defaultTimeLimit time.Duration
	abortOnTimeout   bool
	timeoutSilently  bool

	queue     taskQueue
	immediate taskQueue

	current   *Task
	deadline  time.Time
	startedAt time.Time
	steps     int

	advancing bool
	disposed  bool

	completed int64
	timedOut  int64
	aborted   int64
	faulted   int64
	dropped   int64

	// ctx is handed to every step; cancelled on Dispose
	ctx    context.Context
	cancel context.CancelFunc
}

type schedulerKeyType struct{}

var schedulerKey schedulerKeyType

// CurrentScheduler returns the scheduler running the step that received ctx.
func CurrentScheduler(ctx context.Context) *Scheduler {
	if v := ctx.Value(schedulerKey); v != nil {
		return v.(*Scheduler)
	}
	return nil
}

// NewScheduler creates a scheduler, subscribes it to source and registers it
// with config.Registry. A nil source leaves driving Advance to the caller.
// A nil config uses DefaultSchedulerConfig.
func NewScheduler(source TickSource, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}

	s := &Scheduler{
		name:             config.Name,
		clock:            config.Clock,
		source:           source,
		registry:         config.Registry,
		logger:           config.Logger,
		metrics:          config.Metrics,
		panicHandler:     config.PanicHandler,
		history:          newExecutionHistory(config.HistorySize),
		defaultTimeLimit: config.DefaultTimeLimit,
		abortOnTimeout:   config.AbortOnTimeout,
		timeoutSilently:  config.TimeoutSilently,
		queue:            newTaskQueue(),
		immediate:        newTaskQueue(),
	}

	// Use defaults if not provided
	if s.name == "" {
		s.name = "scheduler"
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock()
	}
	if s.logger == nil {
		s.logger = NewNoOpLogger()
	}
	if s.metrics == nil {
		s.metrics = &NilMetrics{}
	}
	if s.defaultTimeLimit <= 0 {
		s.defaultTimeLimit = DefaultTimeLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.ctx = context.WithValue(ctx, schedulerKey, s)
	s.cancel = cancel

	if s.registry != nil {
		s.registry.Register(s)
	}
	if source != nil {
		source.Subscribe(s)
	}
	return s
}

// Name returns the name of the scheduler
func (s *Scheduler) Name() string {
	return s.name
}

// =============================================================================
// Configuration
// =============================================================================

func (s *Scheduler) DefaultTimeLimit() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultTimeLimit
}

// SetDefaultTimeLimit changes the limit for tasks enqueued from now on.
// Non-positive values restore DefaultTimeLimit.
func (s *Scheduler) SetDefaultTimeLimit(limit time.Duration) {
	if limit <= 0 {
		limit = DefaultTimeLimit
	}
	s.mu.Lock()
	s.defaultTimeLimit = limit
	s.mu.Unlock()
}

func (s *Scheduler) AbortOnTimeout() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abortOnTimeout
}

// SetAbortOnTimeout changes the policy for tasks enqueued from now on with AbortPolicyDefault.
func (s *Scheduler) SetAbortOnTimeout(abort bool) {
	s.mu.Lock()
	s.abortOnTimeout = abort
	s.mu.Unlock()
}

func (s *Scheduler) TimeoutSilently() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeoutSilently
}

// SetTimeoutSilently routes timeout diagnostics to Debug (true) or Warn (false).
func (s *Scheduler) SetTimeoutSilently(silent bool) {
	s.mu.Lock()
	s.timeoutSilently = silent
	s.mu.Unlock()
}

// =============================================================================
// Enqueue
// =============================================================================

// Enqueue appends step to the normal queue with default traits.
func (s *Scheduler) Enqueue(step StepFunc) {
	s.enqueue(QueueNormal, step, step, DefaultTaskTraits())
}

// EnqueueWithTraits appends step to the normal queue.
func (s *Scheduler) EnqueueWithTraits(step StepFunc, traits TaskTraits) {
	s.enqueue(QueueNormal, step, step, traits)
}

// EnqueueAction appends a run-once action to the normal queue.
func (s *Scheduler) EnqueueAction(action Action) {
	s.EnqueueActionWithTraits(action, DefaultTaskTraits())
}

// EnqueueActionWithTraits appends a run-once action to the normal queue.
func (s *Scheduler) EnqueueActionWithTraits(action Action, traits TaskTraits) {
	if action == nil {
		s.enqueue(QueueNormal, nil, nil, traits)
		return
	}
	s.enqueue(QueueNormal, actionStep(action), action, traits)
}

// EnqueueImmediate appends step to the immediate queue, which is drained
// before the normal queue whenever the scheduler becomes idle.
func (s *Scheduler) EnqueueImmediate(step StepFunc) {
	s.enqueue(QueueImmediate, step, step, DefaultTaskTraits())
}

// EnqueueImmediateWithTraits appends step to the immediate queue.
func (s *Scheduler) EnqueueImmediateWithTraits(step StepFunc, traits TaskTraits) {
	s.enqueue(QueueImmediate, step, step, traits)
}

// EnqueueImmediateAction appends a run-once action to the immediate queue.
func (s *Scheduler) EnqueueImmediateAction(action Action) {
	s.EnqueueImmediateActionWithTraits(action, DefaultTaskTraits())
}

// EnqueueImmediateActionWithTraits appends a run-once action to the immediate queue.
func (s *Scheduler) EnqueueImmediateActionWithTraits(action Action, traits TaskTraits) {
	if action == nil {
		s.enqueue(QueueImmediate, nil, nil, traits)
		return
	}
	s.enqueue(QueueImmediate, actionStep(action), action, traits)
}

// enqueue resolves traits against the current defaults and queues the task.
// label is the user's original function, used only to derive a name.
func (s *Scheduler) enqueue(kind QueueKind, step StepFunc, label any, traits TaskTraits) {
	if step == nil {
		s.logger.Warn("nil step ignored", F("scheduler", s.name), F("queue", kind.String()))
		return
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		s.logger.Warn("task enqueued after dispose was dropped",
			F("scheduler", s.name),
			F("task", resolveTaskName(label, traits.Name)),
		)
		s.metrics.RecordTasksDropped(s.name, "disposed", 1)
		return
	}

	limit := traits.TimeLimit
	if limit <= 0 {
		limit = s.defaultTimeLimit
	}
	abort := s.abortOnTimeout
	switch traits.AbortOnTimeout {
	case AbortPolicyKeepQueue:
		abort = false
	case AbortPolicyClearQueue:
		abort = true
	}

	t := &Task{
		id:             uuid.New(),
		name:           resolveTaskName(label, traits.Name),
		step:           step,
		timeLimit:      limit,
		abortOnTimeout: abort,
		queue:          kind,
	}
	if kind == QueueImmediate {
		s.immediate.push(t)
	} else {
		s.queue.push(t)
	}
	s.mu.Unlock()
}

// =============================================================================
// Abort
// =============================================================================

// Abort drops every queued task and the current task. Discarded tasks are
// not notified.
func (s *Scheduler) Abort() {
	s.mu.Lock()
	n := s.immediate.clear() + s.queue.clear()
	if s.current != nil {
		n++
		s.clearCurrentLocked()
	}
	s.dropped += int64(n)
	s.mu.Unlock()

	if n > 0 {
		s.logger.Debug(fmt.Sprintf("aborted %d tasks", n), F("scheduler", s.name), F("count", n))
		s.metrics.RecordTasksDropped(s.name, "abort", n)
	}
	s.metrics.RecordQueueDepth(s.name, 0)
}

// =============================================================================
// Advance
// =============================================================================

// OnTick implements TickHandler.
func (s *Scheduler) OnTick() {
	s.Advance()
}

// Advance performs one scheduling step: start the next task when idle,
// otherwise invoke the current task's step once. It never panics on behalf
// of a step and returns after at most one step invocation.
//
// A nested call from inside a step is a no-op.
func (s *Scheduler) Advance() {
	s.mu.Lock()
	if s.advancing || s.disposed {
		s.mu.Unlock()
		return
	}

	if s.current == nil {
		started := s.startNextLocked()
		depth := s.numQueuedLocked()
		s.mu.Unlock()

		if started != nil {
			s.logger.Debug("starting to execute task",
				F("scheduler", s.name),
				F("task", started.name),
				F("queue", started.queue.String()),
				F("time_limit", started.timeLimit),
			)
			s.metrics.RecordTaskStarted(s.name, started.queue)
		}
		s.metrics.RecordQueueDepth(s.name, depth)
		return
	}

	task := s.current
	s.advancing = true
	s.steps++
	s.mu.Unlock()

	result, fault := s.invoke(task)

	s.mu.Lock()
	s.advancing = false
	if s.current != task {
		// Abort ran while the step was executing; its result no longer applies.
		depth := s.numQueuedLocked()
		s.mu.Unlock()
		s.metrics.RecordQueueDepth(s.name, depth)
		return
	}

	now := s.clock.Now()
	var ev finishEvent
	switch {
	case fault != nil:
		ev = s.finishLocked(task, OutcomeFault, fault, now)

	case result == StepDone:
		ev = s.finishLocked(task, OutcomeDone, nil, now)

	case result == StepAbort:
		ev = s.finishLocked(task, OutcomeAborted, ErrAbortRequested, now)
		ev.cleared = s.immediate.clear() + s.queue.clear()
		ev.dropReason = "abort_signal"

	case now.After(s.deadline):
		ev = s.finishLocked(task, OutcomeTimeout, &TimeoutError{
			Task:    task.name,
			Limit:   task.timeLimit,
			Overrun: now.Sub(s.deadline),
		}, now)
		ev.silent = s.timeoutSilently
		if task.abortOnTimeout {
			ev.cleared = s.immediate.clear() + s.queue.clear()
			ev.dropReason = "timeout"
		}

	default:
		// StepContinue within the deadline. Unknown results are treated the same way.
		depth := s.numQueuedLocked()
		s.mu.Unlock()
		s.metrics.RecordQueueDepth(s.name, depth)
		return
	}
	s.dropped += int64(ev.cleared)
	depth := s.numQueuedLocked()
	s.mu.Unlock()

	s.emit(ev)
	s.metrics.RecordQueueDepth(s.name, depth)
}

func (s *Scheduler) startNextLocked() *Task {
	t, ok := s.immediate.pop()
	if !ok {
		t, ok = s.queue.pop()
	}
	if !ok {
		return nil
	}

	now := s.clock.Now()
	s.current = t
	s.startedAt = now
	s.deadline = now.Add(t.timeLimit)
	s.steps = 0
	return t
}

func (s *Scheduler) clearCurrentLocked() {
	s.current = nil
	s.deadline = time.Time{}
	s.startedAt = time.Time{}
	s.steps = 0
}

func (s *Scheduler) invoke(t *Task) (result StepResult, fault *FaultError) {
	defer func() {
		if rec := recover(); rec != nil {
			fault = &FaultError{Task: t.name, Value: rec, Stack: debug.Stack()}
		}
	}()
	return t.step(s.ctx), nil
}

// finishEvent carries everything emit needs once the lock is released.
type finishEvent struct {
	record     TaskRecord
	cleared    int
	dropReason string
	silent     bool
	fault      *FaultError
}

// finishLocked retires the current task and updates counters.
func (s *Scheduler) finishLocked(t *Task, outcome Outcome, err error, now time.Time) finishEvent {
	ev := finishEvent{
		record: TaskRecord{
			TaskID:     t.id,
			Name:       t.name,
			Scheduler:  s.name,
			Queue:      t.queue,
			Outcome:    outcome,
			Steps:      s.steps,
			StartedAt:  s.startedAt,
			FinishedAt: now,
			Duration:   now.Sub(s.startedAt),
			Err:        err,
		},
	}

	switch outcome {
	case OutcomeDone:
		s.completed++
	case OutcomeTimeout:
		s.timedOut++
	case OutcomeAborted:
		s.aborted++
	case OutcomeFault:
		s.faulted++
		ev.fault, _ = err.(*FaultError)
	}

	s.clearCurrentLocked()
	return ev
}

// emit reports a finished task to the logger, metrics, history and panic handler.
func (s *Scheduler) emit(ev finishEvent) {
	rec := ev.record
	fields := []Field{
		F("scheduler", s.name),
		F("task", rec.Name),
		F("steps", rec.Steps),
		F("duration", rec.Duration),
	}

	switch rec.Outcome {
	case OutcomeDone:
		s.logger.Debug("task completed", fields...)

	case OutcomeTimeout:
		logTimeout := s.logger.Warn
		if ev.silent {
			logTimeout = s.logger.Debug
		}
		if ev.dropReason != "" {
			logTimeout(fmt.Sprintf("clearing %d remaining tasks because of timeout", ev.cleared),
				F("scheduler", s.name), F("count", ev.cleared))
		}
		logTimeout(rec.Err.Error(), append(fields, F("err", rec.Err))...)

	case OutcomeAborted:
		s.logger.Warn(fmt.Sprintf("clearing %d remaining tasks because task %s signalled abort", ev.cleared, rec.Name),
			append(fields, F("count", ev.cleared))...)

	case OutcomeFault:
		s.logger.Error("task step panicked", append(fields,
			F("panic", ev.fault.Value),
			F("stack", string(ev.fault.Stack)),
		)...)
	}

	s.metrics.RecordTaskFinished(s.name, rec.Outcome, rec.Duration, rec.Steps)
	if ev.cleared > 0 {
		s.metrics.RecordTasksDropped(s.name, ev.dropReason, ev.cleared)
	}
	s.history.Add(rec)

	if ev.fault != nil && s.panicHandler != nil {
		s.panicHandler.HandlePanic(s.ctx, s.name, rec.Name, ev.fault.Value, ev.fault.Stack)
	}
}

// =============================================================================
// State
// =============================================================================

func (s *Scheduler) numQueuedLocked() int {
	n := s.queue.len() + s.immediate.len()
	if s.current != nil {
		n++
	}
	return n
}

// NumQueuedTasks returns the queued tasks plus one if a task is current.
func (s *Scheduler) NumQueuedTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numQueuedLocked()
}

// IsBusy reports whether a task is current or either queue is non-empty.
func (s *Scheduler) IsBusy() bool {
	return s.NumQueuedTasks() > 0
}

// IsRunning reports whether a task is current.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Deadline returns the instant at which the current task times out.
// ok is false when the scheduler is idle.
func (s *Scheduler) Deadline() (deadline time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return time.Time{}, false
	}
	return s.deadline, true
}

// CurrentTaskName returns the label of the current task, or "" when idle.
func (s *Scheduler) CurrentTaskName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.name
}

// Stats returns a snapshot for observability.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SchedulerStats{
		Name:      s.name,
		Normal:    s.queue.len(),
		Immediate: s.immediate.len(),
		Running:   s.current != nil,
		Disposed:  s.disposed,
		Completed: s.completed,
		TimedOut:  s.timedOut,
		Aborted:   s.aborted,
		Faulted:   s.faulted,
		Dropped:   s.dropped,
	}
	if s.current != nil {
		st.CurrentTask = s.current.name
		st.Deadline = s.deadline
	}
	st.Busy = st.Queued() > 0
	return st
}

// RecentTasks returns up to limit finished tasks, newest first.
func (s *Scheduler) RecentTasks(limit int) []TaskRecord {
	return s.history.Recent(limit)
}

// LastTask returns the most recently finished task.
func (s *Scheduler) LastTask() (TaskRecord, bool) {
	return s.history.Last()
}

// =============================================================================
// Lifecycle
// =============================================================================

// Dispose unsubscribes the scheduler from its tick source, removes it from
// its registry and cancels the context handed to steps. Queued work is kept
// but never advanced again. Repeated calls are no-ops.
func (s *Scheduler) Dispose() {
	if !s.detach() {
		return
	}
	if s.registry != nil {
		s.registry.Unregister(s)
	}
}

// IsDisposed returns true once Dispose or Registry.DisposeAll has run.
func (s *Scheduler) IsDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// detach marks the scheduler disposed and unsubscribes it. It reports
// whether this call did the work.
func (s *Scheduler) detach() bool {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return false
	}
	s.disposed = true
	source := s.source
	s.mu.Unlock()

	if source != nil {
		source.Unsubscribe(s)
	}
	s.cancel()
	return true
}
