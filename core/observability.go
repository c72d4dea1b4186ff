package core

import "time"

// TaskRecord captures how a task left its scheduler.
type TaskRecord struct {
	TaskID     TaskID
	Name       string
	Scheduler  string
	Queue      QueueKind
	Outcome    Outcome
	Steps      int
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Err        error
}

// SchedulerStats represents runtime observability state for a scheduler.
type SchedulerStats struct {
	Name        string
	Normal      int
	Immediate   int
	Running     bool
	Busy        bool
	Disposed    bool
	CurrentTask string
	Deadline    time.Time

	Completed int64
	TimedOut  int64
	Aborted   int64
	Faulted   int64
	Dropped   int64
}

// Queued mirrors Scheduler.NumQueuedTasks.
func (s SchedulerStats) Queued() int {
	n := s.Normal + s.Immediate
	if s.Running {
		n++
	}
	return n
}

// TickLoopStats represents runtime observability state for a tick loop.
type TickLoopStats struct {
	Subscribers int
	Frames      uint64
	Interval    time.Duration
	Running     bool
}
