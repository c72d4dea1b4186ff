package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
)

// =============================================================================
// Test doubles
// =============================================================================

type logEntry struct {
	level  string
	msg    string
	fields map[string]any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(level, msg string, fields []Field) {
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: m})
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, fields ...Field) { l.record("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields ...Field)  { l.record("info", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...Field)  { l.record("warn", msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...Field) { l.record("error", msg, fields) }

func (l *recordingLogger) byLevel(level string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range l.entries {
		if e.level == level {
			out = append(out, e)
		}
	}
	return out
}

func (l *recordingLogger) find(msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

type finishedMetric struct {
	outcome Outcome
	steps   int
}

type recordingMetrics struct {
	mu       sync.Mutex
	started  []QueueKind
	finished []finishedMetric
	dropped  map[string]int
	depth    int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{dropped: make(map[string]int)}
}

func (m *recordingMetrics) RecordTaskStarted(schedulerName string, queue QueueKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, queue)
}

func (m *recordingMetrics) RecordTaskFinished(schedulerName string, outcome Outcome, duration time.Duration, steps int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, finishedMetric{outcome: outcome, steps: steps})
}

func (m *recordingMetrics) RecordTasksDropped(schedulerName string, reason string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[reason] += count
}

func (m *recordingMetrics) RecordQueueDepth(schedulerName string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depth = depth
}

type recordingPanicHandler struct {
	mu        sync.Mutex
	calls     int
	scheduler string
	task      string
	value     any
}

func (h *recordingPanicHandler) HandlePanic(ctx context.Context, schedulerName string, taskName string, panicInfo any, stackTrace []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	h.scheduler = schedulerName
	h.task = taskName
	h.value = panicInfo
}

// =============================================================================
// Fixture
// =============================================================================

type fixture struct {
	s       *Scheduler
	ticks   *ManualTickSource
	clock   *timeutil.SimulatedClock
	logger  *recordingLogger
	metrics *recordingMetrics
}

func newFixture(t *testing.T, mutate func(cfg *SchedulerConfig)) *fixture {
	t.Helper()
	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	f := &fixture{
		ticks:   NewManualTickSource(),
		clock:   clock,
		logger:  &recordingLogger{},
		metrics: newRecordingMetrics(),
	}
	cfg := DefaultSchedulerConfig()
	cfg.Name = "test"
	cfg.Clock = clock
	cfg.Logger = f.logger
	cfg.Metrics = f.metrics
	if mutate != nil {
		mutate(cfg)
	}
	f.s = NewScheduler(f.ticks, cfg)
	t.Cleanup(f.s.Dispose)
	return f
}

func continueForever(ctx context.Context) StepResult { return StepContinue }

func doneNow(ctx context.Context) StepResult { return StepDone }

// recorder returns a step that appends label to *order and finishes.
func recorder(order *[]string, label string) StepFunc {
	return func(ctx context.Context) StepResult {
		*order = append(*order, label)
		return StepDone
	}
}
