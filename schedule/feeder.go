package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Swind/go-tick-runner/core"
)

// Enqueuer is the part of *core.Scheduler a Feeder needs.
type Enqueuer interface {
	Name() string
	IsDisposed() bool
	EnqueueWithTraits(step core.StepFunc, traits core.TaskTraits)
	EnqueueImmediateWithTraits(step core.StepFunc, traits core.TaskTraits)
}

var _ Enqueuer = (*core.Scheduler)(nil)

// Job is one cron-fed task definition.
type Job struct {
	Name      string
	Immediate bool
	Traits    core.TaskTraits

	// Step builds a fresh step for every firing. Steps usually hold state,
	// so one instance must never be enqueued twice.
	Step func() core.StepFunc
}

// EntryInfo describes a registered job.
type EntryInfo struct {
	ID        cron.EntryID
	Name      string
	Scheduler string
	Spec      string
	Next      time.Time
}

var (
	ErrNilTarget = errors.New("schedule: nil target scheduler")
	ErrNilStep   = errors.New("schedule: job has no step factory")
)

// Feeder enqueues tasks onto schedulers on cron schedules.
//
// Firings run on cron's goroutines; they only enqueue, the step itself always
// runs on the scheduler's tick goroutine.
type Feeder struct {
	mu      sync.Mutex
	parser  cron.Parser
	c       *cron.Cron
	logger  core.Logger
	entries map[cron.EntryID]EntryInfo
	running bool
}

// newParser accepts an optional seconds field and @descriptors.
func newParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// Validate reports whether spec is a schedule the Feeder accepts.
func Validate(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return fmt.Errorf("empty schedule")
	}
	_, err := newParser().Parse(spec)
	return err
}

// Next returns the first activation of spec after from.
func Next(spec string, from time.Time) (time.Time, error) {
	sched, err := newParser().Parse(spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

func NewFeeder(logger core.Logger) *Feeder {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	parser := newParser()
	cl := cronLogger{l: logger}
	return &Feeder{
		parser: parser,
		c: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		logger:  logger,
		entries: make(map[cron.EntryID]EntryInfo),
	}
}

// Add registers job to be enqueued on target whenever spec fires.
func (f *Feeder) Add(spec string, target Enqueuer, job Job) (cron.EntryID, error) {
	if target == nil {
		return 0, ErrNilTarget
	}
	if job.Step == nil {
		return 0, ErrNilStep
	}
	if job.Name == "" {
		job.Name = "cron-job"
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id, err := f.c.AddFunc(spec, func() { f.fire(target, job) })
	if err != nil {
		return 0, fmt.Errorf("schedule: job %q: %w", job.Name, err)
	}
	f.entries[id] = EntryInfo{ID: id, Name: job.Name, Scheduler: target.Name(), Spec: spec}
	f.logger.Debug("cron job registered",
		core.F("job", job.Name),
		core.F("scheduler", target.Name()),
		core.F("spec", spec),
	)
	return id, nil
}

// Remove unregisters a job. Unknown IDs are ignored.
func (f *Feeder) Remove(id cron.EntryID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.Remove(id)
	delete(f.entries, id)
}

// Len returns the number of registered jobs.
func (f *Feeder) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// Entries returns the registered jobs ordered by ID. Next is only set while running.
func (f *Feeder) Entries() []EntryInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]EntryInfo, 0, len(f.entries))
	for id, info := range f.entries {
		info.Next = f.c.Entry(id).Next
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Start begins firing jobs. Repeated calls are no-ops.
func (f *Feeder) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return
	}
	f.running = true
	f.c.Start()
	f.logger.Info("cron feeder started", core.F("jobs", len(f.entries)))
}

// Stop stops firing jobs and waits for in-flight firings, bounded by ctx.
func (f *Feeder) Stop(ctx context.Context) error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	done := f.c.Stop()
	f.mu.Unlock()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Feeder) fire(target Enqueuer, job Job) {
	if target.IsDisposed() {
		f.logger.Debug("cron job skipped, scheduler disposed",
			core.F("job", job.Name), core.F("scheduler", target.Name()))
		return
	}
	step := job.Step()
	if step == nil {
		f.logger.Warn("cron job produced nil step", core.F("job", job.Name))
		return
	}

	traits := job.Traits
	if traits.Name == "" {
		traits.Name = job.Name
	}
	if job.Immediate {
		target.EnqueueImmediateWithTraits(step, traits)
	} else {
		target.EnqueueWithTraits(step, traits)
	}
	f.logger.Debug("cron job enqueued",
		core.F("job", job.Name),
		core.F("scheduler", target.Name()),
		core.F("immediate", job.Immediate),
	)
}

// cronLogger routes cron's own diagnostics to a core.Logger.
type cronLogger struct {
	l core.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(kvFields(keysAndValues), core.F("err", err))...)
}

func kvFields(kv []any) []core.Field {
	fields := make([]core.Field, 0, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, core.F(key, kv[i+1]))
	}
	if len(kv)%2 == 1 {
		fields = append(fields, core.F("extra", kv[len(kv)-1]))
	}
	return fields
}
