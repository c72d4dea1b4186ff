package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/Swind/go-tick-runner/core"
)

type enqueueCall struct {
	immediate bool
	traits    core.TaskTraits
}

type fakeEnqueuer struct {
	name     string
	disposed bool
	calls    chan enqueueCall
}

func newFakeEnqueuer(name string) *fakeEnqueuer {
	return &fakeEnqueuer{name: name, calls: make(chan enqueueCall, 16)}
}

func (f *fakeEnqueuer) Name() string     { return f.name }
func (f *fakeEnqueuer) IsDisposed() bool { return f.disposed }
func (f *fakeEnqueuer) EnqueueWithTraits(step core.StepFunc, traits core.TaskTraits) {
	f.calls <- enqueueCall{traits: traits}
}
func (f *fakeEnqueuer) EnqueueImmediateWithTraits(step core.StepFunc, traits core.TaskTraits) {
	f.calls <- enqueueCall{immediate: true, traits: traits}
}

// TestFeeder_FiringEnqueuesFreshStep verifies each firing builds a new step
// and enqueues it with the job name as the task label.
// Given: a job added with a step factory
// When: the entry fires twice
// Then: two normal enqueues happen and the factory ran twice
func TestFeeder_FiringEnqueuesFreshStep(t *testing.T) {
	// Arrange
	f := NewFeeder(nil)
	target := newFakeEnqueuer("main")
	built := 0
	id, err := f.Add("@every 1h", target, Job{
		Name: "heartbeat",
		Step: func() core.StepFunc {
			built++
			return func(ctx context.Context) core.StepResult { return core.StepDone }
		},
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// Act
	f.c.Entry(id).Job.Run()
	f.c.Entry(id).Job.Run()

	// Assert
	if built != 2 {
		t.Fatalf("step factory ran %d times, want 2", built)
	}
	for i := 0; i < 2; i++ {
		call := <-target.calls
		if call.immediate {
			t.Fatal("expected normal queue")
		}
		if call.traits.Name != "heartbeat" {
			t.Fatalf("task name = %q, want heartbeat", call.traits.Name)
		}
	}
}

func TestFeeder_ImmediateJobUsesImmediateQueue(t *testing.T) {
	f := NewFeeder(nil)
	target := newFakeEnqueuer("main")
	id, err := f.Add("*/5 * * * * *", target, Job{
		Name:      "urgent",
		Immediate: true,
		Traits:    core.TraitsNamed("explicit"),
		Step:      Hold(nil, 0),
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	f.c.Entry(id).Job.Run()

	call := <-target.calls
	if !call.immediate {
		t.Fatal("expected immediate queue")
	}
	if call.traits.Name != "explicit" {
		t.Fatalf("task name = %q, want explicit", call.traits.Name)
	}
}

func TestFeeder_SkipsDisposedTarget(t *testing.T) {
	f := NewFeeder(nil)
	target := newFakeEnqueuer("main")
	target.disposed = true
	id, err := f.Add("@hourly", target, Job{Name: "late", Step: Hold(nil, 0)})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	f.c.Entry(id).Job.Run()

	select {
	case <-target.calls:
		t.Fatal("disposed target must not receive tasks")
	default:
	}
}

func TestFeeder_AddRejectsInvalidInput(t *testing.T) {
	f := NewFeeder(nil)
	target := newFakeEnqueuer("main")

	if _, err := f.Add("@hourly", nil, Job{Step: Hold(nil, 0)}); !errors.Is(err, ErrNilTarget) {
		t.Fatalf("nil target err = %v, want ErrNilTarget", err)
	}
	if _, err := f.Add("@hourly", target, Job{}); !errors.Is(err, ErrNilStep) {
		t.Fatalf("nil step err = %v, want ErrNilStep", err)
	}
	if _, err := f.Add("not a schedule", target, Job{Step: Hold(nil, 0)}); err == nil {
		t.Fatal("expected parse error")
	}
	if f.Len() != 0 {
		t.Fatalf("Len = %d, want 0", f.Len())
	}
}

func TestFeeder_RemoveAndEntries(t *testing.T) {
	f := NewFeeder(nil)
	target := newFakeEnqueuer("main")
	a, _ := f.Add("@every 1m", target, Job{Name: "a", Step: Hold(nil, 0)})
	b, _ := f.Add("@every 2m", target, Job{Name: "b", Step: Hold(nil, 0)})

	entries := f.Entries()
	if len(entries) != 2 || entries[0].ID != a || entries[1].ID != b {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Scheduler != "main" || entries[1].Spec != "@every 2m" {
		t.Fatalf("entry info = %+v", entries)
	}

	f.Remove(a)
	f.Remove(a)
	if f.Len() != 1 {
		t.Fatalf("Len = %d, want 1", f.Len())
	}
}

func TestFeeder_StartStop_Idempotent(t *testing.T) {
	f := NewFeeder(nil)
	f.Start()
	f.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := f.Stop(ctx); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
}

func TestFeeder_RunningFeederDrivesRealScheduler(t *testing.T) {
	// Arrange
	ticks := core.NewManualTickSource()
	s := core.NewScheduler(ticks, nil)
	defer s.Dispose()

	f := NewFeeder(nil)
	if _, err := f.Add("@every 1s", s, Job{Name: "tick", Step: Hold(nil, 0)}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// Act
	f.Start()
	defer f.Stop(context.Background())

	// Assert
	deadline := time.Now().Add(3 * time.Second)
	for !s.IsBusy() {
		if time.Now().After(deadline) {
			t.Fatal("feeder never enqueued")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestValidate(t *testing.T) {
	for _, spec := range []string{"@every 5s", "0 */5 * * * *", "*/5 * * * *", "@daily"} {
		if err := Validate(spec); err != nil {
			t.Errorf("Validate(%q) = %v", spec, err)
		}
	}
	for _, spec := range []string{"", "  ", "61 * * * *", "@sometimes"} {
		if err := Validate(spec); err == nil {
			t.Errorf("Validate(%q) = nil, want error", spec)
		}
	}
}

func TestNext(t *testing.T) {
	from := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	next, err := Next("@every 5s", from)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if want := from.Add(5 * time.Second); !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}

	next, err = Next("30 * * * *", from)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if want := time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}

	if _, err := Next("nope", from); err == nil {
		t.Fatal("expected error")
	}
}

func TestHoldStep_CompletesAfterDuration(t *testing.T) {
	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	step := HoldStep(clock, 200*time.Millisecond)
	ctx := context.Background()

	if got := step(ctx); got != core.StepContinue {
		t.Fatalf("first step = %v, want continue", got)
	}
	clock.AdvanceTime(199 * time.Millisecond)
	if got := step(ctx); got != core.StepContinue {
		t.Fatalf("step before hold = %v, want continue", got)
	}
	clock.AdvanceTime(time.Millisecond)
	if got := step(ctx); got != core.StepDone {
		t.Fatalf("step at hold = %v, want done", got)
	}
}

func TestHoldStep_ZeroCompletesImmediately(t *testing.T) {
	step := HoldStep(&timeutil.SimulatedClock{}, 0)
	if got := step(context.Background()); got != core.StepDone {
		t.Fatalf("step = %v, want done", got)
	}
}
