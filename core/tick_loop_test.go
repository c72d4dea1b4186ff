package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// TestTickLoop_DrivesScheduler verifies a real loop advances a scheduler to completion
// Given: A 1ms tick loop and a scheduler with a three-step task
// When: The loop runs
// Then: The task finishes and the frame counter advances
func TestTickLoop_DrivesScheduler(t *testing.T) {
	// Arrange
	loop := NewTickLoop(time.Millisecond, nil)
	defer loop.Stop()
	s := NewScheduler(loop, &SchedulerConfig{Name: "looped"})
	defer s.Dispose()

	remaining := 3
	s.Enqueue(func(ctx context.Context) StepResult {
		remaining--
		if remaining > 0 {
			return StepContinue
		}
		return StepDone
	})

	// Act & Assert
	waitFor(t, 2*time.Second, func() bool { return !s.IsBusy() })
	rec, ok := s.LastTask()
	if !ok || rec.Steps != 3 {
		t.Fatalf("last task = %+v", rec)
	}
	if loop.Frames() < 4 {
		t.Fatalf("Frames = %d, want at least 4", loop.Frames())
	}
}

// TestTickLoop_PostRunsOnLoop verifies posted closures never overlap ticks
func TestTickLoop_PostRunsOnLoop(t *testing.T) {
	loop := NewTickLoop(time.Millisecond, nil)
	defer loop.Stop()

	var inTick atomic.Bool
	var overlap atomic.Bool
	var h TickHandlerFunc = func() {
		inTick.Store(true)
		time.Sleep(100 * time.Microsecond)
		inTick.Store(false)
	}
	loop.Subscribe(&h)

	var ran atomic.Int32
	for range 20 {
		if !loop.Post(func() {
			if inTick.Load() {
				overlap.Store(true)
			}
			ran.Add(1)
		}) {
			t.Fatal("Post rejected on a running loop")
		}
	}

	waitFor(t, 2*time.Second, func() bool { return ran.Load() == 20 })
	if overlap.Load() {
		t.Fatal("posted closure ran during a tick")
	}
}

// TestTickLoop_RecoversPanics verifies a panicking handler does not kill the loop
func TestTickLoop_RecoversPanics(t *testing.T) {
	logger := &recordingLogger{}
	loop := NewTickLoop(time.Millisecond, logger)
	defer loop.Stop()

	var bad TickHandlerFunc = func() { panic("handler exploded") }
	good := &atomicCounter{}
	loop.Subscribe(&bad)
	loop.Subscribe(good)

	waitFor(t, 2*time.Second, func() bool { return good.n.Load() >= 3 })
	loop.Unsubscribe(&bad)
	if _, ok := logger.find("tick loop recovered panic in tick handler"); !ok {
		t.Fatal("missing panic log entry")
	}
}

type atomicCounter struct{ n atomic.Int32 }

func (c *atomicCounter) OnTick() { c.n.Add(1) }

func TestTickLoop_Stop(t *testing.T) {
	loop := NewTickLoop(0, nil)
	if loop.Interval() != DefaultTickInterval {
		t.Fatalf("Interval = %v, want %v", loop.Interval(), DefaultTickInterval)
	}
	loop.Subscribe(&atomicCounter{})

	loop.Stop()
	loop.Stop()

	if !loop.IsClosed() {
		t.Fatal("expected closed")
	}
	if loop.Post(func() {}) {
		t.Fatal("Post accepted after Stop")
	}
	if loop.Post(nil) {
		t.Fatal("Post accepted a nil closure")
	}
	st := loop.Stats()
	if st.Running || st.Subscribers != 1 || st.Interval != DefaultTickInterval {
		t.Fatalf("stats = %+v", st)
	}
}
