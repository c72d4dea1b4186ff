package core

import (
	"fmt"
	"sync"
	"testing"
)

// TestRegistry_DisposeAll verifies bulk teardown
// Given: A registry holding three schedulers subscribed to one tick source
// When: DisposeAll is called
// Then: All are disposed, unsubscribed, the registry is empty and one debug line is logged
func TestRegistry_DisposeAll(t *testing.T) {
	// Arrange
	logger := &recordingLogger{}
	reg := NewRegistry(logger)
	ticks := NewManualTickSource()
	var all []*Scheduler
	for i := range 3 {
		all = append(all, NewScheduler(ticks, &SchedulerConfig{Name: fmt.Sprintf("s%d", i), Registry: reg}))
	}
	all[0].Enqueue(continueForever)

	// Act
	n := reg.DisposeAll()

	// Assert
	if n != 3 {
		t.Fatalf("DisposeAll = %d, want 3", n)
	}
	if reg.Len() != 0 || ticks.Len() != 0 {
		t.Fatalf("registry = %d, subscribers = %d, want 0/0", reg.Len(), ticks.Len())
	}
	for _, s := range all {
		if !s.IsDisposed() {
			t.Errorf("%s not disposed", s.Name())
		}
	}
	if _, ok := logger.find("auto-disposing 3 task schedulers"); !ok {
		t.Fatalf("log = %+v", logger.entries)
	}

	// Second pass has nothing left
	if n := reg.DisposeAll(); n != 0 {
		t.Fatalf("second DisposeAll = %d, want 0", n)
	}
	if len(logger.entries) != 1 {
		t.Fatalf("empty DisposeAll logged: %+v", logger.entries)
	}
}

// TestRegistry_DisposeSkipsAlreadyDisposed verifies the count excludes idle members
func TestRegistry_DisposeSkipsAlreadyDisposed(t *testing.T) {
	reg := NewRegistry(nil)
	a := NewScheduler(nil, &SchedulerConfig{Name: "a", Registry: reg})
	b := NewScheduler(nil, &SchedulerConfig{Name: "b", Registry: reg})
	a.detach() // disposed but still registered

	if n := reg.DisposeAll(); n != 1 {
		t.Fatalf("DisposeAll = %d, want 1", n)
	}
	if !b.IsDisposed() {
		t.Fatal("b not disposed")
	}
}

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	reg := NewRegistry(nil)
	s := NewScheduler(nil, &SchedulerConfig{Registry: reg})

	reg.Register(s)
	reg.Register(nil)

	if reg.Len() != 1 {
		t.Fatalf("Len = %d, want 1", reg.Len())
	}
	if got := reg.Schedulers(); len(got) != 1 || got[0] != s {
		t.Fatalf("Schedulers = %v", got)
	}
	if !reg.Unregister(s) || reg.Unregister(s) {
		t.Fatal("Unregister should report presence exactly once")
	}
}

// TestRegistry_ConcurrentDispose verifies schedulers disposing themselves during DisposeAll
func TestRegistry_ConcurrentDispose(t *testing.T) {
	reg := NewRegistry(nil)
	var all []*Scheduler
	for range 50 {
		all = append(all, NewScheduler(nil, &SchedulerConfig{Registry: reg}))
	}

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Dispose()
		}()
	}
	reg.DisposeAll()
	wg.Wait()

	for _, s := range all {
		if !s.IsDisposed() {
			t.Fatal("scheduler left undisposed")
		}
	}
	if reg.Len() != 0 {
		t.Fatalf("Len = %d, want 0", reg.Len())
	}
}
