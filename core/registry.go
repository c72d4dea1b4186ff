package core

import (
	"fmt"
	"sync"
)

// Registry tracks live schedulers so a host can tear all of them down at once
// (for example on shutdown). It plays no part in dispatch.
//
// The zero value is not usable; create one with NewRegistry.
type Registry struct {
	mu         sync.Mutex
	schedulers []*Scheduler
	logger     Logger
}

func NewRegistry(logger Logger) *Registry {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &Registry{logger: logger}
}

// Register adds s. Registering the same scheduler twice is a no-op.
func (r *Registry) Register(s *Scheduler) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.schedulers {
		if existing == s {
			return
		}
	}
	r.schedulers = append(r.schedulers, s)
}

// Unregister removes s and reports whether it was present.
func (r *Registry) Unregister(s *Scheduler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.schedulers {
		if existing == s {
			r.schedulers = append(r.schedulers[:i:i], r.schedulers[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.schedulers)
}

// Schedulers returns a snapshot of the registered schedulers.
func (r *Registry) Schedulers() []*Scheduler {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Scheduler, len(r.schedulers))
	copy(out, r.schedulers)
	return out
}

// DisposeAll detaches every registered scheduler from its tick source and
// empties the registry. It returns how many schedulers were disposed.
//
// The list is swapped out before iterating, so schedulers disposing themselves
// concurrently cannot corrupt the walk. Disposed schedulers must not be
// enqueued to afterwards.
func (r *Registry) DisposeAll() int {
	r.mu.Lock()
	all := r.schedulers
	r.schedulers = nil
	r.mu.Unlock()

	n := 0
	for _, s := range all {
		if s.detach() {
			n++
		}
	}
	if n > 0 {
		r.logger.Debug(fmt.Sprintf("auto-disposing %d task schedulers", n), F("count", n))
	}
	return n
}
