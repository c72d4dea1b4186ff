package core

import "sync"

// =============================================================================
// Tick source contract
// =============================================================================

// TickHandler is invoked once per host tick (frame).
type TickHandler interface {
	OnTick()
}

// TickHandlerFunc adapts a plain function to TickHandler.
// Only a pointer to it can be unsubscribed, since func values are not comparable.
type TickHandlerFunc func()

func (f *TickHandlerFunc) OnTick() { (*f)() }

// TickSource delivers periodic ticks to subscribed handlers.
// Handlers are compared by identity, so pointer receivers are expected.
type TickSource interface {
	Subscribe(h TickHandler)
	Unsubscribe(h TickHandler)
}

// subscriberList keeps handlers in subscription order and allows mutation
// while a tick is being delivered.
type subscriberList struct {
	mu       sync.Mutex
	handlers []TickHandler
}

func (l *subscriberList) add(h TickHandler) {
	if h == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.handlers {
		if existing == h {
			return
		}
	}
	l.handlers = append(l.handlers, h)
}

func (l *subscriberList) remove(h TickHandler) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, existing := range l.handlers {
		if existing == h {
			// Copy rather than shift in place: snapshot() callers may still be iterating.
			next := make([]TickHandler, 0, len(l.handlers)-1)
			next = append(next, l.handlers[:i]...)
			next = append(next, l.handlers[i+1:]...)
			l.handlers = next
			return true
		}
	}
	return false
}

func (l *subscriberList) contains(h TickHandler) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.handlers {
		if existing == h {
			return true
		}
	}
	return false
}

func (l *subscriberList) snapshot() []TickHandler {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handlers
}

func (l *subscriberList) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handlers)
}

// deliver invokes every handler once. A handler removed by an earlier one
// during the same pass is skipped.
func (l *subscriberList) deliver(invoke func(TickHandler)) {
	for _, h := range l.snapshot() {
		if !l.contains(h) {
			continue
		}
		invoke(h)
	}
}

// =============================================================================
// ManualTickSource: Host-driven tick source
// =============================================================================

// ManualTickSource fires ticks only when Fire is called. Use it to embed
// schedulers into an existing frame loop, or to drive them deterministically in tests.
type ManualTickSource struct {
	subs subscriberList
}

func NewManualTickSource() *ManualTickSource {
	return &ManualTickSource{}
}

func (s *ManualTickSource) Subscribe(h TickHandler)   { s.subs.add(h) }
func (s *ManualTickSource) Unsubscribe(h TickHandler) { s.subs.remove(h) }

// Len returns the number of subscribed handlers.
func (s *ManualTickSource) Len() int { return s.subs.len() }

// Fire delivers one tick to every subscriber on the calling goroutine.
func (s *ManualTickSource) Fire() {
	s.subs.deliver(func(h TickHandler) { h.OnTick() })
}

// FireN delivers n ticks.
func (s *ManualTickSource) FireN(n int) {
	for range n {
		s.Fire()
	}
}
