package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTickInterval approximates a 60 Hz frame loop.
const DefaultTickInterval = 16 * time.Millisecond

// TickLoop binds a dedicated Goroutine that fires ticks at a fixed interval.
// Every subscribed TickHandler and every closure submitted with Post runs on
// that same goroutine, so schedulers driven by one loop never step concurrently.
//
// Use cases:
// 1. Hosting schedulers in a process that has no frame loop of its own
// 2. Marshalling Enqueue/Abort calls onto the tick goroutine (Post)
type TickLoop struct {
	interval time.Duration
	subs     subscriberList
	logger   Logger

	// Closures posted from other goroutines
	workQueue chan func()

	// Lifecycle control
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	once    sync.Once
	closed  atomic.Bool

	frames atomic.Uint64
}

// NewTickLoop creates and starts a TickLoop.
// It immediately spawns a dedicated goroutine for tick delivery.
func NewTickLoop(interval time.Duration, logger Logger) *TickLoop {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if logger == nil {
		logger = NewNoOpLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &TickLoop{
		interval:  interval,
		logger:    logger,
		workQueue: make(chan func(), 100), // Buffer to avoid blocking senders
		ctx:       ctx,
		cancel:    cancel,
		stopped:   make(chan struct{}),
	}

	go l.runLoop()

	return l
}

func (l *TickLoop) Subscribe(h TickHandler)   { l.subs.add(h) }
func (l *TickLoop) Unsubscribe(h TickHandler) { l.subs.remove(h) }

// Interval returns the tick period.
func (l *TickLoop) Interval() time.Duration { return l.interval }

// Frames returns how many ticks have been delivered.
func (l *TickLoop) Frames() uint64 { return l.frames.Load() }

// Post runs fn on the tick goroutine between ticks.
// Returns false if the loop is stopped and fn was dropped.
func (l *TickLoop) Post(fn func()) bool {
	if fn == nil || l.closed.Load() {
		return false
	}

	select {
	case <-l.ctx.Done():
		return false
	case l.workQueue <- fn:
		return true
	}
}

// IsClosed returns true if the loop has been stopped
func (l *TickLoop) IsClosed() bool {
	return l.closed.Load()
}

// Stop stops the loop and waits for an in-flight tick or closure to finish.
// It must not be called from the tick goroutine itself.
func (l *TickLoop) Stop() {
	l.once.Do(func() {
		l.closed.Store(true)
		l.cancel()
		<-l.stopped
	})
}

// Stats returns a snapshot for observability.
func (l *TickLoop) Stats() TickLoopStats {
	return TickLoopStats{
		Subscribers: l.subs.len(),
		Frames:      l.frames.Load(),
		Interval:    l.interval,
		Running:     !l.closed.Load(),
	}
}

// runLoop is the core of this loop, it occupies a dedicated goroutine
func (l *TickLoop) runLoop() {
	defer close(l.stopped)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case fn := <-l.workQueue:
			l.safeCall("posted task", fn)

		case <-ticker.C:
			l.frames.Add(1)
			l.subs.deliver(func(h TickHandler) {
				l.safeCall("tick handler", h.OnTick)
			})

		case <-l.ctx.Done():
			return
		}
	}
}

func (l *TickLoop) safeCall(what string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			l.logger.Error(fmt.Sprintf("tick loop recovered panic in %s", what),
				F("panic", rec),
				F("stack", string(debug.Stack())),
			)
		}
	}()
	fn()
}
