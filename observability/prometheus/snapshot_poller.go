package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-tick-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
type SchedulerSnapshotProvider interface {
	Stats() core.SchedulerStats
}

// LoopSnapshotProvider provides current tick loop stats snapshots.
type LoopSnapshotProvider interface {
	Stats() core.TickLoopStats
}

// SnapshotPoller periodically exports scheduler/loop Stats() snapshots into Prometheus gauges.
//
// Schedulers can be added one by one (AddScheduler) or discovered from a
// core.Registry on every poll (AddRegistry).
type SnapshotPoller struct {
	interval time.Duration

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider
	registries   []*core.Registry

	loopsMu sync.RWMutex
	loops   map[string]LoopSnapshotProvider

	schedulerQueued    *prom.GaugeVec
	schedulerRunning   *prom.GaugeVec
	schedulerDisposed  *prom.GaugeVec
	schedulerOutcomes  *prom.GaugeVec
	schedulerDropped   *prom.GaugeVec
	schedulerRemaining *prom.GaugeVec

	loopSubscribers *prom.GaugeVec
	loopFrames      *prom.GaugeVec
	loopRunning     *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	schedulerQueued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tickrunner",
		Name:      "scheduler_queued",
		Help:      "Queued tasks per scheduler and queue.",
	}, []string{"scheduler", "queue"})
	schedulerRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tickrunner",
		Name:      "scheduler_running",
		Help:      "Whether a task is current (1=running, 0=idle).",
	}, []string{"scheduler"})
	schedulerDisposed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tickrunner",
		Name:      "scheduler_disposed",
		Help:      "Scheduler disposed state (1=disposed, 0=live).",
	}, []string{"scheduler"})
	schedulerOutcomes := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tickrunner",
		Name:      "scheduler_tasks_finished",
		Help:      "Finished task count snapshot per outcome.",
	}, []string{"scheduler", "outcome"})
	schedulerDropped := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tickrunner",
		Name:      "scheduler_tasks_dropped",
		Help:      "Dropped task count snapshot.",
	}, []string{"scheduler"})
	schedulerRemaining := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tickrunner",
		Name:      "scheduler_deadline_remaining_seconds",
		Help:      "Seconds until the current task times out (0 when idle).",
	}, []string{"scheduler"})

	loopSubscribers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tickrunner",
		Name:      "loop_subscribers",
		Help:      "Tick handlers subscribed per loop.",
	}, []string{"loop"})
	loopFrames := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tickrunner",
		Name:      "loop_frames",
		Help:      "Ticks delivered per loop.",
	}, []string{"loop"})
	loopRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tickrunner",
		Name:      "loop_running",
		Help:      "Loop running state (1=running, 0=stopped).",
	}, []string{"loop"})

	var err error
	if schedulerQueued, err = registerCollector(reg, schedulerQueued); err != nil {
		return nil, err
	}
	if schedulerRunning, err = registerCollector(reg, schedulerRunning); err != nil {
		return nil, err
	}
	if schedulerDisposed, err = registerCollector(reg, schedulerDisposed); err != nil {
		return nil, err
	}
	if schedulerOutcomes, err = registerCollector(reg, schedulerOutcomes); err != nil {
		return nil, err
	}
	if schedulerDropped, err = registerCollector(reg, schedulerDropped); err != nil {
		return nil, err
	}
	if schedulerRemaining, err = registerCollector(reg, schedulerRemaining); err != nil {
		return nil, err
	}
	if loopSubscribers, err = registerCollector(reg, loopSubscribers); err != nil {
		return nil, err
	}
	if loopFrames, err = registerCollector(reg, loopFrames); err != nil {
		return nil, err
	}
	if loopRunning, err = registerCollector(reg, loopRunning); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:           interval,
		schedulers:         make(map[string]SchedulerSnapshotProvider),
		loops:              make(map[string]LoopSnapshotProvider),
		schedulerQueued:    schedulerQueued,
		schedulerRunning:   schedulerRunning,
		schedulerDisposed:  schedulerDisposed,
		schedulerOutcomes:  schedulerOutcomes,
		schedulerDropped:   schedulerDropped,
		schedulerRemaining: schedulerRemaining,
		loopSubscribers:    loopSubscribers,
		loopFrames:         loopFrames,
		loopRunning:        loopRunning,
	}, nil
}

// AddScheduler adds or replaces a scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedulersMu.Lock()
	p.schedulers[name] = provider
	p.schedulersMu.Unlock()
}

// AddRegistry polls every scheduler registered in reg at collection time.
func (p *SnapshotPoller) AddRegistry(reg *core.Registry) {
	if p == nil || reg == nil {
		return
	}
	p.schedulersMu.Lock()
	p.registries = append(p.registries, reg)
	p.schedulersMu.Unlock()
}

// AddLoop adds or replaces a tick loop snapshot provider by name.
func (p *SnapshotPoller) AddLoop(name string, provider LoopSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "loop")
	p.loopsMu.Lock()
	p.loops[name] = provider
	p.loopsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}

// CollectOnce exports one snapshot of every provider.
func (p *SnapshotPoller) CollectOnce() {
	now := time.Now()

	p.schedulersMu.RLock()
	providers := make(map[string]SchedulerSnapshotProvider, len(p.schedulers))
	for name, provider := range p.schedulers {
		providers[name] = provider
	}
	for _, reg := range p.registries {
		for _, s := range reg.Schedulers() {
			providers[normalizeLabel(s.Name(), "scheduler")] = s
		}
	}
	p.schedulersMu.RUnlock()

	for name, provider := range providers {
		stats := provider.Stats()
		p.schedulerQueued.WithLabelValues(name, core.QueueNormal.String()).Set(float64(stats.Normal))
		p.schedulerQueued.WithLabelValues(name, core.QueueImmediate.String()).Set(float64(stats.Immediate))
		p.schedulerRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
		p.schedulerDisposed.WithLabelValues(name).Set(boolGauge(stats.Disposed))
		p.schedulerOutcomes.WithLabelValues(name, core.OutcomeDone.String()).Set(float64(stats.Completed))
		p.schedulerOutcomes.WithLabelValues(name, core.OutcomeTimeout.String()).Set(float64(stats.TimedOut))
		p.schedulerOutcomes.WithLabelValues(name, core.OutcomeAborted.String()).Set(float64(stats.Aborted))
		p.schedulerOutcomes.WithLabelValues(name, core.OutcomeFault.String()).Set(float64(stats.Faulted))
		p.schedulerDropped.WithLabelValues(name).Set(float64(stats.Dropped))

		remaining := 0.0
		if stats.Running && !stats.Deadline.IsZero() {
			remaining = max(stats.Deadline.Sub(now).Seconds(), 0)
		}
		p.schedulerRemaining.WithLabelValues(name).Set(remaining)
	}

	p.loopsMu.RLock()
	for name, provider := range p.loops {
		stats := provider.Stats()
		p.loopSubscribers.WithLabelValues(name).Set(float64(stats.Subscribers))
		p.loopFrames.WithLabelValues(name).Set(float64(stats.Frames))
		p.loopRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}
	p.loopsMu.RUnlock()
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
