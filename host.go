package tickrunner

import (
	"sync"
	"time"

	"github.com/Swind/go-tick-runner/core"
	"github.com/jacobsa/timeutil"
)

// HostConfig configures a Host. Zero values fall back to package defaults.
type HostConfig struct {
	// TickInterval is the period of the host tick loop. Defaults to core.DefaultTickInterval.
	TickInterval time.Duration

	// Defaults applied to every scheduler created through the host
	DefaultTimeLimit time.Duration
	AbortOnTimeout   bool
	TimeoutSilently  bool
	HistorySize      int

	Clock        timeutil.Clock
	Logger       core.Logger
	Metrics      core.Metrics
	PanicHandler core.PanicHandler
}

// Host owns a tick loop and a registry, and creates schedulers that are
// driven by the loop and torn down together by Shutdown.
type Host struct {
	cfg      HostConfig
	loop     *core.TickLoop
	registry *core.Registry

	shutdownOnce sync.Once
}

// NewHost creates a Host and starts its tick loop.
func NewHost(cfg HostConfig) *Host {
	if cfg.Logger == nil {
		cfg.Logger = core.NewNoOpLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &core.NilMetrics{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock()
	}
	return &Host{
		cfg:      cfg,
		loop:     core.NewTickLoop(cfg.TickInterval, cfg.Logger),
		registry: core.NewRegistry(cfg.Logger),
	}
}

// Loop returns the host tick loop
func (h *Host) Loop() *core.TickLoop { return h.loop }

// Registry returns the registry holding every live scheduler of this host
func (h *Host) Registry() *core.Registry { return h.registry }

// NewScheduler creates a scheduler with the host defaults.
func (h *Host) NewScheduler(name string) *core.Scheduler {
	return h.NewSchedulerWithConfig(h.SchedulerConfig(name))
}

// NewSchedulerWithConfig creates a scheduler driven by the host loop.
// The registry is always the host's.
func (h *Host) NewSchedulerWithConfig(cfg *core.SchedulerConfig) *core.Scheduler {
	if cfg == nil {
		cfg = h.SchedulerConfig("")
	}
	cp := *cfg
	cp.Registry = h.registry
	return core.NewScheduler(h.loop, &cp)
}

// SchedulerConfig returns a config pre-filled with the host defaults.
func (h *Host) SchedulerConfig(name string) *core.SchedulerConfig {
	return &core.SchedulerConfig{
		Name:             name,
		DefaultTimeLimit: h.cfg.DefaultTimeLimit,
		AbortOnTimeout:   h.cfg.AbortOnTimeout,
		TimeoutSilently:  h.cfg.TimeoutSilently,
		HistorySize:      h.cfg.HistorySize,
		Clock:            h.cfg.Clock,
		Logger:           h.cfg.Logger,
		Metrics:          h.cfg.Metrics,
		PanicHandler:     h.cfg.PanicHandler,
		Registry:         h.registry,
	}
}

// Shutdown disposes every scheduler and stops the tick loop.
// Repeated calls are safe. It must not be called from the tick goroutine.
func (h *Host) Shutdown() {
	h.shutdownOnce.Do(func() {
		h.registry.DisposeAll()
		h.loop.Stop()
	})
}
