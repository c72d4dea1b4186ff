package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Swind/go-tick-runner/core"
	"github.com/Swind/go-tick-runner/observability/logx"
	"github.com/Swind/go-tick-runner/schedule"
)

const (
	DefaultScheduler    = "main"
	DefaultListen       = ":2112"
	DefaultNamespace    = "tickrunner"
	DefaultPollInterval = time.Second
	DefaultHistorySize  = 100
)

// Resolved is a validated Config with defaults applied.
type Resolved struct {
	TickInterval time.Duration

	DefaultTimeLimit time.Duration
	AbortOnTimeout   bool
	TimeoutSilently  bool
	HistorySize      int

	Schedulers []string
	Logging    logx.Config
	Metrics    ResolvedMetrics
	Jobs       []ResolvedJob
}

type ResolvedMetrics struct {
	Enabled      bool
	Listen       string
	Namespace    string
	PollInterval time.Duration
}

type ResolvedJob struct {
	Name      string
	Schedule  string
	Scheduler string
	Hold      time.Duration
	Immediate bool

	// TimeLimit is zero when the scheduler default applies.
	TimeLimit time.Duration
}

// SchedulerConfig returns the core config for the named scheduler.
func (r *Resolved) SchedulerConfig(name string) *core.SchedulerConfig {
	cfg := core.DefaultSchedulerConfig()
	cfg.Name = name
	cfg.DefaultTimeLimit = r.DefaultTimeLimit
	cfg.AbortOnTimeout = r.AbortOnTimeout
	cfg.TimeoutSilently = r.TimeoutSilently
	cfg.HistorySize = r.HistorySize
	return cfg
}

// Resolve validates c and applies defaults. All problems are reported at once.
func (c *Config) Resolve() (*Resolved, error) {
	var errs []error
	r := &Resolved{
		AbortOnTimeout:  c.Scheduler.AbortOnTimeout,
		TimeoutSilently: c.Scheduler.TimeoutSilently,
		HistorySize:     c.Scheduler.HistorySize,
		Logging: logx.Config{
			Level:   c.Logging.Level,
			Console: c.Logging.Console,
			File: logx.FileConfig{
				Enabled:    c.Logging.File.Enabled,
				Path:       c.Logging.File.Path,
				MaxSizeMB:  c.Logging.File.MaxSizeMB,
				MaxBackups: c.Logging.File.MaxBackups,
				MaxAgeDays: c.Logging.File.MaxAgeDays,
				Compress:   c.Logging.File.Compress,
			},
			WarnPerSecond: c.Logging.WarnPerSecond,
		},
		Metrics: ResolvedMetrics{
			Enabled:   c.Metrics.Enabled,
			Listen:    strings.TrimSpace(c.Metrics.Listen),
			Namespace: strings.TrimSpace(c.Metrics.Namespace),
		},
	}

	var err error
	if r.TickInterval, err = ParseDurationField("tick.interval", c.Tick.Interval, core.DefaultTickInterval); err != nil {
		errs = append(errs, err)
	}
	if r.DefaultTimeLimit, err = ParseDurationField("scheduler.time_limit", c.Scheduler.TimeLimit, core.DefaultTimeLimit); err != nil {
		errs = append(errs, err)
	}
	if r.Metrics.PollInterval, err = ParseDurationField("metrics.poll_interval", c.Metrics.PollInterval, DefaultPollInterval); err != nil {
		errs = append(errs, err)
	}
	if r.HistorySize < 0 {
		errs = append(errs, fmt.Errorf("scheduler.history_size: must be >= 0, got %d", r.HistorySize))
	}
	if r.HistorySize == 0 {
		r.HistorySize = DefaultHistorySize
	}
	if _, err := logx.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if c.Logging.WarnPerSecond < 0 {
		errs = append(errs, fmt.Errorf("logging.warn_per_second: must be >= 0"))
	}
	if r.Metrics.Listen == "" {
		r.Metrics.Listen = DefaultListen
	}
	if r.Metrics.Namespace == "" {
		r.Metrics.Namespace = DefaultNamespace
	}

	seen := make(map[string]bool)
	for i, raw := range c.Schedulers {
		name := strings.TrimSpace(raw)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("schedulers[%d]: empty name", i))
		case seen[name]:
			errs = append(errs, fmt.Errorf("schedulers[%d]: duplicate name %q", i, name))
		default:
			seen[name] = true
			r.Schedulers = append(r.Schedulers, name)
		}
	}
	if len(r.Schedulers) == 0 && len(c.Schedulers) == 0 {
		r.Schedulers = []string{DefaultScheduler}
		seen[DefaultScheduler] = true
	}

	jobNames := make(map[string]bool)
	for i, j := range c.Jobs {
		path := fmt.Sprintf("jobs[%d]", i)
		job := ResolvedJob{
			Name:      strings.TrimSpace(j.Name),
			Schedule:  strings.TrimSpace(j.Schedule),
			Scheduler: strings.TrimSpace(j.Scheduler),
			Immediate: j.Immediate,
		}
		if job.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name: required", path))
		} else if jobNames[job.Name] {
			errs = append(errs, fmt.Errorf("%s.name: duplicate job %q", path, job.Name))
		}
		jobNames[job.Name] = true

		if err := schedule.Validate(job.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%s.schedule: %w", path, err))
		}
		if job.Scheduler == "" && len(r.Schedulers) > 0 {
			job.Scheduler = r.Schedulers[0]
		}
		if !seen[job.Scheduler] {
			errs = append(errs, fmt.Errorf("%s.scheduler: unknown scheduler %q", path, job.Scheduler))
		}
		if job.Hold, err = ParseDurationField(path+".hold", j.Hold, 0); err != nil {
			errs = append(errs, err)
		}
		if job.TimeLimit, err = ParseDurationField(path+".time_limit", j.TimeLimit, 0); err != nil {
			errs = append(errs, err)
		}
		r.Jobs = append(r.Jobs, job)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return r, nil
}

// LoadResolved loads and resolves the file at path.
func LoadResolved(path string) (*Resolved, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	r, err := cfg.Resolve()
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return r, nil
}
