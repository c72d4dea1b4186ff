package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	tickrunner "github.com/Swind/go-tick-runner"
	"github.com/Swind/go-tick-runner/config"
	"github.com/Swind/go-tick-runner/core"
	"github.com/Swind/go-tick-runner/observability/logx"
	tickprom "github.com/Swind/go-tick-runner/observability/prometheus"
	"github.com/Swind/go-tick-runner/schedule"
)

const shutdownTimeout = 5 * time.Second

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Start the tick loop, schedulers and cron jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to tickrun.yaml (defaults apply when omitted)",
				EnvVars: []string{"TICKRUN_CONFIG"},
			},
			&cli.DurationFlag{
				Name:  "for",
				Usage: "Stop after this long (0 runs until interrupted)",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	path := c.String("config")
	r, err := resolveConfig(path)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	logger, err := logx.New(r.Logging)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := c.Duration("for"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	d, err := startDaemon(ctx, r, logger)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if path != "" {
		go func() {
			if err := config.Watch(ctx, path, logger, d.apply); err != nil {
				logger.Warn("config watch disabled", core.F("err", err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")
	d.shutdown()

	for _, name := range r.Schedulers {
		st := d.schedulers[name].Stats()
		fmt.Fprintf(c.App.Writer, "%s: completed=%d timed_out=%d aborted=%d faulted=%d dropped=%d\n",
			name, st.Completed, st.TimedOut, st.Aborted, st.Faulted, st.Dropped)
	}
	return nil
}

func resolveConfig(path string) (*config.Resolved, error) {
	if path == "" {
		return (&config.Config{}).Resolve()
	}
	return config.LoadResolved(path)
}

// daemon is everything run starts, in shutdown order.
type daemon struct {
	logger     *logx.Logger
	feeder     *schedule.Feeder
	poller     *tickprom.SnapshotPoller
	server     *http.Server
	host       *tickrunner.Host
	schedulers map[string]*core.Scheduler
}

func startDaemon(ctx context.Context, r *config.Resolved, logger *logx.Logger) (*daemon, error) {
	d := &daemon{logger: logger, schedulers: make(map[string]*core.Scheduler)}

	var metrics core.Metrics
	var reg *prom.Registry
	if r.Metrics.Enabled {
		reg = prom.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		exporter, err := tickprom.NewMetricsExporter(r.Metrics.Namespace, reg, tickprom.ExporterOptions{})
		if err != nil {
			return nil, fmt.Errorf("metrics exporter: %w", err)
		}
		metrics = exporter
	}

	d.host = tickrunner.NewHost(tickrunner.HostConfig{
		TickInterval:     r.TickInterval,
		DefaultTimeLimit: r.DefaultTimeLimit,
		AbortOnTimeout:   r.AbortOnTimeout,
		TimeoutSilently:  r.TimeoutSilently,
		HistorySize:      r.HistorySize,
		Logger:           logger,
		Metrics:          metrics,
	})
	for _, name := range r.Schedulers {
		d.schedulers[name] = d.host.NewScheduler(name)
	}

	if reg != nil {
		poller, err := tickprom.NewSnapshotPoller(reg, r.Metrics.PollInterval)
		if err != nil {
			d.host.Shutdown()
			return nil, fmt.Errorf("snapshot poller: %w", err)
		}
		poller.AddRegistry(d.host.Registry())
		poller.AddLoop("host", d.host.Loop())
		poller.Start(ctx)
		d.poller = poller

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		d.server = &http.Server{Addr: r.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", core.F("addr", r.Metrics.Listen), core.F("err", err))
			}
		}()
		logger.Info("metrics endpoint listening", core.F("addr", r.Metrics.Listen))
	}

	d.feeder = schedule.NewFeeder(logger)
	for _, j := range r.Jobs {
		traits := core.TraitsNamed(j.Name).WithTimeLimit(j.TimeLimit)
		_, err := d.feeder.Add(j.Schedule, d.schedulers[j.Scheduler], schedule.Job{
			Name:      j.Name,
			Immediate: j.Immediate,
			Traits:    traits,
			Step:      schedule.Hold(nil, j.Hold),
		})
		if err != nil {
			d.shutdown()
			return nil, err
		}
	}
	d.feeder.Start()

	logger.Info("tickrun started",
		core.F("schedulers", len(d.schedulers)),
		core.F("jobs", d.feeder.Len()),
		core.F("tick_interval", r.TickInterval),
	)
	return d, nil
}

// apply pushes reloaded scheduler defaults to the live schedulers. Tick
// interval, scheduler list, jobs and sinks need a restart.
func (d *daemon) apply(r *config.Resolved) {
	for _, s := range d.schedulers {
		s.SetDefaultTimeLimit(r.DefaultTimeLimit)
		s.SetAbortOnTimeout(r.AbortOnTimeout)
		s.SetTimeoutSilently(r.TimeoutSilently)
	}
	d.logger.Info("scheduler defaults updated",
		core.F("time_limit", r.DefaultTimeLimit),
		core.F("abort_on_timeout", r.AbortOnTimeout),
		core.F("timeout_silently", r.TimeoutSilently),
	)
}

func (d *daemon) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if d.feeder != nil {
		if err := d.feeder.Stop(ctx); err != nil {
			d.logger.Warn("cron feeder stop timed out", core.F("err", err))
		}
	}
	if d.poller != nil {
		d.poller.Stop()
	}
	if d.server != nil {
		if err := d.server.Shutdown(ctx); err != nil {
			d.logger.Warn("metrics server shutdown failed", core.F("err", err))
		}
	}
	d.host.Shutdown()
}
