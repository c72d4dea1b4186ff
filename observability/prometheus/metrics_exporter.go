package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-tick-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
	StepBuckets     []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	tasksStartedTotal   *prom.CounterVec
	taskDurationSeconds *prom.HistogramVec
	taskSteps           *prom.HistogramVec
	tasksDroppedTotal   *prom.CounterVec
	queueDepth          *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "tickrunner"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	durationBuckets := opts.DurationBuckets
	if len(durationBuckets) == 0 {
		durationBuckets = prom.DefBuckets
	}
	stepBuckets := opts.StepBuckets
	if len(stepBuckets) == 0 {
		stepBuckets = prom.ExponentialBuckets(1, 2, 12)
	}

	startedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_started_total",
		Help:      "Total number of tasks that became current.",
	}, []string{"scheduler", "queue"})
	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Time from a task becoming current until it finished, in seconds.",
		Buckets:   durationBuckets,
	}, []string{"scheduler", "outcome"})
	stepsVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_steps",
		Help:      "Number of step invocations per finished task.",
		Buckets:   stepBuckets,
	}, []string{"scheduler", "outcome"})
	droppedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_dropped_total",
		Help:      "Total number of queued tasks discarded without running.",
	}, []string{"scheduler", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Queued tasks plus the current task.",
	}, []string{"scheduler"})

	var err error
	if startedVec, err = registerCollector(reg, startedVec); err != nil {
		return nil, err
	}
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if stepsVec, err = registerCollector(reg, stepsVec); err != nil {
		return nil, err
	}
	if droppedVec, err = registerCollector(reg, droppedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		tasksStartedTotal:   startedVec,
		taskDurationSeconds: durationVec,
		taskSteps:           stepsVec,
		tasksDroppedTotal:   droppedVec,
		queueDepth:          queueDepthVec,
	}, nil
}

// RecordTaskStarted counts tasks becoming current.
func (m *MetricsExporter) RecordTaskStarted(schedulerName string, queue core.QueueKind) {
	if m == nil {
		return
	}
	m.tasksStartedTotal.WithLabelValues(normalizeLabel(schedulerName, "unknown"), queue.String()).Inc()
}

// RecordTaskFinished records duration and step count by outcome.
func (m *MetricsExporter) RecordTaskFinished(schedulerName string, outcome core.Outcome, duration time.Duration, steps int) {
	if m == nil {
		return
	}
	name := normalizeLabel(schedulerName, "unknown")
	m.taskDurationSeconds.WithLabelValues(name, outcome.String()).Observe(duration.Seconds())
	m.taskSteps.WithLabelValues(name, outcome.String()).Observe(float64(steps))
}

// RecordTasksDropped counts discarded queued tasks.
func (m *MetricsExporter) RecordTasksDropped(schedulerName string, reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.tasksDroppedTotal.WithLabelValues(normalizeLabel(schedulerName, "unknown"), normalizeLabel(reason, "unknown")).Add(float64(count))
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(schedulerName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(schedulerName, "unknown")).Set(float64(depth))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
