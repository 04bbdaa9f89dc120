package telemetry

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/sweep/internal/recurring"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// Exporter adapts recurring.Metrics to Prometheus collectors.
type Exporter struct {
	ticksTotal      *prom.CounterVec
	tickDuration    *prom.HistogramVec
	faultsTotal     *prom.CounterVec
	finishedTotal   *prom.CounterVec
	registeredTasks *prom.GaugeVec
}

var _ recurring.Metrics = (*Exporter)(nil)

// NewExporter creates and registers the runner collectors. Collectors
// already registered on reg are reused.
func NewExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*Exporter, error) {
	if namespace == "" {
		namespace = "sweep"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	ticksVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Subsystem: "recurring",
		Name:      "ticks_total",
		Help:      "Total number of task invocations by continuation decision.",
	}, []string{"runner", "task", "decision"})
	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Subsystem: "recurring",
		Name:      "tick_duration_seconds",
		Help:      "Task invocation duration in seconds.",
		Buckets:   buckets,
	}, []string{"runner", "task"})
	faultsVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Subsystem: "recurring",
		Name:      "faults_total",
		Help:      "Total number of task invocations that failed or panicked.",
	}, []string{"runner", "task"})
	finishedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Subsystem: "recurring",
		Name:      "finished_total",
		Help:      "Total number of tasks that left a runner, by final state.",
	}, []string{"runner", "task", "state"})
	registeredVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Subsystem: "recurring",
		Name:      "registered_tasks",
		Help:      "Current number of tasks registered with a runner.",
	}, []string{"runner"})

	var err error
	if ticksVec, err = registerCollector(reg, ticksVec); err != nil {
		return nil, err
	}
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if faultsVec, err = registerCollector(reg, faultsVec); err != nil {
		return nil, err
	}
	if finishedVec, err = registerCollector(reg, finishedVec); err != nil {
		return nil, err
	}
	if registeredVec, err = registerCollector(reg, registeredVec); err != nil {
		return nil, err
	}

	return &Exporter{
		ticksTotal:      ticksVec,
		tickDuration:    durationVec,
		faultsTotal:     faultsVec,
		finishedTotal:   finishedVec,
		registeredTasks: registeredVec,
	}, nil
}

// RecordTick implements recurring.Metrics.
func (e *Exporter) RecordTick(runner, task string, decision recurring.Decision, duration time.Duration) {
	if e == nil {
		return
	}
	r, t := normalizeLabel(runner, "unknown"), normalizeLabel(task, "unknown")
	e.ticksTotal.WithLabelValues(r, t, decision.String()).Inc()
	e.tickDuration.WithLabelValues(r, t).Observe(duration.Seconds())
}

// RecordFault implements recurring.Metrics.
func (e *Exporter) RecordFault(runner, task string) {
	if e == nil {
		return
	}
	e.faultsTotal.WithLabelValues(normalizeLabel(runner, "unknown"), normalizeLabel(task, "unknown")).Inc()
}

// RecordFinished implements recurring.Metrics.
func (e *Exporter) RecordFinished(runner, task string, state recurring.State) {
	if e == nil {
		return
	}
	e.finishedTotal.WithLabelValues(normalizeLabel(runner, "unknown"), normalizeLabel(task, "unknown"), state.String()).Inc()
}

// RecordRegistered implements recurring.Metrics.
func (e *Exporter) RecordRegistered(runner string, count int) {
	if e == nil {
		return
	}
	e.registeredTasks.WithLabelValues(normalizeLabel(runner, "unknown")).Set(float64(count))
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
			return collector, fmt.Errorf("telemetry: collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
