// Package telemetry exposes runner metrics to Prometheus and, when an
// endpoint is configured, exports tick spans over OTLP/HTTP.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/sweep/internal/core"
	"github.com/flemzord/sweep/internal/recurring"
)

// Service names registered by the module.
const (
	MetricsService  = "telemetry.metrics"
	RegistryService = "telemetry.registry"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Config holds the telemetry module configuration.
type Config struct {
	// Namespace prefixes every metric name. Defaults to "sweep".
	Namespace string `yaml:"namespace"`

	// OTLPEndpoint enables span export when set.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// ServiceName is the service.name resource attribute. Defaults to "sweep".
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of ticks traced. Defaults to 1.
	SampleRatio float64 `yaml:"sample_ratio"`

	// DurationBuckets overrides the tick duration histogram buckets, in seconds.
	DurationBuckets []float64 `yaml:"duration_buckets"`
}

func (c *Config) defaults() {
	if c.Namespace == "" {
		c.Namespace = "sweep"
	}
	if c.ServiceName == "" {
		c.ServiceName = "sweep"
	}
	if c.SampleRatio == 0 {
		c.SampleRatio = 1
	}
}

// Module owns the Prometheus registry and the tracer provider.
type Module struct {
	config   Config
	logger   *slog.Logger
	registry *prom.Registry
	exporter *Exporter
	tp       *sdktrace.TracerProvider
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:       "telemetry",
		Priority: core.PriorityTelemetry,
		New:      func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("telemetry: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	m.registry = prom.NewRegistry()
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := NewExporter(m.config.Namespace, m.registry, ExporterOptions{
		DurationBuckets: m.config.DurationBuckets,
	})
	if err != nil {
		return err
	}
	m.exporter = exporter

	if m.config.OTLPEndpoint != "" {
		tp, err := NewTracerProvider(context.TODO(), TracingOptions{
			Endpoint:    m.config.OTLPEndpoint,
			ServiceName: m.config.ServiceName,
			SampleRatio: m.config.SampleRatio,
		})
		if err != nil {
			return err
		}
		m.tp = tp
		InstallTracerProvider(tp)
	}

	ctx.RegisterService(MetricsService, recurring.Metrics(m.exporter))
	ctx.RegisterService(RegistryService, m.registry)

	m.logger.Info("telemetry: provisioned",
		"namespace", m.config.Namespace,
		"tracing", m.tp != nil,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.config.SampleRatio < 0 || m.config.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0, 1], got %g", m.config.SampleRatio)
	}
	return nil
}

// Stop implements core.Stopper. Pending spans are flushed.
func (m *Module) Stop(ctx context.Context) error {
	if m.tp == nil {
		return nil
	}
	if err := m.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown tracer provider: %w", err)
	}
	return nil
}

// Registry returns the module's Prometheus registry.
func (m *Module) Registry() *prom.Registry { return m.registry }

// Exporter returns the runner metrics exporter.
func (m *Module) Exporter() *Exporter { return m.exporter }
