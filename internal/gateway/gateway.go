// Package gateway provides an HTTP server for health checks, metrics and
// administration of the recurring task runner. It binds to loopback by
// default and follows the module system pattern.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/sweep/internal/core"
	"github.com/flemzord/sweep/internal/logging"
	"github.com/flemzord/sweep/internal/maindom"
	"github.com/flemzord/sweep/internal/recurring"
	"github.com/flemzord/sweep/internal/runtime"
	"github.com/flemzord/sweep/internal/scheduler"
	"github.com/flemzord/sweep/internal/telemetry"
)

// RuntimeService is the service name of the process runtime state.
const RuntimeService = "runtime.state"

func init() {
	core.RegisterModule(&Gateway{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// TaskRegistry is the runner surface the admin endpoints need.
type TaskRegistry interface {
	Name() string
	Snapshots() []recurring.Snapshot
	Cancel(name string) bool
}

// EventSource publishes runner events to subscribers.
type EventSource interface {
	Subscribe(o recurring.Observer) (unsubscribe func())
}

// Gateway is the HTTP gateway module. It is a leaf module: nothing imports it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	// Resolved lazily at Start() via service registry.
	status   runtime.StatusProvider
	oracle   maindom.Oracle
	tasks    TaskRegistry
	events   *eventHub
	gatherer prom.Gatherer
	metrics  *httpMetrics

	unsubscribe func()
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:       "gateway.http",
		Priority: core.PriorityGateway,
		New:      func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return fmt.Errorf("gateway: decode config: %w", err)
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.events = newEventHub(g.config.EventBuffer, g.logger)

	if r, ok := core.Service[*logging.Redactor](ctx, logging.RedactorService); ok {
		r.AddLiteral(g.config.Auth.BearerToken)
		r.AddLiteral(g.config.Auth.BasicPass)
	}
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	if !g.config.Auth.IsConfigured() {
		g.logger.Warn("gateway: no auth configured, admin endpoints disabled")
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	g.resolveServices()
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway: listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway: serve error", "error", err)
		}
	}()

	return nil
}

// resolveServices binds optional collaborators. Missing ones degrade the
// matching endpoints instead of failing startup.
func (g *Gateway) resolveServices() {
	if s, ok := core.Service[runtime.StatusProvider](g.appCtx, RuntimeService); ok {
		g.status = s
	}
	if o, ok := core.Service[maindom.Oracle](g.appCtx, maindom.OracleService); ok {
		g.oracle = o
	}
	if r, ok := core.Service[*recurring.Runner](g.appCtx, scheduler.RunnerService); ok {
		g.tasks = r
	}
	if src, ok := core.Service[EventSource](g.appCtx, scheduler.EventsService); ok {
		g.unsubscribe = src.Subscribe(g.events)
	}

	var reg prom.Registerer = prom.DefaultRegisterer
	g.gatherer = prom.DefaultGatherer
	if r, ok := core.Service[*prom.Registry](g.appCtx, telemetry.RegistryService); ok {
		reg, g.gatherer = r, r
	}
	m, err := newHTTPMetrics(reg)
	if err != nil {
		g.logger.Warn("gateway: request metrics disabled", "error", err)
	}
	g.metrics = m
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.unsubscribe != nil {
		g.unsubscribe()
	}
	if g.events != nil {
		g.events.closeAll()
	}
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway: shutting down")
	return g.server.Shutdown(shutdownCtx)
}
