package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	if g.metrics != nil {
		r.Use(g.metrics.middleware)
	}

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	if g.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.gatherer, promhttp.HandlerOpts{}))
	}

	// Admin endpoints, auth required. Not mounted if no auth configured.
	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth, g.logger))
			r.Get("/status", g.handleStatus())
			r.Get("/ws/events", g.events.ServeHTTP)
			r.Route("/api", func(r chi.Router) {
				r.Get("/tasks", g.handleListTasks())
				r.Get("/tasks/{name}", g.handleGetTask())
				r.Post("/tasks/{name}/cancel", g.handleCancelTask())
				r.Get("/modules", g.handleListModules())
			})
		})
	}

	return r
}
