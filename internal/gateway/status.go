package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/flemzord/sweep/internal/recurring"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	UptimeSeconds int64                `json:"uptime_seconds"`
	Health        HealthResponse       `json:"health"`
	Runner        string               `json:"runner,omitempty"`
	Tasks         []recurring.Snapshot `json:"tasks"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			UptimeSeconds: int64(time.Since(g.startedAt).Seconds()),
			Health:        g.health(),
			Tasks:         []recurring.Snapshot{},
		}
		if g.tasks != nil {
			resp.Runner = g.tasks.Name()
			resp.Tasks = g.tasks.Snapshots()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
