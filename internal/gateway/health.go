package gateway

import (
	"net/http"

	"github.com/flemzord/sweep/internal/runtime"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status         string             `json:"status"` // "ok" or "unavailable"
	Level          runtime.Level      `json:"level"`
	Role           runtime.ServerRole `json:"role"`
	ExclusiveOwner bool               `json:"exclusive_owner"`
}

func (g *Gateway) health() HealthResponse {
	resp := HealthResponse{Status: "unavailable"}
	if g.status != nil {
		resp.Level = g.status.Level()
		resp.Role = g.status.ServerRole()
		if resp.Level == runtime.LevelRun {
			resp.Status = "ok"
		}
	}
	if g.oracle != nil {
		resp.ExclusiveOwner = g.oracle.IsExclusiveOwner()
	}
	return resp
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 while the application is running, 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := g.health()
		code := http.StatusOK
		if resp.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
