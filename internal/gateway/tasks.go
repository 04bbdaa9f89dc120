package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/sweep/internal/core"
	"github.com/flemzord/sweep/internal/recurring"
)

// handleListTasks returns every registered task as JSON.
func (g *Gateway) handleListTasks() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		tasks := []recurring.Snapshot{}
		if g.tasks != nil {
			tasks = g.tasks.Snapshots()
		}
		writeJSON(w, http.StatusOK, tasks)
	}
}

// handleGetTask returns one task by name.
func (g *Gateway) handleGetTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if g.tasks != nil {
			for _, s := range g.tasks.Snapshots() {
				if s.Name == name {
					writeJSON(w, http.StatusOK, s)
					return
				}
			}
		}
		http.Error(w, "task not found", http.StatusNotFound)
	}
}

// handleCancelTask cancels a task by name. A running invocation completes
// and is not rescheduled.
func (g *Gateway) handleCancelTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if name == "" {
			http.Error(w, "missing task name", http.StatusBadRequest)
			return
		}
		if g.tasks == nil || !g.tasks.Cancel(name) {
			http.Error(w, "task not found", http.StatusNotFound)
			return
		}

		g.logger.Info("gateway: task cancelled via admin API", "task", name, "remote_addr", r.RemoteAddr)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelled", "task": name})
	}
}

// moduleJSON is a serializable module info snapshot.
type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Priority  int    `json:"priority"`
}

// handleListModules lists all compiled modules.
func (g *Gateway) handleListModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{
				ID:        string(m.ID),
				Namespace: m.ID.Namespace(),
				Name:      m.ID.Name(),
				Priority:  m.Priority,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}
