package gateway

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/flemzord/sweep/internal/runtime"
)

func TestHealth_Running(t *testing.T) {
	t.Parallel()

	g, _, _ := newTestGateway(t)
	rr := doRequest(t, g.handleHealth(), http.MethodGet, "/health", false)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" || resp["level"] != "run" || resp["role"] != "single" || resp["exclusive_owner"] != true {
		t.Errorf("health = %v", resp)
	}
}

func TestHealth_NotRunning(t *testing.T) {
	t.Parallel()

	for _, level := range []runtime.Level{runtime.LevelBooting, runtime.LevelShutdown} {
		g, state, _ := newTestGateway(t)
		state.SetLevel(level)

		rr := doRequest(t, g.handleHealth(), http.MethodGet, "/health", false)
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("level %s: status = %d, want %d", level, rr.Code, http.StatusServiceUnavailable)
		}
	}
}

func TestHealth_NoRuntimeState(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	rr := doRequest(t, g.handleHealth(), http.MethodGet, "/health", false)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}
