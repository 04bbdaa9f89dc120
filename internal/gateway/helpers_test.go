package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/sweep/internal/maindom"
	"github.com/flemzord/sweep/internal/recurring"
	"github.com/flemzord/sweep/internal/runtime"
)

const testToken = "secret-token"

var discard = slog.New(slog.DiscardHandler)

// newTestGateway returns a gateway wired to a running-level state, a static
// owner oracle and an unstarted runner holding the given task names.
func newTestGateway(t *testing.T, taskNames ...string) (*Gateway, *runtime.State, *recurring.Runner) {
	t.Helper()

	state := runtime.NewState(runtime.RoleSingle)
	state.SetLevel(runtime.LevelRun)

	runner := recurring.NewRunner(recurring.Config{Name: "test", Logger: discard})
	for _, name := range taskNames {
		task := recurring.NewFuncTask(name, func(context.Context) (recurring.Decision, error) {
			return recurring.Repeat, nil
		})
		if _, err := runner.Register(task, recurring.Policy{Period: time.Hour}); err != nil {
			t.Fatal(err)
		}
	}
	t.Cleanup(func() { _ = runner.Shutdown(context.Background()) })

	reg := prom.NewRegistry()
	m, err := newHTTPMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}

	g := &Gateway{
		config:    Config{Auth: AuthConfig{BearerToken: testToken}},
		logger:    discard,
		startedAt: time.Now(),
		status:    state,
		oracle:    maindom.NewStatic(true),
		tasks:     runner,
		gatherer:  reg,
		metrics:   m,
	}
	g.config.defaults()
	g.events = newEventHub(g.config.EventBuffer, discard)
	return g, state, runner
}

func doRequest(t *testing.T, h http.Handler, method, path string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}
