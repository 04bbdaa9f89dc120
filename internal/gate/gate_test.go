package gate_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flemzord/sweep/internal/gate"
	"github.com/flemzord/sweep/internal/maindom"
	"github.com/flemzord/sweep/internal/recurring"
	"github.com/flemzord/sweep/internal/recurring/recurringtest"
	"github.com/flemzord/sweep/internal/runtime"
)

// countingJob counts Run calls.
type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return "cleanup" }

func (j *countingJob) Run(_ context.Context) error {
	j.runs.Add(1)
	return j.err
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newLogger(w *syncBuffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func statusAt(level runtime.Level, role runtime.ServerRole) *runtime.State {
	s := runtime.NewState(role)
	s.SetLevel(level)
	return s
}

func TestSingleton_Gates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		enabled bool
		level   runtime.Level
		role    runtime.ServerRole
		owner   bool
		want    recurring.Decision
		wantRun bool
		wantLog string
	}{
		{"disabled", false, runtime.LevelRun, runtime.RoleSingle, true, recurring.Repeat, false, "globally disabled"},
		{"disabled wins over ownership loss", false, runtime.LevelRun, runtime.RoleSingle, false, recurring.Repeat, false, "globally disabled"},
		{"booting", true, runtime.LevelBooting, runtime.RoleSingle, true, recurring.Repeat, false, "runtime level"},
		{"shutting down", true, runtime.LevelShutdown, runtime.RoleLeader, true, recurring.Repeat, false, "runtime level"},
		{"replica", true, runtime.LevelRun, runtime.RoleReplica, true, recurring.RepeatImmediately, false, "replica"},
		{"unknown role", true, runtime.LevelRun, runtime.RoleUnknown, true, recurring.RepeatImmediately, false, "unknown role"},
		{"replica not owner", true, runtime.LevelRun, runtime.RoleReplica, false, recurring.RepeatImmediately, false, "replica"},
		{"not owner", true, runtime.LevelRun, runtime.RoleSingle, false, recurring.Retire, false, "not exclusive owner"},
		{"leader not owner", true, runtime.LevelRun, runtime.RoleLeader, false, recurring.Retire, false, "not exclusive owner"},
		{"all pass single", true, runtime.LevelRun, runtime.RoleSingle, true, recurring.Repeat, true, ""},
		{"all pass leader", true, runtime.LevelRun, runtime.RoleLeader, true, recurring.Repeat, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var logs syncBuffer
			job := &countingJob{}
			task := gate.NewSingleton(job, gate.Config{
				Flag:   gate.NewSwitch(tt.enabled),
				Status: statusAt(tt.level, tt.role),
				Oracle: maindom.NewStatic(tt.owner),
				Logger: newLogger(&logs),
			})

			got, err := task.Execute(t.Context())
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if got != tt.want {
				t.Errorf("decision = %s, want %s", got, tt.want)
			}
			if ran := job.runs.Load() == 1; ran != tt.wantRun {
				t.Errorf("job ran = %v, want %v", ran, tt.wantRun)
			}
			if tt.wantLog != "" && !strings.Contains(logs.String(), tt.wantLog) {
				t.Errorf("log %q does not contain %q", logs.String(), tt.wantLog)
			}
			if tt.want != recurring.Retire && !got.Repeats() {
				t.Errorf("non-ownership gates must keep the task scheduled, got %s", got)
			}
		})
	}
}

func TestSingleton_NilFlagMeansEnabled(t *testing.T) {
	t.Parallel()

	job := &countingJob{}
	task := gate.NewSingleton(job, gate.Config{
		Status: statusAt(runtime.LevelRun, runtime.RoleSingle),
		Oracle: maindom.NewStatic(true),
		Logger: slog.New(slog.DiscardHandler),
	})
	if d, _ := task.Execute(t.Context()); d != recurring.Repeat || job.runs.Load() != 1 {
		t.Errorf("decision = %s, runs = %d; want repeat after one run", d, job.runs.Load())
	}
}

func TestSingleton_JobErrorIsFault(t *testing.T) {
	t.Parallel()

	job := &countingJob{err: errors.New("store locked")}
	task := gate.NewSingleton(job, gate.Config{
		Status: statusAt(runtime.LevelRun, runtime.RoleSingle),
		Oracle: maindom.NewStatic(true),
		Logger: slog.New(slog.DiscardHandler),
	})
	d, err := task.Execute(t.Context())
	if err == nil || d != recurring.Repeat {
		t.Errorf("Execute = %s, %v; want repeat with the job error", d, err)
	}
}

func TestSingleton_FlagIsLive(t *testing.T) {
	t.Parallel()

	flag := gate.NewSwitch(false)
	job := &countingJob{}
	task := gate.NewSingleton(job, gate.Config{
		Flag:   flag,
		Status: statusAt(runtime.LevelRun, runtime.RoleSingle),
		Oracle: maindom.NewStatic(true),
		Logger: slog.New(slog.DiscardHandler),
	})

	if _, err := task.Execute(t.Context()); err != nil {
		t.Fatal(err)
	}
	flag.Set(true)
	if _, err := task.Execute(t.Context()); err != nil {
		t.Fatal(err)
	}
	if n := job.runs.Load(); n != 1 {
		t.Errorf("runs = %d, want 1 after re-enabling", n)
	}
}

func TestSingleton_RetiresOnRunnerAndStaysRetired(t *testing.T) {
	t.Parallel()

	oracle := maindom.NewStatic(true)
	job := &countingJob{}
	task := gate.NewSingleton(job, gate.Config{
		Status: statusAt(runtime.LevelRun, runtime.RoleSingle),
		Oracle: oracle,
		Logger: slog.New(slog.DiscardHandler),
	})

	rec := recurringtest.NewRecorder()
	r := recurring.NewRunner(recurring.Config{Logger: slog.New(slog.DiscardHandler), Observer: rec})
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })

	h, err := r.Register(task, recurring.Policy{Period: 5 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}

	rec.WaitEvents(t, 2, 2*time.Second)
	oracle.Set(false)

	deadline := time.Now().Add(2 * time.Second)
	for h.State() != recurring.StateRetired && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if h.State() != recurring.StateRetired {
		t.Fatalf("state = %s, want retired", h.State())
	}

	runs := job.runs.Load()
	events := len(rec.Events())
	oracle.Set(true)
	time.Sleep(30 * time.Millisecond)
	if job.runs.Load() != runs || len(rec.Events()) != events {
		t.Error("a retired task must never tick again, even if ownership returns")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestUngated(t *testing.T) {
	t.Parallel()

	status := statusAt(runtime.LevelBooting, runtime.RoleReplica)
	job := &countingJob{}
	task := gate.NewUngated(job, status, slog.New(slog.DiscardHandler))

	if d, _ := task.Execute(t.Context()); d != recurring.Repeat || job.runs.Load() != 0 {
		t.Errorf("booting: decision = %s, runs = %d", d, job.runs.Load())
	}
	status.SetLevel(runtime.LevelRun)
	if d, _ := task.Execute(t.Context()); d != recurring.Repeat || job.runs.Load() != 1 {
		t.Errorf("run on replica: decision = %s, runs = %d; want one run", d, job.runs.Load())
	}
	if task.Name() != "cleanup" {
		t.Errorf("Name() = %q", task.Name())
	}
}

func TestJobFunc(t *testing.T) {
	t.Parallel()

	called := false
	j := gate.NewJobFunc("f", func(context.Context) error { called = true; return nil })
	if err := j.Run(t.Context()); err != nil || !called || j.Name() != "f" {
		t.Errorf("JobFunc did not run as expected")
	}
}
