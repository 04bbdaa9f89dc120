// Package recurringtest provides test doubles for the recurring package.
package recurringtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/sweep/internal/recurring"
)

// MockTask is a configurable test double for recurring.Task.
// ExecuteFunc receives the 1-based call number.
type MockTask struct {
	NameVal     string
	ExecuteFunc func(ctx context.Context, call int) (recurring.Decision, error)

	mu     sync.Mutex
	calls  int
	starts []time.Time
	ends   []time.Time
}

// Compile-time interface check.
var _ recurring.Task = (*MockTask)(nil)

// Name implements recurring.Task.
func (m *MockTask) Name() string { return m.NameVal }

// Execute implements recurring.Task and records call timing.
func (m *MockTask) Execute(ctx context.Context) (recurring.Decision, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.starts = append(m.starts, time.Now())
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.ends = append(m.ends, time.Now())
		m.mu.Unlock()
	}()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, call)
	}
	return recurring.Repeat, nil
}

// CallCount returns the number of times Execute was called.
func (m *MockTask) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Starts returns the start time of every call.
func (m *MockTask) Starts() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.starts...)
}

// Ends returns the return time of every finished call.
func (m *MockTask) Ends() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.ends...)
}

// WaitCalls blocks until Execute was called at least n times or fails the
// test after timeout.
func (m *MockTask) WaitCalls(t testing.TB, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.CallCount() >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("task %q: got %d calls, want at least %d", m.NameVal, m.CallCount(), n)
}

// Recorder collects runner events and metrics. It implements both
// recurring.Observer and recurring.Metrics.
type Recorder struct {
	mu       sync.Mutex
	events   []recurring.Event
	ticks    map[string]int
	faults   map[string]int
	finished map[string]recurring.State
	count    int
	notify   chan struct{}
}

var (
	_ recurring.Observer = (*Recorder)(nil)
	_ recurring.Metrics  = (*Recorder)(nil)
)

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		ticks:    make(map[string]int),
		faults:   make(map[string]int),
		finished: make(map[string]recurring.State),
		notify:   make(chan struct{}, 1),
	}
}

// Observe implements recurring.Observer.
func (r *Recorder) Observe(e recurring.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// RecordTick implements recurring.Metrics.
func (r *Recorder) RecordTick(_, task string, _ recurring.Decision, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks[task]++
}

// RecordFault implements recurring.Metrics.
func (r *Recorder) RecordFault(_, task string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults[task]++
}

// RecordFinished implements recurring.Metrics.
func (r *Recorder) RecordFinished(_, task string, state recurring.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[task] = state
}

// RecordRegistered implements recurring.Metrics.
func (r *Recorder) RecordRegistered(_ string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count = count
}

// Events returns a copy of the observed events.
func (r *Recorder) Events() []recurring.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recurring.Event(nil), r.events...)
}

// Faults returns the fault count recorded for task.
func (r *Recorder) Faults(task string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.faults[task]
}

// Ticks returns the tick count recorded for task.
func (r *Recorder) Ticks(task string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks[task]
}

// Finished returns the terminal state recorded for task.
func (r *Recorder) Finished(task string) (recurring.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.finished[task]
	return s, ok
}

// Registered returns the last registered-task count.
func (r *Recorder) Registered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// WaitEvents blocks until at least n events were observed or fails the test
// after timeout.
func (r *Recorder) WaitEvents(t testing.TB, n int, timeout time.Duration) []recurring.Event {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		if ev := r.Events(); len(ev) >= n {
			return ev
		}
		select {
		case <-r.notify:
		case <-timer.C:
			t.Fatalf("got %d events, want at least %d", len(r.Events()), n)
			return nil
		}
	}
}
