package recurring

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/flemzord/sweep/internal/recurring"

// Config holds the runner's collaborators. Zero values get sensible defaults.
type Config struct {
	// Name identifies the runner in logs, metrics and spans. Defaults to "default".
	Name string

	Logger   *slog.Logger
	Metrics  Metrics
	Tracer   trace.Tracer
	Observer Observer

	// Now returns the current time. Only used for snapshots and events;
	// timers always use the wall clock.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = NilMetrics{}
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer(tracerName)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// entry is the runner-side record of one registered task.
// All fields except task and policy are guarded by Runner.mu.
type entry struct {
	task   Task
	policy Policy

	state     State
	cancelled bool
	timer     *time.Timer

	ticks        uint64
	faults       uint64
	lastDecision Decision
	decided      bool
	lastErr      string
	lastStart    time.Time
	lastFinish   time.Time
	nextRun      time.Time
}

// Runner owns the timing loop of its registered tasks.
//
// Each tick runs on its own goroutine. A task never overlaps itself: its next
// timer is armed only after the current invocation returns. Tasks whose
// policy is not Async are additionally serialized with each other.
type Runner struct {
	cfg    Config
	logger *slog.Logger

	mu           sync.Mutex
	entries      map[string]*entry
	started      bool
	shuttingDown bool

	inflight sync.WaitGroup
	serial   sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner creates a runner. Tasks registered before Start are parked until
// Start is called.
func NewRunner(cfg Config) *Runner {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cfg:     cfg,
		logger:  cfg.Logger.With("runner", cfg.Name),
		entries: make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Name returns the runner name.
func (r *Runner) Name() string { return r.cfg.Name }

// Register attaches a task. On a started runner the initial-delay timer is
// armed immediately; otherwise the task waits for Start.
func (r *Runner) Register(task Task, policy Policy) (*Handle, error) {
	if task == nil {
		return nil, ErrNilTask
	}
	name := task.Name()
	if name == "" {
		return nil, ErrEmptyName
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("task %q: %w", name, err)
	}

	r.mu.Lock()
	if r.shuttingDown {
		r.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if _, exists := r.entries[name]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDuplicateTask, name)
	}

	e := &entry{task: task, policy: policy, state: StateScheduled}
	r.entries[name] = e
	if r.started {
		r.arm(e, policy.InitialDelay)
	}
	count := len(r.entries)
	r.mu.Unlock()

	r.cfg.Metrics.RecordRegistered(r.cfg.Name, count)
	r.logger.Debug("recurring: task registered",
		"task", name,
		"initial_delay", policy.InitialDelay,
		"period", policy.Period,
		"async", policy.Async,
	)
	return &Handle{runner: r, entry: e}, nil
}

// Start arms the initial-delay timer of every parked task.
// Calling Start again is a no-op.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shuttingDown {
		return ErrShuttingDown
	}
	if r.started {
		return nil
	}
	r.started = true
	for _, e := range r.entries {
		if e.state == StateScheduled && e.timer == nil {
			r.arm(e, e.policy.InitialDelay)
		}
	}
	r.logger.Info("recurring: runner started", "tasks", len(r.entries))
	return nil
}

// arm schedules the next tick of e. Caller must hold r.mu.
func (r *Runner) arm(e *entry, after time.Duration) {
	e.nextRun = r.cfg.Now().Add(after)
	e.timer = time.AfterFunc(after, func() { r.tick(e) })
}

// remove drops e from the registry if it is still the registered instance.
// Caller must hold r.mu.
func (r *Runner) remove(e *entry) {
	name := e.task.Name()
	if r.entries[name] == e {
		delete(r.entries, name)
	}
	e.nextRun = time.Time{}
}

// tick is the timer callback for one task.
func (r *Runner) tick(e *entry) {
	name := e.task.Name()

	// A non-async task queues here while still Scheduled, so Shutdown and
	// Cancel can drop it before it ever reaches Execute.
	if !e.policy.Async {
		r.serial.Lock()
	}
	unlockSerial := func() {
		if !e.policy.Async {
			r.serial.Unlock()
		}
	}

	r.mu.Lock()
	// Shutdown race, cancelled while queued or a stale timer: drop without noise.
	if r.shuttingDown || e.state != StateScheduled || r.entries[name] != e {
		r.mu.Unlock()
		unlockSerial()
		return
	}
	e.state = StateRunning
	e.timer = nil
	e.nextRun = time.Time{}
	e.ticks++
	tick := e.ticks
	start := r.cfg.Now()
	e.lastStart = start
	r.inflight.Add(1)
	r.mu.Unlock()
	defer r.inflight.Done()

	began := time.Now()
	decision, err := r.invoke(r.ctx, e, tick)
	elapsed := time.Since(began)
	unlockSerial()

	if err == nil && (decision < Repeat || decision > Retire) {
		r.logger.Warn("recurring: unknown decision, repeating",
			"task", name,
			"tick", tick,
			"decision", decision,
		)
		decision = Repeat
	}
	if err != nil {
		decision = Repeat
	}

	r.mu.Lock()
	e.lastFinish = r.cfg.Now()
	e.lastDecision = decision
	e.decided = true
	if err != nil {
		e.faults++
		e.lastErr = err.Error()
	} else {
		e.lastErr = ""
	}
	switch {
	case r.shuttingDown || e.cancelled:
		e.state = StateCancelled
		r.remove(e)
	case decision == Retire:
		e.state = StateRetired
		r.remove(e)
	default:
		e.state = StateScheduled
		r.arm(e, e.policy.Period)
	}
	state := e.state
	next := e.nextRun
	finished := e.lastFinish
	count := len(r.entries)
	r.mu.Unlock()

	r.report(name, tick, decision, state, err, elapsed, next, count)

	if r.cfg.Observer != nil {
		ev := Event{
			Runner:   r.cfg.Name,
			Task:     name,
			Tick:     tick,
			Decision: decision,
			State:    state,
			Duration: elapsed,
			At:       finished,
		}
		if err != nil {
			ev.Error = err.Error()
		}
		r.cfg.Observer.Observe(ev)
	}
}

// report logs and records the outcome of one tick.
func (r *Runner) report(name string, tick uint64, decision Decision, state State, err error, elapsed time.Duration, next time.Time, count int) {
	m := r.cfg.Metrics
	m.RecordTick(r.cfg.Name, name, decision, elapsed)

	if err != nil {
		m.RecordFault(r.cfg.Name, name)
		r.logger.Error("recurring: task failed",
			"task", name,
			"tick", tick,
			"duration", elapsed,
			"error", err,
		)
	}

	switch state {
	case StateCancelled:
		m.RecordFinished(r.cfg.Name, name, state)
		m.RecordRegistered(r.cfg.Name, count)
		r.logger.Debug("recurring: task cancelled after in-flight tick", "task", name, "tick", tick)
	case StateRetired:
		m.RecordFinished(r.cfg.Name, name, state)
		m.RecordRegistered(r.cfg.Name, count)
		r.logger.Info("recurring: task retired", "task", name, "tick", tick)
	default:
		if err != nil {
			return
		}
		if decision == RepeatImmediately {
			r.logger.Debug("recurring: task deferred", "task", name, "tick", tick, "next_run", next)
			return
		}
		r.logger.Debug("recurring: task completed",
			"task", name,
			"tick", tick,
			"duration", elapsed,
			"next_run", next,
		)
	}
}

// invoke calls Execute once, applying the policy timeout and panic recovery.
// Non-async callers already hold the serial lock, so the timeout and the span
// cover Execute only.
func (r *Runner) invoke(ctx context.Context, e *entry, tick uint64) (decision Decision, err error) {
	if e.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.policy.Timeout)
		defer cancel()
	}

	ctx, span := r.cfg.Tracer.Start(ctx, "recurring.tick", trace.WithAttributes(
		attribute.String("recurring.runner", r.cfg.Name),
		attribute.String("task.name", e.task.Name()),
		attribute.Int64("task.tick", int64(tick)),
		attribute.Bool("task.async", e.policy.Async),
	))
	defer func() {
		span.SetAttributes(attribute.String("task.decision", decision.String()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	defer func() {
		if v := recover(); v != nil {
			decision = Repeat
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()

	return e.task.Execute(ctx)
}

// Shutdown stops all pending timers, cancels idle tasks and waits for
// in-flight invocations to return. Tasks in flight are not rescheduled.
//
// It returns nil once the runner is quiescent, or the context error if ctx
// expires first; in that case the context passed to running tasks is
// cancelled. Shutdown is idempotent.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.shuttingDown {
		r.shuttingDown = true
		var cancelled []string
		for name, e := range r.entries {
			if e.timer != nil {
				e.timer.Stop()
				e.timer = nil
			}
			if e.state == StateScheduled {
				e.state = StateCancelled
				e.nextRun = time.Time{}
				delete(r.entries, name)
				cancelled = append(cancelled, name)
			}
		}
		running := len(r.entries)
		r.mu.Unlock()

		for _, name := range cancelled {
			r.cfg.Metrics.RecordFinished(r.cfg.Name, name, StateCancelled)
		}
		r.cfg.Metrics.RecordRegistered(r.cfg.Name, running)
		r.logger.Info("recurring: runner shutting down",
			"cancelled", len(cancelled),
			"in_flight", running,
		)

		go func() {
			r.inflight.Wait()
			r.cancel()
			close(r.done)
		}()
	} else {
		r.mu.Unlock()
	}

	select {
	case <-r.done:
		r.logger.Debug("recurring: runner stopped")
		return nil
	case <-ctx.Done():
		r.cancel()
		r.logger.Warn("recurring: shutdown abandoned before tasks finished", "error", ctx.Err())
		return fmt.Errorf("recurring: shutdown: %w", ctx.Err())
	}
}

// Done is closed once the runner has shut down and no invocation is in flight.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Cancel cancels the named task. It reports false if no such task is registered.
func (r *Runner) Cancel(name string) bool {
	r.mu.Lock()
	e, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return r.cancelEntry(e)
}

func (r *Runner) cancelEntry(e *entry) bool {
	name := e.task.Name()

	r.mu.Lock()
	if e.state.Terminal() || e.cancelled {
		r.mu.Unlock()
		return false
	}
	if e.state == StateRunning {
		// Dropped by tick once the invocation returns.
		e.cancelled = true
		r.mu.Unlock()
		r.logger.Info("recurring: task cancellation requested while running", "task", name)
		return true
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.state = StateCancelled
	e.cancelled = true
	r.remove(e)
	count := len(r.entries)
	r.mu.Unlock()

	r.cfg.Metrics.RecordFinished(r.cfg.Name, name, StateCancelled)
	r.cfg.Metrics.RecordRegistered(r.cfg.Name, count)
	r.logger.Info("recurring: task cancelled", "task", name)
	return true
}

// Len returns the number of registered tasks, including those in flight.
func (r *Runner) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshots returns a view of every registered task, sorted by name.
func (r *Runner) Snapshots() []Snapshot {
	r.mu.Lock()
	out := make([]Snapshot, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.snapshot())
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b Snapshot) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// snapshot copies e. Caller must hold the runner lock.
func (e *entry) snapshot() Snapshot {
	s := Snapshot{
		Name:       e.task.Name(),
		State:      e.state,
		Ticks:      e.ticks,
		Faults:     e.faults,
		LastError:  e.lastErr,
		LastStart:  e.lastStart,
		LastFinish: e.lastFinish,
		NextRun:    e.nextRun,
		Period:     e.policy.Period.String(),
		Async:      e.policy.Async,
	}
	if e.decided {
		d := e.lastDecision
		s.LastDecision = &d
	}
	return s
}

// Handle refers to one registration. It stays valid after the task leaves
// the runner and then reports the terminal state.
type Handle struct {
	runner *Runner
	entry  *entry
}

// Name returns the task name.
func (h *Handle) Name() string { return h.entry.task.Name() }

// State returns the current state of the registration.
func (h *Handle) State() State {
	h.runner.mu.Lock()
	defer h.runner.mu.Unlock()
	return h.entry.state
}

// Snapshot returns a view of the registration.
func (h *Handle) Snapshot() Snapshot {
	h.runner.mu.Lock()
	defer h.runner.mu.Unlock()
	return h.entry.snapshot()
}

// Cancel stops the task. A running invocation completes and is not
// rescheduled. It reports false if the task had already finished.
func (h *Handle) Cancel() bool { return h.runner.cancelEntry(h.entry) }
