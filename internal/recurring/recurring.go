// Package recurring runs self-rescheduling background tasks.
//
// A Task performs one unit of work per tick and reports a Decision telling
// the Runner whether to run it again. The Runner owns every timer; tasks never
// hold a reference back to it.
package recurring

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Decision is the continuation outcome a task reports after one tick.
type Decision int

const (
	// Repeat reschedules the task one period after the invocation returns.
	Repeat Decision = iota

	// RepeatImmediately is reported when the task could not run this tick for
	// a reason expected to clear soon. Timing is identical to Repeat; only the
	// log line differs.
	RepeatImmediately

	// Retire removes the task permanently.
	Retire
)

// String implements fmt.Stringer.
func (d Decision) String() string {
	switch d {
	case Repeat:
		return "repeat"
	case RepeatImmediately:
		return "repeat_immediately"
	case Retire:
		return "retire"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Repeats reports whether the decision keeps the task scheduled.
func (d Decision) Repeats() bool {
	return d == Repeat || d == RepeatImmediately
}

// MarshalText implements encoding.TextMarshaler.
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Task is a unit of recurring work.
type Task interface {
	// Name identifies the task within its runner. Names must be unique per runner.
	Name() string

	// Execute performs the work once. It must be safe to call again after a
	// failed invocation; the runner does not track partial completion.
	// A non-nil error is treated as a fault: logged and followed by Repeat.
	Execute(ctx context.Context) (Decision, error)
}

// Policy describes when and how a task is scheduled.
type Policy struct {
	// InitialDelay is the wait between Start (or registration on a started
	// runner) and the first tick.
	InitialDelay time.Duration

	// Period is the wait between the end of one invocation and the start of
	// the next.
	Period time.Duration

	// Async allows the task to execute concurrently with other tasks of the
	// same runner. Tasks with Async unset are serialized with each other.
	Async bool

	// Timeout bounds the context passed to Execute. Zero means no deadline.
	Timeout time.Duration
}

// Validate reports whether the policy can be scheduled.
func (p Policy) Validate() error {
	var errs []error
	if p.InitialDelay < 0 {
		errs = append(errs, fmt.Errorf("initial delay must be >= 0, got %s", p.InitialDelay))
	}
	if p.Period <= 0 {
		errs = append(errs, fmt.Errorf("period must be > 0, got %s", p.Period))
	}
	if p.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must be >= 0, got %s", p.Timeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidPolicy, errors.Join(errs...))
	}
	return nil
}

// FuncTask adapts a function to the Task interface.
type FuncTask struct {
	name string
	fn   func(ctx context.Context) (Decision, error)
}

// Compile-time interface check.
var _ Task = (*FuncTask)(nil)

// NewFuncTask returns a Task named name that calls fn on every tick.
func NewFuncTask(name string, fn func(ctx context.Context) (Decision, error)) *FuncTask {
	return &FuncTask{name: name, fn: fn}
}

// Name implements Task.
func (f *FuncTask) Name() string { return f.name }

// Execute implements Task.
func (f *FuncTask) Execute(ctx context.Context) (Decision, error) {
	return f.fn(ctx)
}
