package recurring

import "time"

// Metrics receives runner measurements. Implementations must be safe for
// concurrent use and should not block.
type Metrics interface {
	// RecordTick records one finished invocation and the decision applied.
	RecordTick(runner, task string, decision Decision, duration time.Duration)

	// RecordFault records an invocation that returned an error or panicked.
	RecordFault(runner, task string)

	// RecordFinished records a task leaving the registry in a terminal state.
	RecordFinished(runner, task string, state State)

	// RecordRegistered records the current number of registered tasks.
	RecordRegistered(runner string, count int)
}

// NilMetrics discards all measurements.
type NilMetrics struct{}

// RecordTick is a no-op.
func (NilMetrics) RecordTick(string, string, Decision, time.Duration) {}

// RecordFault is a no-op.
func (NilMetrics) RecordFault(string, string) {}

// RecordFinished is a no-op.
func (NilMetrics) RecordFinished(string, string, State) {}

// RecordRegistered is a no-op.
func (NilMetrics) RecordRegistered(string, int) {}

// Observer is notified after every tick. Observe is called outside the
// runner lock but on the tick goroutine, so it must return quickly.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) { f(e) }
