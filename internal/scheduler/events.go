package scheduler

import (
	"sync"

	"github.com/flemzord/sweep/internal/recurring"
)

// Events fans runner events out to subscribers. Subscribers are called on
// the tick goroutine and must not block.
type Events struct {
	mu   sync.RWMutex
	next int
	subs map[int]recurring.Observer
}

// Compile-time interface check.
var _ recurring.Observer = (*Events)(nil)

// NewEvents creates an empty fan-out.
func NewEvents() *Events {
	return &Events{subs: make(map[int]recurring.Observer)}
}

// Subscribe adds o and returns a function removing it.
func (e *Events) Subscribe(o recurring.Observer) (unsubscribe func()) {
	e.mu.Lock()
	id := e.next
	e.next++
	e.subs[id] = o
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
		})
	}
}

// Len returns the number of subscribers.
func (e *Events) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}

// Observe implements recurring.Observer.
func (e *Events) Observe(ev recurring.Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, o := range e.subs {
		o.Observe(ev)
	}
}
