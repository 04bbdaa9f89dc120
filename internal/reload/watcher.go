// Package reload provides configuration hot-reload via file polling and signal handling.
package reload

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/flemzord/sweep/internal/recurring"
)

// DefaultPollInterval is the file polling period used when none is configured.
const DefaultPollInterval = 5 * time.Second

// TaskName is the name the watcher registers under.
const TaskName = "reload.config_watch"

// EventType describes the type of file change event.
type EventType string

const (
	// EventModified indicates the config file was modified.
	EventModified EventType = "modified"
)

// Event represents a file change notification.
type Event struct {
	Type       EventType
	ConfigPath string
}

// Watcher compares the configuration file's modification time each time
// it runs. It is a gate.Job meant to run on every node. Changes are
// delivered on Events; a change is dropped while a previous one is still
// pending.
type Watcher struct {
	path   string
	events chan Event

	mu      sync.Mutex
	lastMod time.Time
}

// NewWatcher creates a watcher for path. The current modification time is
// the baseline.
func NewWatcher(path string) *Watcher {
	w := &Watcher{
		path:   path,
		events: make(chan Event, 1),
	}
	w.lastMod = w.statModTime()
	return w
}

// Events returns the channel of file change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Policy returns the runner policy polling every interval.
// Non-positive intervals use DefaultPollInterval.
func Policy(interval time.Duration) recurring.Policy {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return recurring.Policy{InitialDelay: interval, Period: interval, Async: true}
}

// Name implements gate.Job.
func (w *Watcher) Name() string { return TaskName }

// Run implements gate.Job. A missing file is ignored until it reappears.
func (w *Watcher) Run(_ context.Context) error {
	current := w.statModTime()
	if current.IsZero() {
		return nil
	}

	w.mu.Lock()
	changed := current.After(w.lastMod)
	if changed {
		w.lastMod = current
	}
	w.mu.Unlock()

	if changed {
		select {
		case w.events <- Event{Type: EventModified, ConfigPath: w.path}:
		default:
		}
	}
	return nil
}

func (w *Watcher) statModTime() time.Time {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
