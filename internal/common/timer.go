// Package common provides timing helpers for pipeline stages.
package common

import (
	"fmt"
	"log/slog"
	"time"
)

// Timer measures one named stage.
type Timer struct {
	start    time.Time
	name     string
	duration time.Duration
	stopped  bool
}

// NewTimer creates a new unnamed timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// NewNamedTimer creates a new timer with the given name.
func NewNamedTimer(name string) *Timer {
	return &Timer{name: name, start: time.Now()}
}

// Stop records the elapsed duration and returns it. Later calls return the
// first recorded value.
func (t *Timer) Stop() time.Duration {
	if !t.stopped {
		t.duration = time.Since(t.start)
		t.stopped = true
	}
	return t.duration
}

// Duration returns the recorded duration, or the running time if the timer
// has not been stopped.
func (t *Timer) Duration() time.Duration {
	if !t.stopped {
		return time.Since(t.start)
	}
	return t.duration
}

// Name returns the timer name (empty string if unnamed).
func (t *Timer) Name() string {
	return t.name
}

// Attr returns the duration in milliseconds as a log attribute keyed
// "<name>_ms".
func (t *Timer) Attr() slog.Attr {
	key := "elapsed_ms"
	if t.name != "" {
		key = t.name + "_ms"
	}
	return slog.Float64(key, float64(t.Duration().Microseconds())/1000)
}

func (t *Timer) String() string {
	if t.name != "" {
		return fmt.Sprintf("%s: %v", t.name, t.Duration())
	}
	return t.Duration().String()
}

// Stages collects timers for the stages of one run, in start order.
type Stages struct {
	timers []*Timer
}

// Start begins timing a new stage.
func (s *Stages) Start(name string) *Timer {
	t := NewNamedTimer(name)
	s.timers = append(s.timers, t)
	return t
}

// Attrs returns one log attribute per stage.
func (s *Stages) Attrs() []any {
	out := make([]any, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t.Attr())
	}
	return out
}
