// Package pending implements the correlation table that turns the bus
// pub/sub protocol into a request/reply calling convention. Callers Track a
// request ID before publishing and receive a one-shot channel that resolves
// with the matching response payload or rejects with a timeout.
package pending

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// TimeoutError is returned on a tracked request whose deadline passed without
// a response from the target agent.
type TimeoutError struct {
	Agent   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Agent %s did not respond within %d ms", e.Agent, e.Timeout.Milliseconds())
}

// Result is delivered exactly once per tracked request: either the response
// payload or an error.
type Result struct {
	Payload json.RawMessage
	Err     error
}

type slot struct {
	ch       chan Result
	target   string
	deadline time.Time
	timeout  time.Duration
	timer    *time.Timer
}

// Table tracks in-flight requests by ID. Safe for concurrent use.
type Table struct {
	mu    sync.Mutex
	slots map[string]*slot
	log   *slog.Logger

	// nowFunc is replaceable in tests.
	nowFunc func() time.Time
}

// New creates an empty table. A nil logger discards log output.
func New(log *slog.Logger) *Table {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Table{
		slots:   make(map[string]*slot),
		log:     log,
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the table clock (for testing).
func (t *Table) SetNowFunc(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nowFunc = now
}

// Track registers a slot for the given request ID and arms its deadline
// timer. It must be called before the request envelope is published, or a
// fast response could arrive before the slot exists and be dropped.
// The returned channel receives exactly one Result.
func (t *Table) Track(id, targetAgent string, timeout time.Duration) <-chan Result {
	s := &slot{
		ch:       make(chan Result, 1),
		target:   targetAgent,
		deadline: t.nowFunc().Add(timeout),
		timeout:  timeout,
	}
	s.timer = time.AfterFunc(timeout, func() {
		t.Reject(id, &TimeoutError{Agent: targetAgent, Timeout: timeout})
	})

	t.mu.Lock()
	t.slots[id] = s
	t.mu.Unlock()
	return s.ch
}

// Deliver resolves the slot for id with the response payload. A delivery for
// an unknown or already-resolved id is logged and dropped.
func (t *Table) Deliver(id string, payload json.RawMessage) {
	s := t.take(id)
	if s == nil {
		t.log.Warn("late or unknown response discarded", "id", id)
		return
	}
	s.timer.Stop()
	s.ch <- Result{Payload: payload}
}

// Reject resolves the slot for id with an error, if present.
func (t *Table) Reject(id string, err error) {
	s := t.take(id)
	if s == nil {
		return
	}
	s.timer.Stop()
	s.ch <- Result{Err: err}
}

// take removes and returns the slot for id, or nil if absent. Removal under
// the lock is what makes resolve-exactly-once hold: only one caller ever
// sees the slot.
func (t *Table) take(id string) *slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[id]
	if !ok {
		return nil
	}
	delete(t.slots, id)
	return s
}

// Sweep rejects entries that outlived their deadline without being resolved.
// The per-slot timers normally fire first; the sweep is a backstop against
// timers lost to clock adjustment or a missed AfterFunc.
func (t *Table) Sweep() {
	now := t.nowFunc()

	t.mu.Lock()
	type expiredSlot struct {
		id      string
		target  string
		timeout time.Duration
	}
	var expired []expiredSlot
	for id, s := range t.slots {
		if now.After(s.deadline) {
			expired = append(expired, expiredSlot{id, s.target, s.timeout})
		}
	}
	t.mu.Unlock()

	for _, e := range expired {
		t.log.Warn("sweeping expired request", "id", e.id, "target", e.target)
		t.Reject(e.id, &TimeoutError{Agent: e.target, Timeout: e.timeout})
	}
}

// Len returns the number of in-flight requests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}
