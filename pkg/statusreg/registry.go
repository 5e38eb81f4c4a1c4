// Package statusreg aggregates agent:status heartbeats into a queryable
// registry. An agent that misses two heartbeat intervals is reported
// offline; one that never reported is unknown.
package statusreg

import (
	"fmt"
	"sync"
	"time"

	"hive/pkg/protocol"
)

// DefaultHeartbeatInterval matches the supervisor's status publish cadence.
const DefaultHeartbeatInterval = 60 * time.Second

// Entry is the last observed state of one agent.
type Entry struct {
	Agent          string
	Status         string
	CurrentTaskID  string
	CompletedCount int
	UptimeSeconds  int64
	LastSeen       time.Time
}

// Registry tracks the latest heartbeat per agent. Safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]Entry
	interval time.Duration
	nowFunc  func() time.Time
}

// New creates a registry expecting heartbeats every interval; zero means
// DefaultHeartbeatInterval.
func New(interval time.Duration) *Registry {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Registry{
		entries:  make(map[string]Entry),
		interval: interval,
		nowFunc:  time.Now,
	}
}

// SetNowFunc overrides the registry clock (for testing).
func (r *Registry) SetNowFunc(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nowFunc = now
}

// Observe records a status envelope. Non-status envelopes and malformed
// payloads are ignored.
func (r *Registry) Observe(env protocol.Envelope) {
	if env.Type != protocol.TypeStatus {
		return
	}
	var st protocol.Status
	if err := env.DecodePayload(&st); err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[env.From] = Entry{
		Agent:          env.From,
		Status:         st.Status,
		CurrentTaskID:  st.CurrentTaskID,
		CompletedCount: st.CompletedCount,
		UptimeSeconds:  st.UptimeSeconds,
		LastSeen:       r.nowFunc(),
	}
}

// Handler returns a bus handler that feeds the registry.
func (r *Registry) Handler() func(protocol.Envelope) {
	return r.Observe
}

// Get returns the entry for an agent. An entry older than two heartbeat
// intervals is downgraded to offline. The second return is false when the
// agent never reported.
func (r *Registry) Get(agent string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[agent]
	if !ok {
		return Entry{}, false
	}
	if r.nowFunc().Sub(e.LastSeen) > 2*r.interval {
		e.Status = protocol.StatusOffline
	}
	return e, true
}

// All returns every known entry with staleness applied.
func (r *Registry) All() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if now.Sub(e.LastSeen) > 2*r.interval {
			e.Status = protocol.StatusOffline
		}
		out = append(out, e)
	}
	return out
}

// Describe renders an agent's state as a short human-readable line, the form
// the chatter agent hands back for a status-check tool call.
func (r *Registry) Describe(agent string) string {
	e, ok := r.Get(agent)
	if !ok {
		return fmt.Sprintf("Agent %s has not reported any status yet.", agent)
	}
	age := r.nowFunc().Sub(e.LastSeen).Round(time.Second)
	if e.CurrentTaskID != "" {
		return fmt.Sprintf("Agent %s is %s on task %s (last heartbeat %s ago, %d tasks completed).",
			agent, e.Status, e.CurrentTaskID, age, e.CompletedCount)
	}
	return fmt.Sprintf("Agent %s is %s (last heartbeat %s ago, %d tasks completed).",
		agent, e.Status, age, e.CompletedCount)
}
