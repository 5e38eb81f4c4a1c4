// Package bustest provides an in-memory Bus for tests. Publishes are
// delivered synchronously to subscribed handlers in registration order,
// which keeps per-channel ordering deterministic without a running Redis.
package bustest

import (
	"context"
	"errors"
	"sync"
	"time"

	"hive/pkg/bus"
	"hive/pkg/protocol"
)

// Published records one Publish call.
type Published struct {
	Channel  string
	Envelope protocol.Envelope
}

// Bus is an in-memory bus.Bus implementation.
type Bus struct {
	mu        sync.Mutex
	handlers  map[string][]bus.Handler
	published []Published

	// down simulates a transport outage (toggled by SetDown): publishes fail
	// and probes error.
	down bool
	// Latency is returned by LatencyProbe when the bus is up.
	Latency time.Duration
}

// New creates an empty in-memory bus.
func New() *Bus {
	return &Bus{
		handlers: make(map[string][]bus.Handler),
		Latency:  time.Millisecond,
	}
}

// Publish records the envelope and delivers it synchronously to every
// handler subscribed to channel.
func (b *Bus) Publish(_ context.Context, channel string, env protocol.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.down {
		b.mu.Unlock()
		return errors.New("bustest: bus is down")
	}
	b.published = append(b.published, Published{Channel: channel, Envelope: env})
	hs := make([]bus.Handler, len(b.handlers[channel]))
	copy(hs, b.handlers[channel])
	b.mu.Unlock()

	for _, h := range hs {
		h(env)
	}
	return nil
}

// Subscribe registers a handler for channel.
func (b *Bus) Subscribe(channel string, h bus.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = append(b.handlers[channel], h)
	return nil
}

// LatencyProbe reports the configured latency, or an error when down.
func (b *Bus) LatencyProbe(context.Context) (time.Duration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return 0, errors.New("bustest: bus is down")
	}
	return b.Latency, nil
}

// IsConnected reports the simulated transport state.
func (b *Bus) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.down
}

// Close is a no-op.
func (b *Bus) Close() error { return nil }

// SetDown toggles the simulated outage.
func (b *Bus) SetDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

// Published returns a copy of every recorded publish.
func (b *Bus) Published() []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Published, len(b.published))
	copy(out, b.published)
	return out
}

// PublishedOn returns the envelopes published on a single channel.
func (b *Bus) PublishedOn(channel string) []protocol.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []protocol.Envelope
	for _, p := range b.published {
		if p.Channel == channel {
			out = append(out, p.Envelope)
		}
	}
	return out
}

var _ bus.Bus = (*Bus)(nil)
