// Package bus wraps the Redis pub/sub transport behind an agent-agnostic
// Publish/Subscribe surface. The client keeps two connections: one for
// publishing and commands, one dedicated to subscriptions, because a Redis
// connection in subscriber mode cannot issue unrelated commands.
package bus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"hive/pkg/protocol"
)

// Handler is invoked for each inbound envelope on a subscribed channel.
// Handlers for the same channel run in delivery order on a dedicated
// goroutine; a handler must not block indefinitely or it stalls that
// channel's queue.
type Handler func(env protocol.Envelope)

// Bus is the transport surface agents program against. *Client implements
// it over Redis; tests substitute an in-memory fake.
type Bus interface {
	Publish(ctx context.Context, channel string, env protocol.Envelope) error
	Subscribe(channel string, h Handler) error
	LatencyProbe(ctx context.Context) (time.Duration, error)
	IsConnected() bool
	Close() error
}

// ErrClosed is returned for operations on a closed client.
var ErrClosed = errors.New("bus: client closed")

// queueSize bounds each channel's dispatch queue. A full queue blocks the
// subscriber loop, applying back-pressure to the transport read.
const queueSize = 256

// Options configures the connection to the bus.
type Options struct {
	// URL is a redis:// URL or a plain host:port address.
	URL      string
	Password string
}

// Client is a Redis-backed Bus. Safe for concurrent use.
type Client struct {
	pub    *redis.Client
	sub    *redis.Client
	pubsub *redis.PubSub
	log    *slog.Logger

	mu       sync.Mutex
	handlers map[string][]Handler
	queues   map[string]chan protocol.Envelope

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// New connects both bus connections and starts the subscriber loop. The
// initial liveness probe is fatal: a bus that is unreachable at startup is a
// configuration problem, not a transient.
func New(ctx context.Context, opts Options, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	redisOpts, err := parseOptions(opts)
	if err != nil {
		return nil, err
	}

	c := &Client{
		log:      log,
		handlers: make(map[string][]Handler),
		queues:   make(map[string]chan protocol.Envelope),
		closed:   make(chan struct{}),
	}

	pubOpts := *redisOpts
	pubOpts.OnConnect = func(_ context.Context, _ *redis.Conn) error {
		log.Info("bus publish connection ready")
		return nil
	}
	subOpts := *redisOpts
	subOpts.OnConnect = func(_ context.Context, _ *redis.Conn) error {
		log.Info("bus subscribe connection ready")
		return nil
	}

	c.pub = redis.NewClient(&pubOpts)
	c.sub = redis.NewClient(&subOpts)

	if err := c.pub.Ping(ctx).Err(); err != nil {
		_ = c.pub.Close()
		_ = c.sub.Close()
		return nil, fmt.Errorf("bus unreachable: %w", err)
	}

	// A PubSub with no channels yet; Subscribe adds them. go-redis
	// re-establishes the connection and its channel set after a drop, using
	// the retry backoff configured in parseOptions.
	c.pubsub = c.sub.Subscribe(ctx)

	c.wg.Add(1)
	go c.receiveLoop()

	log.Info("bus connected", "addr", redisOpts.Addr)
	return c, nil
}

// parseOptions turns Options into redis.Options with the reconnect schedule
// min(50·n, 2000) ms and no attempt cap.
func parseOptions(opts Options) (*redis.Options, error) {
	var redisOpts *redis.Options
	if isRedisURL(opts.URL) {
		parsed, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("parse bus url: %w", err)
		}
		redisOpts = parsed
	} else {
		redisOpts = &redis.Options{Addr: opts.URL}
	}
	if opts.Password != "" {
		redisOpts.Password = opts.Password
	}
	redisOpts.MaxRetries = -1 // command retries handled by Publish
	redisOpts.MinRetryBackoff = RetryBackoff(1)
	redisOpts.MaxRetryBackoff = RetryBackoff(1 << 16)
	return redisOpts, nil
}

func isRedisURL(s string) bool {
	return strings.HasPrefix(s, "redis://") || strings.HasPrefix(s, "rediss://") || strings.HasPrefix(s, "unix://")
}

// RetryBackoff returns the delay before reconnect or republish attempt n
// (1-based): min(50·n, 2000) milliseconds.
func RetryBackoff(attempt int) time.Duration {
	d := time.Duration(attempt) * 50 * time.Millisecond
	if d > 2*time.Second {
		return 2 * time.Second
	}
	return d
}

// Publish serialises the envelope and emits it on channel, retrying
// transient transport errors with the backoff schedule until the transport
// accepts the message, the context ends, or the client closes.
func (c *Client) Publish(ctx context.Context, channel string, env protocol.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	data, err := env.Encode()
	if err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		select {
		case <-c.closed:
			return ErrClosed
		default:
		}

		err := c.pub.Publish(ctx, channel, data).Err()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("publish to %s: %w", channel, ctx.Err())
		}

		wait := RetryBackoff(attempt)
		c.log.Warn("publish failed, retrying", "channel", channel, "attempt", attempt, "wait", wait, "err", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("publish to %s: %w", channel, ctx.Err())
		case <-c.closed:
			return ErrClosed
		case <-time.After(wait):
		}
	}
}

// Subscribe registers handler for inbound envelopes on channel. The first
// subscription for a channel starts its dispatch queue and joins the channel
// on the transport, retrying until success or Close.
func (c *Client) Subscribe(channel string, h Handler) error {
	c.mu.Lock()
	c.handlers[channel] = append(c.handlers[channel], h)
	_, known := c.queues[channel]
	if !known {
		q := make(chan protocol.Envelope, queueSize)
		c.queues[channel] = q
		c.wg.Add(1)
		go c.dispatchLoop(channel, q)
	}
	c.mu.Unlock()

	if known {
		return nil
	}

	for attempt := 1; ; attempt++ {
		err := c.pubsub.Subscribe(context.Background(), channel)
		if err == nil {
			c.log.Info("subscribed", "channel", channel)
			return nil
		}
		wait := RetryBackoff(attempt)
		c.log.Warn("subscribe failed, retrying", "channel", channel, "attempt", attempt, "wait", wait, "err", err)
		select {
		case <-c.closed:
			return ErrClosed
		case <-time.After(wait):
		}
	}
}

// receiveLoop reads raw messages off the subscriber connection and feeds the
// per-channel queues. Malformed payloads are logged and discarded; the
// sender is not notified (the bus is fire-and-forget).
func (c *Client) receiveLoop() {
	defer c.wg.Done()
	ch := c.pubsub.Channel()

	for {
		select {
		case <-c.closed:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			env, err := protocol.Decode([]byte(msg.Payload))
			if err != nil {
				c.log.Error("malformed envelope discarded", "channel", msg.Channel, "err", err)
				continue
			}

			c.mu.Lock()
			q := c.queues[msg.Channel]
			c.mu.Unlock()
			if q == nil {
				continue
			}

			select {
			case q <- env:
			case <-c.closed:
				return
			}
		}
	}
}

// dispatchLoop invokes the channel's handlers in delivery order.
func (c *Client) dispatchLoop(channel string, q <-chan protocol.Envelope) {
	defer c.wg.Done()
	for {
		select {
		case <-c.closed:
			return
		case env := <-q:
			c.mu.Lock()
			hs := make([]Handler, len(c.handlers[channel]))
			copy(hs, c.handlers[channel])
			c.mu.Unlock()
			for _, h := range hs {
				h(env)
			}
		}
	}
}

// LatencyProbe issues a round-trip PING on the publish connection.
func (c *Client) LatencyProbe(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := c.pub.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("bus ping: %w", err)
	}
	return time.Since(start), nil
}

// IsConnected reports whether the transport currently answers a short probe.
func (c *Client) IsConnected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.LatencyProbe(ctx)
	return err == nil
}

// Close releases both connections. Pending publishes fail with ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		if cerr := c.pubsub.Close(); cerr != nil {
			err = cerr
		}
		if cerr := c.pub.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if cerr := c.sub.Close(); cerr != nil && err == nil {
			err = cerr
		}
		c.wg.Wait()
		c.log.Info("bus closed")
	})
	return err
}
