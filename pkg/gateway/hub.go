// Package gateway bridges browser WebSocket clients, the bus, the activity
// log, and a health surface. The hub owns the client set; the server owns
// the HTTP endpoints and the per-socket pumps.
package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// SocketState tracks a client through its lifecycle. Transitions out of
// Open always remove the socket from the broadcast set.
type SocketState int

// Socket states.
const (
	StateConnecting SocketState = iota
	StateOpen
	StateClosing
	StateErrored
	StateClosed
)

// sendBuffer is the per-client outbound queue depth. A client that cannot
// drain it is dropped rather than allowed to stall the broadcast path.
const sendBuffer = 256

// Client is one connected WebSocket peer.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte

	mu    sync.Mutex
	state SocketState
}

// State returns the client's current lifecycle state.
func (c *Client) State() SocketState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s SocketState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Hub manages the set of connected clients and fan-out delivery.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Add registers a new client with a freshly minted ID. The client starts in
// Connecting; the server marks it Open once the welcome frame is out.
func (h *Hub) Add(conn *websocket.Conn) *Client {
	c := &Client{
		ID:    uuid.NewString(),
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		state: StateConnecting,
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	return c
}

// Remove transitions the client to its terminal state and drops it from the
// broadcast set. Safe to call more than once.
func (h *Hub) Remove(c *Client, final SocketState) {
	h.mu.Lock()
	_, present := h.clients[c.ID]
	delete(h.clients, c.ID)
	h.mu.Unlock()

	c.setState(final)
	if present {
		close(c.send)
	}
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues data to every client in the Open state. The read lock is
// held across the sends so Remove cannot close a send channel mid-fanout;
// clients whose buffer is full are skipped, their own pump closes them.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		if c.State() != StateOpen {
			continue
		}
		select {
		case c.send <- data:
		default:
		}
	}
}

// BroadcastJSON marshals v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// Send queues data to a single client. Returns false when the buffer is
// full or the client has been removed.
func (h *Hub) Send(c *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c.ID]; !ok {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// SendJSON marshals v and queues it to a single client.
func (h *Hub) SendJSON(c *Client, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return h.Send(c, data)
}

// heartbeatInterval is how often each open socket receives a keep-alive
// frame.
const heartbeatInterval = 30 * time.Second
