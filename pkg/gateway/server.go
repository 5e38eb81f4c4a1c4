package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"hive/pkg/bus"
	"hive/pkg/protocol"
	"hive/pkg/store"
)

// System frame types sent to browser clients.
const (
	FrameWelcome   = "welcome"
	FrameAck       = "ack"
	FrameError     = "error"
	FrameHeartbeat = "heartbeat"
)

// SystemFrame is a gateway-originated control frame.
type SystemFrame struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id,omitempty"`
	Message  string `json:"message,omitempty"`
}

// BusFrame wraps a forwarded bus envelope for browser delivery.
type BusFrame struct {
	Channel   string            `json:"channel"`
	Data      protocol.Envelope `json:"data"`
	Timestamp time.Time         `json:"timestamp"`
}

// InboundMessage is what a browser client may send on the stream socket.
type InboundMessage struct {
	Content string `json:"content"`
	UserID  string `json:"user_id,omitempty"`
}

// Options configures the gateway server.
type Options struct {
	Port            int
	CORSOrigins     []string
	ForwardChannels []string
}

// Server is the message gateway.
type Server struct {
	opts  Options
	bus   bus.Bus
	store *store.Store
	log   *store.Logger
	hub   *Hub
	echo  *echo.Echo

	startTime time.Time
	upgrader  websocket.Upgrader
}

// NewServer wires the gateway against its dependencies. store may be nil;
// the bus path does not depend on it.
func NewServer(opts Options, b bus.Bus, st *store.Store, log *store.Logger) *Server {
	s := &Server{
		opts:      opts,
		bus:       b,
		store:     st,
		log:       log,
		hub:       NewHub(),
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(opts.CORSOrigins, r.Header.Get("Origin"))
			},
		},
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if len(opts.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: opts.CORSOrigins}))
	}
	e.GET("/api/health", s.handleHealth)
	e.GET("/stream", s.handleStream)
	s.echo = e
	return s
}

func originAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 || origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// Hub exposes the client set (for the health body and tests).
func (s *Server) Hub() *Hub { return s.hub }

// Handler exposes the HTTP handler so tests can serve it without binding
// the configured port.
func (s *Server) Handler() http.Handler { return s.echo }

// SubscribeForwards joins every forwarded bus channel. Called by Run;
// exposed so tests can wire forwarding without binding a listener.
func (s *Server) SubscribeForwards() error {
	for _, channel := range s.opts.ForwardChannels {
		ch := channel
		if err := s.bus.Subscribe(ch, func(env protocol.Envelope) {
			s.forward(ch, env)
		}); err != nil {
			return fmt.Errorf("subscribe %s: %w", ch, err)
		}
	}
	return nil
}

// Run subscribes the forwarded bus channels, serves HTTP until ctx is
// cancelled, then shuts the listener down with a bounded grace period.
func (s *Server) Run(ctx context.Context) error {
	if err := s.SubscribeForwards(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", s.opts.Port)
		s.log.Info("gateway listening", "addr", addr)
		errCh <- s.echo.Start(addr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("gateway shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway listen: %w", err)
		}
		return nil
	}
}

// forward wraps a bus envelope and fans it out to every open client.
func (s *Server) forward(channel string, env protocol.Envelope) {
	frame := BusFrame{Channel: channel, Data: env, Timestamp: time.Now().UTC()}
	if err := s.hub.BroadcastJSON(frame); err != nil {
		s.log.Error("broadcast failed", "channel", channel, "err", err)
	}
}

// handleStream upgrades the connection and runs the per-socket pumps.
func (s *Server) handleStream(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return err
	}

	client := s.hub.Add(ws)
	s.hub.SendJSON(client, SystemFrame{Type: FrameWelcome, ClientID: client.ID})
	client.setState(StateOpen)
	s.log.Info("client connected", "client_id", client.ID, "connections", s.hub.Count())

	go s.writePump(client)
	go s.readPump(client)
	return nil
}

// readPump reads client frames until the socket errors or closes.
func (s *Server) readPump(client *Client) {
	defer func() {
		final := StateClosed
		if client.State() == StateErrored {
			final = StateErrored
		}
		s.hub.Remove(client, final)
		_ = client.conn.Close()
		s.log.Info("client disconnected", "client_id", client.ID, "connections", s.hub.Count())
	}()

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				client.setState(StateErrored)
				s.log.Warn("websocket read error", "client_id", client.ID, "err", err)
			} else {
				client.setState(StateClosing)
			}
			return
		}
		s.handleInbound(client, data)
	}
}

// writePump drains the client's send queue and emits keep-alive frames.
// Exiting the pump always stops the heartbeat timer for this socket.
func (s *Server) writePump(client *Client) {
	ticker := time.NewTicker(heartbeatInterval)
	heartbeat, _ := json.Marshal(SystemFrame{Type: FrameHeartbeat})
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				client.setState(StateErrored)
				return
			}
		case <-ticker.C:
			if client.State() != StateOpen {
				return
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.TextMessage, heartbeat); err != nil {
				client.setState(StateErrored)
				return
			}
		}
	}
}

// handleInbound validates a client frame, stamps it, publishes it on the
// input channel, records it, and acks. Validation failures answer with an
// error frame; the connection stays open.
func (s *Server) handleInbound(client *Client, data []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.hub.SendJSON(client, SystemFrame{Type: FrameError, Message: "invalid JSON message"})
		return
	}
	if strings.TrimSpace(msg.Content) == "" {
		s.hub.SendJSON(client, SystemFrame{Type: FrameError, Message: "content is required"})
		return
	}

	userID := msg.UserID
	if userID == "" {
		userID = client.ID
	}

	env, err := protocol.New("gateway", protocol.AgentChatter, protocol.TypeQuestion, protocol.HumanInput{
		UserID:    userID,
		Content:   msg.Content,
		Timestamp: time.Now().UTC(),
		Source:    "websocket",
	})
	if err != nil {
		s.hub.SendJSON(client, SystemFrame{Type: FrameError, Message: "internal error"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.bus.Publish(ctx, protocol.ChannelHumanInput, env); err != nil {
		s.log.Error("publish human-input failed", "client_id", client.ID, "err", err)
		s.hub.SendJSON(client, SystemFrame{Type: FrameError, Message: "message could not be delivered"})
		return
	}

	s.store.RecordActivity(env)
	s.log.Info("human input accepted", "client_id", client.ID, "user_id", userID)
	s.hub.SendJSON(client, SystemFrame{Type: FrameAck})
}
