// Package ws streams committed program events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool
	mu   sync.RWMutex
}

// subscribeMsg changes a client's channels. Channels are domain.ChannelEvents
// for everything or domain.ChannelMarketPrefix+<id> for one market.
type subscribeMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// envelope is every frame sent to clients.
type envelope struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Payload any    `json:"payload"`
}

// Hub fans events out to connected clients. It is fed either by a
// SignalBus subscription (Run with a bus) or directly as an executor
// event sink.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan domain.Event
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        domain.SignalBus
	mu         sync.RWMutex
	logger     *slog.Logger
	mode       string
	startedAt  time.Time
}

// NewHub creates a Hub. bus may be nil.
func NewHub(bus domain.SignalBus, mode string, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan domain.Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws")),
		mode:       mode,
		startedAt:  time.Now().UTC(),
	}
}

// PublishEvents queues committed events for delivery. It drops events when
// the hub is saturated rather than stall the executor.
func (h *Hub) PublishEvents(_ context.Context, events []domain.Event) error {
	for _, ev := range events {
		select {
		case h.broadcast <- ev:
		default:
			h.logger.Warn("ws: broadcast queue full, dropping event", slog.String("event", ev.ID))
		}
	}
	return nil
}

// Run is the hub loop. It exits when ctx is done; connections arriving
// afterwards are closed immediately.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	if h.bus != nil {
		go h.follow(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))

		case ev := <-h.broadcast:
			h.deliver(ev)
		}
	}
}

func (h *Hub) deliver(ev domain.Event) {
	channels := []string{domain.ChannelEvents}
	if ev.MarketID != "" {
		channels = append(channels, domain.ChannelMarketPrefix+ev.MarketID)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		ch, ok := c.match(channels)
		if !ok {
			continue
		}
		msg, err := json.Marshal(envelope{Type: "event", Channel: ch, Payload: ev})
		if err != nil {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("ws: dropping message for slow client")
		}
	}
}

// join hands c to the hub loop. It reports false once the loop has exited.
func (h *Hub) join(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave hands c back to the hub loop unless it has already exited.
func (h *Hub) leave(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// follow relays the bus event channel into the hub until ctx is done.
func (h *Hub) follow(ctx context.Context) {
	msgs, err := h.bus.Subscribe(ctx, domain.ChannelEvents)
	if err != nil {
		h.logger.Error("ws: failed to subscribe to events",
			slog.String("error", err.Error()),
		)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: event subscription closed")
				return
			}
			var ev domain.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				h.logger.Warn("ws: bad event payload", slog.String("error", err.Error()))
				continue
			}
			select {
			case h.broadcast <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request. A ?market=<id> query subscribes to that
// market only; otherwise the client receives every event.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}
	if id := r.URL.Query().Get("market"); id != "" {
		c.subs[domain.ChannelMarketPrefix+id] = true
	} else {
		c.subs[domain.ChannelEvents] = true
	}

	if !h.join(c) {
		conn.Close()
		return
	}
	c.sendHello()
	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			if validChannel(ch) {
				c.subs[ch] = true
			}
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
}

func validChannel(ch string) bool {
	return ch == domain.ChannelEvents ||
		(strings.HasPrefix(ch, domain.ChannelMarketPrefix) && len(ch) > len(domain.ChannelMarketPrefix))
}

// match returns the first of channels the client listens on.
func (c *client) match(channels []string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range channels {
		if c.subs[ch] {
			return ch, true
		}
	}
	return "", false
}

func (c *client) sendHello() {
	c.mu.RLock()
	subs := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		subs = append(subs, ch)
	}
	c.mu.RUnlock()

	msg, err := json.Marshal(envelope{Type: "hello", Payload: map[string]any{
		"mode":           c.hub.mode,
		"uptime_seconds": int64(time.Since(c.hub.startedAt).Seconds()),
		"channels":       subs,
	}})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
