// Package feed streams routed messages to staff dashboards over WebSocket.
package feed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"frontdesk/internal/bus"
	"frontdesk/internal/domain"
)

const writeTimeout = 5 * time.Second

// Message is the JSON frame pushed to clients.
type Message struct {
	Type    string                `json:"type"` // "status" | "pong" | "message.routed"
	Content string                `json:"content,omitempty"`
	BatchID string                `json:"batch_id,omitempty"`
	Routed  *domain.RoutedMessage `json:"routed,omitempty"`
}

// Gauge tracks connected clients. *metrics.Metrics implements it.
type Gauge interface {
	FeedClients(n int)
}

// Config configures a Hub.
type Config struct {
	AllowedOrigins []string // empty allows any origin
	History        *bus.EventBus
	Metrics        Gauge
	Logger         *slog.Logger
}

// Hub keeps the connected clients and fans routed events out to them.
type Hub struct {
	upgrader websocket.Upgrader
	history  *bus.EventBus
	metrics  Gauge
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn        *websocket.Conn
	minPriority domain.Priority
	channel     domain.Channel
	mu          sync.Mutex
}

// NewHub creates a Hub.
func NewHub(cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &Hub{
		history: cfg.History,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		clients: make(map[*client]struct{}),
	}
	origins := cfg.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(origins) == 0 || slices.Contains(origins, "*") {
				return true
			}
			return slices.Contains(origins, r.Header.Get("Origin"))
		},
	}
	return h
}

// ServeHTTP upgrades the connection. Query parameters: priority (minimum
// priority to receive), channel (only this channel), since (RFC 3339; replays
// routed messages from the bus history).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c := &client{minPriority: domain.PriorityNormal}
	if v := q.Get("priority"); v != "" {
		p, ok := domain.ParsePriority(v)
		if !ok {
			http.Error(w, fmt.Sprintf("unknown priority %q", v), http.StatusBadRequest)
			return
		}
		c.minPriority = p
	}
	if v := q.Get("channel"); v != "" {
		ch, err := domain.ParseChannel(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c.channel = ch
	}
	var since time.Time
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "since must be RFC 3339", http.StatusBadRequest)
			return
		}
		since = t
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("feed upgrade failed", "err", err)
		return
	}
	c.conn = conn

	c.send(Message{Type: "status", Content: "connected"})
	if !since.IsZero() && h.history != nil {
		for _, e := range h.history.Replay(bus.EventMessageRouted, since) {
			if c.wants(e) {
				c.send(routedFrame(e))
			}
		}
	}

	n := h.add(c)
	h.logger.Info("feed client connected", "remote", r.RemoteAddr, "clients", n)

	defer func() {
		n := h.remove(c)
		conn.Close()
		h.logger.Info("feed client disconnected", "remote", r.RemoteAddr, "clients", n)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("feed read error", "err", err)
			}
			return
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		if m.Type == "ping" {
			c.send(Message{Type: "pong"})
		}
	}
}

func (h *Hub) add(c *client) int {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.gauge(n)
	return n
}

func (h *Hub) remove(c *client) int {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	h.gauge(n)
	return n
}

func (h *Hub) gauge(n int) {
	if h.metrics != nil {
		h.metrics.FeedClients(n)
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast pushes a routed-message event to every interested client. It is a
// bus.EventHandler; other event types are ignored.
func (h *Hub) Broadcast(e bus.Event) {
	if e.Type != bus.EventMessageRouted || e.Routed == nil {
		return
	}
	frame := routedFrame(e)

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c.wants(e) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(frame); err != nil {
			h.logger.Debug("feed write failed", "err", err)
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close()
		delete(h.clients, c)
	}
	h.gauge(0)
}

func routedFrame(e bus.Event) Message {
	return Message{Type: bus.EventMessageRouted, BatchID: e.BatchID, Routed: e.Routed}
}

func (c *client) wants(e bus.Event) bool {
	if e.Routed == nil {
		return false
	}
	if c.channel != "" && e.Routed.Message.Channel != c.channel {
		return false
	}
	return e.Routed.Priority.Rank() >= c.minPriority.Rank()
}

func (c *client) send(m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
