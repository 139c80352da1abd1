package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jacklau/repopulse/internal/health"
	"github.com/jacklau/repopulse/internal/pubsub"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating
	// the connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping
	// frames. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins; apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to websocket clients.
type Message struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// Hub manages websocket client connections. On connect it sends the
// latest snapshot of every tracked repo, then streams each snapshot the
// pipeline publishes on the broker.
type Hub struct {
	health *health.Engine
	broker *pubsub.Broker[health.Snapshot]
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client represents one connected websocket client.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a Hub streaming snapshots from the given broker.
func NewHub(h *health.Engine, broker *pubsub.Broker[health.Snapshot], logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		health:  h,
		broker:  broker,
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// Run pumps broker snapshots to all connected clients until the context
// is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) error {
	updates := h.broker.Subscribe(ctx)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case snap, ok := <-updates:
			if !ok {
				h.closeAll()
				return nil
			}
			h.broadcast(snap)
		}
	}
}

func (h *Hub) broadcast(snap health.Snapshot) {
	data, err := json.Marshal(Message{Event: "snapshot", Data: snapshotResponse(snap)})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Drop for slow client
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// ServeHTTP upgrades the connection and sends the current snapshots
// immediately, then streams updates.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufSize)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	// Initial state: one snapshot message per tracked repo.
	for _, repo := range h.health.Repos() {
		if snap, ok := h.health.Latest(repo); ok {
			if data, err := json.Marshal(Message{Event: "snapshot", Data: snapshotResponse(snap)}); err == nil {
				select {
				case c.send <- data:
				default:
				}
			}
		}
	}

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound messages and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			close(c.send)
			delete(h.clients, c)
		}
		h.mu.Unlock()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
