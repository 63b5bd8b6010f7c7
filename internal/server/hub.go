package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quantops/sentinel/internal/alerting"
)

// streamClient is one websocket subscriber with an optional severity floor.
type streamClient struct {
	conn        *websocket.Conn
	send        chan []byte
	minSeverity alerting.Severity
}

// Hub fans alert lifecycle events out to websocket subscribers. Slow
// clients drop messages rather than stall the broadcast.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	register   chan *streamClient
	unregister chan *streamClient
	broadcast  chan alerting.Event

	mu      sync.RWMutex
	clients map[*streamClient]struct{}

	stopCh  chan struct{}
	stopped sync.Once
}

// NewHub starts the broadcast loop.
func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		broadcast:  make(chan alerting.Event, 256),
		clients:    make(map[*streamClient]struct{}),
		stopCh:     make(chan struct{}),
	}
	go h.run()
	return h
}

// Publish implements the lifecycle event contract. A full broadcast buffer
// drops the event; the stream is a live feed, not a durable log.
func (h *Hub) Publish(ctx context.Context, event alerting.Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Alert stream backlogged, dropping event",
			zap.String("type", string(event.Type)))
	}
}

// Close stops the broadcast loop and disconnects all clients.
func (h *Hub) Close() {
	h.stopped.Do(func() { close(h.stopCh) })
}

func (h *Hub) run() {
	for {
		select {
		case <-h.stopCh:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("Failed to encode stream event", zap.Error(err))
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				if c.minSeverity != "" && event.Alert != nil &&
					event.Alert.Severity.Rank() < c.minSeverity.Rank() {
					continue
				}
				select {
				case c.send <- data:
				default:
					// drop for slow client
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ServeWS upgrades the request and streams events until the client goes
// away. A min_severity query parameter filters the feed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	c := &streamClient{
		conn: conn,
		send: make(chan []byte, 64),
	}
	if min := alerting.Severity(r.URL.Query().Get("min_severity")); min.Valid() {
		c.minSeverity = min
	}

	select {
	case h.register <- c:
	case <-h.stopCh:
		// hub already shut down; the subscriber is turned away
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump(h)
}

func (c *streamClient) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.stopCh:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
