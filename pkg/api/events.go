package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sipeed/wabridge/pkg/bus"
	"github.com/sipeed/wabridge/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // auth is via token
	},
}

// subscriber is one websocket client. An empty filter receives everything.
type subscriber struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	filter map[string]bool
}

func (c *subscriber) wants(evt bus.BusEvent) bool {
	return len(c.filter) == 0 || c.filter[evt.Type]
}

// Hub fans bus observer events out to websocket subscribers.
type Hub struct {
	msgBus     *bus.MessageBus
	register   chan *subscriber
	unregister chan *subscriber
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*subscriber]struct{}
}

func NewHub(msgBus *bus.MessageBus) *Hub {
	return &Hub{
		msgBus:     msgBus,
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		done:       make(chan struct{}),
		clients:    make(map[*subscriber]struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	events := h.msgBus.Subscribe()
	defer h.msgBus.Unsubscribe(events)

	for {
		select {
		case <-ctx.Done():
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
			logger.DebugC("api", "Event stream client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			logger.DebugC("api", "Event stream client disconnected")

		case evt, ok := <-events:
			if !ok {
				return
			}
			h.broadcast(evt)
		}
	}
}

func (h *Hub) broadcast(evt bus.BusEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		logger.WarnCF("api", "Failed to encode stream event", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(evt) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// slow client, drop
		}
	}
}

// ServeWS upgrades the request. ?type=state,webhook narrows the stream.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	filter := make(map[string]bool)
	for _, t := range strings.Split(r.URL.Query().Get("type"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter[t] = true
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.ErrorCF("api", "WebSocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	c := &subscriber{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 64),
		filter: filter,
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump only drains control frames; clients never send data.
func (c *subscriber) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
