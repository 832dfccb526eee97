package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// Surface replies are small; frames only flow outbound.
	maxMessageSize = 64 * 1024
)

type messageKind int

const (
	jsonMessage messageKind = iota
	binaryMessage
)

type message struct {
	kind messageKind
	data []byte
}

// hub fans messages out to every connected websocket client.
type hub struct {
	name      string
	logger    *slog.Logger
	onMessage func([]byte)

	clients    map[*client]struct{}
	broadcast  chan message
	register   chan *client
	unregister chan *client
	done       chan struct{}

	mu sync.RWMutex
}

func newHub(name string, logger *slog.Logger) *hub {
	return &hub{
		name:       name,
		logger:     logger,
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

func (h *hub) run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.debug("client connected", "clients", count)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.debug("client disconnected", "clients", count)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
					h.debug("dropped slow client")
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *hub) publish(msg message) {
	select {
	case h.broadcast <- msg:
	default:
		h.debug("broadcast queue full; message dropped")
	}
}

// BroadcastJSON encodes v and queues it for every client.
func (h *hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.publish(message{kind: jsonMessage, data: data})
	return nil
}

func (h *hub) broadcastBinary(data []byte) {
	h.publish(message{kind: binaryMessage, data: data})
}

// ClientCount returns the number of connected clients.
func (h *hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) debug(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Debug(msg, append([]any{"hub", h.name}, args...)...)
	}
}

// client is one websocket connection with its own write pump.
type client struct {
	hub  *hub
	conn *websocket.Conn
	send chan message
}

// serve registers conn and blocks until it closes. initial is queued
// before any broadcast reaches the client.
func (h *hub) serve(conn *websocket.Conn, initial ...message) {
	c := &client{hub: h, conn: conn, send: make(chan message, 64)}
	for _, msg := range initial {
		c.send <- msg
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	c.readPump()
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind == websocket.TextMessage && c.hub.onMessage != nil {
			c.hub.onMessage(data)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			wsType := websocket.TextMessage
			if msg.kind == binaryMessage {
				wsType = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(wsType, msg.data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
