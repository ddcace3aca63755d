package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	channelOrders = "orders"
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins (CORS handled by main server)
		return true
	},
}

// funderChannel is the per-wallet order channel, "orders:<lowercase funder>".
func funderChannel(funder string) string {
	return channelOrders + ":" + strings.ToLower(funder)
}

// Hub maintains active WebSocket connections and fans out order events
type Hub struct {
	clients    map[*subscriber]bool
	register   chan *subscriber
	unregister chan *subscriber
	done       chan struct{}
	mu         sync.RWMutex
	logger     *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:    make(map[*subscriber]bool),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run owns registration until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debugw("ws_client_connected", "client", c.id, "total", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debugw("ws_client_disconnected", "client", c.id, "total", n)

		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// BroadcastToChannel sends data to every client subscribed to any of the
// channels, once per client. Slow clients miss messages rather than block
// the caller.
func (h *Hub) BroadcastToChannel(data any, channels ...string) {
	message, err := json.Marshal(data)
	if err != nil {
		h.logger.Warnw("ws_marshal_failed", "channels", channels, "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.subscribedToAny(channels) {
			continue
		}
		select {
		case c.send <- message:
		default:
			h.logger.Debugw("ws_message_dropped", "client", c.id)
		}
	}
}

// PublishOrder sends ev to "orders" and to the funder's own channel.
func (h *Hub) PublishOrder(ev OrderPlacedEvent) {
	h.BroadcastToChannel(ev, channelOrders, funderChannel(ev.Funder))
}

// subscriber represents a WebSocket connection
type subscriber struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	subscriptions map[string]bool
	subsMu        sync.RWMutex
}

func (c *subscriber) subscribedToAny(channels []string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	for _, ch := range channels {
		if c.subscriptions[ch] {
			return true
		}
	}
	return false
}

func (c *subscriber) Subscribe(channel string) {
	c.subsMu.Lock()
	c.subscriptions[normalizeChannel(channel)] = true
	c.subsMu.Unlock()
}

func (c *subscriber) Unsubscribe(channel string) {
	c.subsMu.Lock()
	delete(c.subscriptions, normalizeChannel(channel))
	c.subsMu.Unlock()
}

func normalizeChannel(channel string) string {
	return strings.ToLower(strings.TrimSpace(channel))
}

// ack queues a confirmation; it is dropped if the client is not reading.
func (c *subscriber) ack(kind string, channels []string) {
	msg, _ := json.Marshal(WSAck{Type: kind, Channels: channels})
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// readPump handles subscription requests until the connection closes
func (c *subscriber) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debugw("ws_read_failed", "client", c.id, "err", err)
			}
			return
		}

		var req WSSubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.hub.logger.Debugw("ws_invalid_message", "client", c.id, "err", err)
			continue
		}

		switch req.Op {
		case "subscribe":
			for _, channel := range req.Channels {
				c.Subscribe(channel)
			}
			c.ack("subscribed", req.Channels)
		case "unsubscribe":
			for _, channel := range req.Channels {
				c.Unsubscribe(channel)
			}
			c.ack("unsubscribed", req.Channels)
		default:
			c.hub.logger.Debugw("ws_unknown_op", "client", c.id, "op", req.Op)
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *subscriber) writePump() {
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
				// Hub closed the channel
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

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debugw("ws_upgrade_failed", "err", err)
		return
	}

	c := &subscriber{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, 256),
		id:            requestIDFrom(r.Context()),
		subscriptions: make(map[string]bool),
	}

	select {
	case c.hub.register <- c:
	case <-c.hub.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
