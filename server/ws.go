package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oddsradar/backend/feed"
	"github.com/oddsradar/backend/telemetry"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum control message size allowed from peer
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS policy is enforced by the HTTP middleware; the upgrade
		// itself accepts any origin.
		return true
	},
}

// subKey identifies one feed subscription: surface name plus scope.
// The scope must match exactly; a global subscription never receives
// scoped rows and vice versa, mirroring the bulk-load symmetry.
type subKey struct {
	feed  string
	scope feed.Scope
}

// rowEnvelope is the wire form of one pushed row.
type rowEnvelope struct {
	Type string   `json:"type"`
	Feed string   `json:"feed"`
	Row  feed.Row `json:"row"`
}

// subscribeRequest is the control message clients send over the socket.
type subscribeRequest struct {
	Action string      `json:"action"` // "subscribe" or "unsubscribe"
	Feed   string      `json:"feed"`
	Scope  *feed.Scope `json:"scope"` // absent = global
}

// Hub fans inserted rows out to WebSocket subscribers and in-process
// listeners (the SSE tail). Each client holds its own subscription set;
// a slow client is dropped rather than allowed to stall the broadcast.
type Hub struct {
	log *slog.Logger

	mu        sync.RWMutex
	clients   map[*wsClient]struct{}
	listeners map[*listener]struct{}
}

// NewHub returns an empty hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:       log,
		clients:   make(map[*wsClient]struct{}),
		listeners: make(map[*listener]struct{}),
	}
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.Mutex
	subs map[subKey]struct{}
}

func (c *wsClient) subscribed(key subKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[key]
	return ok
}

// listener is an in-process subscriber (the SSE tail handler).
type listener struct {
	key subKey
	ch  chan feed.Row
}

// Listen registers an in-process subscriber for one feed/scope. The
// returned cancel func must be called to release it.
func (h *Hub) Listen(feedName string, scope feed.Scope) (<-chan feed.Row, func()) {
	l := &listener{key: subKey{feed: feedName, scope: scope}, ch: make(chan feed.Row, 64)}
	h.mu.Lock()
	h.listeners[l] = struct{}{}
	h.mu.Unlock()
	return l.ch, func() {
		h.mu.Lock()
		if _, ok := h.listeners[l]; ok {
			delete(h.listeners, l)
			close(l.ch)
		}
		h.mu.Unlock()
	}
}

// BroadcastRow pushes an inserted row to every subscriber of its feed and
// scope.
func (h *Hub) BroadcastRow(feedName string, row feed.Row) {
	key := subKey{feed: feedName, scope: row.Scope}
	payload, err := json.Marshal(rowEnvelope{Type: "row", Feed: feedName, Row: row})
	if err != nil {
		h.log.Error("failed to marshal row broadcast", slog.Any("err", err), slog.String("component", "ws"))
		return
	}

	h.mu.RLock()
	var stale []*wsClient
	for c := range h.clients {
		if !c.subscribed(key) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			stale = append(stale, c)
		}
	}
	for l := range h.listeners {
		if l.key != key {
			continue
		}
		select {
		case l.ch <- row:
		default:
			// listener not draining; drop the row rather than block
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.log.Warn("dropping slow websocket client", slog.String("component", "ws"))
		h.remove(c)
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats summarizes current subscriptions per feed surface, counting both
// websocket subscriptions and SSE listeners.
func (h *Hub) Stats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int)
	for c := range h.clients {
		c.mu.Lock()
		for key := range c.subs {
			out[key.feed]++
		}
		c.mu.Unlock()
	}
	for l := range h.listeners {
		out[l.key.feed]++
	}
	return out
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	telemetry.SetWSClients(n)
	h.log.Info("websocket client connected", slog.Int("client_count", n), slog.String("component", "ws"))
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	_ = c.conn.Close()
	telemetry.SetWSClients(n)
	h.log.Info("websocket client disconnected", slog.Int("client_count", n), slog.String("component", "ws"))
}

// ServeWS upgrades the request and runs the client pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slog.Any("err", err), slog.String("component", "ws"))
		return
	}
	c := &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
		subs: make(map[subKey]struct{}),
	}
	h.add(c)
	go c.writePump()
	go c.readPump()
}

// readPump consumes subscribe/unsubscribe control messages until the
// connection dies.
func (c *wsClient) readPump() {
	defer c.hub.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("websocket read error", slog.Any("err", err), slog.String("component", "ws"))
			}
			return
		}
		var req subscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.hub.log.Debug("invalid subscribe message", slog.Any("err", err), slog.String("component", "ws"))
			continue
		}
		c.handleSubscribe(req)
	}
}

func (c *wsClient) handleSubscribe(req subscribeRequest) {
	if _, ok := feedByName(req.Feed); !ok {
		c.reply(map[string]any{"type": "error", "error": "unknown feed: " + req.Feed})
		return
	}
	scope := feed.Global()
	if req.Scope != nil {
		scope = *req.Scope
	}
	key := subKey{feed: req.Feed, scope: scope}

	c.mu.Lock()
	switch req.Action {
	case "subscribe":
		c.subs[key] = struct{}{}
	case "unsubscribe":
		delete(c.subs, key)
	}
	c.mu.Unlock()

	c.reply(map[string]any{
		"type":  req.Action + "_confirmed",
		"feed":  req.Feed,
		"scope": scope,
	})
}

func (c *wsClient) reply(data map[string]any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// writePump drains the send queue to the socket and keeps the connection
// alive with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
