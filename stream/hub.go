// Package stream broadcasts simulation notifications to websocket viewers.
//
// Hub implements rules.Observer. Notifications are buffered while a tick is
// resolved and sent as one frame per tick when Flush is called, so viewers
// never see a half-resolved tick.
package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brensch/runger/game"
	"github.com/brensch/runger/rules"
)

const (
	sendBuffer   = 64
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Event is the wire form of a rules.Notification.
type Event struct {
	Turn     int32  `json:"turn"`
	Kind     string `json:"kind"`
	Player   int32  `json:"player"`
	X        int32  `json:"x"`
	Y        int32  `json:"y"`
	Facing   string `json:"facing,omitempty"`
	Occupant string `json:"occupant"`
	Status   string `json:"status,omitempty"`
}

// Frame is one websocket message.
type Frame struct {
	Type       string  `json:"type"` // "tick" or "summary"
	Generation string  `json:"generation"`
	Turn       int32   `json:"turn"`
	Alive      int     `json:"alive,omitempty"`
	Events     []Event `json:"events,omitempty"`
	Summary    any     `json:"summary,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	pending []Event
	dropped int
	closed  bool
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// Notify buffers a notification until the next Flush.
func (h *Hub) Notify(n rules.Notification) {
	ev := Event{
		Turn:     n.Turn,
		Kind:     n.Kind.String(),
		Player:   n.Player,
		X:        n.Pos.X,
		Y:        n.Pos.Y,
		Occupant: n.Occupant.Kind.String(),
	}
	if n.Player >= 0 {
		ev.Facing = n.Facing.String()
		ev.Status = n.Status.String()
	}
	h.mu.Lock()
	h.pending = append(h.pending, ev)
	h.mu.Unlock()
}

// Flush sends the buffered notifications as one tick frame.
func (h *Hub) Flush(generation string, state *game.State, turn int32) {
	h.mu.Lock()
	events := h.pending
	h.pending = nil
	h.mu.Unlock()

	frame := Frame{Type: "tick", Generation: generation, Turn: turn, Events: events}
	if state != nil {
		frame.Alive = state.AliveCount()
	}
	h.Publish(frame)
}

// Publish encodes frame and queues it for every client. Clients whose send
// buffer is full miss the frame.
func (h *Hub) Publish(frame Frame) {
	b, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("encode frame", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.dropped++
		}
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped counts frames not delivered to slow clients.
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("viewer connected", "remote", r.RemoteAddr)

	go h.writeLoop(c)
	go h.readLoop(c, r.RemoteAddr)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// readLoop discards client messages and detects disconnects.
func (h *Hub) readLoop(c *client, remote string) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
		h.logger.Info("viewer disconnected", "remote", remote)
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
