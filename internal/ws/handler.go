package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bubblefield/backend/internal/bubble"
	"github.com/bubblefield/backend/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Server -> client message types.
const (
	TypeFrame         = "frame"
	TypeCatalogReset  = "catalog_reset"
	TypeSessionClosed = "session_closed"
	TypeError         = "error"
)

// Client -> server message types.
const (
	TypeHover      = "hover"
	TypeUnhover    = "unhover"
	TypeResize     = "resize"
	TypeVisibility = "visibility"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origins are checked by middleware.WebSocketCORSCheck before the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client represents a connected WebSocket client
type Client struct {
	conn         *websocket.Conn
	hub          *Hub
	session      *bubble.Session
	sessionToken string
	send         chan []byte
	log          *zap.Logger

	mu     sync.Mutex
	closed bool
}

// room is the set of clients watching one session.
type room struct {
	clients     map[*Client]struct{}
	unsubscribe func()
	stop        chan struct{} // closed when the room empties before the session ends
}

// Hub maintains the set of active clients
type Hub struct {
	rooms      map[string]*room // session token -> room
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	log        *zap.Logger
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]*room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        logging.Named("ws"),
	}
}

// WSMessage is the envelope of every message in both directions.
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ErrorData is the payload of an error message.
type ErrorData struct {
	Message string `json:"message"`
}

// encode wraps data in an envelope of the given type.
func encode(typ string, data interface{}) ([]byte, error) {
	msg := WSMessage{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return json.Marshal(msg)
}

// BroadcastToSession sends a message to every client watching a session
func (h *Hub) BroadcastToSession(token, typ string, data interface{}) {
	payload, err := encode(typ, data)
	if err != nil {
		h.log.Error("failed to encode message", zap.String("type", typ), zap.Error(err))
		return
	}
	h.broadcastRaw(token, payload)
}

func (h *Hub) broadcastRaw(token string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.rooms[token]
	if !ok {
		return
	}
	for client := range r.clients {
		if !client.enqueue(payload) {
			client.log.Debug("send buffer full, dropping message")
		}
	}
}

// RoomSize returns the number of clients watching a session.
func (h *Hub) RoomSize(token string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[token]; ok {
		return len(r.clients)
	}
	return 0
}

// enqueue queues a message without blocking. Returns false when the buffer is
// full or the client is gone.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend closes the outgoing queue once; writePump then sends a close frame.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump writes messages to the WebSocket connection
func (c *Client) writePump() {
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
				// best effort; the peer may already be gone
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("websocket write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("websocket ping error", zap.Error(err))
				return
			}
		}
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(message string) {
	payload, err := encode(TypeError, ErrorData{Message: message})
	if err != nil {
		return
	}
	c.enqueue(payload)
}

// frameForwarder returns the session subscriber that fans frames out to the
// room. It runs on the session goroutine, so it only encodes and enqueues.
func (h *Hub) frameForwarder(token string) func(bubble.Frame) {
	return func(f bubble.Frame) {
		if f.Reset {
			h.BroadcastToSession(token, TypeCatalogReset, map[string]interface{}{"bodies": len(f.Snapshot.Bodies)})
		}
		h.BroadcastToSession(token, TypeFrame, f.Snapshot)
	}
}
