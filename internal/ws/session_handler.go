package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bubblefield/backend/internal/bubble"
)

// Client -> server payloads.
type HoverData struct {
	ID string `json:"id"`
}

type ResizeData struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type VisibilityData struct {
	Visible *bool `json:"visible"`
}

const commandTimeout = 2 * time.Second

// SessionHub is the single hub for all session streams.
var SessionHub *Hub

func init() {
	SessionHub = NewHub()
	go SessionHub.run()
}

// HandleWebSocket streams a session's frames and applies the viewer's input.
func HandleWebSocket(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session token required"})
		return
	}
	if bubble.Sessions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "simulator not ready"})
		return
	}

	s, err := bubble.Sessions.GetSession(token)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		SessionHub.log.Warn("upgrade error", zap.String("session", token), zap.Error(err))
		return
	}

	client := &Client{
		conn:         conn,
		hub:          SessionHub,
		session:      s,
		sessionToken: token,
		send:         make(chan []byte, sendBufferSize),
		log:          SessionHub.log.With(zap.String("session", token)),
	}

	SessionHub.register <- client
	bubble.Sessions.Touch(token)

	// first frame right away instead of waiting for the next broadcast
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	if snap, err := s.Snapshot(ctx); err == nil {
		if payload, err := encode(TypeFrame, snap); err == nil {
			client.enqueue(payload)
		}
	}
	cancel()

	go client.writePump()
	go client.readPump()
}

// run serializes room membership changes.
func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	token := client.sessionToken
	r, ok := h.rooms[token]
	if !ok {
		r = &room{clients: make(map[*Client]struct{}), stop: make(chan struct{})}
		r.unsubscribe = client.session.Subscribe(h.frameForwarder(token))
		h.rooms[token] = r
		go h.watchSession(token, client.session, r.stop)
	}
	r.clients[client] = struct{}{}
	client.log.Info("viewer connected", zap.Int("room_size", len(r.clients)))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.closeSend()
	r, ok := h.rooms[client.sessionToken]
	if !ok {
		return
	}
	if _, member := r.clients[client]; !member {
		return
	}
	delete(r.clients, client)
	client.log.Info("viewer disconnected", zap.Int("room_size", len(r.clients)))

	if len(r.clients) == 0 {
		r.unsubscribe()
		close(r.stop)
		delete(h.rooms, client.sessionToken)
	}
}

// watchSession tells the room when the session ends and closes every viewer.
func (h *Hub) watchSession(token string, s *bubble.Session, stop <-chan struct{}) {
	select {
	case <-stop:
		return
	case <-s.Done():
	}

	h.BroadcastToSession(token, TypeSessionClosed, ErrorData{Message: "session closed"})

	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[token]
	if !ok {
		return
	}
	for client := range r.clients {
		client.closeSend()
	}
	r.unsubscribe()
	delete(h.rooms, token)
}

// readPump reads viewer input until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		// a viewer that only watches still answers pings
		if bubble.Sessions != nil {
			bubble.Sessions.Touch(c.sessionToken)
		}
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("websocket closed unexpectedly", zap.Error(err))
			}
			break
		}

		if bubble.Sessions != nil {
			bubble.Sessions.Touch(c.sessionToken)
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError("Invalid message")
			continue
		}

		c.handleMessage(msg)
	}
}

// handleMessage applies one viewer command to the session.
func (c *Client) handleMessage(msg WSMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var err error
	switch msg.Type {
	case TypeHover:
		var data HoverData
		if jerr := json.Unmarshal(msg.Data, &data); jerr != nil || data.ID == "" {
			c.sendError("Invalid hover data")
			return
		}
		err = c.session.Hover(ctx, data.ID)

	case TypeUnhover:
		err = c.session.Hover(ctx, "")

	case TypeResize:
		var data ResizeData
		if jerr := json.Unmarshal(msg.Data, &data); jerr != nil {
			c.sendError("Invalid resize data")
			return
		}
		if data.Width < 0 || data.Height < 0 {
			c.sendError(bubble.ErrInvalidArenaSize.Error())
			return
		}
		err = c.session.Send(ctx, bubble.Resize{Width: data.Width, Height: data.Height})

	case TypeVisibility:
		var data VisibilityData
		if jerr := json.Unmarshal(msg.Data, &data); jerr != nil || data.Visible == nil {
			c.sendError("Invalid visibility data")
			return
		}
		err = c.session.Send(ctx, bubble.SetVisible{Visible: *data.Visible})

	default:
		c.sendError("Unknown message type")
		return
	}

	if err != nil {
		if !errors.Is(err, bubble.ErrUnknownBody) {
			c.log.Debug("command failed", zap.String("type", msg.Type), zap.Error(err))
		}
		c.sendError(err.Error())
	}
}
