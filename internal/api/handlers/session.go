package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bubblefield/backend/internal/bubble"
	"github.com/bubblefield/backend/internal/logging"
)

const requestTimeout = 2 * time.Second

// CreateSession starts a simulation for the caller's arena
func CreateSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := sessions(c)
		if !ok {
			return
		}

		var req struct {
			Width  float64 `json:"width"`
			Height float64 `json:"height"`
		}
		if err := bindOptionalJSON(c, &req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request. Width and height must be numbers."})
			return
		}

		s, err := m.CreateSession(req.Width, req.Height)
		if err != nil {
			respondError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		snap, err := s.Snapshot(ctx)
		if err != nil {
			respondError(c, err)
			return
		}

		c.Header("X-Session-Token", s.Token)
		c.JSON(http.StatusCreated, gin.H{
			"token":    s.Token,
			"status":   s.Status(),
			"snapshot": snap,
		})
	}
}

// GetSession returns the latest snapshot. Sessions owned by another instance
// are answered from the Redis snapshot cache.
func GetSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := sessions(c)
		if !ok {
			return
		}
		token := c.Param("token")

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		s, err := m.GetSession(token)
		if err != nil {
			snap, cerr := m.CachedSnapshot(ctx, token)
			if cerr != nil {
				respondError(c, cerr)
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token, "cached": true, "snapshot": snap})
			return
		}

		snap, err := s.Snapshot(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "status": s.Status(), "snapshot": snap})
	}
}

// SetHover flags one body as hovered
func SetHover() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			ID string `json:"id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Body id is required"})
			return
		}
		hover(c, req.ID)
	}
}

// ClearHover releases the hovered body
func ClearHover() gin.HandlerFunc {
	return func(c *gin.Context) {
		hover(c, "")
	}
}

func hover(c *gin.Context, id string) {
	m, ok := sessions(c)
	if !ok {
		return
	}
	token := c.Param("token")
	s, err := m.GetSession(token)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	if err := s.Hover(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	m.Touch(token)
	c.JSON(http.StatusOK, gin.H{"ok": true, "hovered": id})
}

// ResizeArena reports a new arena size to the session
func ResizeArena() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Width  *float64 `json:"width" binding:"required"`
			Height *float64 `json:"height" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Width and height are required"})
			return
		}
		if *req.Width < 0 || *req.Height < 0 {
			respondError(c, bubble.ErrInvalidArenaSize)
			return
		}
		command(c, bubble.Resize{Width: *req.Width, Height: *req.Height})
	}
}

// SetVisibility pauses or resumes the frame loop
func SetVisibility() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Visible *bool `json:"visible" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Visible is required"})
			return
		}
		command(c, bubble.SetVisible{Visible: *req.Visible})
	}
}

// command queues a fire-and-forget command for the session in the path.
func command(c *gin.Context, cmd any) {
	m, ok := sessions(c)
	if !ok {
		return
	}
	token := c.Param("token")
	s, err := m.GetSession(token)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	if err := s.Send(ctx, cmd); err != nil {
		respondError(c, err)
		return
	}
	m.Touch(token)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// CloseSession stops a session. A session owned by another instance is closed
// there via the events channel.
func CloseSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := sessions(c)
		if !ok {
			return
		}
		token := c.Param("token")

		err := m.CloseSession(token)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"ok": true})
			return
		}
		if !errors.Is(err, bubble.ErrSessionNotFound) {
			respondError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		if _, cerr := m.CachedSnapshot(ctx, token); cerr != nil {
			respondError(c, err)
			return
		}
		ev := bubble.Event{Type: bubble.EventSessionClosed, Token: token, Message: "closed by client"}
		if perr := m.PublishEvent(ctx, ev); perr != nil {
			logging.Named("api").Warn("failed to forward session close", zap.String("session", token), zap.Error(perr))
			respondError(c, perr)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"ok": true, "forwarded": true})
	}
}
