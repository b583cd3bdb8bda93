package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bubblefield/backend/internal/bubble"
	"github.com/bubblefield/backend/internal/catalog"
	"github.com/bubblefield/backend/internal/logging"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, bubble.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, bubble.ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.Is(err, bubble.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, bubble.ErrInvalidArenaSize),
		errors.Is(err, bubble.ErrUnknownBody),
		errors.Is(err, catalog.ErrInvalidCatalog):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": ...}. Internal errors are logged and hidden.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Named("api").Error("request failed",
			zap.String("route", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// sessions returns the global manager or answers 503.
func sessions(c *gin.Context) (*bubble.Manager, bool) {
	if bubble.Sessions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "simulator not ready"})
		return nil, false
	}
	return bubble.Sessions, true
}

// bindOptionalJSON binds the body when there is one.
func bindOptionalJSON(c *gin.Context, obj interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(obj)
}
