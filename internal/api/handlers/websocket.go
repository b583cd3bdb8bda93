package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/bubblefield/backend/internal/ws"
)

// HandleSessionWebSocket streams frames for the session named in the path
func HandleSessionWebSocket() gin.HandlerFunc {
	return ws.HandleWebSocket
}
