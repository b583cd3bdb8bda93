package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bubblefield/backend/internal/bubble"
	"github.com/bubblefield/backend/internal/config"
)

// GetConfig returns the values the renderer needs to draw frames
func GetConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		settings := *cfg
		if bubble.Sessions != nil {
			settings = bubble.Sessions.Config()
		}
		c.JSON(http.StatusOK, gin.H{
			"frame_rate_hz":          settings.FrameRateHz,
			"broadcast_every_frames": settings.BroadcastEveryFrames,
			"default_arena_width":    settings.DefaultArenaWidth,
			"default_arena_height":   settings.DefaultArenaHeight,
			"radius":                 bubble.DefaultRadius,
			"hover_radius":           bubble.HoverRadius,
			"border_width":           bubble.BorderWidth,
		})
	}
}
