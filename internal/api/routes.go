package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/bubblefield/backend/internal/api/handlers"
	"github.com/bubblefield/backend/internal/config"
	"github.com/bubblefield/backend/internal/logging"
	"github.com/bubblefield/backend/internal/middleware"
)

// SetupRoutes configures all API routes. db may be nil; routes that need it
// answer 503.
func SetupRoutes(router *gin.Engine, db *sqlx.DB, cfg *config.Config) {
	router.Use(middleware.CORSMiddleware(cfg))

	// No-cache must come before any handler writes in development
	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
		})
		logging.Named("api").Debug("no-cache headers enabled for all routes")
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck)
		v1.GET("/config", handlers.GetConfig(cfg))
		v1.GET("/catalog", handlers.GetCatalog())

		sessions := v1.Group("/sessions")
		{
			sessions.POST("", handlers.CreateSession())
			sessions.GET("/:token", handlers.GetSession())
			sessions.DELETE("/:token", handlers.CloseSession())
			sessions.PUT("/:token/hover", handlers.SetHover())
			sessions.DELETE("/:token/hover", handlers.ClearHover())
			sessions.PUT("/:token/arena", handlers.ResizeArena())
			sessions.PUT("/:token/visibility", handlers.SetVisibility())
			sessions.GET("/:token/ws", middleware.WebSocketCORSCheck(cfg), handlers.HandleSessionWebSocket())
		}

		v1.POST("/admin/login", handlers.AdminLogin(db, cfg))

		adminGroup := v1.Group("/admin", handlers.AdminAuthMiddleware(cfg))
		{
			adminGroup.GET("/me", handlers.AdminMe())
			adminGroup.PUT("/catalog", handlers.ReplaceCatalog(db))
			adminGroup.GET("/audit", handlers.GetAdminAuditLogs(db))
			adminGroup.GET("/config", handlers.GetAdminRuntimeConfig(db))
			adminGroup.PUT("/config/:key", handlers.UpdateAdminRuntimeConfig(db))
		}
	}
}
