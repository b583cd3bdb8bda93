package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/bubblefield/backend/internal/admin"
	"github.com/bubblefield/backend/internal/bubble"
	"github.com/bubblefield/backend/internal/catalog"
	"github.com/bubblefield/backend/internal/logging"
	"github.com/bubblefield/backend/internal/models"
)

// GetCatalog returns the dataset live sessions are built from
func GetCatalog() gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := sessions(c)
		if !ok {
			return
		}
		items := m.Items()
		if items == nil {
			items = []bubble.Item{}
		}
		c.JSON(http.StatusOK, gin.H{"categories": items, "count": len(items)})
	}
}

// ReplaceCatalog atomically swaps the catalog, resets every live session on
// this instance and tells the other instances to reload.
func ReplaceCatalog(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logging.Named("api")
		adminUsername := c.GetString("admin_username")
		route := c.FullPath()

		var req struct {
			Categories []models.Category `json:"categories" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Categories are required"})
			return
		}

		categories := catalog.Normalize(req.Categories)
		if err := catalog.Validate(categories); err != nil {
			respondError(c, err)
			return
		}
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not configured"})
			return
		}
		m, ok := sessions(c)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		details := map[string]interface{}{"categories": len(categories)}
		if err := catalog.Replace(ctx, db, categories); err != nil {
			admin.LogAction(db, adminUsername, c.ClientIP(), route, "replace_catalog", details, false)
			respondError(c, err)
			return
		}

		reset := m.ReplaceItems(ctx, catalog.ToItems(categories))
		if err := m.PublishEvent(ctx, bubble.Event{Type: bubble.EventCatalogUpdated}); err != nil {
			log.Warn("failed to publish catalog_updated", zap.Error(err))
		}

		details["sessions_reset"] = reset
		admin.LogAction(db, adminUsername, c.ClientIP(), route, "replace_catalog", details, true)
		c.JSON(http.StatusOK, gin.H{"ok": true, "categories": len(categories), "sessions_reset": reset})
	}
}
