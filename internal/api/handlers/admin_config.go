package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/bubblefield/backend/internal/admin"
	"github.com/bubblefield/backend/internal/bubble"
	"github.com/bubblefield/backend/internal/logging"
)

// GetAdminRuntimeConfig returns all runtime config entries
func GetAdminRuntimeConfig(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not configured"})
			return
		}
		configs, err := admin.GetAllRuntimeConfig(db)
		if err != nil {
			logging.Named("admin").Error("failed to fetch runtime config", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch config"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"configs": configs})
	}
}

// UpdateAdminRuntimeConfig updates a single runtime config value. New values
// apply to sessions created afterwards.
func UpdateAdminRuntimeConfig(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logging.Named("admin")
		adminUsername := c.GetString("admin_username")
		key := c.Param("key")

		var req struct {
			Value string `json:"value" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Value is required"})
			return
		}
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not configured"})
			return
		}

		details := map[string]interface{}{"key": key, "value": req.Value}
		if err := admin.UpdateRuntimeConfigValue(db, key, req.Value, adminUsername); err != nil {
			log.Warn("failed to update runtime config", zap.String("key", key), zap.Error(err))
			admin.LogAction(db, adminUsername, c.ClientIP(), c.FullPath(), "update_config", details, false)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// overrides land on a copy that replaces the manager's settings whole
		if m := bubble.Sessions; m != nil {
			next := m.Config()
			if err := admin.ApplyRuntimeConfigToConfig(db, &next); err != nil {
				log.Warn("failed to apply runtime config", zap.Error(err))
			} else {
				m.SetConfig(next)
			}
		}

		admin.LogAction(db, adminUsername, c.ClientIP(), c.FullPath(), "update_config", details, true)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
