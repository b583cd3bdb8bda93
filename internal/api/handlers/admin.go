package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/bubblefield/backend/internal/admin"
	"github.com/bubblefield/backend/internal/config"
	"github.com/bubblefield/backend/internal/logging"
)

// AdminLogin validates username/password and issues an admin token
func AdminLogin(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logging.Named("admin")

		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not configured"})
			return
		}

		username := strings.TrimSpace(req.Username)
		route := c.FullPath()
		details := map[string]interface{}{"username": username}

		account, err := admin.ValidateCredentials(db, username, req.Password)
		if err != nil {
			admin.LogAction(db, username, c.ClientIP(), route, "login", details, false)
			if errors.Is(err, admin.ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			log.Error("login failed", zap.String("username", username), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		token, expires, err := admin.IssueToken(cfg, account.Username)
		if err != nil {
			log.Error("failed to issue admin token", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}

		admin.LogAction(db, account.Username, c.ClientIP(), route, "login", details, true)
		c.JSON(http.StatusOK, gin.H{
			"token":        token,
			"expires_at":   expires.Unix(),
			"username":     account.Username,
			"display_name": account.DisplayName,
		})
	}
}

// AdminAuthMiddleware requires a valid "Authorization: Bearer <token>" header
func AdminAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Admin token required"})
			return
		}

		claims, err := admin.ParseToken(cfg, strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set("admin_username", claims.Username)
		c.Next()
	}
}

// AdminMe returns the authenticated admin
func AdminMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": c.GetString("admin_username")})
	}
}
