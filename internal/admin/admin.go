package admin

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/bubblefield/backend/internal/logging"
	"github.com/bubblefield/backend/internal/models"
)

// ErrInvalidCredentials is returned for an unknown username or a wrong password.
// Callers must not tell the two apart.
var ErrInvalidCredentials = errors.New("invalid credentials")

// GetAdminAccount retrieves an admin account by username
func GetAdminAccount(db *sqlx.DB, username string) (*models.AdminAccount, error) {
	var account models.AdminAccount
	err := db.Get(&account, `SELECT username, display_name, password_hash, roles, created_at, updated_at FROM admin_accounts WHERE username=$1`, username)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// VerifyPassword checks if the provided password matches the stored hash
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// HashPassword returns the bcrypt hash stored for an account.
func HashPassword(plain string) (string, error) {
	if plain == "" {
		return "", fmt.Errorf("password is empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// CreateAccount creates or updates an admin account (used by the seed CLI)
func CreateAccount(db *sqlx.DB, username, displayName, password string, roles []string) error {
	if username == "" {
		return fmt.Errorf("username is empty")
	}
	hashed, err := HashPassword(password)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		INSERT INTO admin_accounts (username, display_name, password_hash, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (username) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			password_hash = EXCLUDED.password_hash,
			roles = EXCLUDED.roles,
			updated_at = NOW()
	`, username, displayName, hashed, pq.Array(roles))
	if err != nil {
		return fmt.Errorf("upsert admin account: %w", err)
	}
	return nil
}

// ValidateCredentials returns the account when username and password match.
func ValidateCredentials(db *sqlx.DB, username, password string) (*models.AdminAccount, error) {
	log := logging.Named("admin")

	account, err := GetAdminAccount(db, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Info("login for unknown admin", zap.String("username", username))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !VerifyPassword(account.PasswordHash, password) {
		log.Info("password verification failed", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// LogAction records an admin action in the audit log
func LogAction(db *sqlx.DB, username, ip, route, action string, details map[string]interface{}, success bool) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		logging.Named("admin").Warn("failed to marshal audit details", zap.Error(err))
		detailsJSON = []byte("{}")
	}

	_, err = db.Exec(`
		INSERT INTO admin_audit (admin_username, ip, route, action, details, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, username, ip, route, action, detailsJSON, success)
	if err != nil {
		logging.Named("admin").Error("failed to log admin action", zap.String("action", action), zap.Error(err))
	}
	return err
}

// AuditLogs retrieves recent admin audit logs with pagination
func AuditLogs(db *sqlx.DB, limit, offset int) ([]models.AdminAudit, error) {
	logs := []models.AdminAudit{}
	err := db.Select(&logs, `
		SELECT id, admin_username, ip, route, action, details, success, created_at
		FROM admin_audit
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	return logs, err
}

// AuditLogsByUsername retrieves audit logs for a specific admin
func AuditLogsByUsername(db *sqlx.DB, username string, limit, offset int) ([]models.AdminAudit, error) {
	logs := []models.AdminAudit{}
	err := db.Select(&logs, `
		SELECT id, admin_username, ip, route, action, details, success, created_at
		FROM admin_audit
		WHERE admin_username = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, username, limit, offset)
	return logs, err
}
