package admin

import (
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/bubblefield/backend/internal/config"
	"github.com/bubblefield/backend/internal/logging"
	"github.com/bubblefield/backend/internal/models"
)

// GetAllRuntimeConfig returns all runtime config entries
func GetAllRuntimeConfig(db *sqlx.DB) ([]models.RuntimeConfig, error) {
	configs := []models.RuntimeConfig{}
	err := db.Select(&configs, `
		SELECT key, value, value_type, description, updated_by, updated_at
		FROM runtime_config
		ORDER BY key
	`)
	return configs, err
}

// GetRuntimeConfigValue returns a single runtime config value
func GetRuntimeConfigValue(db *sqlx.DB, key string) (*models.RuntimeConfig, error) {
	var cfg models.RuntimeConfig
	err := db.Get(&cfg, `SELECT key, value, value_type, description, updated_by, updated_at FROM runtime_config WHERE key=$1`, key)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpdateRuntimeConfigValue updates a single runtime config value
func UpdateRuntimeConfigValue(db *sqlx.DB, key, value, adminUsername string) error {
	existing, err := GetRuntimeConfigValue(db, key)
	if err != nil {
		return fmt.Errorf("config key not found: %s", key)
	}
	if err := validateValue(existing.ValueType, value); err != nil {
		return err
	}

	_, err = db.Exec(`
		UPDATE runtime_config SET value=$1, updated_by=$2, updated_at=NOW() WHERE key=$3
	`, value, adminUsername, key)
	return err
}

func validateValue(valueType, value string) error {
	switch valueType {
	case "int":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value: %s", value)
		}
		if v <= 0 {
			return fmt.Errorf("value must be positive: %s", value)
		}
	case "float":
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("invalid float value: %s", value)
		}
	case "bool":
		if value != "true" && value != "false" {
			return fmt.Errorf("invalid boolean value: %s (must be 'true' or 'false')", value)
		}
	}
	return nil
}

// ApplyRuntimeConfigToConfig loads runtime config from DB and applies overrides to the Config struct
func ApplyRuntimeConfigToConfig(db *sqlx.DB, cfg *config.Config) error {
	configs, err := GetAllRuntimeConfig(db)
	if err != nil {
		return err
	}
	applied := applyRuntimeConfig(configs, cfg)
	logging.Named("config").Info("applied runtime config overrides", zap.Int("count", applied))
	return nil
}

// applyRuntimeConfig copies recognised, well-formed entries onto cfg and
// returns how many were applied.
func applyRuntimeConfig(configs []models.RuntimeConfig, cfg *config.Config) int {
	targets := map[string]*int{
		"frame_rate_hz":          &cfg.FrameRateHz,
		"broadcast_every_frames": &cfg.BroadcastEveryFrames,
		"max_sessions":           &cfg.MaxSessions,
		"session_idle_seconds":   &cfg.SessionIdleSeconds,
		"snapshot_ttl_seconds":   &cfg.SnapshotTTLSeconds,
		"default_arena_width":    &cfg.DefaultArenaWidth,
		"default_arena_height":   &cfg.DefaultArenaHeight,
	}

	applied := 0
	for _, c := range configs {
		target, ok := targets[c.Key]
		if !ok {
			continue
		}
		v, err := strconv.Atoi(c.Value)
		if err != nil || v <= 0 {
			continue
		}
		*target = v
		applied++
	}
	return applied
}
