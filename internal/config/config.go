package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string
	LogLevel    string

	// Database
	DatabaseURL    string
	MigrateOnStart bool

	// Redis
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Simulation
	FrameRateHz          int
	BroadcastEveryFrames int
	DefaultArenaWidth    int
	DefaultArenaHeight   int
	MaxSessions          int
	SessionIdleSeconds   int
	IdlePollIntervalSecs int
	SnapshotTTLSeconds   int

	// Catalog
	CatalogSeedPath string

	// Security
	JWTSecret            string
	AdminTokenTTLMinutes int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", ""),

		// Database
		DatabaseURL:    getEnv("DATABASE_URL", "postgres://localhost:5432/bubblefield?sslmode=disable"),
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", false),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),

		// Simulation
		FrameRateHz:          getEnvInt("FRAME_RATE_HZ", 60),
		BroadcastEveryFrames: getEnvInt("BROADCAST_EVERY_FRAMES", 2),
		DefaultArenaWidth:    getEnvInt("DEFAULT_ARENA_WIDTH", 1000),
		DefaultArenaHeight:   getEnvInt("DEFAULT_ARENA_HEIGHT", 800),
		MaxSessions:          getEnvInt("MAX_SESSIONS", 500),
		SessionIdleSeconds:   getEnvInt("SESSION_IDLE_SECONDS", 300),
		IdlePollIntervalSecs: getEnvInt("IDLE_POLL_INTERVAL_SECONDS", 15),
		SnapshotTTLSeconds:   getEnvInt("SNAPSHOT_TTL_SECONDS", 60),

		// Catalog
		CatalogSeedPath: getEnv("CATALOG_SEED_PATH", "catalog.yaml"),

		// Security
		JWTSecret:            getEnv("JWT_SECRET", "change-me-in-production"),
		AdminTokenTTLMinutes: getEnvInt("ADMIN_TOKEN_TTL_MINUTES", 60),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
