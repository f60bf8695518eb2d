package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL   string
	MigrationsDir string

	// Redis
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Match settings
	TurnTimeoutSeconds    int
	ReconnectGraceSeconds int
	MatchExpiryMinutes    int
	TimerPollSeconds      int

	// Physics presets
	PresetsDir    string
	DefaultPreset string

	// Replays
	ReplaysDir string

	// Security
	JWTSecret         string
	SessionTimeoutMin int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL:   getEnv("DATABASE_URL", "postgres://localhost:5432/playcue?sslmode=disable"),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Match settings
		TurnTimeoutSeconds:    getEnvInt("TURN_TIMEOUT_SECONDS", 60),
		ReconnectGraceSeconds: getEnvInt("RECONNECT_GRACE_SECONDS", 120),
		MatchExpiryMinutes:    getEnvInt("MATCH_EXPIRY_MINUTES", 30),
		TimerPollSeconds:      getEnvInt("TIMER_POLL_SECONDS", 1),

		// Physics presets
		PresetsDir:    getEnv("PRESETS_DIR", "./presets"),
		DefaultPreset: getEnv("DEFAULT_PRESET", "standard"),

		// Replays
		ReplaysDir: getEnv("REPLAYS_DIR", "./replays"),

		// Security
		JWTSecret:         getEnv("JWT_SECRET", "change-me-in-production"),
		SessionTimeoutMin: getEnvInt("SESSION_TIMEOUT_MINUTES", 720),
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
