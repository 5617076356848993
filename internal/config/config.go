package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Optional: the canvas assistant is disabled when empty.
	OpenAIAPIKey string

	ServerPort string
	ServerHost string

	// Sync engine tuning
	WriteDebounce    time.Duration
	EditingGrace     time.Duration
	CursorThrottle   time.Duration
	PresenceInterval time.Duration
	PresenceTTL      time.Duration
	HistoryDepth     int

	// Observability
	JaegerEndpoint string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "colabcanvas"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),

		ServerPort: getEnv("SERVER_PORT", "8080"),
		ServerHost: getEnv("SERVER_HOST", "localhost"),

		WriteDebounce:    getEnvDuration("WRITE_DEBOUNCE_MS", 100*time.Millisecond),
		EditingGrace:     getEnvDuration("EDITING_GRACE_MS", 2*time.Second),
		CursorThrottle:   getEnvDuration("CURSOR_THROTTLE_MS", 40*time.Millisecond),
		PresenceInterval: getEnvDuration("PRESENCE_INTERVAL_MS", 2500*time.Millisecond),
		PresenceTTL:      getEnvDuration("PRESENCE_TTL_MS", 7*time.Second),
		HistoryDepth:     getEnvInt("HISTORY_DEPTH", 50),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
	}

	if cfg.HistoryDepth <= 0 {
		return nil, fmt.Errorf("HISTORY_DEPTH must be positive, got %d", cfg.HistoryDepth)
	}
	if cfg.PresenceTTL <= cfg.PresenceInterval {
		return nil, fmt.Errorf("PRESENCE_TTL_MS must exceed PRESENCE_INTERVAL_MS")
	}

	return cfg, nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if n, err := fmt.Sscanf(value, "%d", &result); err == nil && n == 1 {
			return result
		}
	}
	return defaultValue
}

// Durations are configured in whole milliseconds to match the client-side
// tuning knobs they mirror.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if ms := getEnvInt(key, -1); ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
