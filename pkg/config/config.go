package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the journal core.
type Config struct {
	Port string

	// Remote provisioning/metrics service
	MetaAPIToken      string
	MetaAPIBaseURL    string
	MetaAPIMetricsURL string
	MetaAPISocketURL  string

	// Client resilience knobs
	RequestTimeout    time.Duration
	MaxRequests       int
	RateWindow        time.Duration
	HeartbeatInterval time.Duration
	ReconnectInterval time.Duration
	MaxReconnects     int

	// Server monitor
	MonitorInterval time.Duration

	// Risk defaults and optional YAML presets
	RiskProfilePath string

	// Database
	DBPath string

	// Audit logger
	AuditBatchSize     int
	AuditFlushInterval time.Duration
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:               getEnv("PORT", "8080"),
		MetaAPIToken:       os.Getenv("METAAPI_TOKEN"),
		MetaAPIBaseURL:     getEnv("METAAPI_BASE_URL", ""),
		MetaAPIMetricsURL:  getEnv("METAAPI_METRICS_URL", ""),
		MetaAPISocketURL:   getEnv("METAAPI_SOCKET_URL", ""),
		RequestTimeout:     getEnvDuration("METAAPI_REQUEST_TIMEOUT", 60*time.Second),
		MaxRequests:        getEnvInt("METAAPI_MAX_REQUESTS", 60),
		RateWindow:         getEnvDuration("METAAPI_RATE_WINDOW", time.Minute),
		HeartbeatInterval:  getEnvDuration("SOCKET_HEARTBEAT_INTERVAL", 30*time.Second),
		ReconnectInterval:  getEnvDuration("SOCKET_RECONNECT_INTERVAL", 5*time.Second),
		MaxReconnects:      getEnvInt("SOCKET_MAX_RECONNECTS", 5),
		MonitorInterval:    getEnvDuration("SERVER_MONITOR_INTERVAL", 5*time.Minute),
		RiskProfilePath:    getEnv("RISK_PROFILE_PATH", ""),
		DBPath:             getEnv("DB_PATH", "./data/journal.db"),
		AuditBatchSize:     getEnvInt("AUDIT_BATCH_SIZE", 100),
		AuditFlushInterval: getEnvDuration("AUDIT_FLUSH_INTERVAL", 5*time.Second),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
