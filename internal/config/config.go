// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSOrigins        []string

	// Database
	DatabaseDSN string

	// NATS event journal (optional)
	NATSEnabled  bool
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// LLM settings
	LLMProvider       string
	OpenAIAPIKey      string
	AnthropicAPIKey   string
	LocalLLMBaseURL   string
	LocalLLMModel     string
	LocalLLMToken     string
	FallbackModel     string
	InsightsModel     string
	CompletionTimeout time.Duration

	// Orchestration
	TurnDelay      time.Duration
	MaxTurnsPerRun int
	PersonasFile   string

	// Rate limiting: global throttle on /api/v1
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Rate limiting: sliding windows for expensive endpoints
	OrchestrateRateLimit  int
	OrchestrateRateWindow time.Duration
	InsightsRateLimit     int
	InsightsRateWindow    time.Duration

	// WebSocket
	WSHeartbeatInterval time.Duration
	WSSweepInterval     time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		CORSOrigins:        getListEnv("CORS_ALLOWED_ORIGINS"),

		// Database
		DatabaseDSN: getEnv("DATABASE_DSN", "roundtable.db"),

		// NATS
		NATSEnabled:  getBoolEnv("NATS_ENABLED", false),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		LLMProvider:       getEnv("LLM_PROVIDER", "openai"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		LocalLLMBaseURL:   getEnv("LOCAL_LLM_BASE_URL", "http://localhost:11434/v1/"),
		LocalLLMModel:     getEnv("LOCAL_LLM_MODEL", "llama3.1:8b"),
		LocalLLMToken:     getEnv("LOCAL_LLM_TOKEN", "local"),
		FallbackModel:     getEnv("FALLBACK_MODEL", ""),
		InsightsModel:     getEnv("INSIGHTS_MODEL", ""),
		CompletionTimeout: getDurationEnv("COMPLETION_TIMEOUT", 60*time.Second),

		// Orchestration
		TurnDelay:      getDurationEnv("ORCHESTRATION_TURN_DELAY", 1500*time.Millisecond),
		MaxTurnsPerRun: getIntEnv("ORCHESTRATION_MAX_TURNS", 10),
		PersonasFile:   getEnv("PERSONAS_FILE", ""),

		// Rate limiting
		RateLimitRequests:     getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:       getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		OrchestrateRateLimit:  getIntEnv("ORCHESTRATE_RATE_LIMIT", 5),
		OrchestrateRateWindow: getDurationEnv("ORCHESTRATE_RATE_WINDOW", time.Minute),
		InsightsRateLimit:     getIntEnv("INSIGHTS_RATE_LIMIT", 3),
		InsightsRateWindow:    getDurationEnv("INSIGHTS_RATE_WINDOW", time.Minute),

		// WebSocket
		WSHeartbeatInterval: getDurationEnv("WS_HEARTBEAT_INTERVAL", 25*time.Second),
		WSSweepInterval:     getDurationEnv("WS_SWEEP_INTERVAL", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getListEnv splits a comma separated value, dropping blank entries.
func getListEnv(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
