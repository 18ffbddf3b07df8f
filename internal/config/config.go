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

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings (operations surface)
	JWTSecret string

	// Webhook verification
	BridgeWebhookSecret string
	MetaVerifyToken     string

	// Provider adapters
	BridgeBaseURL  string
	BridgeAPIKey   string
	CloudBaseURL   string
	CloudToken     string
	InstagramToken string

	// AI settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultAI       string
	AITimeout       time.Duration

	// AgentIDs are the agents eligible for assign_agent flow actions.
	// Empty means no assignment collaborator is configured.
	AgentIDs []string

	// Worker pools
	CampaignConcurrency  int
	ScheduledConcurrency int
	AIJobConcurrency     int
	RetryConcurrency     int

	// Webhook retry policy
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	RetryMaxAttempts    int
	DeadLetterRetention time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

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

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Webhook verification
		BridgeWebhookSecret: getEnv("BRIDGE_WEBHOOK_SECRET", ""),
		MetaVerifyToken:     getEnv("META_VERIFY_TOKEN", ""),

		// Providers
		BridgeBaseURL:  getEnv("BRIDGE_BASE_URL", "http://localhost:8088"),
		BridgeAPIKey:   getEnv("BRIDGE_API_KEY", ""),
		CloudBaseURL:   getEnv("CLOUD_BASE_URL", "https://graph.facebook.com/v19.0"),
		CloudToken:     getEnv("CLOUD_TOKEN", ""),
		InstagramToken: getEnv("INSTAGRAM_TOKEN", ""),

		// AI
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultAI:       getEnv("DEFAULT_AI", "anthropic"),
		AITimeout:       getDurationEnv("AI_TIMEOUT", 30*time.Second),

		// Agents
		AgentIDs: getListEnv("AGENT_IDS", nil),

		// Workers
		CampaignConcurrency:  getIntEnv("CAMPAIGN_CONCURRENCY", 2),
		ScheduledConcurrency: getIntEnv("SCHEDULED_CONCURRENCY", 3),
		AIJobConcurrency:     getIntEnv("AI_JOB_CONCURRENCY", 5),
		RetryConcurrency:     getIntEnv("RETRY_CONCURRENCY", 3),

		// Retry policy
		RetryBaseDelay:      getDurationEnv("RETRY_BASE_DELAY", 30*time.Second),
		RetryMaxDelay:       getDurationEnv("RETRY_MAX_DELAY", 30*time.Minute),
		RetryMaxAttempts:    getIntEnv("RETRY_MAX_ATTEMPTS", 5),
		DeadLetterRetention: getDurationEnv("DEAD_LETTER_RETENTION", 7*24*time.Hour),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 300),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

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

func getListEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		if len(out) > 0 {
			return out
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
