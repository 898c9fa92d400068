package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Generation provider
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	Model           string
	UseScriptedLLM  bool
	MaxAnswerTokens int

	// Streaming limits; both are treated as stream errors, not fatal errors.
	TokenTimeout  time.Duration
	StreamTimeout time.Duration

	// Retrieval
	MaxCitations int
	TopicsPath   string

	// Safety
	RefusalsPath string

	// Sessions
	SessionIdleTTL time.Duration
	SweepInterval  time.Duration
	ChannelBuffer  int

	// Transcript archive (optional; disabled when addr empty)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Durable case log (optional; in-memory store when empty)
	DatabaseURL string

	// Stale-case alerting (optional; disabled unless email configured)
	SendGridAPIKey     string
	SendGridFromEmail  string
	SendGridFromName   string
	ReviewerAlertEmail string
	ReviewerAlertAfter time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		Model:           getEnv("GENERATION_MODEL", "gpt-4o-mini"),
		UseScriptedLLM:  getEnvAsBool("USE_SCRIPTED_LLM", false),
		MaxAnswerTokens: getEnvAsInt("MAX_ANSWER_TOKENS", 512),

		TokenTimeout:  getEnvAsDuration("STREAM_TOKEN_TIMEOUT", 15*time.Second),
		StreamTimeout: getEnvAsDuration("STREAM_TOTAL_TIMEOUT", 2*time.Minute),

		MaxCitations: getEnvAsInt("MAX_CITATIONS", 3),
		TopicsPath:   getEnv("KNOWLEDGE_TOPICS_PATH", ""),

		RefusalsPath: getEnv("SAFETY_REFUSALS_PATH", ""),

		SessionIdleTTL: getEnvAsDuration("SESSION_IDLE_TTL", 30*time.Minute),
		SweepInterval:  getEnvAsDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		ChannelBuffer:  getEnvAsInt("PUSH_CHANNEL_BUFFER", 256),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:  getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:   getEnv("SENDGRID_FROM_NAME", "ParentCare"),
		ReviewerAlertEmail: getEnv("REVIEWER_ALERT_EMAIL", ""),
		ReviewerAlertAfter: getEnvAsDuration("REVIEWER_ALERT_AFTER", 0),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
