package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string

	GreenAPIBaseURL string

	GeminiAPIKey  string
	GeminiModelID string
	OpenAIAPIKey  string
	OpenAIModelID string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	MediaBucket         string

	DedupTTL          time.Duration
	LeadValidity      time.Duration
	MediaRetention    time.Duration
	MediaSweepEvery   time.Duration
	CorrespondenceTTL time.Duration

	SlotDurationMinutes int
	ReminderWindowStart int
	ReminderWindowEnd   int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		GreenAPIBaseURL: getEnv("GREEN_API_BASE_URL", "https://api.green-api.com"),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModelID: getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModelID: getEnv("OPENAI_MODEL_ID", "gpt-4o-mini"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		MediaBucket:         getEnv("MEDIA_BUCKET", ""),

		DedupTTL:          getEnvAsDuration("DEDUP_TTL", 60*time.Second),
		LeadValidity:      getEnvAsDuration("LEAD_VALIDITY", 24*time.Hour),
		MediaRetention:    getEnvAsDuration("MEDIA_RETENTION", 30*24*time.Hour),
		MediaSweepEvery:   getEnvAsDuration("MEDIA_SWEEP_EVERY", 24*time.Hour),
		CorrespondenceTTL: getEnvAsDuration("CORRESPONDENCE_TTL", 24*time.Hour),

		SlotDurationMinutes: getEnvAsInt("SLOT_DURATION_MINUTES", 60),
		ReminderWindowStart: getEnvAsInt("REMINDER_WINDOW_START", 18),
		ReminderWindowEnd:   getEnvAsInt("REMINDER_WINDOW_END", 20),
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
