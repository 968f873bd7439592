package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port               int
	DatabaseURL        string
	AutoMigrate        bool
	LogLevel           string
	GeminiAPIKey       string
	GeminiModel        string
	MaxOutputTokens    int
	Temperature        float64
	NatsURL            string
	NatsToken          string
	SessionIdleTimeout time.Duration
	SecureCookies      bool
	SlackBotToken      string
	SlackChannel       string
	CatalogSeedFile    string
}

func Load() Config {
	return Config{
		Port:               envInt("PARTSBOT_PORT", 8080),
		DatabaseURL:        envStr("DATABASE_URL", ""),
		AutoMigrate:        envBool("AUTO_MIGRATE", true),
		LogLevel:           envStr("LOG_LEVEL", "info"),
		GeminiAPIKey:       envStr("GEMINI_API_KEY", ""),
		GeminiModel:        envStr("GEMINI_MODEL", "gemini-1.5-flash"),
		MaxOutputTokens:    envInt("GEMINI_MAX_OUTPUT_TOKENS", 1024),
		Temperature:        envFloat("GEMINI_TEMPERATURE", 0.7),
		NatsURL:            envStr("NATS_URL", ""),
		NatsToken:          envStr("NATS_TOKEN", ""),
		SessionIdleTimeout: envDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SecureCookies:      envBool("SECURE_COOKIES", false),
		SlackBotToken:      envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:       envStr("SLACK_ALERTS_CHANNEL", ""),
		CatalogSeedFile:    envStr("CATALOG_SEED_FILE", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
