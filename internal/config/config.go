// Package config centralises configuration parsing for the critic toolkit.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures runtime configuration for both binaries.
type Config struct {
	StravaClientID     string
	StravaClientSecret string
	StravaRedirectURI  string
	StravaScope        string

	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	SystemPrompt    string
	TokenDir        string
	SnapshotFile    string
	LedgerFile      string
	TokenSkew       time.Duration
	HTTPTimeout     time.Duration
	MaxRetries      int
	RateLimitRPS    float64
	AuthHTTPAddress string
}

// Load reads environment variables into Config, consulting a .env file when
// one is present. Strava client credentials are required; everything else has
// a local-dev default.
func Load() (Config, error) {
	_ = godotenv.Load()

	clientID := strings.TrimSpace(os.Getenv("STRAVA_CLIENT_ID"))
	clientSecret := strings.TrimSpace(os.Getenv("STRAVA_CLIENT_SECRET"))
	if clientID == "" || clientSecret == "" {
		return Config{}, fmt.Errorf("STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET are required")
	}

	cfg := Config{
		StravaClientID:     clientID,
		StravaClientSecret: clientSecret,
		StravaRedirectURI:  getEnv("STRAVA_REDIRECT_URI", "http://localhost:5000/callback"),
		StravaScope:        getEnv("STRAVA_SCOPE", "activity:read,activity:write"),
		OpenAIAPIKey:       firstEnv("ONE_API_KEY", "OPENAI_API_KEY"),
		OpenAIBaseURL:      firstEnv("ONE_API_REMOTE", "OPENAI_BASE_URL"),
		OpenAIModel:        coalesce(firstEnv("ONE_API_MODEL", "OPENAI_API_MODEL"), "gpt-3.5-turbo"),
		SystemPrompt:       firstEnv("LLM_ACTIVITY_AGENT_PROMPT", "LLM_SYSTEM_PROMPT"),
		TokenDir:           getEnv("CRITIC_TOKEN_DIR", "user_token"),
		SnapshotFile:       getEnv("CRITIC_SNAPSHOT_FILE", "latest_activities.json"),
		LedgerFile:         getEnv("CRITIC_LEDGER_FILE", "activity_critiques.json"),
		TokenSkew:          getDurationEnv("CRITIC_TOKEN_SKEW", 5*time.Minute),
		HTTPTimeout:        getDurationEnv("CRITIC_HTTP_TIMEOUT", 10*time.Second),
		MaxRetries:         getIntEnv("CRITIC_MAX_RETRIES", 3),
		RateLimitRPS:       getFloatEnv("CRITIC_RATE_LIMIT_RPS", 2),
		AuthHTTPAddress:    getEnv("AUTHD_HTTP_ADDRESS", ":5000"),
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && value != "" {
			return value
		}
	}
	return ""
}

func coalesce(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
