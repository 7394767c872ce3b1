package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultGroqURL        = "https://api.groq.com/openai/v1/chat/completions"
	defaultUSDAURL        = "https://api.nal.usda.gov/fdc/v1"
	defaultDatabasePath   = "data/nutrition.db"
	defaultCacheTTLHours  = 720
	defaultItemTimeoutSec = 25
)

// Config holds the configuration for the application.
type Config struct {
	GroqAPIKey   string
	GroqAPIURL   string
	GeminiAPIKey string

	// USDA FoodData Central. An empty key disables the database path.
	USDAAPIKey string
	USDAAPIURL string

	DatabasePath   string
	LookupCacheTTL time.Duration
	ItemTimeout    time.Duration

	// Optional HS256 secret guarding the HTTP API.
	APIJWTSecret string

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
	AdminTelegramID        int64
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	groqAPIKey := os.Getenv("GROQ_API_KEY")
	if groqAPIKey == "" {
		return nil, fmt.Errorf("GROQ_API_KEY environment variable not set")
	}

	groqURL := os.Getenv("GROQ_API_URL")
	if groqURL == "" {
		groqURL = defaultGroqURL
	}

	usdaURL := os.Getenv("USDA_API_URL")
	if usdaURL == "" {
		usdaURL = defaultUSDAURL
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = defaultDatabasePath
	}

	cacheTTLHours, err := intFromEnv("LOOKUP_CACHE_TTL_HOURS", defaultCacheTTLHours)
	if err != nil {
		return nil, err
	}

	itemTimeoutSec, err := intFromEnv("ITEM_TIMEOUT_SECONDS", defaultItemTimeoutSec)
	if err != nil {
		return nil, err
	}

	allowed, err := parseIDList(os.Getenv("TELEGRAM_ALLOWED_USER_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_ALLOWED_USER_IDS: %w", err)
	}

	var adminID int64
	if s := os.Getenv("ADMIN_TELEGRAM_ID"); s != "" {
		adminID, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	return &Config{
		GroqAPIKey:             groqAPIKey,
		GroqAPIURL:             groqURL,
		GeminiAPIKey:           os.Getenv("GEMINI_API_KEY"),
		USDAAPIKey:             os.Getenv("USDA_API_KEY"),
		USDAAPIURL:             strings.TrimRight(usdaURL, "/"),
		DatabasePath:           dbPath,
		LookupCacheTTL:         time.Duration(cacheTTLHours) * time.Hour,
		ItemTimeout:            time.Duration(itemTimeoutSec) * time.Second,
		APIJWTSecret:           os.Getenv("API_JWT_SECRET"),
		TelegramBotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL:     os.Getenv("TELEGRAM_WEBHOOK_URL"),
		TelegramAllowedUserIDs: allowed,
		AdminTelegramID:        adminID,
	}, nil
}

// DatabaseEnabled reports whether the canonical nutrient database is configured.
func (c *Config) DatabaseEnabled() bool {
	return c.USDAAPIKey != ""
}

func intFromEnv(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, s)
	}
	return n, nil
}

func parseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
