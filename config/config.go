package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config represents application configuration.
type Config struct {
	Env            string
	Port           string
	DatabaseURL    string
	ServiceToken   string
	AllowedOrigins []string

	SyncServiceURL string
	AuthServiceURL string
	RedisAddr      string

	EventTimeout           time.Duration
	CatalogRefreshInterval time.Duration
	UserSyncInterval       time.Duration

	R2      R2Config
	Rewards RewardsConfig
}

// R2Config holds Cloudflare R2 (S3 compatible) settings for badge icons.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// Enabled reports whether enough is set to talk to R2.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.Bucket != "" && c.AccessKeyID != ""
}

// RewardsConfig overrides the XP reward table. Zero values mean "use default".
type RewardsConfig struct {
	Login           int64
	Module          int64
	ModuleFirstTime int64
	QuizHigh        int64
	QuizLow         int64
	QuizHighScore   float64
	PositionAdded   int64
	PositionUpdated int64
	StreakBonus     int64
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		zap.L().Info("no .env file found, reading environment variables directly")
	}

	cfg := &Config{
		Env:            getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "5200"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		ServiceToken:   os.Getenv("GAME_SERVICE_TOKEN"),
		AllowedOrigins: getList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		SyncServiceURL: strings.TrimSpace(os.Getenv("SYNC_SERVICE_URL")),
		AuthServiceURL: strings.TrimSpace(os.Getenv("AUTH_SERVICE_URL")),
		RedisAddr:      strings.TrimSpace(os.Getenv("REDIS_ADDR")),

		EventTimeout:           getDuration("EVENT_TIMEOUT", 5*time.Second),
		CatalogRefreshInterval: getDuration("CATALOG_REFRESH_INTERVAL", time.Minute),
		UserSyncInterval:       getDuration("USER_SYNC_INTERVAL", time.Minute),

		R2: R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
			CDNBaseURL:      os.Getenv("CDN_BASE_URL"),
		},
		Rewards: RewardsConfig{
			Login:           getInt("XP_LOGIN", 0),
			Module:          getInt("XP_MODULE", 0),
			ModuleFirstTime: getInt("XP_MODULE_FIRST_TIME", 0),
			QuizHigh:        getInt("XP_QUIZ_HIGH", 0),
			QuizLow:         getInt("XP_QUIZ_LOW", 0),
			QuizHighScore:   getFloat("XP_QUIZ_HIGH_SCORE", 0),
			PositionAdded:   getInt("XP_POSITION_ADDED", 0),
			PositionUpdated: getInt("XP_POSITION_UPDATED", 0),
			StreakBonus:     getInt("XP_STREAK_BONUS", 0),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if cfg.ServiceToken == "" {
		return nil, fmt.Errorf("GAME_SERVICE_TOKEN environment variable not set")
	}
	if cfg.EventTimeout <= 0 {
		return nil, fmt.Errorf("EVENT_TIMEOUT must be positive")
	}

	return cfg, nil
}

// Production reports whether APP_ENV selects production behaviour.
func (c *Config) Production() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getInt(key string, fallback int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 {
		return fallback
	}
	return f
}
