// Package config loads runtime settings for the server and the admin CLI
// from environment variables.
//
// Every variable has a default except JWT_SECRET, which the server requires.
// Optional collaborators (Google login, S3 avatars) are switched on simply by
// setting their variables; GoogleEnabled and S3Enabled report whether enough
// of them are present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port int

	// DBDriver is "sqlite" (default) or "postgres".
	DBDriver    string
	DBPath      string
	DatabaseURL string

	JWTSecret string
	TokenTTL  time.Duration

	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	// Location is the calendar used for day boundaries (APP_TIMEZONE).
	Location           *time.Location
	StreakMode         string
	DefaultHabitPoints int

	CORSAllowedOrigins []string

	LogLevel  string
	LogFormat string
	LogFile   string
}

// Load reads the environment. It fails only on values that are present but
// malformed; missing values fall back to defaults.
func Load() (Config, error) {
	cfg := Config{
		DBDriver:           strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBPath:             getEnv("DB_PATH", "data/habitquest.db"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		S3Endpoint:         os.Getenv("S3_ENDPOINT"),
		S3Region:           getEnv("S3_REGION", "us-east-1"),
		S3Bucket:           os.Getenv("S3_BUCKET"),
		S3AccessKey:        os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:        os.Getenv("S3_SECRET_KEY"),
		StreakMode:         getEnv("STREAK_MODE", "calendar"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		LogFile:            os.Getenv("LOG_FILE"),
	}

	var err error
	if cfg.Port, err = getEnvInt("PORT", 8080); err != nil {
		return Config{}, err
	}
	if cfg.DefaultHabitPoints, err = getEnvInt("DEFAULT_HABIT_POINTS", 10); err != nil {
		return Config{}, err
	}
	if cfg.DefaultHabitPoints < 1 {
		return Config{}, fmt.Errorf("config: DEFAULT_HABIT_POINTS must be at least 1, got %d", cfg.DefaultHabitPoints)
	}

	ttl := getEnv("TOKEN_TTL", "24h")
	if cfg.TokenTTL, err = time.ParseDuration(ttl); err != nil {
		return Config{}, fmt.Errorf("config: invalid TOKEN_TTL %q: %w", ttl, err)
	}

	tz := getEnv("APP_TIMEZONE", "UTC")
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return Config{}, fmt.Errorf("config: invalid APP_TIMEZONE %q: %w", tz, err)
	}

	switch cfg.DBDriver {
	case "sqlite":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("config: DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return Config{}, fmt.Errorf("config: unknown DB_DRIVER %q", cfg.DBDriver)
	}

	cfg.GoogleCallbackURL = getEnv("GOOGLE_CALLBACK_URL",
		fmt.Sprintf("http://localhost:%d/api/auth/google/callback", cfg.Port))

	return cfg, nil
}

// GoogleEnabled reports whether Google OAuth login can be offered.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// S3Enabled reports whether avatar uploads can be stored.
func (c Config) S3Enabled() bool {
	return c.S3Endpoint != "" && c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	num, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, val, err)
	}
	return num, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
