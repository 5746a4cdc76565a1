package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	DatabaseURL string
	RedisURL    string // optional; empty disables the Redis geo index
	Port        string
	JWTSecret   string

	AccessTokenTTL  time.Duration
	SignalTTL       time.Duration
	SweepInterval   time.Duration
	DefaultRadiusKM float64
	MaxRadiusKM     float64

	AllowedOrigins []string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            "8080",
		AccessTokenTTL:  24 * time.Hour,
		SignalTTL:       15 * time.Minute,
		SweepInterval:   30 * time.Second,
		DefaultRadiusKM: 5,
		MaxRadiusKM:     50,
		AllowedOrigins:  []string{"*"},
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.DatabaseURL = databaseURL

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	cfg.JWTSecret = jwtSecret

	cfg.RedisURL = os.Getenv("REDIS_URL")

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	var err error
	if cfg.AccessTokenTTL, err = durationEnv("ACCESS_TOKEN_TTL", cfg.AccessTokenTTL); err != nil {
		return nil, err
	}
	if cfg.SignalTTL, err = durationEnv("SIGNAL_TTL", cfg.SignalTTL); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = durationEnv("SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return nil, err
	}
	if cfg.DefaultRadiusKM, err = floatEnv("DEFAULT_RADIUS_KM", cfg.DefaultRadiusKM); err != nil {
		return nil, err
	}
	if cfg.MaxRadiusKM, err = floatEnv("MAX_RADIUS_KM", cfg.MaxRadiusKM); err != nil {
		return nil, err
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		var parsed []string
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				parsed = append(parsed, o)
			}
		}
		if len(parsed) > 0 {
			cfg.AllowedOrigins = parsed
		}
	}

	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func floatEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
