// Package config loads relay configuration from the process environment.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds every environment-derived setting the relay needs at
// startup (§6: DATABASE_URL, CONSORTIUM_MASTER_SECRET, PORT).
type Config struct {
	Port          string
	DatabaseURL   string
	MasterSecret  string
	RedisAddr     string
	RedisPassword string
	CacheEnabled  bool
	NATSURL       string
	LogLevel      string
	LogPretty     bool
}

// MinMasterSecretLen is the minimum length required of
// CONSORTIUM_MASTER_SECRET (§6: "≥32 chars").
const MinMasterSecretLen = 32

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "3005"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		MasterSecret:  os.Getenv("CONSORTIUM_MASTER_SECRET"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		CacheEnabled:  getEnv("CACHE_ENABLED", "false") == "true",
		NATSURL:       os.Getenv("NATS_URL"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogPretty:     getEnv("LOG_PRETTY", "false") == "true",
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}
	if len(cfg.MasterSecret) < MinMasterSecretLen {
		return nil, fmt.Errorf("CONSORTIUM_MASTER_SECRET must be at least %d characters", MinMasterSecretLen)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
