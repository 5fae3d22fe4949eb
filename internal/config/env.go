package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envIntWithFallback(key string, fallback int) int {
	raw := envString(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

// envSecondsWithFallback reads a plain integer number of seconds, or a Go duration string.
func envSecondsWithFallback(key string, fallback Duration) Duration {
	raw := envString(key)
	if raw == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return Duration(time.Duration(secs) * time.Second)
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return Duration(d)
	}
	return fallback
}

func ApplyEnvOverrides(cfg *Config) {
	if v := envString("RELAY_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := envString("RELAY_STATIC_DIR"); v != "" {
		cfg.Server.StaticDir = v
	}
	cfg.WebSocket.Timeout = envSecondsWithFallback("RELAY_WEBSOCKET_TIMEOUT", cfg.WebSocket.Timeout)
	cfg.Delivery.Retries = envIntWithFallback("RELAY_DELIVERY_RETRIES", cfg.Delivery.Retries)
	cfg.Delivery.Interval = envSecondsWithFallback("RELAY_DELIVERY_INTERVAL", cfg.Delivery.Interval)
	if v := envString("RELAY_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := envString("RELAY_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := envString("RELAY_OFFLINE_DRIVER"); v != "" {
		cfg.Offline.Driver = v
	}
	if v := envString("RELAY_REDIS_ADDR"); v != "" {
		cfg.Offline.RedisAddr = v
	}
	if v := envString("RELAY_REDIS_PASSWORD"); v != "" {
		cfg.Offline.RedisPassword = v
	}
	cfg.Offline.RedisDB = envIntWithFallback("RELAY_REDIS_DB", cfg.Offline.RedisDB)
	if v := envString("RELAY_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := envString("RELAY_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
