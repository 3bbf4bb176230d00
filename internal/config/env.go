// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ParseString reads an env var, returning fallback when unset or blank.
func ParseString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// ParseInt reads an integer env var, returning fallback on absence or parse
// failure.
func ParseInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// ParseBool reads a boolean env var, returning fallback on absence or parse
// failure.
func ParseBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// ParseDuration reads a duration env var ("5s", "10m"), returning fallback
// on absence or parse failure.
func ParseDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// applyEnv overlays GREENLIGHT_* environment variables onto cfg.
func applyEnv(cfg *Config) {
	cfg.ListenAddr = ParseString("GREENLIGHT_LISTEN", cfg.ListenAddr)
	cfg.LogLevel = ParseString("GREENLIGHT_LOG_LEVEL", cfg.LogLevel)

	cfg.Redis.Addr = ParseString("GREENLIGHT_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = ParseString("GREENLIGHT_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = ParseInt("GREENLIGHT_REDIS_DB", cfg.Redis.DB)

	cfg.TokenSecret = ParseString("GREENLIGHT_TOKEN_SECRET", cfg.TokenSecret)
	cfg.ReadyTTL = ParseDuration("GREENLIGHT_READY_TTL", cfg.ReadyTTL)
	cfg.WaitingTTL = ParseDuration("GREENLIGHT_WAITING_TTL", cfg.WaitingTTL)
	cfg.EnteredTTL = ParseDuration("GREENLIGHT_ENTERED_TTL", cfg.EnteredTTL)

	cfg.ConfigCacheTTL = ParseDuration("GREENLIGHT_CONFIG_CACHE_TTL", cfg.ConfigCacheTTL)
	cfg.ConfigPollInterval = ParseDuration("GREENLIGHT_CONFIG_POLL_INTERVAL", cfg.ConfigPollInterval)

	cfg.AdmissionStrategy = ParseString("GREENLIGHT_ADMISSION_STRATEGY", cfg.AdmissionStrategy)
	cfg.AdmissionWindow = ParseDuration("GREENLIGHT_ADMISSION_WINDOW", cfg.AdmissionWindow)

	cfg.RelocationInterval = ParseDuration("GREENLIGHT_RELOCATION_INTERVAL", cfg.RelocationInterval)
	cfg.RelocationMaxBatch = int64(ParseInt("GREENLIGHT_RELOCATION_MAX_BATCH", int(cfg.RelocationMaxBatch)))

	cfg.BroadcastMode = ParseString("GREENLIGHT_BROADCAST_MODE", cfg.BroadcastMode)
	cfg.PushInterval = ParseDuration("GREENLIGHT_PUSH_INTERVAL", cfg.PushInterval)
	cfg.StatusPollInterval = ParseDuration("GREENLIGHT_STATUS_POLL_INTERVAL", cfg.StatusPollInterval)

	cfg.RateLimitPerMinute = ParseInt("GREENLIGHT_RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
	if origins := ParseString("GREENLIGHT_ALLOWED_ORIGINS", ""); origins != "" {
		parts := strings.Split(origins, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if v := strings.TrimSpace(p); v != "" {
				out = append(out, v)
			}
		}
		cfg.AllowedOrigins = out
	}

	cfg.Events.Enabled = ParseBool("GREENLIGHT_EVENTS_ENABLED", cfg.Events.Enabled)
	cfg.Events.Stream = ParseString("GREENLIGHT_EVENTS_STREAM", cfg.Events.Stream)
	cfg.Events.MaxLen = int64(ParseInt("GREENLIGHT_EVENTS_MAXLEN", int(cfg.Events.MaxLen)))
}
