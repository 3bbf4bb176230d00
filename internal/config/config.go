// SPDX-License-Identifier: MIT

// Package config loads service configuration with precedence
// ENV > YAML file > defaults.
package config

import (
	"time"
)

// RedisConfig is the shared-store connection block.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EventsConfig controls the best-effort analytics sink.
type EventsConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Stream      string  `yaml:"stream"`
	MaxLen      int64   `yaml:"maxLen"`
	PublishRate float64 `yaml:"publishRate"`
}

// Config is the full service configuration.
type Config struct {
	ListenAddr string `yaml:"listenAddr"`
	LogLevel   string `yaml:"logLevel"`

	Redis RedisConfig `yaml:"redis"`

	TokenSecret string        `yaml:"tokenSecret"`
	ReadyTTL    time.Duration `yaml:"readyTTL"`
	WaitingTTL  time.Duration `yaml:"waitingTTL"`
	EnteredTTL  time.Duration `yaml:"enteredTTL"`

	ConfigCacheTTL     time.Duration `yaml:"configCacheTTL"`
	ConfigPollInterval time.Duration `yaml:"configPollInterval"`

	AdmissionStrategy string        `yaml:"admissionStrategy"` // "drain-first" or "occupancy"
	AdmissionWindow   time.Duration `yaml:"admissionWindow"`

	RelocationInterval time.Duration `yaml:"relocationInterval"`
	RelocationMaxBatch int64         `yaml:"relocationMaxBatch"`

	BroadcastMode      string        `yaml:"broadcastMode"` // "push" or "poll"
	PushInterval       time.Duration `yaml:"pushInterval"`
	StatusPollInterval time.Duration `yaml:"statusPollInterval"`

	RateLimitPerMinute int      `yaml:"rateLimitPerMinute"`
	AllowedOrigins     []string `yaml:"allowedOrigins"`

	Events EventsConfig `yaml:"events"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		ReadyTTL:           5 * time.Minute,
		WaitingTTL:         6 * time.Hour,
		EnteredTTL:         10 * time.Minute,
		ConfigCacheTTL:     30 * time.Second,
		ConfigPollInterval: 10 * time.Second,
		AdmissionStrategy:  "drain-first",
		AdmissionWindow:    5 * time.Second,
		RelocationInterval: 3 * time.Second,
		RelocationMaxBatch: 100,
		BroadcastMode:      "push",
		PushInterval:       time.Second,
		StatusPollInterval: 3 * time.Second,
		RateLimitPerMinute: 600,
		Events: EventsConfig{
			Enabled:     true,
			Stream:      "greenlight:events",
			MaxLen:      100_000,
			PublishRate: 500,
		},
	}
}
