// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader resolves configuration with precedence ENV > file > defaults.
type Loader struct {
	path string
}

// NewLoader creates a loader; path may be empty for env+defaults only.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load resolves and validates the configuration.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Missing file is fine; env and defaults apply.
		case err != nil:
			return Config{}, fmt.Errorf("read config file %s: %w", l.path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", l.path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func Validate(cfg *Config) error {
	if cfg.ListenAddr == "" {
		return errors.New("config: listenAddr must not be empty")
	}
	if cfg.Redis.Addr == "" {
		return errors.New("config: redis.addr must not be empty")
	}
	if cfg.TokenSecret == "" {
		return errors.New("config: tokenSecret must be set (GREENLIGHT_TOKEN_SECRET)")
	}
	switch cfg.AdmissionStrategy {
	case "drain-first", "occupancy":
	default:
		return fmt.Errorf("config: unknown admission strategy %q", cfg.AdmissionStrategy)
	}
	switch cfg.BroadcastMode {
	case "push", "poll":
	default:
		return fmt.Errorf("config: unknown broadcast mode %q", cfg.BroadcastMode)
	}
	if cfg.RelocationMaxBatch <= 0 {
		return errors.New("config: relocationMaxBatch must be positive")
	}
	return nil
}
