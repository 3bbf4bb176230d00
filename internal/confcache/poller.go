// SPDX-License-Identifier: MIT

package confcache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/store"
)

// versionSentinel is never a real marker value, so the first tick always
// reconciles against the store.
const versionSentinel = "\x00uninitialized"

// Poller watches the authoritative config version marker and invalidates the
// cache wholesale when it changes.
type Poller struct {
	cache    *Cache
	source   *store.ConfigStore
	interval time.Duration
	logger   zerolog.Logger

	mu          sync.Mutex
	lastVersion string
}

// NewPoller creates a poller over cache and its backing store.
func NewPoller(cache *Cache, source *store.ConfigStore, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Poller{
		cache:       cache,
		source:      source,
		interval:    interval,
		logger:      logger,
		lastVersion: versionSentinel,
	}
}

// Run polls until ctx is cancelled. A failed poll is logged and retried on
// the next tick; the loop never terminates on a transient failure.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	version, err := p.source.Version(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("config version poll failed")
		return
	}
	p.mu.Lock()
	last := p.lastVersion
	p.mu.Unlock()
	if version == last {
		return
	}
	p.cache.InvalidateAll()
	p.logger.Info().
		Str("old_version", displayVersion(last)).
		Str("new_version", displayVersion(version)).
		Msg("config version changed, cache invalidated")
	p.mu.Lock()
	p.lastVersion = version
	p.mu.Unlock()
}

func displayVersion(v string) string {
	if v == versionSentinel {
		return "uninitialized"
	}
	if v == store.VersionUnknown {
		return "unset"
	}
	return v
}

// LastVersion returns the last marker the poller observed, or "" before the
// first successful poll.
func (p *Poller) LastVersion() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastVersion == versionSentinel {
		return ""
	}
	return p.lastVersion
}
