// SPDX-License-Identifier: MIT

// Package broadcast streams live queue positions to subscribed visitors.
// Push mode drives every subscription from one shared ticker; poll mode is
// the per-connection fallback for small deployments.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/confcache"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/core"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/metrics"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/store"
)

// Update is one status push for one visitor. EstimatedWaitSec is nil when
// the capacity rate is zero and no estimate exists. Found is false exactly
// once, as the terminal "not in any queue" signal.
type Update struct {
	VisitorID        string          `json:"visitorId"`
	Position         int64           `json:"position"`
	AheadCount       int64           `json:"aheadCount"`
	BehindCount      int64           `json:"behindCount"`
	QueueSize        int64           `json:"queueSize"`
	EstimatedWaitSec *float64        `json:"estimatedWaitSec,omitempty"`
	WaitStatus       core.WaitStatus `json:"waitStatus"`
	Found            bool            `json:"found"`
}

// Equal compares two updates by value, dereferencing the ETA.
func (u Update) Equal(o Update) bool {
	if u.VisitorID != o.VisitorID || u.Position != o.Position ||
		u.AheadCount != o.AheadCount || u.BehindCount != o.BehindCount ||
		u.QueueSize != o.QueueSize || u.WaitStatus != o.WaitStatus ||
		u.Found != o.Found {
		return false
	}
	switch {
	case u.EstimatedWaitSec == nil && o.EstimatedWaitSec == nil:
		return true
	case u.EstimatedWaitSec == nil || o.EstimatedWaitSec == nil:
		return false
	default:
		return *u.EstimatedWaitSec == *o.EstimatedWaitSec
	}
}

type subKey struct {
	groupID   string
	visitorID string
}

// Subscription is a live handle on one visitor's status stream. Close must
// be called when the consumer goes away; it is safe to call twice.
type Subscription struct {
	C chan Update

	b    *Broadcaster
	key  subKey
	once sync.Once
}

// Close unregisters the subscription and releases its sink.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.b.unregister(s.key, s)
	})
}

// Config tunes the broadcaster.
type Config struct {
	// PushInterval is the shared tick driving every subscription.
	PushInterval time.Duration
	// PollInterval is the per-connection fallback cadence.
	PollInterval time.Duration
	// CapacityWindow converts an action group's capacity into a rate:
	// capacity admissions per window.
	CapacityWindow time.Duration
}

// Broadcaster owns the subscription registry and the shared push ticker.
type Broadcaster struct {
	cfg     Config
	queues  *store.QueueStore
	configs *confcache.Cache
	logger  zerolog.Logger

	mu   sync.RWMutex
	subs map[subKey][]*Subscription
}

// New creates a broadcaster.
func New(cfg Config, queues *store.QueueStore, configs *confcache.Cache, logger zerolog.Logger) *Broadcaster {
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.CapacityWindow <= 0 {
		cfg.CapacityWindow = 5 * time.Second
	}
	return &Broadcaster{
		cfg:     cfg,
		queues:  queues,
		configs: configs,
		logger:  logger,
		subs:    make(map[subKey][]*Subscription),
	}
}

// Subscribe registers a push-mode subscription for the visitor.
func (b *Broadcaster) Subscribe(actionGroupID, visitorID string) *Subscription {
	key := subKey{groupID: actionGroupID, visitorID: visitorID}
	sub := &Subscription{
		// Buffer one update; a slow consumer loses stale ticks, never
		// blocks the shared ticker.
		C:   make(chan Update, 1),
		b:   b,
		key: key,
	}
	b.mu.Lock()
	b.subs[key] = append(b.subs[key], sub)
	b.mu.Unlock()
	metrics.BroadcastSubscribers.Inc()
	return sub
}

func (b *Broadcaster) unregister(key subKey, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[key]
	for i, s := range list {
		if s == sub {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(b.subs, key)
	} else {
		b.subs[key] = list
	}
	metrics.BroadcastSubscribers.Dec()
}

// Run drives push mode until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.PushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

// tick computes and pushes one update per registered (group, visitor) pair.
// Subscriptions removed mid-iteration are skipped silently.
func (b *Broadcaster) tick(ctx context.Context) {
	b.mu.RLock()
	keys := make([]subKey, 0, len(b.subs))
	for key := range b.subs {
		keys = append(keys, key)
	}
	b.mu.RUnlock()

	for _, key := range keys {
		update, err := b.Compute(ctx, key.groupID, key.visitorID)
		if err != nil {
			b.logger.Warn().Err(err).
				Str("visitor_id", key.visitorID).
				Msg("status computation failed, retrying next tick")
			continue
		}
		b.push(key, update)
		if !update.Found {
			b.closeAll(key)
		}
	}
}

func (b *Broadcaster) push(key subKey, update Update) {
	b.mu.RLock()
	list := append([]*Subscription(nil), b.subs[key]...)
	b.mu.RUnlock()
	for _, sub := range list {
		if !update.Found {
			// The terminal update must land even when a stale tick still
			// occupies the sink: displace it. Only the tick goroutine sends,
			// so the freed slot cannot be refilled in between.
			select {
			case <-sub.C:
			default:
			}
		}
		select {
		case sub.C <- update:
		default:
			// Sink full: drop the stale tick rather than queueing.
			metrics.BroadcastDropsTotal.WithLabelValues("slow_subscriber").Inc()
		}
	}
}

func (b *Broadcaster) closeAll(key subKey) {
	b.mu.RLock()
	list := append([]*Subscription(nil), b.subs[key]...)
	b.mu.RUnlock()
	for _, sub := range list {
		sub.Close()
	}
}

// Compute derives the visitor's current position snapshot from the queue
// store and the owning group's capacity.
func (b *Broadcaster) Compute(ctx context.Context, actionGroupID, visitorID string) (Update, error) {
	update := Update{VisitorID: visitorID}

	group, err := b.configs.ActionGroup(ctx, actionGroupID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return update, err
	}

	for _, probe := range []struct {
		queue  store.QueueStatus
		status core.WaitStatus
	}{
		{store.QueueWaiting, core.StatusWaiting},
		{store.QueueReady, core.StatusReady},
	} {
		rank, err := b.queues.Rank(ctx, actionGroupID, probe.queue, visitorID)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return update, err
		}
		size, err := b.queues.Size(ctx, actionGroupID, probe.queue)
		if err != nil {
			return update, err
		}
		update.Found = true
		update.WaitStatus = probe.status
		update.Position = rank
		update.AheadCount = rank
		update.BehindCount = size - rank - 1
		update.QueueSize = size
		if probe.status == core.StatusWaiting && group != nil && group.Capacity > 0 {
			rate := float64(group.Capacity) / b.cfg.CapacityWindow.Seconds()
			eta := float64(rank) / rate
			update.EstimatedWaitSec = &eta
		}
		return update, nil
	}

	// In neither queue: terminal not-found signal.
	return update, nil
}

// Poll runs the fallback per-connection loop, sending an update whenever the
// snapshot changes, and ends the stream with a terminal not-found update or
// on context cancellation. The returned channel is closed when the loop ends.
func (b *Broadcaster) Poll(ctx context.Context, actionGroupID, visitorID string) <-chan Update {
	out := make(chan Update, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(b.cfg.PollInterval)
		defer ticker.Stop()

		var last *Update
		emit := func() bool {
			update, err := b.Compute(ctx, actionGroupID, visitorID)
			if err != nil {
				b.logger.Warn().Err(err).Str("visitor_id", visitorID).Msg("poll status computation failed")
				return true
			}
			if last != nil && last.Equal(update) {
				return true
			}
			u := update
			last = &u
			select {
			case out <- update:
			case <-ctx.Done():
				return false
			}
			return update.Found
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !emit() {
					return
				}
			}
		}
	}()
	return out
}
