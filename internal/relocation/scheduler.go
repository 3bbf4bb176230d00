// SPDX-License-Identifier: MIT

// Package relocation promotes visitors from WAITING to READY in arrival
// order, one capacity-bounded batch per tick.
package relocation

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/core"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/log"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/metrics"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/store"
)

// Config tunes the scheduler.
type Config struct {
	// Interval between ticks.
	Interval time.Duration
	// MaxBatch caps promotions per group per tick regardless of capacity
	// headroom (the backpressure budget).
	MaxBatch int64
}

// Scheduler runs the relocation loop.
type Scheduler struct {
	cfg     Config
	configs *store.ConfigStore
	queues  *store.QueueStore
	counter *store.AdmissionCounter
	logger  zerolog.Logger

	running atomic.Bool
	now     func() time.Time
}

// New creates a scheduler.
func New(cfg Config, configs *store.ConfigStore, queues *store.QueueStore, counter *store.AdmissionCounter, logger zerolog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 100
	}
	return &Scheduler{
		cfg:     cfg,
		configs: configs,
		queues:  queues,
		counter: counter,
		logger:  logger,
		now:     time.Now,
	}
}

// Run ticks until ctx is cancelled. A tick that would overlap a still
// running one is skipped; transient failures never stop the loop.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.running.CompareAndSwap(false, true) {
				s.logger.Debug().Msg("relocation tick still in flight, skipping")
				continue
			}
			s.Tick(ctx)
			s.running.Store(false)
		}
	}
}

// Tick relocates one batch for every enabled action group.
func (s *Scheduler) Tick(ctx context.Context) {
	groups, err := s.configs.ActionGroups(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("relocation tick: listing action groups failed")
		return
	}
	for _, group := range groups {
		if !group.Enabled {
			continue
		}
		s.relocateGroup(ctx, &group)
	}
}

// budget computes how many visitors the group may admit this tick: capacity
// headroom after the short-window admissions already granted, capped by the
// backpressure batch size. Over-admission by racing request paths shows up
// in the counter, so the headroom shrinks rather than assuming exactness.
func (s *Scheduler) budget(ctx context.Context, group *core.ActionGroup) int64 {
	n := s.cfg.MaxBatch
	if group.Capacity > 0 {
		admitted, err := s.counter.Current(ctx, group.ID, s.now())
		if err != nil {
			s.logger.Warn().Err(err).Str(log.FieldActionGroupID, group.ID).Msg("admission counter read failed, using zero headroom")
			return 0
		}
		headroom := group.Capacity - admitted
		if headroom <= 0 {
			return 0
		}
		if headroom < n {
			n = headroom
		}
	}
	return n
}

// relocateGroup promotes up to budget members in ascending score order. The
// add happens before the remove: a crash in between leaves the member in
// both sets transiently, which a later tick repairs (the duplicate add is a
// no-op under set semantics and the remove is retried).
func (s *Scheduler) relocateGroup(ctx context.Context, group *core.ActionGroup) {
	logger := s.logger.With().Str(log.FieldActionGroupID, group.ID).Logger()

	budget := s.budget(ctx, group)
	if budget <= 0 {
		return
	}

	members, err := s.queues.RangeLowestScores(ctx, group.ID, store.QueueWaiting, budget)
	if err != nil {
		logger.Warn().Err(err).Msg("relocation range query failed")
		return
	}

	promoted := 0
	for _, member := range members {
		if err := s.queues.Add(ctx, group.ID, store.QueueReady, member.VisitorID, member.Score); err != nil {
			metrics.RelocationFailuresTotal.WithLabelValues(group.ID, "add").Inc()
			logger.Warn().Err(err).Str(log.FieldVisitorID, member.VisitorID).Msg("relocation add failed, skipping member")
			continue
		}
		if err := s.queues.Remove(ctx, group.ID, store.QueueWaiting, member.VisitorID); err != nil {
			metrics.RelocationFailuresTotal.WithLabelValues(group.ID, "remove").Inc()
			logger.Warn().Err(err).Str(log.FieldVisitorID, member.VisitorID).Msg("relocation remove failed, member transiently in both sets")
			continue
		}
		if err := s.counter.Incr(ctx, group.ID, s.now()); err != nil {
			logger.Warn().Err(err).Msg("admission counter update failed")
		}
		promoted++
	}

	if promoted > 0 {
		metrics.RelocationsTotal.WithLabelValues(group.ID).Add(float64(promoted))
		logger.Info().Int("promoted", promoted).Int64("budget", budget).Msg("relocated waiting visitors")
	}

	s.observeDepth(ctx, group.ID)
}

func (s *Scheduler) observeDepth(ctx context.Context, groupID string) {
	for _, status := range []store.QueueStatus{store.QueueWaiting, store.QueueReady} {
		n, err := s.queues.Size(ctx, groupID, status)
		if err != nil {
			continue
		}
		metrics.QueueDepth.WithLabelValues(groupID, string(status)).Set(float64(n))
	}
}
