// SPDX-License-Identifier: MIT

// Package events publishes best-effort admission events for analytics. A
// failed or over-rate publish is counted and logged, never surfaced to the
// admission path.
package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/core"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/metrics"
)

// Event is one admission outcome worth recording.
type Event struct {
	ActionID      string
	ActionGroupID string
	VisitorID     string
	Status        core.WaitStatus
	At            time.Time
}

// Publisher is the analytics sink abstraction.
type Publisher interface {
	// Publish records the event. Implementations must not block the caller
	// beyond a local admission check and must swallow failures.
	Publish(ctx context.Context, ev Event)
}

// StreamPublisher appends events to a capped Redis stream. Publishing is
// fire-and-forget: the write happens on a separate goroutine and a local
// rate limiter sheds load before it reaches Redis.
type StreamPublisher struct {
	client  *redis.Client
	stream  string
	maxLen  int64
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewStreamPublisher creates a publisher writing to stream, trimming it to
// roughly maxLen entries. publishRate bounds events per second.
func NewStreamPublisher(client *redis.Client, stream string, maxLen int64, publishRate float64, logger zerolog.Logger) *StreamPublisher {
	if stream == "" {
		stream = "greenlight:events"
	}
	if maxLen <= 0 {
		maxLen = 100_000
	}
	if publishRate <= 0 {
		publishRate = 500
	}
	return &StreamPublisher{
		client:  client,
		stream:  stream,
		maxLen:  maxLen,
		limiter: rate.NewLimiter(rate.Limit(publishRate), int(publishRate)),
		logger:  logger,
	}
}

// Publish appends the event to the stream without blocking the caller.
func (p *StreamPublisher) Publish(ctx context.Context, ev Event) {
	if !p.limiter.Allow() {
		metrics.EventsDroppedTotal.WithLabelValues("rate_limited").Inc()
		return
	}
	go func() {
		// Detached from the request context: the event outlives the request.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		err := p.client.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: p.maxLen,
			Approx: true,
			Values: map[string]any{
				"actionId":      ev.ActionID,
				"actionGroupId": ev.ActionGroupID,
				"visitorId":     ev.VisitorID,
				"status":        string(ev.Status),
				"at":            ev.At.UnixMilli(),
			},
		}).Err()
		if err != nil {
			metrics.EventsDroppedTotal.WithLabelValues("publish_error").Inc()
			p.logger.Warn().Err(err).Str("stream", p.stream).Msg("admission event publish failed")
		}
	}()
}

// NopPublisher drops every event. Used when analytics are disabled.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) {}
