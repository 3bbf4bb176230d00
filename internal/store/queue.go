// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/core"
)

// QueueStatus selects one of the two ordered sets an action group owns.
type QueueStatus string

const (
	QueueWaiting QueueStatus = "waiting"
	QueueReady   QueueStatus = "ready"
)

// QueueMember is one (visitor, score) pair from an ordered set.
type QueueMember struct {
	VisitorID string
	Score     float64
}

// QueueStore exposes the ordered-set primitives the admission path and the
// relocation scheduler share. Every method is a single round-trip; no
// multi-key transactions are assumed.
type QueueStore struct {
	client *redis.Client
}

// NewQueueStore wraps an existing Redis client.
func NewQueueStore(client *redis.Client) *QueueStore {
	return &QueueStore{client: client}
}

func queueKey(actionGroupID string, status QueueStatus) string {
	return keyPrefix + "queue:" + actionGroupID + ":" + string(status)
}

// Add inserts the visitor with the given score. Re-adding an existing member
// is a no-op for membership; the score is kept by using ZADD GT=false NX
// semantics via ZAddNX so retried promotions preserve arrival order.
func (s *QueueStore) Add(ctx context.Context, actionGroupID string, status QueueStatus, visitorID string, score float64) error {
	err := s.client.ZAddNX(ctx, queueKey(actionGroupID, status), redis.Z{
		Score:  score,
		Member: visitorID,
	}).Err()
	return core.WrapStorage("queue add", err)
}

// Remove deletes the visitor from the set. Removing an absent member is not
// an error.
func (s *QueueStore) Remove(ctx context.Context, actionGroupID string, status QueueStatus, visitorID string) error {
	err := s.client.ZRem(ctx, queueKey(actionGroupID, status), visitorID).Err()
	return core.WrapStorage("queue remove", err)
}

// Size returns the cardinality of the set.
func (s *QueueStore) Size(ctx context.Context, actionGroupID string, status QueueStatus) (int64, error) {
	n, err := s.client.ZCard(ctx, queueKey(actionGroupID, status)).Result()
	if err != nil {
		return 0, core.WrapStorage("queue size", err)
	}
	return n, nil
}

// Rank returns the 0-based position of the visitor, or core.ErrNotFound when
// the visitor is not a member.
func (s *QueueStore) Rank(ctx context.Context, actionGroupID string, status QueueStatus, visitorID string) (int64, error) {
	rank, err := s.client.ZRank(ctx, queueKey(actionGroupID, status), visitorID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, core.ErrNotFound
	}
	if err != nil {
		return 0, core.WrapStorage("queue rank", err)
	}
	return rank, nil
}

// RangeLowestScores returns up to limit members in ascending score order.
func (s *QueueStore) RangeLowestScores(ctx context.Context, actionGroupID string, status QueueStatus, limit int64) ([]QueueMember, error) {
	if limit <= 0 {
		return nil, nil
	}
	zs, err := s.client.ZRangeWithScores(ctx, queueKey(actionGroupID, status), 0, limit-1).Result()
	if err != nil {
		return nil, core.WrapStorage("queue range", err)
	}
	members := make([]QueueMember, 0, len(zs))
	for _, z := range zs {
		visitorID, ok := z.Member.(string)
		if !ok {
			return nil, core.WrapStorage("queue range", fmt.Errorf("unexpected member type %T", z.Member))
		}
		members = append(members, QueueMember{VisitorID: visitorID, Score: z.Score})
	}
	return members, nil
}

// Score returns the visitor's score, or core.ErrNotFound.
func (s *QueueStore) Score(ctx context.Context, actionGroupID string, status QueueStatus, visitorID string) (float64, error) {
	score, err := s.client.ZScore(ctx, queueKey(actionGroupID, status), visitorID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, core.ErrNotFound
	}
	if err != nil {
		return 0, core.WrapStorage("queue score", err)
	}
	return score, nil
}

// NowScore derives an insertion score from wall-clock time. Millisecond
// resolution keeps scores monotonic enough for practical fairness; ties are
// broken by Redis's lexicographic member order.
func NowScore(now time.Time) float64 {
	return float64(now.UnixMilli())
}
