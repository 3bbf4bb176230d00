// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/core"
)

// EnteredMarks records visitors who completed verification. The READY entry
// is removed on entry so the set stays bounded; the marker lets repeated
// verification calls stay truthful until it expires.
type EnteredMarks struct {
	client *redis.Client
	ttl    time.Duration
}

// NewEnteredMarks creates the marker store with the given retention.
func NewEnteredMarks(client *redis.Client, ttl time.Duration) *EnteredMarks {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &EnteredMarks{client: client, ttl: ttl}
}

func enteredKey(visitorID string) string {
	return keyPrefix + "entered:" + visitorID
}

// Mark records that the visitor entered.
func (m *EnteredMarks) Mark(ctx context.Context, visitorID string) error {
	err := m.client.Set(ctx, enteredKey(visitorID), time.Now().UnixMilli(), m.ttl).Err()
	return core.WrapStorage("entered mark", err)
}

// Entered reports whether a live marker exists for the visitor.
func (m *EnteredMarks) Entered(ctx context.Context, visitorID string) (bool, error) {
	n, err := m.client.Exists(ctx, enteredKey(visitorID)).Result()
	if err != nil {
		return false, core.WrapStorage("entered check", err)
	}
	return n > 0, nil
}
