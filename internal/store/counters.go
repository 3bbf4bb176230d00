// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/core"
)

// AdmissionCounter tracks how many visitors were admitted READY per action
// group inside a short fixed window. The counter lives in Redis so every
// service instance sees the same estimate; it is an estimate, not a hard
// limit, because the read and the later increment are separate round-trips.
type AdmissionCounter struct {
	client *redis.Client
	window time.Duration
}

// NewAdmissionCounter creates a counter with the given window size.
func NewAdmissionCounter(client *redis.Client, window time.Duration) *AdmissionCounter {
	if window <= 0 {
		window = 5 * time.Second
	}
	return &AdmissionCounter{client: client, window: window}
}

// Window returns the configured window size.
func (c *AdmissionCounter) Window() time.Duration { return c.window }

func (c *AdmissionCounter) key(actionGroupID string, now time.Time) string {
	bucket := now.UnixMilli() / c.window.Milliseconds()
	return keyPrefix + "admitted:" + actionGroupID + ":" + strconv.FormatInt(bucket, 10)
}

// Incr records one admission in the current window.
func (c *AdmissionCounter) Incr(ctx context.Context, actionGroupID string, now time.Time) error {
	key := c.key(actionGroupID, now)
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*c.window)
	_, err := pipe.Exec(ctx)
	return core.WrapStorage("admission counter incr", err)
}

// Current returns the number of admissions recorded in the current window.
func (c *AdmissionCounter) Current(ctx context.Context, actionGroupID string, now time.Time) (int64, error) {
	v, err := c.client.Get(ctx, c.key(actionGroupID, now)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, core.WrapStorage("admission counter get", err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, core.WrapStorage("admission counter parse", err)
	}
	return n, nil
}
