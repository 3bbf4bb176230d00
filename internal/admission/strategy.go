// SPDX-License-Identifier: MIT

package admission

import (
	"context"
	"time"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/core"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/store"
)

// Strategy decides whether a new arrival must wait. The two variants are not
// reconcilable by policy alone, so the choice is explicit and swappable.
type Strategy interface {
	Name() string
	WaitingRequired(ctx context.Context, group *core.ActionGroup) (bool, error)
}

// DrainFirst is the strict-FIFO strategy: a non-empty WAITING queue forces
// every new arrival to wait, so nobody leapfrogs an existing waiter even
// when instantaneous capacity looks free. With an empty queue, a
// short-window admission-rate estimate against the group capacity decides.
type DrainFirst struct {
	Queues  *store.QueueStore
	Counter *store.AdmissionCounter
	Now     func() time.Time
}

// Name implements Strategy.
func (DrainFirst) Name() string { return "drain-first" }

// WaitingRequired implements Strategy.
func (s DrainFirst) WaitingRequired(ctx context.Context, group *core.ActionGroup) (bool, error) {
	waiting, err := s.Queues.Size(ctx, group.ID, store.QueueWaiting)
	if err != nil {
		return false, err
	}
	if waiting > 0 {
		return true, nil
	}
	if group.Capacity <= 0 {
		return false, nil
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	admitted, err := s.Counter.Current(ctx, group.ID, now)
	if err != nil {
		return false, err
	}
	return admitted >= group.Capacity, nil
}

// Occupancy admits until the READY set reaches the group capacity, treating
// capacity as a ceiling on concurrently admitted visitors.
type Occupancy struct {
	Queues *store.QueueStore
}

// Name implements Strategy.
func (Occupancy) Name() string { return "occupancy" }

// WaitingRequired implements Strategy.
func (s Occupancy) WaitingRequired(ctx context.Context, group *core.ActionGroup) (bool, error) {
	if group.Capacity <= 0 {
		return false, nil
	}
	ready, err := s.Queues.Size(ctx, group.ID, store.QueueReady)
	if err != nil {
		return false, err
	}
	return ready >= group.Capacity, nil
}
