// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/core"
)

// ConfigStore reads action and action-group records plus the version marker
// the admin plane bumps on every edit. This service never writes records;
// test fixtures seed them directly.
type ConfigStore struct {
	client *redis.Client
}

// NewConfigStore wraps an existing Redis client.
func NewConfigStore(client *redis.Client) *ConfigStore {
	return &ConfigStore{client: client}
}

const (
	actionKeyPrefix      = keyPrefix + "config:action:"
	actionGroupKeyPrefix = keyPrefix + "config:actiongroup:"
	actionIndexKey       = keyPrefix + "config:actions"
	versionKey           = keyPrefix + "config:version"

	// VersionUnknown is the sentinel the invalidation poller starts from so
	// its first tick always reconciles.
	VersionUnknown = ""
)

// Action fetches one action record by id.
func (s *ConfigStore) Action(ctx context.Context, actionID string) (*core.Action, error) {
	data, err := s.client.Get(ctx, actionKeyPrefix+actionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("action %s: %w", actionID, core.ErrNotFound)
	}
	if err != nil {
		return nil, core.WrapStorage("config get action", err)
	}
	var action core.Action
	if err := json.Unmarshal(data, &action); err != nil {
		return nil, core.WrapStorage("config decode action", err)
	}
	return &action, nil
}

// ActionGroup fetches one action-group record by id.
func (s *ConfigStore) ActionGroup(ctx context.Context, actionGroupID string) (*core.ActionGroup, error) {
	data, err := s.client.Get(ctx, actionGroupKeyPrefix+actionGroupID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("action group %s: %w", actionGroupID, core.ErrNotFound)
	}
	if err != nil {
		return nil, core.WrapStorage("config get action group", err)
	}
	var group core.ActionGroup
	if err := json.Unmarshal(data, &group); err != nil {
		return nil, core.WrapStorage("config decode action group", err)
	}
	return &group, nil
}

// Actions lists every action record, for the config snapshot endpoint.
func (s *ConfigStore) Actions(ctx context.Context) ([]core.Action, error) {
	ids, err := s.client.SMembers(ctx, actionIndexKey).Result()
	if err != nil {
		return nil, core.WrapStorage("config list actions", err)
	}
	actions := make([]core.Action, 0, len(ids))
	for _, id := range ids {
		action, err := s.Action(ctx, id)
		if errors.Is(err, core.ErrNotFound) {
			continue // index ahead of a deleted record
		}
		if err != nil {
			return nil, err
		}
		actions = append(actions, *action)
	}
	return actions, nil
}

// ActionGroups lists every distinct action group referenced by an action.
// The relocation scheduler iterates this set each tick.
func (s *ConfigStore) ActionGroups(ctx context.Context) ([]core.ActionGroup, error) {
	actions, err := s.Actions(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(actions))
	groups := make([]core.ActionGroup, 0, len(actions))
	for _, action := range actions {
		if _, ok := seen[action.ActionGroupID]; ok {
			continue
		}
		seen[action.ActionGroupID] = struct{}{}
		group, err := s.ActionGroup(ctx, action.ActionGroupID)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		groups = append(groups, *group)
	}
	return groups, nil
}

// Version returns the authoritative config version marker. A missing marker
// reads as VersionUnknown.
func (s *ConfigStore) Version(ctx context.Context) (string, error) {
	v, err := s.client.Get(ctx, versionKey).Result()
	if errors.Is(err, redis.Nil) {
		return VersionUnknown, nil
	}
	if err != nil {
		return VersionUnknown, core.WrapStorage("config version", err)
	}
	return v, nil
}

// Seed writes an action, its group and the version marker. Test and local
// bootstrap helper; the admin plane owns these records in production.
func (s *ConfigStore) Seed(ctx context.Context, action *core.Action, group *core.ActionGroup, version string) error {
	if action != nil {
		data, err := json.Marshal(action)
		if err != nil {
			return fmt.Errorf("seed action: %w", err)
		}
		if err := s.client.Set(ctx, actionKeyPrefix+action.ID, data, 0).Err(); err != nil {
			return core.WrapStorage("seed action", err)
		}
		if err := s.client.SAdd(ctx, actionIndexKey, action.ID).Err(); err != nil {
			return core.WrapStorage("seed action index", err)
		}
	}
	if group != nil {
		data, err := json.Marshal(group)
		if err != nil {
			return fmt.Errorf("seed action group: %w", err)
		}
		if err := s.client.Set(ctx, actionGroupKeyPrefix+group.ID, data, 0).Err(); err != nil {
			return core.WrapStorage("seed action group", err)
		}
	}
	if version != "" {
		if err := s.client.Set(ctx, versionKey, version, 0).Err(); err != nil {
			return core.WrapStorage("seed version", err)
		}
	}
	return nil
}
