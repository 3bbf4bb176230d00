// SPDX-License-Identifier: MIT

// Package token issues, validates and revokes the signed tickets that bind a
// visitor to an admission decision. A ticket is only authoritative while its
// server-side record exists: a signed but revoked ticket fails validation.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/core"
)

const (
	ticketKeyPrefix = "greenlight:ticket:"
	indexKeyPrefix  = "greenlight:ticket:idx:"
)

// Config tunes ticket lifetimes per status. READY and BYPASSED tickets are
// meant to be consumed promptly; WAITING tickets must outlive a plausible
// queue wait.
type Config struct {
	Secret     []byte
	ReadyTTL   time.Duration
	WaitingTTL time.Duration
}

// Service is the ticket issuer/validator backed by Redis metadata.
type Service struct {
	client *redis.Client
	cfg    Config
	logger zerolog.Logger

	now func() time.Time
}

// record is the server-side metadata stored per ticket value.
type record struct {
	VisitorID string          `json:"visitorId"`
	ActionID  string          `json:"actionId"`
	Status    core.WaitStatus `json:"status"`
	IssuedAt  int64           `json:"issuedAt"` // unix millis
}

// NewService creates a ticket service. Secret must be non-empty.
func NewService(client *redis.Client, cfg Config, logger zerolog.Logger) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token: empty signing secret")
	}
	if cfg.ReadyTTL <= 0 {
		cfg.ReadyTTL = 5 * time.Minute
	}
	if cfg.WaitingTTL <= 0 {
		cfg.WaitingTTL = 6 * time.Hour
	}
	return &Service{
		client: client,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}, nil
}

// ttlFor picks the record and signature lifetime for a status.
func (s *Service) ttlFor(status core.WaitStatus) time.Duration {
	if status == core.StatusWaiting {
		return s.cfg.WaitingTTL
	}
	return s.cfg.ReadyTTL
}

// Issue signs a fresh ticket for the visitor and persists its metadata. Any
// live prior ticket for the same (visitor, action) is revoked first, so at
// most one non-expired ticket exists per pair. A storage failure here fails
// the whole admission request: a visitor must never hold a ticket the server
// did not record.
func (s *Service) Issue(ctx context.Context, visitorID core.VisitorID, action *core.Action, status core.WaitStatus, destinationURL string) (*Ticket, error) {
	if action == nil || visitorID.IsZero() {
		return nil, fmt.Errorf("token issue: %w", core.ErrBadRequest)
	}

	if prior, err := s.Lookup(ctx, visitorID); err == nil {
		if err := s.Revoke(ctx, prior); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	now := s.now()
	ttl := s.ttlFor(status)
	claims := Claims{
		VisitorID:      visitorID.String(),
		ActionID:       action.ID,
		ActionGroupID:  action.ActionGroupID,
		DestinationURL: destinationURL,
		Status:         status,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("token sign: %w", err)
	}

	meta, err := json.Marshal(record{
		VisitorID: claims.VisitorID,
		ActionID:  action.ID,
		Status:    status,
		IssuedAt:  now.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("token encode record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, ticketKeyPrefix+value, meta, ttl)
	pipe.Set(ctx, indexKeyPrefix+claims.VisitorID, value, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, core.WrapStorage("token persist", err)
	}

	return &Ticket{Value: value, Claims: claims}, nil
}

// Validate checks signature, expiry and the server-side record. Failure is
// reported as core.ErrInvalidTicket, never as a fatal condition.
func (s *Service) Validate(ctx context.Context, value string) (*Claims, error) {
	if value == "" {
		return nil, fmt.Errorf("empty ticket: %w", core.ErrInvalidTicket)
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(value, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.cfg.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("ticket parse: %w: %w", core.ErrInvalidTicket, err)
	}

	n, err := s.client.Exists(ctx, ticketKeyPrefix+value).Result()
	if err != nil {
		return nil, core.WrapStorage("token record check", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("ticket revoked or unrecorded: %w", core.ErrInvalidTicket)
	}
	return &claims, nil
}

// Revoke deletes the ticket's metadata and its index entry. Idempotent: a
// missing record is not an error.
func (s *Service) Revoke(ctx context.Context, value string) error {
	data, err := s.client.Get(ctx, ticketKeyPrefix+value).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return core.WrapStorage("token revoke lookup", err)
	}

	var rec record
	keys := []string{ticketKeyPrefix + value}
	if err := json.Unmarshal(data, &rec); err == nil && rec.VisitorID != "" {
		keys = append(keys, indexKeyPrefix+rec.VisitorID)
	} else if err != nil {
		s.logger.Warn().Err(err).Msg("undecodable ticket record, deleting value key only")
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return core.WrapStorage("token revoke", err)
	}
	return nil
}

// Lookup resolves the live ticket value for a visitor, or core.ErrNotFound.
func (s *Service) Lookup(ctx context.Context, visitorID core.VisitorID) (string, error) {
	value, err := s.client.Get(ctx, indexKeyPrefix+visitorID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return "", core.ErrNotFound
	}
	if err != nil {
		return "", core.WrapStorage("token index lookup", err)
	}
	return value, nil
}
