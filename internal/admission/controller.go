// SPDX-License-Identifier: MIT

// Package admission orchestrates the config cache, rule matcher, queue store
// and token service to answer "wait or proceed" for one request, and to
// verify that a visitor is currently allowed through.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/confcache"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/core"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/events"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/log"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/metrics"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/rules"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/store"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/token"
)

// Decision is the outcome of one check-or-enter call.
type Decision struct {
	ActionID       string          `json:"actionId"`
	ActionGroupID  string          `json:"actionGroupId"`
	VisitorID      string          `json:"visitorId,omitempty"`
	DestinationURL string          `json:"destinationUrl,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	Status         core.WaitStatus `json:"waitStatus"`
	Ticket         string          `json:"ticket,omitempty"`
}

// Verification is the outcome of one verify call.
type Verification struct {
	Verified      bool   `json:"verified"`
	ActionID      string `json:"actionId"`
	ActionGroupID string `json:"actionGroupId"`
	Reason        string `json:"reason,omitempty"`
}

// Controller wires the admission collaborators together.
type Controller struct {
	configs   *confcache.Cache
	queues    *store.QueueStore
	tokens    *token.Service
	counter   *store.AdmissionCounter
	entered   *store.EnteredMarks
	strategy  Strategy
	publisher events.Publisher
	logger    zerolog.Logger

	now func() time.Time
}

// NewController builds a controller. publisher may be nil for no analytics.
func NewController(
	configs *confcache.Cache,
	queues *store.QueueStore,
	tokens *token.Service,
	counter *store.AdmissionCounter,
	entered *store.EnteredMarks,
	strategy Strategy,
	publisher events.Publisher,
	logger zerolog.Logger,
) *Controller {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Controller{
		configs:   configs,
		queues:    queues,
		tokens:    tokens,
		counter:   counter,
		entered:   entered,
		strategy:  strategy,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// CheckOrEnter decides whether the visitor may proceed or must wait, issues
// the ticket recording that decision, and registers queue membership.
func (c *Controller) CheckOrEnter(ctx context.Context, actionID, destinationURL, existingTicket string, params map[string]string) (*Decision, error) {
	if actionID == "" {
		return nil, fmt.Errorf("missing action id: %w", core.ErrBadRequest)
	}
	logger := log.WithComponentFromContext(ctx, "admission")

	action, err := c.configs.Action(ctx, actionID)
	if err != nil {
		return nil, err
	}
	group, err := c.configs.ActionGroup(ctx, action.ActionGroupID)
	if err != nil {
		return nil, err
	}

	now := c.now()
	if !group.Enabled {
		metrics.IncAdmission("disabled")
		return &Decision{
			ActionID:      action.ID,
			ActionGroupID: group.ID,
			Timestamp:     now,
			Status:        core.StatusDisabled,
		}, nil
	}

	visitorID, returning := c.resolveVisitor(ctx, actionID, existingTicket, logger)
	if visitorID.IsZero() {
		visitorID, err = core.NewVisitorID(actionID)
		if err != nil {
			return nil, err
		}
	}

	if destinationURL == "" {
		destinationURL = action.LandingDest
		if destinationURL == "" {
			destinationURL = action.ResourceURL
		}
	}

	if !rules.IsSubjectToQueue(action, params) {
		return c.finish(ctx, action, group, visitorID, destinationURL, core.StatusBypassed, false, now)
	}

	status, preexisting, err := c.statusFor(ctx, group, visitorID, returning)
	if err != nil {
		return nil, err
	}
	return c.finish(ctx, action, group, visitorID, destinationURL, status, preexisting, now)
}

// resolveVisitor reuses the visitor identity from a valid ticket for the
// same action. Anything else gets a fresh identity; an invalid ticket is an
// informational event, not a failure.
func (c *Controller) resolveVisitor(ctx context.Context, actionID, existingTicket string, logger zerolog.Logger) (core.VisitorID, bool) {
	if existingTicket == "" {
		return core.VisitorID{}, false
	}
	claims, err := c.tokens.Validate(ctx, existingTicket)
	if err != nil {
		logger.Info().Err(err).Msg("presented ticket invalid, minting new visitor")
		return core.VisitorID{}, false
	}
	if claims.ActionID != actionID {
		logger.Info().
			Str("ticket_action", claims.ActionID).
			Str(log.FieldActionID, actionID).
			Msg("ticket bound to another action, minting new visitor")
		return core.VisitorID{}, false
	}
	visitorID, err := core.ParseVisitorID(claims.VisitorID)
	if err != nil {
		logger.Warn().Err(err).Msg("ticket carries malformed visitor id")
		return core.VisitorID{}, false
	}
	return visitorID, true
}

// statusFor keeps a returning visitor's existing membership, otherwise asks
// the strategy. Promotion stays a transfer: a visitor already READY is never
// re-queued as WAITING. The second return reports whether the membership
// already existed, so re-checks do not count as fresh admissions.
func (c *Controller) statusFor(ctx context.Context, group *core.ActionGroup, visitorID core.VisitorID, returning bool) (core.WaitStatus, bool, error) {
	if returning {
		if _, err := c.queues.Rank(ctx, group.ID, store.QueueReady, visitorID.String()); err == nil {
			return core.StatusReady, true, nil
		} else if !errors.Is(err, core.ErrNotFound) {
			return "", false, err
		}
		if _, err := c.queues.Rank(ctx, group.ID, store.QueueWaiting, visitorID.String()); err == nil {
			return core.StatusWaiting, true, nil
		} else if !errors.Is(err, core.ErrNotFound) {
			return "", false, err
		}
	}
	required, err := c.strategy.WaitingRequired(ctx, group)
	if err != nil {
		return "", false, err
	}
	if required {
		return core.StatusWaiting, false, nil
	}
	return core.StatusReady, false, nil
}

// finish issues the ticket, registers queue membership and emits the
// admission event. Ticket issuance is the one step whose storage failure
// fails the whole request. Only fresh READY decisions consume window budget;
// a preexisting membership was counted when it was granted.
func (c *Controller) finish(ctx context.Context, action *core.Action, group *core.ActionGroup, visitorID core.VisitorID, destinationURL string, status core.WaitStatus, preexisting bool, now time.Time) (*Decision, error) {
	ticket, err := c.tokens.Issue(ctx, visitorID, action, status, destinationURL)
	if err != nil {
		return nil, err
	}

	if status.Queued() {
		queue := store.QueueWaiting
		if status == core.StatusReady {
			queue = store.QueueReady
		}
		if err := c.queues.Add(ctx, group.ID, queue, visitorID.String(), store.NowScore(now)); err != nil {
			return nil, err
		}
	}

	if status == core.StatusReady && !preexisting {
		if err := c.counter.Incr(ctx, group.ID, now); err != nil {
			// Estimate only; the decision stands.
			c.logger.Warn().Err(err).Str(log.FieldActionGroupID, group.ID).Msg("admission counter update failed")
		}
	}

	metrics.IncAdmission(string(status))
	c.publisher.Publish(ctx, events.Event{
		ActionID:      action.ID,
		ActionGroupID: group.ID,
		VisitorID:     visitorID.String(),
		Status:        status,
		At:            now,
	})

	return &Decision{
		ActionID:       action.ID,
		ActionGroupID:  group.ID,
		VisitorID:      visitorID.String(),
		DestinationURL: destinationURL,
		Timestamp:      now,
		Status:         status,
		Ticket:         ticket.Value,
	}, nil
}

// Verify reports whether the visitor is currently allowed through. READY
// membership verifies and consumes the queue entry (the visitor enters);
// a live entered marker keeps later calls truthful. WAITING visitors are
// not verified; everyone else is unknown.
func (c *Controller) Verify(ctx context.Context, rawVisitorID string) (*Verification, error) {
	visitorID, err := core.ParseVisitorID(rawVisitorID)
	if err != nil {
		return nil, err
	}
	action, err := c.configs.Action(ctx, visitorID.ActionID)
	if err != nil {
		return nil, err
	}
	groupID := action.ActionGroupID
	result := &Verification{ActionID: action.ID, ActionGroupID: groupID}

	if _, err := c.queues.Rank(ctx, groupID, store.QueueReady, rawVisitorID); err == nil {
		if err := c.queues.Remove(ctx, groupID, store.QueueReady, rawVisitorID); err != nil {
			return nil, err
		}
		if err := c.entered.Mark(ctx, rawVisitorID); err != nil {
			c.logger.Warn().Err(err).Str(log.FieldVisitorID, rawVisitorID).Msg("entered marker write failed")
		}
		c.publisher.Publish(ctx, events.Event{
			ActionID:      action.ID,
			ActionGroupID: groupID,
			VisitorID:     rawVisitorID,
			Status:        core.StatusEntered,
			At:            c.now(),
		})
		result.Verified = true
		return result, nil
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	if entered, err := c.entered.Entered(ctx, rawVisitorID); err != nil {
		return nil, err
	} else if entered {
		result.Verified = true
		return result, nil
	}

	if _, err := c.queues.Rank(ctx, groupID, store.QueueWaiting, rawVisitorID); err == nil {
		result.Reason = "still waiting"
		return result, nil
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	return nil, fmt.Errorf("visitor %s already entered or unknown: %w", rawVisitorID, core.ErrNotFound)
}

// Strategy exposes the active admission strategy name for diagnostics.
func (c *Controller) Strategy() string {
	return c.strategy.Name()
}
