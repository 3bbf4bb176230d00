// SPDX-License-Identifier: MIT

package admission

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/confcache"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/core"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/store"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/token"
)

type fixture struct {
	mr         *miniredis.Miniredis
	source     *store.ConfigStore
	queues     *store.QueueStore
	counter    *store.AdmissionCounter
	controller *Controller
}

// newFixture wires a controller against miniredis with the drain-first
// strategy and the given group capacity.
func newFixture(t *testing.T, capacity int64, enabled bool) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	source := store.NewConfigStore(client)
	queues := store.NewQueueStore(client)
	counter := store.NewAdmissionCounter(client, 5*time.Second)
	entered := store.NewEnteredMarks(client, 10*time.Minute)
	tokens, err := token.NewService(client, token.Config{Secret: []byte("test-secret")}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, source.Seed(context.Background(),
		&core.Action{
			ID:            "act-1",
			ActionGroupID: "grp-1",
			Name:          "Ticket Sale",
			ResourceURL:   "https://shop.example.com/sale",
			DefaultPolicy: core.PolicyAll,
		},
		&core.ActionGroup{ID: "grp-1", Capacity: capacity, Enabled: enabled},
		"v1"))

	cache := confcache.New(source, time.Minute)
	strategy := DrainFirst{Queues: queues, Counter: counter}
	controller := NewController(cache, queues, tokens, counter, entered, strategy, nil, zerolog.Nop())
	return &fixture{mr: mr, source: source, queues: queues, counter: counter, controller: controller}
}

func (f *fixture) setPolicy(t *testing.T, policy core.RulePolicy, ruleList ...core.ActionRule) {
	t.Helper()
	err := f.source.Seed(context.Background(), &core.Action{
		ID:            "act-1",
		ActionGroupID: "grp-1",
		Name:          "Ticket Sale",
		ResourceURL:   "https://shop.example.com/sale",
		DefaultPolicy: policy,
		Rules:         ruleList,
	}, nil, "v2")
	require.NoError(t, err)
	f.controller.configs.InvalidateAll()
}

func TestCheckOrEnter_AdmitsUnderCapacity(t *testing.T) {
	f := newFixture(t, 10, true)
	ctx := context.Background()

	decision, err := f.controller.CheckOrEnter(ctx, "act-1", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, decision.Status)
	assert.NotEmpty(t, decision.Ticket)
	assert.NotEmpty(t, decision.VisitorID)
	assert.Equal(t, "https://shop.example.com/sale", decision.DestinationURL)

	ready, err := f.queues.Size(ctx, "grp-1", store.QueueReady)
	require.NoError(t, err)
	assert.EqualValues(t, 1, ready)
}

func TestCheckOrEnter_QueuesOverCapacity(t *testing.T) {
	f := newFixture(t, 2, true)
	ctx := context.Background()

	// Two admissions exhaust the window budget; the third waits.
	for i := 0; i < 2; i++ {
		decision, err := f.controller.CheckOrEnter(ctx, "act-1", "", "", nil)
		require.NoError(t, err)
		require.Equal(t, core.StatusReady, decision.Status)
	}

	decision, err := f.controller.CheckOrEnter(ctx, "act-1", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, core.StatusWaiting, decision.Status)
	assert.NotEmpty(t, decision.Ticket, "waiting visitors still get a ticket")

	waiting, err := f.queues.Size(ctx, "grp-1", store.QueueWaiting)
	require.NoError(t, err)
	assert.EqualValues(t, 1, waiting)
}

func TestCheckOrEnter_NonEmptyQueueForcesWait(t *testing.T) {
	f := newFixture(t, 100, true)
	ctx := context.Background()

	// A pre-existing waiter means nobody leapfrogs, capacity notwithstanding.
	require.NoError(t, f.queues.Add(ctx, "grp-1", store.QueueWaiting, "act-1:earlier", 10))

	decision, err := f.controller.CheckOrEnter(ctx, "act-1", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, core.StatusWaiting, decision.Status)
}

func TestCheckOrEnter_DisabledGroup(t *testing.T) {
	f := newFixture(t, 10, false)

	decision, err := f.controller.CheckOrEnter(context.Background(), "act-1", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, core.StatusDisabled, decision.Status)
	assert.Empty(t, decision.Ticket, "disabled actions issue no ticket")
	assert.Empty(t, decision.VisitorID)
}

func TestCheckOrEnter_UnknownAction(t *testing.T) {
	f := newFixture(t, 10, true)

	_, err := f.controller.CheckOrEnter(context.Background(), "absent", "", "", nil)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.controller.CheckOrEnter(context.Background(), "", "", "", nil)
	assert.ErrorIs(t, err, core.ErrBadRequest)
}

func TestCheckOrEnter_ExcludeRuleBypasses(t *testing.T) {
	f := newFixture(t, 10, true)
	ctx := context.Background()
	f.setPolicy(t, core.PolicyExclude,
		core.ActionRule{Seq: 1, ParamName: "vip", Value: "true", Operator: core.OpEqual})

	decision, err := f.controller.CheckOrEnter(ctx, "act-1", "", "", map[string]string{"vip": "true"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusBypassed, decision.Status)
	assert.NotEmpty(t, decision.Ticket)

	// Bypassed visitors never enter a queue.
	ready, err := f.queues.Size(ctx, "grp-1", store.QueueReady)
	require.NoError(t, err)
	assert.EqualValues(t, 0, ready)

	// Without the matching param the same action queues normally.
	decision, err = f.controller.CheckOrEnter(ctx, "act-1", "", "", map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, decision.Status)
}

func TestCheckOrEnter_ReturningVisitorKeepsIdentity(t *testing.T) {
	f := newFixture(t, 1, true)
	ctx := context.Background()

	first, err := f.controller.CheckOrEnter(ctx, "act-1", "", "", nil)
	require.NoError(t, err)
	require.Equal(t, core.StatusReady, first.Status)

	// The re-check with the issued ticket keeps the identity and the READY
	// membership even though the window budget is now exhausted.
	second, err := f.controller.CheckOrEnter(ctx, "act-1", "", first.Ticket, nil)
	require.NoError(t, err)
	assert.Equal(t, first.VisitorID, second.VisitorID)
	assert.Equal(t, core.StatusReady, second.Status)
	assert.NotEmpty(t, second.Ticket)

	ready, err := f.queues.Size(ctx, "grp-1", store.QueueReady)
	require.NoError(t, err)
	assert.EqualValues(t, 1, ready, "re-check must not duplicate membership")
}

func TestCheckOrEnter_RecheckLeavesBudgetIntact(t *testing.T) {
	f := newFixture(t, 2, true)
	ctx := context.Background()

	first, err := f.controller.CheckOrEnter(ctx, "act-1", "", "", nil)
	require.NoError(t, err)
	require.Equal(t, core.StatusReady, first.Status)

	// Repeated re-checks by the admitted visitor must not consume window
	// budget meant for fresh admissions.
	ticket := first.Ticket
	for i := 0; i < 3; i++ {
		decision, err := f.controller.CheckOrEnter(ctx, "act-1", "", ticket, nil)
		require.NoError(t, err)
		require.Equal(t, core.StatusReady, decision.Status)
		ticket = decision.Ticket
	}

	second, err := f.controller.CheckOrEnter(ctx, "act-1", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, second.Status, "one admission happened, one budget slot must remain")
}

func TestCheckOrEnter_GarbageTicketMintsFreshVisitor(t *testing.T) {
	f := newFixture(t, 10, true)

	decision, err := f.controller.CheckOrEnter(context.Background(), "act-1", "", "not-a-ticket", nil)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, decision.Status)
	assert.NotEmpty(t, decision.VisitorID)
}

func TestCheckOrEnter_DestinationOverride(t *testing.T) {
	f := newFixture(t, 10, true)

	decision, err := f.controller.CheckOrEnter(context.Background(), "act-1", "https://shop.example.com/custom", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/custom", decision.DestinationURL)
}

func TestVerify(t *testing.T) {
	f := newFixture(t, 10, true)
	ctx := context.Background()

	decision, err := f.controller.CheckOrEnter(ctx, "act-1", "", "", nil)
	require.NoError(t, err)
	require.Equal(t, core.StatusReady, decision.Status)

	v, err := f.controller.Verify(ctx, decision.VisitorID)
	require.NoError(t, err)
	assert.True(t, v.Verified)
	assert.Equal(t, "grp-1", v.ActionGroupID)

	// Entry consumed the READY membership.
	ready, err := f.queues.Size(ctx, "grp-1", store.QueueReady)
	require.NoError(t, err)
	assert.EqualValues(t, 0, ready)

	// The entered marker keeps a repeated verify truthful.
	v, err = f.controller.Verify(ctx, decision.VisitorID)
	require.NoError(t, err)
	assert.True(t, v.Verified)
}

func TestVerify_WaitingVisitor(t *testing.T) {
	f := newFixture(t, 10, true)
	ctx := context.Background()

	require.NoError(t, f.queues.Add(ctx, "grp-1", store.QueueWaiting, "act-1:waiter", 10))

	v, err := f.controller.Verify(ctx, "act-1:waiter")
	require.NoError(t, err)
	assert.False(t, v.Verified)
	assert.Equal(t, "still waiting", v.Reason)
}

func TestVerify_Unknown(t *testing.T) {
	f := newFixture(t, 10, true)

	_, err := f.controller.Verify(context.Background(), "act-1:nobody")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.controller.Verify(context.Background(), "garbage")
	assert.ErrorIs(t, err, core.ErrBadRequest)
}

func TestControllerStrategyName(t *testing.T) {
	f := newFixture(t, 10, true)
	assert.Equal(t, "drain-first", f.controller.Strategy())
}

func TestOccupancyStrategy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	queues := store.NewQueueStore(client)
	ctx := context.Background()
	group := &core.ActionGroup{ID: "grp-1", Capacity: 2, Enabled: true}

	s := Occupancy{Queues: queues}
	required, err := s.WaitingRequired(ctx, group)
	require.NoError(t, err)
	assert.False(t, required)

	require.NoError(t, queues.Add(ctx, "grp-1", store.QueueReady, "act-1:a", 1))
	require.NoError(t, queues.Add(ctx, "grp-1", store.QueueReady, "act-1:b", 2))

	required, err = s.WaitingRequired(ctx, group)
	require.NoError(t, err)
	assert.True(t, required, "occupancy at capacity must queue new arrivals")

	// Zero capacity disables the ceiling.
	required, err = s.WaitingRequired(ctx, &core.ActionGroup{ID: "grp-1", Capacity: 0})
	require.NoError(t, err)
	assert.False(t, required)
}
