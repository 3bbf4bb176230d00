// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/admission"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/broadcast"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/confcache"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/config"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/core"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/health"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/store"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/token"
)

type fixture struct {
	mr     *miniredis.Miniredis
	queues *store.QueueStore
	source *store.ConfigStore
	router http.Handler
}

// newFixture wires the full HTTP surface against miniredis, poll-mode stream
// and the drain-first strategy.
func newFixture(t *testing.T, capacity int64) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Default()
	cfg.TokenSecret = "test-secret"
	cfg.BroadcastMode = "poll"
	cfg.StatusPollInterval = 10 * time.Millisecond

	source := store.NewConfigStore(client)
	require.NoError(t, source.Seed(context.Background(),
		&core.Action{
			ID:            "act-1",
			ActionGroupID: "grp-1",
			Name:          "Ticket Sale",
			ResourceURL:   "https://shop.example.com/sale",
			DefaultPolicy: core.PolicyAll,
		},
		&core.ActionGroup{ID: "grp-1", Capacity: capacity, Enabled: true},
		"v1"))

	cache := confcache.New(source, time.Minute)
	queues := store.NewQueueStore(client)
	counter := store.NewAdmissionCounter(client, cfg.AdmissionWindow)
	entered := store.NewEnteredMarks(client, cfg.EnteredTTL)
	tokens, err := token.NewService(client, token.Config{Secret: []byte(cfg.TokenSecret)}, zerolog.Nop())
	require.NoError(t, err)

	controller := admission.NewController(cache, queues, tokens, counter, entered,
		admission.DrainFirst{Queues: queues, Counter: counter}, nil, zerolog.Nop())
	broadcaster := broadcast.New(broadcast.Config{
		PollInterval:   cfg.StatusPollInterval,
		CapacityWindow: cfg.AdmissionWindow,
	}, queues, cache, zerolog.Nop())

	healthMgr := health.NewManager("test")
	healthMgr.RegisterChecker(health.NewRedisChecker(client))

	server := NewServer(cfg, controller, broadcaster, cache, source, healthMgr, zerolog.Nop())
	return &fixture{mr: mr, queues: queues, source: source, router: server.Router()}
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) enter(t *testing.T) admission.Decision {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/actions/act-1/enter", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var decision admission.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	return decision
}

func TestEnter(t *testing.T) {
	f := newFixture(t, 10)

	decision := f.enter(t)
	assert.Equal(t, "act-1", decision.ActionID)
	assert.Equal(t, core.StatusReady, decision.Status)
	assert.NotEmpty(t, decision.Ticket)
	assert.NotEmpty(t, decision.VisitorID)
	assert.Equal(t, "https://shop.example.com/sale", decision.DestinationURL)
}

func TestEnter_UnknownAction(t *testing.T) {
	f := newFixture(t, 10)

	rec := f.do(t, http.MethodPost, "/api/v1/actions/absent/enter", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnter_MalformedBody(t *testing.T) {
	f := newFixture(t, 10)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/actions/act-1/enter", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnter_QueryParamsFeedRules(t *testing.T) {
	f := newFixture(t, 10)
	require.NoError(t, f.source.Seed(context.Background(), &core.Action{
		ID:            "act-2",
		ActionGroupID: "grp-1",
		ResourceURL:   "https://shop.example.com/sale",
		DefaultPolicy: core.PolicyExclude,
		Rules:         []core.ActionRule{{Seq: 1, ParamName: "vip", Value: "true", Operator: core.OpEqual}},
	}, nil, "v2"))

	rec := f.do(t, http.MethodPost, "/api/v1/actions/act-2/enter?vip=true", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var decision admission.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.Equal(t, core.StatusBypassed, decision.Status)
}

func TestEnter_BearerTicketReused(t *testing.T) {
	f := newFixture(t, 10)
	first := f.enter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/actions/act-1/enter", nil)
	req.Header.Set("Authorization", "Bearer "+first.Ticket)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var second admission.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, first.VisitorID, second.VisitorID)
}

func TestVerify(t *testing.T) {
	f := newFixture(t, 10)
	decision := f.enter(t)

	rec := f.do(t, http.MethodGet, "/api/v1/visitors/"+decision.VisitorID+"/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var verification admission.Verification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verification))
	assert.True(t, verification.Verified)
}

func TestVerify_Unknown(t *testing.T) {
	f := newFixture(t, 10)

	rec := f.do(t, http.MethodGet, "/api/v1/visitors/act-1:nobody/verify", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/visitors/garbage/verify", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t, 10)

	rec := f.do(t, http.MethodGet, "/api/v1/config/snapshot", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap snapshotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "active", snap.SystemStatus)
	assert.Equal(t, "v1", snap.Version)
	require.Len(t, snap.Actions, 1)
	assert.Equal(t, "act-1", snap.Actions[0].ID)

	// A client already on the current version gets 304.
	rec = f.do(t, http.MethodGet, "/api/v1/config/snapshot?version=v1", nil)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/config/snapshot?version=stale", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusStream_PollMode(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	require.NoError(t, f.queues.Add(ctx, "grp-1", store.QueueWaiting, "act-1:wa", 10))
	require.NoError(t, f.queues.Add(ctx, "grp-1", store.QueueWaiting, "act-1:wb", 20))

	reqCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/visitors/act-1:wb/status", nil).WithContext(reqCtx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.router.ServeHTTP(rec, req)
	}()

	// The first snapshot arrives immediately; removing the visitor ends the
	// stream with the terminal update.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, f.queues.Remove(ctx, "grp-1", store.QueueWaiting, "act-1:wb"))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("status stream did not terminate")
	}

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, `"position":1`)
	assert.Contains(t, body, `"found":false`)
}

func TestStatusStream_UnknownAction(t *testing.T) {
	f := newFixture(t, 10)

	rec := f.do(t, http.MethodGet, "/api/v1/visitors/absent:x/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProbes(t *testing.T) {
	f := newFixture(t, 10)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Store down: still alive, no longer ready.
	f.mr.Close()
	rec = f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, 10)
	f.enter(t)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "greenlight_admissions_total")
}
