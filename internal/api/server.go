// SPDX-License-Identifier: MIT

// Package api exposes the waiting room over HTTP: check-or-enter, verify,
// the live status stream and the config snapshot, plus probes and metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/admission"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/api/middleware"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/broadcast"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/config"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/confcache"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/health"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/store"
)

// Server is the HTTP surface of the waiting room.
type Server struct {
	cfg         config.Config
	controller  *admission.Controller
	broadcaster *broadcast.Broadcaster
	configs     *confcache.Cache
	configStore *store.ConfigStore
	healthMgr   *health.Manager
	logger      zerolog.Logger
}

// NewServer wires the HTTP surface.
func NewServer(
	cfg config.Config,
	controller *admission.Controller,
	broadcaster *broadcast.Broadcaster,
	configs *confcache.Cache,
	configStore *store.ConfigStore,
	healthMgr *health.Manager,
	logger zerolog.Logger,
) *Server {
	return &Server{
		cfg:         cfg,
		controller:  controller,
		broadcaster: broadcaster,
		configs:     configs,
		configStore: configStore,
		healthMgr:   healthMgr,
		logger:      logger,
	}
}

// Router builds the chi router with the canonical middleware stack.
func (s *Server) Router() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		AllowedOrigins:     s.cfg.AllowedOrigins,
		EnableMetrics:      true,
		EnableLogging:      true,
		RateLimitPerMinute: s.cfg.RateLimitPerMinute,
	})

	r.Get("/healthz", s.healthMgr.ServeHealth)
	r.Get("/readyz", s.healthMgr.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/actions/{actionID}/enter", s.handleEnter)
		r.Get("/visitors/{visitorID}/verify", s.handleVerify)
		r.Get("/visitors/{visitorID}/status", s.handleStatus)
		r.Get("/config/snapshot", s.handleSnapshot)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: the status stream is long-lived.
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
