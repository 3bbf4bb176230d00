// SPDX-License-Identifier: MIT

// Command waitingroomd runs the greenlight waiting-room service: the HTTP
// admission surface plus the relocation, broadcast and config-poll loops.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/admission"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/api"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/broadcast"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/confcache"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/config"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/events"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/health"
	gllog "github.com/B2-2-BW/greenlight-core-api-sub000/internal/log"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/relocation"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/store"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/token"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("waitingroomd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	gllog.Configure(gllog.Config{Service: "greenlight", Version: version})
	logger := gllog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewLoader(*configPath).Load()
	if err != nil {
		logger.Fatal().Err(err).Str("config_path", *configPath).Msg("failed to load configuration")
	}

	gllog.Configure(gllog.Config{Level: cfg.LogLevel, Service: "greenlight", Version: version})

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("addr", cfg.ListenAddr).
		Str("broadcast_mode", cfg.BroadcastMode).
		Msg("starting waitingroomd")

	client, err := store.NewClient(store.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer func() { _ = client.Close() }()

	queues := store.NewQueueStore(client)
	configStore := store.NewConfigStore(client)
	counter := store.NewAdmissionCounter(client, cfg.AdmissionWindow)
	entered := store.NewEnteredMarks(client, cfg.EnteredTTL)

	tokens, err := token.NewService(client, token.Config{
		Secret:     []byte(cfg.TokenSecret),
		ReadyTTL:   cfg.ReadyTTL,
		WaitingTTL: cfg.WaitingTTL,
	}, gllog.WithComponent("token"))
	if err != nil {
		logger.Fatal().Err(err).Msg("token service init failed")
	}

	configCache := confcache.New(configStore, cfg.ConfigCacheTTL)
	poller := confcache.NewPoller(configCache, configStore, cfg.ConfigPollInterval, gllog.WithComponent("config-poller"))

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.Enabled {
		publisher = events.NewStreamPublisher(client, cfg.Events.Stream, cfg.Events.MaxLen, cfg.Events.PublishRate, gllog.WithComponent("events"))
	}

	var strategy admission.Strategy
	switch cfg.AdmissionStrategy {
	case "occupancy":
		strategy = admission.Occupancy{Queues: queues}
	default:
		strategy = admission.DrainFirst{Queues: queues, Counter: counter}
	}

	controller := admission.NewController(
		configCache, queues, tokens, counter, entered,
		strategy, publisher, gllog.WithComponent("admission"),
	)
	logger.Info().Str("strategy", controller.Strategy()).Msg("admission controller ready")

	scheduler := relocation.New(relocation.Config{
		Interval: cfg.RelocationInterval,
		MaxBatch: cfg.RelocationMaxBatch,
	}, configStore, queues, counter, gllog.WithComponent("relocation"))

	broadcaster := broadcast.New(broadcast.Config{
		PushInterval:   cfg.PushInterval,
		PollInterval:   cfg.StatusPollInterval,
		CapacityWindow: cfg.AdmissionWindow,
	}, queues, configCache, gllog.WithComponent("broadcast"))

	healthMgr := health.NewManager(version)
	healthMgr.RegisterChecker(health.NewRedisChecker(client))

	server := api.NewServer(cfg, controller, broadcaster, configCache, configStore, healthMgr, gllog.WithComponent("api"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		poller.Run(ctx)
		return nil
	})
	g.Go(func() error {
		scheduler.Run(ctx)
		return nil
	})
	if cfg.BroadcastMode == "push" {
		g.Go(func() error {
			broadcaster.Run(ctx)
			return nil
		})
	}
	g.Go(func() error {
		return config.Watch(ctx, *configPath, gllog.WithComponent("config-watch"), func(next config.Config) {
			// Only the log level is hot-reloadable; everything else needs
			// a restart.
			gllog.Configure(gllog.Config{Level: next.LogLevel, Service: "greenlight", Version: version})
		})
	})
	g.Go(func() error {
		err := server.Run(ctx)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("service terminated with error")
	}
	logger.Info().Msg("shutdown complete")
}
