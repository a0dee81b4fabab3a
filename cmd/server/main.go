// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

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
	"time"

	"github.com/tomtom215/smsarchive/internal/api"
	"github.com/tomtom215/smsarchive/internal/attachments"
	"github.com/tomtom215/smsarchive/internal/config"
	"github.com/tomtom215/smsarchive/internal/database"
	"github.com/tomtom215/smsarchive/internal/logging"
	"github.com/tomtom215/smsarchive/internal/provider"
	"github.com/tomtom215/smsarchive/internal/ratelimit"
	"github.com/tomtom215/smsarchive/internal/state"
	"github.com/tomtom215/smsarchive/internal/supervisor"
	"github.com/tomtom215/smsarchive/internal/supervisor/services"
	"github.com/tomtom215/smsarchive/internal/sync"
)

//nolint:gocyclo // sequential setup steps
func main() {
	syncOnce := flag.Bool("sync-once", false, "run a single sync and exit")
	days := flag.Int("days", 0, "days of history to fetch with -sync-once (default: sync.days_back)")
	flag.Parse()

	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("provider", cfg.Provider.BaseURL).
		Str("mongo_database", cfg.Mongo.Database).
		Str("container", cfg.Blob.Container).
		Str("my_phone", logging.MaskPhone(cfg.Sync.MyPhoneNumber)).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stateStore, err := openState(cfg.State)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open state store")
	}
	defer func() {
		if err := stateStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing state store")
		}
	}()

	db, err := database.Connect(ctx, cfg.Mongo)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Mongo.Timeout)
		defer cancel()
		if err := db.Close(closeCtx); err != nil {
			logging.Error().Err(err).Msg("Error closing MongoDB connection")
		}
	}()

	client := provider.NewClient(cfg.Provider, provider.WithMaxContentBytes(cfg.Attachments.MaxSizeBytes))
	queue := ratelimit.New("provider-attachments", cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.MinDelay)

	backend, err := attachments.NewAzureBackend(cfg.Blob)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create blob storage client")
	}
	attachmentStore := attachments.NewStore(backend, client, queue, cfg.Attachments)
	if err := attachmentStore.Init(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize attachment container")
	}

	natsServer, publisher, err := initEvents(cfg.NATS)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize event publishing")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event publisher")
		}
	}()

	manager := sync.NewManager(sync.Dependencies{
		Store:       db,
		Source:      client,
		Attachments: attachmentStore,
		State:       stateStore,
		Events:      publisher,
	}, cfg)

	if *syncOnce {
		if natsServer != nil {
			defer natsServer.Shutdown()
		}
		res := manager.SyncMessages(ctx, *days)
		if !res.Success {
			logging.Error().Str("error", res.Error).Msg("Sync failed")
			os.Exit(1) //nolint:gocritic // deferred closes are best effort here
		}
		return
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.Timeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	if natsServer != nil {
		tree.AddDataService(services.NewEmbeddedNATSService(natsServer))
	}
	tree.AddDataService(services.NewQueueDrainService("provider-attachments", queue))
	tree.AddSyncService(services.NewSyncService(manager))

	if cfg.Server.Enabled {
		handler := api.NewHandler(manager, db, client)
		router := api.NewRouter(handler, api.NewChiMiddleware(api.NewChiMiddlewareConfig(cfg.Security)))

		server := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           router.SetupChi(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Server.Timeout,
			WriteTimeout:      cfg.Server.Timeout,
			IdleTimeout:       60 * time.Second,
		}
		tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
		logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")
	} else {
		logging.Info().Msg("HTTP API disabled (HTTP_ENABLED=false)")
	}

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}

// openState opens the Badger state store. An empty path keeps state in
// memory, which loses the run lock and last result across restarts.
func openState(cfg config.StateConfig) (*state.Store, error) {
	if cfg.Path == "" {
		logging.Warn().Msg("STATE_PATH is empty, sync state will not survive restarts")
		return state.OpenInMemory()
	}
	return state.Open(cfg.Path)
}
