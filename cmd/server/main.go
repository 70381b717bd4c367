// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/campusnet/internal/api"
	"github.com/tomtom215/campusnet/internal/auth"
	"github.com/tomtom215/campusnet/internal/authz"
	"github.com/tomtom215/campusnet/internal/backplane"
	"github.com/tomtom215/campusnet/internal/chat"
	"github.com/tomtom215/campusnet/internal/config"
	"github.com/tomtom215/campusnet/internal/files"
	"github.com/tomtom215/campusnet/internal/logging"
	"github.com/tomtom215/campusnet/internal/store"
	"github.com/tomtom215/campusnet/internal/supervisor"
	"github.com/tomtom215/campusnet/internal/supervisor/services"
	ws "github.com/tomtom215/campusnet/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server exited with error")
	}
	logging.Info().Msg("Server stopped")
}

//nolint:gocyclo // sequential wiring of every component
func run(ctx context.Context, cfg *config.Config) error {
	logging.Info().
		Str("version", version).
		Str("environment", cfg.Server.Environment).
		Str("backplane", cfg.Backplane.Mode).
		Str("store_path", cfg.Store.Path).
		Bool("store_in_memory", cfg.Store.InMemory).
		Msg("Starting Campusnet messaging server")

	st, err := store.Open(store.Options{
		Path:         cfg.Store.Path,
		InMemory:     cfg.Store.InMemory,
		SyncWrites:   cfg.Store.SyncWrites,
		MemTableSize: cfg.Store.MemTableSize,
		MaxRetries:   cfg.Chat.ConflictRetries,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	directory := chat.NewDirectory(st, cfg.Directory.CacheSize, cfg.Directory.CacheTTL)

	var resolver chat.FileResolver
	if cfg.Files.Enabled {
		s3Resolver, err := files.NewS3Resolver(ctx, cfg.Files)
		if err != nil {
			return fmt.Errorf("init file resolver: %w", err)
		}
		resolver = s3Resolver
	} else {
		logging.Info().Msg("Attachment resolution disabled, image and file messages are rejected")
	}

	// The embedded server must be up before the backplane dials it.
	var embedded *backplane.EmbeddedServer
	natsURL := cfg.Backplane.NATSURL
	if cfg.Backplane.Mode == backplane.ModeNATS && cfg.Backplane.EmbeddedServer {
		embedded, err = backplane.NewEmbeddedServer(cfg.Backplane.EmbeddedHost, cfg.Backplane.EmbeddedPort)
		if err != nil {
			return fmt.Errorf("start embedded NATS server: %w", err)
		}
		natsURL = embedded.ClientURL()
		logging.Info().Str("url", natsURL).Msg("Embedded NATS server started")
	}

	bp, err := backplane.New(cfg.Backplane, natsURL)
	if err != nil {
		if embedded != nil {
			_ = embedded.Shutdown(context.Background())
		}
		return fmt.Errorf("init backplane: %w", err)
	}
	defer func() {
		if err := bp.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing backplane")
		}
	}()

	hub := ws.NewHub(uuid.NewString())
	broadcaster := ws.NewBroadcaster(bp, hub.InstanceID())
	chatService := chat.NewService(st, directory, resolver, broadcaster, chat.OptionsFromConfig(cfg.Chat))

	wsRouter := ws.NewRouter(hub, chatService, broadcaster)
	gateway := ws.NewGateway(hub, wsRouter, ws.SettingsFromConfig(cfg.WebSocket), cfg.WebSocket.AllowedOrigins)

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		return fmt.Errorf("init JWT manager: %w", err)
	}

	enforcerConfig := authz.DefaultEnforcerConfig()
	enforcerConfig.PolicyPath = cfg.Security.PolicyPath
	if cfg.Security.DefaultRole != "" {
		enforcerConfig.DefaultRole = cfg.Security.DefaultRole
	}
	enforcer, err := authz.NewEnforcer(enforcerConfig)
	if err != nil {
		return fmt.Errorf("init authorization: %w", err)
	}
	authzMiddleware := authz.NewMiddleware(enforcer, api.Denied)

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}
	if cfg.IsProduction() && len(cfg.Security.CORSOrigins) == 1 && cfg.Security.CORSOrigins[0] == "*" {
		logging.Warn().Msg("CORS allows any origin in production; set CORS_ORIGINS to the campus front-end")
	}

	handler := api.NewHandler(api.HandlerDeps{
		Chat:      chatService,
		Directory: directory,
		Authz:     authzMiddleware,
		Gateway:   gateway,
		Checks: []api.HealthCheck{
			{Name: "store", Check: st.Ping},
			{Name: "backplane", Check: bp.Ping},
		},
		Version: version,
	})
	router := api.NewRouter(
		handler,
		auth.NewMiddleware(jwtManager, cfg.Security.TokenCookieName, api.Unauthorized),
		authzMiddleware,
		api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(cfg.Security)),
	)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// sutureslog needs slog; the adapter routes it into zerolog
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	if cfg.Store.GCInterval > 0 && !cfg.Store.InMemory {
		tree.AddDataService(services.NewPeriodicService("store-gc", cfg.Store.GCInterval, st.RunGC))
	}
	tree.AddDataService(services.NewPeriodicService("directory-purge", cfg.Directory.CacheTTL, func(context.Context) error {
		if n := directory.Purge(); n > 0 {
			logging.Debug().Int("entries", n).Msg("Purged expired directory entries")
		}
		return nil
	}))

	if embedded != nil {
		tree.AddMessagingService(services.NewEmbeddedNATSService(embedded, cfg.Server.ShutdownTimeout))
	}
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(ws.NewBridge(bp, hub))

	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logging.Info().
		Str("addr", server.Addr).
		Str("instance_id", hub.InstanceID()).
		Msg("Supervisor tree starting")

	err = tree.Serve(ctx)

	if report, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within the shutdown timeout")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}
	return nil
}
