package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/example/modular-world/modules/api"
	"github.com/example/modular-world/modules/auth"
	"github.com/example/modular-world/modules/broadcast"
	"github.com/example/modular-world/modules/cache"
	"github.com/example/modular-world/modules/metrics"
	"github.com/example/modular-world/modules/pgstore"
	"github.com/example/modular-world/modules/realtime"
	"github.com/example/modular-world/modules/registry"
	"github.com/example/modular-world/modules/store"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
	"github.com/gofiber/fiber/v2"
)

const shutdownTimeout = 30 * time.Second

// runServe builds the application, starts it and blocks until a shutdown
// signal has been handled.
func runServe(cfg config) error {
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		return fmt.Errorf("failed to create mono application: %w", err)
	}
	logger := app.Logger()

	storeModule, gateway := newStoreModule(cfg)
	broadcastModule := broadcast.NewModule()
	hub := broadcastModule.Hub()
	reg := registry.New()

	deps := []string{"store", "broadcast"}
	var roomCache func() realtime.RoomCache
	var cacheModule *cache.Module
	if cfg.RedisAddr != "" {
		cacheModule = cache.NewModule(cfg.RedisAddr, cfg.CachePrefix, cfg.CacheTTL)
		roomCache = func() realtime.RoomCache {
			if c := cacheModule.Cache(); c != nil {
				return c
			}
			return nil
		}
		deps = append(deps, "cache")
	}

	rtOpts := []realtime.Option{
		realtime.WithChatRateLimit(cfg.ChatRate, cfg.ChatBurst),
		realtime.WithHistoryLimit(cfg.HistoryLimit),
	}
	if cfg.JWTSecret != "" {
		rtOpts = append(rtOpts, realtime.WithVerifiedIdentitiesOnly())
	}

	realtimeModule := realtime.NewModule(realtime.Config{
		Gateway:      gateway,
		Cache:        roomCache,
		Registry:     reg,
		Broadcaster:  hub,
		Dependencies: deps,
		Logger:       logger.WithModule("realtime"),
		Options:      rtOpts,
	})

	collector := metrics.NewCollector(reg, hub)
	metricsModule := metrics.NewModule(collector, logger.WithModule("metrics"))

	limiterStorage := func() fiber.Storage {
		if cacheModule == nil {
			return nil
		}
		return cacheModule.LimiterStorage()
	}

	apiModule := api.NewModule(api.Config{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		AllowedOrigins: cfg.AllowedOrigins,
		StaticDir:      cfg.StaticDir,
		RateLimit:      cfg.APIRateLimit,
	}, api.Deps{
		Realtime:       realtimeModule,
		Hub:            hub,
		Stats:          reg,
		Metrics:        collector.Handler(),
		Tokens:         auth.NewManager(auth.Config{SecretKey: cfg.JWTSecret}),
		Database:       cfg.databaseName(),
		Logger:         logger.WithModule("api"),
		LimiterStorage: limiterStorage,
	})

	// Register modules
	app.Register(storeModule)
	if cacheModule != nil {
		app.Register(cacheModule)
	}
	app.Register(broadcastModule)
	app.Register(realtimeModule)
	app.Register(metricsModule)
	app.Register(apiModule)

	// Start modules (this handles Init and Start)
	if err := app.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	printStartupInfo(cfg)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

// newStoreModule picks the storage backend. The gateway func returns an
// untyped nil until the module has started.
func newStoreModule(cfg config) (mono.Module, func() realtime.Gateway) {
	if cfg.DatabaseURL != "" {
		m := pgstore.NewModule(cfg.DatabaseURL, cfg.AutoMigrate)
		return m, func() realtime.Gateway {
			if r := m.Repository(); r != nil {
				return r
			}
			return nil
		}
	}
	m := store.NewModule(store.Config{
		Path:        cfg.DBPath,
		AutoMigrate: cfg.AutoMigrate,
		Debug:       cfg.DBDebug,
	})
	return m, func() realtime.Gateway {
		if r := m.Repository(); r != nil {
			return r
		}
		return nil
	}
}

// authSummary describes how websocket identities are resolved.
func authSummary(cfg config) string {
	if cfg.JWTSecret == "" {
		return "Auth: disabled, clients may claim any user id"
	}
	return "Auth: JWT, connections without a token join as guests"
}

func printStartupInfo(cfg config) {
	log.Println("=== Modular World ===")
	log.Printf("Database: %s", cfg.databaseName())
	if cfg.RedisAddr != "" {
		log.Printf("Room cache: %s (prefix %q, ttl %s)", cfg.RedisAddr, cfg.CachePrefix, cfg.CacheTTL)
	}
	log.Println(authSummary(cfg))
	log.Printf("WebSocket: ws://localhost:%d/ws", cfg.Port)
	log.Println("Endpoints:")
	log.Println("  GET    /api/health          - Health and occupancy")
	log.Println("  GET    /api/users/:userId   - Get profile")
	log.Println("  POST   /api/users           - Create or update profile")
	log.Println("  GET    /api/rooms/:x/:y     - Room with modules")
	log.Println("  GET    /api/check-migration - Schema drift report")
	log.Println("  POST   /api/migrate         - Migration instructions")
	log.Println("  GET    /metrics             - Prometheus metrics")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown")
}
