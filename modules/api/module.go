// Package api serves the websocket endpoint and the REST side channel.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/example/modular-world/modules/broadcast"
	"github.com/example/modular-world/modules/realtime"
	"github.com/example/modular-world/modules/registry"
	"github.com/example/modular-world/modules/storeapi"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Config holds the HTTP server settings.
type Config struct {
	Addr           string
	AllowedOrigins string
	StaticDir      string

	// RateLimit is the number of /api requests a client IP may make per
	// minute. Zero disables limiting.
	RateLimit int
}

// RouterSource hands out the realtime router once it has started.
type RouterSource interface {
	Router() *realtime.Router
}

// StatsSource reports live occupancy.
type StatsSource interface {
	Stats() registry.Stats
}

// Deps are the collaborators the HTTP module needs besides the store.
type Deps struct {
	Realtime RouterSource
	Hub      *broadcast.Hub
	Stats    StatsSource
	Metrics  http.Handler
	Tokens   TokenVerifier
	Database string
	Logger   types.Logger

	// LimiterStorage returns shared rate limit storage, or nil to count in
	// memory. It is resolved when the server starts.
	LimiterStorage func() fiber.Storage
}

// Module is the HTTP API module with websocket support.
type Module struct {
	cfg    Config
	deps   Deps
	app    *fiber.App
	store  storeapi.StorePort
	router *realtime.Router

	// cancel aborts gateway calls of connections still open at shutdown.
	ctx    context.Context
	cancel context.CancelFunc
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.DependentModule = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule fills in the default address and CORS origins.
func NewModule(cfg Config, deps Deps) *Module {
	if cfg.Addr == "" {
		cfg.Addr = ":3001"
	}
	if cfg.AllowedOrigins == "" {
		cfg.AllowedOrigins = "*"
	}
	return &Module{cfg: cfg, deps: deps}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "api"
}

func (m *Module) Dependencies() []string {
	return []string{"store", "realtime", "broadcast"}
}

// SetDependencyServiceContainer binds the store adapter.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	if dependency == "store" {
		m.store = storeapi.NewAdapter(container)
	}
}

// Start builds the Fiber app and starts listening.
func (m *Module) Start(_ context.Context) error {
	if m.store == nil {
		return errors.New("store adapter dependency not set")
	}
	if m.deps.Hub == nil || m.deps.Realtime == nil {
		return errors.New("realtime dependencies not set")
	}
	m.router = m.deps.Realtime.Router()
	if m.router == nil {
		return errors.New("realtime router not started")
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.app = m.newApp()

	// Listen errors that happen right away (port in use) fail Start.
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(m.cfg.Addr); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		m.cancel()
		return fmt.Errorf("api: listen on %s: %w", m.cfg.Addr, err)
	case <-time.After(100 * time.Millisecond):
	}

	m.deps.Logger.Info("HTTP server started", "addr", m.cfg.Addr, "database", m.deps.Database)
	return nil
}

// Stop cancels in-flight websocket work and drains the server.
func (m *Module) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	if m.app != nil {
		if err := m.app.ShutdownWithContext(ctx); err != nil {
			return fmt.Errorf("api: shutdown: %w", err)
		}
	}
	m.deps.Logger.Info("HTTP server stopped")
	return nil
}

func (m *Module) Health(_ context.Context) mono.HealthStatus {
	details := map[string]any{"addr": m.cfg.Addr}
	if m.deps.Hub != nil {
		details["sockets"] = m.deps.Hub.ClientCount()
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: details,
	}
}

func (m *Module) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Modular World",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Next:   websocket.IsWebSocketUpgrade,
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: m.cfg.AllowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	m.registerRoutes(app)
	return app
}

// registerRoutes sets up all HTTP and websocket routes.
func (m *Module) registerRoutes(app *fiber.App) {
	app.Use("/ws", upgradeGuard(m.deps.Tokens))
	app.Get("/ws", websocket.New(m.handleWebSocket, websocket.Config{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}))

	if m.deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(m.deps.Metrics))
	}

	api := app.Group("/api")
	if m.cfg.RateLimit > 0 {
		var storage fiber.Storage
		if m.deps.LimiterStorage != nil {
			storage = m.deps.LimiterStorage()
		}
		api.Use(rateLimit(m.cfg.RateLimit, storage))
	}
	api.Get("/health", m.health)
	api.Get("/users/:userId", m.getUser)
	api.Post("/users", requireBearer(m.deps.Tokens), m.upsertUser)
	api.Get("/rooms/:x/:y", m.getRoom)
	api.Get("/check-migration", m.checkMigration)
	api.Post("/migrate", m.migrate)
	api.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "API endpoint not found"})
	})

	if m.cfg.StaticDir != "" {
		app.Static("/", m.cfg.StaticDir)
		app.Get("*", func(c *fiber.Ctx) error {
			return c.SendFile(filepath.Join(m.cfg.StaticDir, "index.html"))
		})
	}
}

// errorHandler renders errors that escaped a handler as JSON.
func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	if code >= fiber.StatusInternalServerError {
		m.deps.Logger.Error("HTTP error", "code", code, "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}
