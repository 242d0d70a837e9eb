// Package store is the default persistence gateway, backed by GORM and SQLite.
package store

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/example/modular-world/modules/storeapi"
	"github.com/go-monolith/mono"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config controls how the database is opened.
type Config struct {
	Path        string
	AutoMigrate bool
	Debug       bool
}

// Module owns the SQLite connection and exposes the repository.
type Module struct {
	cfg  Config
	db   *gorm.DB
	repo *Repository
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.ServiceProviderModule = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new store module.
func NewModule(cfg Config) *Module {
	if cfg.Path == "" {
		cfg.Path = "world.db"
	}
	return &Module{cfg: cfg}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "store"
}

// Repository returns the gateway, or nil before Start.
func (m *Module) Repository() *Repository {
	return m.repo
}

// RegisterServices registers the storage request-reply services.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := storeapi.RegisterServices(container, m.backend); err != nil {
		return err
	}
	log.Printf("[store] Registered services: services.store.{%s,%s,%s,%s}",
		storeapi.ServiceGetUser, storeapi.ServiceUpsertUser, storeapi.ServiceGetRoom, storeapi.ServiceCheckSchema)
	return nil
}

func (m *Module) backend() storeapi.Backend {
	if m.repo == nil {
		return nil
	}
	return m.repo
}

// Health performs a health check on the database.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.repo == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "database not initialized",
		}
	}

	if err := m.repo.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver": "sqlite",
			"path":   m.cfg.Path,
		},
	}
}

// Start opens the database and runs migrations.
func (m *Module) Start(_ context.Context) error {
	log.Printf("[store] Connecting to SQLite database: %s", m.cfg.Path)

	db, err := Open(m.cfg)
	if err != nil {
		return err
	}

	m.db = db
	m.repo = NewRepository(db)

	log.Println("[store] Module started successfully")
	return nil
}

// Open connects to the SQLite database and migrates it when configured to.
func Open(cfg Config) (*gorm.DB, error) {
	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(dsn(cfg.Path)), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(models()...); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return db, nil
}

// dsn adds a busy timeout to file databases so concurrent writers wait for
// the lock instead of failing.
func dsn(path string) string {
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000"
}

// Stop closes the database connection.
func (m *Module) Stop(_ context.Context) error {
	if m.db == nil {
		return nil
	}

	log.Println("[store] Closing database connection...")

	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	log.Println("[store] Database connection closed")
	return nil
}
