// Package pgstore is the PostgreSQL persistence gateway, used when the
// server is pointed at the hosted database instead of a local SQLite file.
package pgstore

import (
	"context"
	"fmt"
	"log"

	"github.com/example/modular-world/modules/storeapi"
	"github.com/go-monolith/mono"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module owns the connection pool and exposes the repository. It registers
// under the same name as the SQLite store so the rest of the application
// does not care which backend is running.
type Module struct {
	dbURL        string
	ensureSchema bool
	pool         *pgxpool.Pool
	repo         *Repository
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new PostgreSQL store module. When ensureSchema is set
// missing tables are created on start.
func NewModule(dbURL string, ensureSchema bool) *Module {
	return &Module{dbURL: dbURL, ensureSchema: ensureSchema}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "store"
}

// Repository returns the gateway, or nil before Start.
func (m *Module) Repository() *Repository {
	return m.repo
}

// Health performs a health check on the pool.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.pool == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "database pool not initialized",
		}
	}

	if err := m.pool.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}

	stat := m.pool.Stat()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver":       "pgx/v5",
			"total_conns":  stat.TotalConns(),
			"idle_conns":   stat.IdleConns(),
			"max_conns":    stat.MaxConns(),
			"acquire_wait": stat.EmptyAcquireCount(),
		},
	}
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

// Start connects to PostgreSQL and prepares the schema.
func (m *Module) Start(ctx context.Context) error {
	log.Printf("[store] Connecting to PostgreSQL...")

	pool, err := pgxpool.New(ctx, m.dbURL)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	repo := NewRepository(pool)
	if m.ensureSchema {
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return err
		}
	}

	m.pool = pool
	m.repo = repo

	log.Println("[store] Module started successfully")
	return nil
}

// Stop closes the connection pool.
func (m *Module) Stop(_ context.Context) error {
	if m.pool == nil {
		return nil
	}

	log.Println("[store] Closing database connection pool...")
	m.pool.Close()
	log.Println("[store] Database connection pool closed")
	return nil
}
