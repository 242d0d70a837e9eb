package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-monolith/mono"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Module owns the Redis connection behind the room cache.
type Module struct {
	addr   string
	prefix string
	ttl    time.Duration

	client  *redis.Client
	cache   *Cache
	limiter fiber.Storage
}

var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates the cache module. An empty prefix becomes "world:" and
// a non-positive ttl becomes one hour.
func NewModule(redisAddr, prefix string, ttl time.Duration) *Module {
	if prefix == "" {
		prefix = "world:"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Module{addr: redisAddr, prefix: prefix, ttl: ttl}
}

func (m *Module) Name() string {
	return "cache"
}

// Start dials Redis and fails when it does not answer a ping.
func (m *Module) Start(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:         m.addr,
		PoolSize:     20,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("cache: redis at %s unreachable: %w", m.addr, err)
	}

	m.client = client
	m.cache = New(client, m.prefix, m.ttl)
	m.limiter = newLimiterStorage(m.addr)
	log.Printf("[cache] Room cache ready on %s, keys %q expire after %s", m.addr, m.prefix+"room:*", m.ttl)
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.client == nil {
		return nil
	}
	if m.limiter != nil {
		if err := m.limiter.Close(); err != nil {
			log.Printf("[cache] Warning: closing limiter storage: %v", err)
		}
	}
	err := m.client.Close()
	m.client, m.cache, m.limiter = nil, nil, nil
	if err != nil {
		return fmt.Errorf("cache: close redis: %w", err)
	}
	log.Println("[cache] Redis connection closed")
	return nil
}

// Cache returns the cache instance, or nil before Start.
func (m *Module) Cache() *Cache {
	return m.cache
}

// LimiterStorage returns the Redis storage for HTTP rate limiting, or nil
// before Start.
func (m *Module) LimiterStorage() fiber.Storage {
	return m.limiter
}

// Health pings Redis and reports the lookup counters.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	c := m.cache
	if c == nil {
		return mono.HealthStatus{Healthy: false, Message: "not started"}
	}
	if err := c.Ping(ctx); err != nil {
		return mono.HealthStatus{Healthy: false, Message: err.Error()}
	}

	stats := c.Stats()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"addr":      m.addr,
			"hits":      stats.Hits,
			"misses":    stats.Misses,
			"errors":    stats.Errors,
			"hit_ratio": stats.HitRatio(),
		},
	}
}
