package cache

import (
	"context"
	"testing"
	"time"

	"github.com/example/modular-world/domain/world"
	"github.com/redis/go-redis/v9"
)

// testRedisAddr requires Redis running on localhost:6379.
const testRedisAddr = "localhost:6379"

// setupTestCache creates a cache instance for testing.
func setupTestCache(t *testing.T, prefix string) *Cache {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}

	cleanupKeys(ctx, client, prefix+"*")
	t.Cleanup(func() {
		cleanupKeys(ctx, client, prefix+"*")
		client.Close()
	})

	return New(client, prefix, time.Minute)
}

// cleanupKeys removes all keys matching the pattern.
func cleanupKeys(ctx context.Context, client *redis.Client, pattern string) {
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return
		}
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

func TestCache_GetSet(t *testing.T) {
	c := setupTestCache(t, "test:world:")
	ctx := context.Background()

	var room world.Room
	found, err := c.Get(ctx, "room:0,0", &room)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Fatal("expected cache miss")
	}

	want := world.Room{ID: "r1", X: 0, Y: 0, Name: "Sala (0, 0)", IsPublic: true}
	if err := c.Set(ctx, "room:0,0", want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	found, err = c.Get(ctx, "room:0,0", &room)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found {
		t.Fatal("expected cache hit")
	}
	if room.ID != want.ID || room.Name != want.Name {
		t.Errorf("expected %+v, got %+v", want, room)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Writes != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.HitRatio() != 0.5 {
		t.Errorf("expected hit ratio 0.5, got %v", stats.HitRatio())
	}
}

func TestCache_DecodeFailureCounts(t *testing.T) {
	c := setupTestCache(t, "test:world:bad:")
	ctx := context.Background()

	if err := c.client.Set(ctx, c.prefix+"room:1,1", "not-json", time.Minute).Err(); err != nil {
		t.Fatalf("seed error = %v", err)
	}

	var room world.Room
	if _, err := c.Get(ctx, "room:1,1", &room); err == nil {
		t.Fatal("expected decode error")
	}
	if got := c.Stats().Errors; got != 1 {
		t.Errorf("Errors = %d, want 1", got)
	}
}

func TestStats_HitRatioWithoutLookups(t *testing.T) {
	if got := (Stats{}).HitRatio(); got != 0 {
		t.Errorf("HitRatio() = %v, want 0", got)
	}
}

func TestSplitRedisAddr(t *testing.T) {
	tests := []struct {
		addr     string
		wantHost string
		wantPort int
	}{
		{"localhost:6380", "localhost", 6380},
		{":6379", "127.0.0.1", 6379},
		{"redis", "127.0.0.1", 6379},
		{"redis:port", "redis", 6379},
	}
	for _, tt := range tests {
		host, port := splitRedisAddr(tt.addr)
		if host != tt.wantHost || port != tt.wantPort {
			t.Errorf("splitRedisAddr(%q) = %s, %d; want %s, %d", tt.addr, host, port, tt.wantHost, tt.wantPort)
		}
	}
}
