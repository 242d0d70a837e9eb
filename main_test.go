package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/modular-world/modules/auth"
	"github.com/example/modular-world/modules/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_PATH", "DATABASE_URL", "AUTO_MIGRATE", "REDIS_ADDR", "CACHE_TTL", "JWT_SECRET", "CHAT_RATE", "CHAT_BURST", "HISTORY_LIMIT"} {
		t.Setenv(key, "")
	}

	cfg := loadConfig()

	assert.Equal(t, 3001, cfg.Port)
	assert.Equal(t, "world.db", cfg.DBPath)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 10.0, cfg.ChatRate)
	assert.Equal(t, 20, cfg.ChatBurst)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, "sqlite", cfg.databaseName())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("AUTO_MIGRATE", "false")
	t.Setenv("CACHE_TTL", "5m")
	t.Setenv("CHAT_RATE", "0.5")
	t.Setenv("DATABASE_URL", "postgres://localhost/world")
	t.Setenv("HISTORY_LIMIT", "many")

	cfg := loadConfig()

	assert.Equal(t, 8080, cfg.Port)
	assert.False(t, cfg.AutoMigrate)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 0.5, cfg.ChatRate)
	assert.Equal(t, 50, cfg.HistoryLimit, "invalid values fall back to the default")
	assert.Equal(t, "postgres", cfg.databaseName())
}

func TestAuthSummary(t *testing.T) {
	assert.Equal(t, "Auth: disabled, clients may claim any user id", authSummary(config{}))
	assert.Equal(t, "Auth: JWT, connections without a token join as guests", authSummary(config{JWTSecret: "s"}))
}

func TestTokenCmd(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	var out bytes.Buffer
	cmd := tokenCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"user-7", "--username", "ana"})
	require.NoError(t, cmd.Execute())

	manager := auth.NewManager(auth.Config{SecretKey: "test-secret"})
	userID, err := manager.UserID(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "user-7", userID)
}

func TestTokenCmd_NoSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	cmd := tokenCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"user-7"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestSchemaCheckCmd_UpToDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.db")
	db, err := store.Open(store.Config{Path: path, AutoMigrate: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_PATH", path)

	var out bytes.Buffer
	cmd := schemaCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "Migration already applied")
}
