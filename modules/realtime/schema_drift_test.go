package realtime

import (
	"context"
	"testing"

	"github.com/example/modular-world/domain/world"
	"github.com/example/modular-world/modules/protocol"
	"github.com/example/modular-world/modules/registry"
	"github.com/example/modular-world/modules/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_DriftedSQLiteSchema(t *testing.T) {
	db, err := store.Open(store.Config{Path: ":memory:", AutoMigrate: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	repo := store.NewRepository(db)
	ctx := context.Background()
	room, err := repo.GetOrCreateRoom(ctx, 0, 0)
	require.NoError(t, err)
	_, err = repo.SaveModule(ctx, room.ID, testModule("old"), nil)
	require.NoError(t, err)
	require.NoError(t, db.Exec(`ALTER TABLE modules DROP COLUMN width`).Error)

	out := newRecorder()
	router := NewRouter(repo, registry.New(), out)
	c1 := router.NewSession("c1", "")
	c2 := router.NewSession("c2", "")

	router.Join(ctx, c1, protocol.JoinRoom{Coords: world.Coords{X: 0, Y: 0}, Avatar: protocol.AvatarInput{Name: "Ana"}})
	state := roomState(t, out.last(t, "c1"))
	require.Len(t, state.Modules, 1, "existing modules stay visible on a drifted table")
	assert.Equal(t, 50.0, state.Modules[0].Width)

	router.Join(ctx, c2, protocol.JoinRoom{Coords: world.Coords{X: 0, Y: 0}, Avatar: protocol.AvatarInput{Name: "Ben"}})
	out.reset()

	router.CreateModule(ctx, c1, protocol.ModuleCreate{Module: testModule("new")})

	assert.Equal(t, protocol.NewError(MsgCreateModule), out.last(t, "c1"))
	assert.Empty(t, out.events("c2"), "a failed save is never broadcast")
}
