package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/modular-world/domain/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	fail    bool
	sets    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]byte)}
}

func (c *mapCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return false, errors.New("connection refused")
	}
	data, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection refused")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = data
	c.sets++
	return nil
}

func TestInstrumentGateway_RoomCacheAside(t *testing.T) {
	gw := newFakeGateway()
	cache := newMapCache()
	wrapped := InstrumentGateway(gw, cache)
	ctx := context.Background()

	first, err := wrapped.GetOrCreateRoom(ctx, 3, 4)
	require.NoError(t, err)
	assert.Contains(t, cache.entries, "room:3,4")
	calls := gw.callCount()

	second, err := wrapped.GetOrCreateRoom(ctx, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, calls, gw.callCount(), "cached room must not hit the store")
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Coords(), second.Coords())
	assert.Equal(t, 1, cache.sets)
}

func TestInstrumentGateway_CacheFailureFallsThrough(t *testing.T) {
	gw := newFakeGateway()
	cache := newMapCache()
	cache.fail = true
	wrapped := InstrumentGateway(gw, cache)

	room, err := wrapped.GetOrCreateRoom(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, world.DefaultRoomName(0, 0), room.Name)
	assert.Equal(t, 1, gw.callCount())
}

func TestInstrumentGateway_PassesErrorsThrough(t *testing.T) {
	gw := newFakeGateway()
	gw.failSave = true
	gw.failRoom = true
	wrapped := InstrumentGateway(gw, nil)
	ctx := context.Background()

	_, err := wrapped.GetOrCreateRoom(ctx, 0, 0)
	assert.ErrorIs(t, err, errStore)

	_, err = wrapped.SaveModule(ctx, "room-1", testModule("m1"), nil)
	assert.ErrorIs(t, err, errStore)

	_, err = wrapped.UpdateModule(ctx, "room-1", testModule("missing"))
	assert.ErrorIs(t, err, world.ErrNotFound)
}

type gatedGateway struct {
	*fakeGateway
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedGateway) GetOrCreateRoom(ctx context.Context, x, y int) (*world.Room, error) {
	g.calls.Add(1)
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.fakeGateway.GetOrCreateRoom(ctx, x, y)
}

func TestInstrumentGateway_ConcurrentLookupsShareOneCall(t *testing.T) {
	gw := &gatedGateway{fakeGateway: newFakeGateway(), release: make(chan struct{})}
	wrapped := InstrumentGateway(gw, nil)

	const joiners = 8
	rooms := make([]*world.Room, joiners)
	var wg sync.WaitGroup
	for i := range joiners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			room, err := wrapped.GetOrCreateRoom(context.Background(), 5, 5)
			assert.NoError(t, err)
			rooms[i] = room
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(gw.release)
	wg.Wait()

	assert.Equal(t, int32(1), gw.calls.Load())
	for _, room := range rooms[1:] {
		require.NotNil(t, room)
		assert.Equal(t, rooms[0].ID, room.ID)
		assert.NotSame(t, rooms[0], room, "callers get their own copy")
	}
}

func TestInstrumentGateway_CancelledCallerDoesNotFailOthers(t *testing.T) {
	gw := &gatedGateway{fakeGateway: newFakeGateway(), release: make(chan struct{})}
	wrapped := InstrumentGateway(gw, nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := wrapped.GetOrCreateRoom(firstCtx, 6, 6)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return gw.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		room *world.Room
		err  error
	}
	second := make(chan result, 1)
	go func() {
		room, err := wrapped.GetOrCreateRoom(context.Background(), 6, 6)
		second <- result{room, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(gw.release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, world.DefaultRoomName(6, 6), got.room.Name)
	assert.Equal(t, int32(1), gw.calls.Load())
}
