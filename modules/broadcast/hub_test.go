package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/modular-world/modules/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	frames   []string
	closed   bool
	failNext bool
	block    chan struct{}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext {
		c.failNext = false
		return errors.New("broken pipe")
	}
	c.frames = append(c.frames, string(data))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.frames...)
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		hub.Wait()
	})
	return hub
}

func TestHub_SendToTargetsOnly(t *testing.T) {
	hub := startHub(t)
	c1, c2, c3 := &fakeConn{}, &fakeConn{}, &fakeConn{}
	require.NotNil(t, hub.Register("c1", c1))
	require.NotNil(t, hub.Register("c2", c2))
	require.NotNil(t, hub.Register("c3", c3))

	hub.Send([]string{"c1", "c3", "ghost"}, protocol.NewPlayerLeft("c2"))

	want := `{"event":"player-left","data":{"playerId":"c2"}}`
	assert.Eventually(t, func() bool { return len(c1.Frames()) == 1 && len(c3.Frames()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, c1.Frames()[0])
	assert.Empty(t, c2.Frames())
	assert.Equal(t, 3, hub.ClientCount())
}

func TestHub_PreservesOrderPerClient(t *testing.T) {
	hub := startHub(t)
	conn := &fakeConn{}
	hub.Register("c1", conn)

	for i := 0; i < 50; i++ {
		hub.Send([]string{"c1"}, protocol.NewPlayerMoved("p", float64(i), 0))
	}

	require.Eventually(t, func() bool { return len(conn.Frames()) == 50 }, time.Second, 5*time.Millisecond)
	for i, frame := range conn.Frames() {
		want, _ := protocol.NewPlayerMoved("p", float64(i), 0).Encode()
		assert.Equal(t, string(want), frame, "frame %d out of order", i)
	}
}

func TestHub_UnregisterStopsDelivery(t *testing.T) {
	hub := startHub(t)
	conn := &fakeConn{}
	hub.Register("c1", conn)
	hub.Unregister("c1")

	hub.Send([]string{"c1"}, protocol.NewError("late"))
	// A later registration proves the earlier delivery was handled.
	other := &fakeConn{}
	hub.Register("c2", other)
	hub.Send([]string{"c2"}, protocol.NewError("sync"))

	require.Eventually(t, func() bool { return len(other.Frames()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, conn.Frames())
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHub_WriteErrorClosesConnection(t *testing.T) {
	hub := startHub(t)
	conn := &fakeConn{failNext: true}
	hub.Register("c1", conn)

	hub.Send([]string{"c1"}, protocol.NewError("boom"))
	assert.Eventually(t, conn.Closed, time.Second, 5*time.Millisecond)
}

func TestHub_SlowClientDropped(t *testing.T) {
	hub := startHub(t)
	hub.sendBuffer = 2
	block := make(chan struct{})
	slow := &fakeConn{block: block}
	hub.Register("slow", slow)

	for i := 0; i < 10; i++ {
		hub.Send([]string{"slow"}, protocol.NewError("flood"))
	}

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, slow.Closed())
	close(block)
}

func TestHub_StopClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	conn := &fakeConn{}
	hub.Register("c1", conn)
	cancel()
	hub.Wait()

	assert.True(t, conn.Closed())
	assert.Nil(t, hub.Register("c2", &fakeConn{}), "register after stop must not block")
	hub.Send([]string{"c1"}, protocol.NewError("after stop"))
}
