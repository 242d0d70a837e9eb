package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/example/modular-world/events"
	"github.com/example/modular-world/modules/registry"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any)         {}
func (m *mockLogger) Info(_ string, _ ...any)          {}
func (m *mockLogger) Warn(_ string, _ ...any)          {}
func (m *mockLogger) Error(_ string, _ ...any)         {}
func (m *mockLogger) With(_ ...any) types.Logger       { return m }
func (m *mockLogger) WithModule(_ string) types.Logger { return m }
func (m *mockLogger) WithError(_ error) types.Logger   { return m }

type fixedStats registry.Stats

func (s fixedStats) Stats() registry.Stats { return registry.Stats(s) }

type fixedSockets int

func (s fixedSockets) ClientCount() int { return int(s) }

func gaugeValue(t *testing.T, c *Collector, name string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			require.Len(t, f.GetMetric(), 1)
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestModule_CountsEvents(t *testing.T) {
	c := NewCollector(nil, nil)
	m := NewModule(c, &mockLogger{})
	ctx := context.Background()

	require.NoError(t, m.handlePlayerJoined(ctx, events.PlayerJoinedEvent{PlayerID: "c1"}, nil))
	require.NoError(t, m.handlePlayerJoined(ctx, events.PlayerJoinedEvent{PlayerID: "c2"}, nil))
	require.NoError(t, m.handlePlayerLeft(ctx, events.PlayerLeftEvent{PlayerID: "c1"}, nil))
	require.NoError(t, m.handleChatMessageSent(ctx, events.ChatMessageSentEvent{Length: 5}, nil))
	require.NoError(t, m.handleChatMessageSent(ctx, events.ChatMessageSentEvent{Length: 7}, nil))
	require.NoError(t, m.moduleHandler(OpCreated)(ctx, events.ModuleChangedEvent{ModuleID: "m1"}, nil))
	require.NoError(t, m.moduleHandler(OpDeleted)(ctx, events.ModuleChangedEvent{ModuleID: "m1"}, nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.playersJoined))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.playersLeft))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.chatMessages))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.chatBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.moduleChanges.WithLabelValues(OpCreated)))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.moduleChanges.WithLabelValues(OpUpdated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.moduleChanges.WithLabelValues(OpDeleted)))
}

func TestCollector_GaugesReadAtScrape(t *testing.T) {
	c := NewCollector(fixedStats{Players: 3, Rooms: 2}, fixedSockets(4))

	assert.Equal(t, 3.0, gaugeValue(t, c, "world_players_connected"))
	assert.Equal(t, 2.0, gaugeValue(t, c, "world_rooms_active"))
	assert.Equal(t, 4.0, gaugeValue(t, c, "world_sockets_connected"))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(fixedStats{Players: 1, Rooms: 1}, nil)
	c.observeChat(3)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "world_chat_messages_total 1")
	assert.Contains(t, string(body), "world_players_connected 1")
	assert.NotContains(t, string(body), "world_sockets_connected")
}
