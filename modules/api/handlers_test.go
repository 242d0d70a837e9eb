package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/modular-world/domain/world"
	"github.com/example/modular-world/modules/registry"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any)         {}
func (m *mockLogger) Info(_ string, _ ...any)          {}
func (m *mockLogger) Warn(_ string, _ ...any)          {}
func (m *mockLogger) Error(_ string, _ ...any)         {}
func (m *mockLogger) With(_ ...any) types.Logger       { return m }
func (m *mockLogger) WithModule(_ string) types.Logger { return m }
func (m *mockLogger) WithError(_ error) types.Logger   { return m }

// mockStore implements storeapi.StorePort for testing
type mockStore struct {
	users       map[string]world.User
	upserted    []world.User
	roomErr     error
	schema      world.SchemaReport
	schemaErr   error
	roomModules []world.Module
}

func newMockStore() *mockStore {
	return &mockStore{users: make(map[string]world.User)}
}

func (s *mockStore) GetUser(_ context.Context, id string) (*world.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, world.ErrNotFound
	}
	return &u, nil
}

func (s *mockStore) UpsertUser(_ context.Context, u world.User) (*world.User, error) {
	u.Level = 1
	s.users[u.ID] = u
	s.upserted = append(s.upserted, u)
	return &u, nil
}

func (s *mockStore) GetRoom(_ context.Context, x, y int) (*world.Room, []world.Module, error) {
	if s.roomErr != nil {
		return nil, nil, s.roomErr
	}
	return &world.Room{ID: "room-1", X: x, Y: y, Name: world.DefaultRoomName(x, y), IsPublic: true}, s.roomModules, nil
}

func (s *mockStore) CheckSchema(_ context.Context) (world.SchemaReport, error) {
	return s.schema, s.schemaErr
}

// mockTokens accepts "good-<id>" tokens.
type mockTokens struct{ enabled bool }

func (t mockTokens) Enabled() bool { return t.enabled }

func (t mockTokens) UserID(token string) (string, error) {
	if id, ok := strings.CutPrefix(token, "good-"); ok {
		return id, nil
	}
	return "", errors.New("invalid token")
}

type fixedStats registry.Stats

func (s fixedStats) Stats() registry.Stats { return registry.Stats(s) }

func newTestModule(store *mockStore, deps Deps) *Module {
	return newTestModuleWithConfig(store, Config{}, deps)
}

func newTestModuleWithConfig(store *mockStore, cfg Config, deps Deps) *Module {
	deps.Logger = &mockLogger{}
	m := NewModule(cfg, deps)
	m.store = store
	m.ctx = context.Background()
	return m
}

func doRequest(t *testing.T, m *Module, req *http.Request) (int, string) {
	t.Helper()
	resp, err := m.newApp().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealth(t *testing.T) {
	m := newTestModule(newMockStore(), Deps{Stats: fixedStats{Players: 3, Rooms: 2}, Database: "sqlite"})

	status, body := doRequest(t, m, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, status)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, HealthResponse{Status: "ok", Players: 3, Rooms: 2, Database: "sqlite"}, resp)
}

func TestGetUser(t *testing.T) {
	store := newMockStore()
	store.users["u1"] = world.User{ID: "u1", Username: "ana", AvatarColor: "#fff"}
	m := newTestModule(store, Deps{})

	status, body := doRequest(t, m, httptest.NewRequest(http.MethodGet, "/api/users/u1", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"username":"ana"`)
	assert.Contains(t, body, `"avatar_color":"#fff"`)

	status, body = doRequest(t, m, httptest.NewRequest(http.MethodGet, "/api/users/ghost", nil))
	assert.Equal(t, http.StatusNotFound, status)
	assert.JSONEq(t, `{"error":"User not found"}`, body)
}

func TestUpsertUser(t *testing.T) {
	tests := []struct {
		name       string
		tokens     TokenVerifier
		authHeader string
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "guest mode accepts profile",
			body:       `{"id":"u1","username":"ana","avatar_color":"#f00"}`,
			wantStatus: http.StatusOK,
			wantBody:   `"avatar_color":"#f00"`,
		},
		{
			name:       "invalid body",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `Invalid request body`,
		},
		{
			name:       "empty username",
			body:       `{"id":"u1"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   world.ErrUsernameEmpty.Error(),
		},
		{
			name:       "token required",
			tokens:     mockTokens{enabled: true},
			body:       `{"id":"u1","username":"ana"}`,
			wantStatus: http.StatusUnauthorized,
			wantBody:   `Authorization header is required`,
		},
		{
			name:       "token rejected",
			tokens:     mockTokens{enabled: true},
			authHeader: "Bearer forged",
			body:       `{"id":"u1","username":"ana"}`,
			wantStatus: http.StatusUnauthorized,
			wantBody:   `Invalid or expired token`,
		},
		{
			name:       "token for another user",
			tokens:     mockTokens{enabled: true},
			authHeader: "Bearer good-u2",
			body:       `{"id":"u1","username":"ana"}`,
			wantStatus: http.StatusForbidden,
			wantBody:   `Token does not match profile id`,
		},
		{
			name:       "token for same user",
			tokens:     mockTokens{enabled: true},
			authHeader: "Bearer good-u1",
			body:       `{"id":"u1","username":"ana"}`,
			wantStatus: http.StatusOK,
			wantBody:   `"level":1`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			m := newTestModule(store, Deps{Tokens: tt.tokens})

			req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			status, body := doRequest(t, m, req)
			assert.Equal(t, tt.wantStatus, status)
			assert.Contains(t, body, tt.wantBody)
			if tt.wantStatus == http.StatusOK {
				require.Len(t, store.upserted, 1)
			} else {
				assert.Empty(t, store.upserted)
			}
		})
	}
}

func TestGetRoom(t *testing.T) {
	store := newMockStore()
	store.roomModules = []world.Module{{ID: "m1", Shape: world.ShapeCircle, Size: 40, Width: 40, Height: 40, Behavior: world.BehaviorNone}}
	m := newTestModule(store, Deps{})

	status, body := doRequest(t, m, httptest.NewRequest(http.MethodGet, "/api/rooms/-1/2", nil))
	assert.Equal(t, http.StatusOK, status)
	var resp struct {
		ID      string         `json:"id"`
		X       int            `json:"coord_x"`
		Y       int            `json:"coord_y"`
		Name    string         `json:"name"`
		Modules []world.Module `json:"modules"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, -1, resp.X)
	assert.Equal(t, 2, resp.Y)
	assert.Equal(t, "Sala (-1, 2)", resp.Name)
	require.Len(t, resp.Modules, 1)
	assert.Equal(t, 40.0, resp.Modules[0].Width)

	status, _ = doRequest(t, m, httptest.NewRequest(http.MethodGet, "/api/rooms/a/2", nil))
	assert.Equal(t, http.StatusBadRequest, status)

	store.roomErr = errors.New("db down")
	status, body = doRequest(t, m, httptest.NewRequest(http.MethodGet, "/api/rooms/0/0", nil))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.JSONEq(t, `{"error":"Failed to load room"}`, body)
}

func TestGetRoom_EmptyModulesEncodeAsArray(t *testing.T) {
	m := newTestModule(newMockStore(), Deps{})

	_, body := doRequest(t, m, httptest.NewRequest(http.MethodGet, "/api/rooms/0/0", nil))
	assert.Contains(t, body, `"modules":[]`)
}

func TestCheckMigrationAndMigrate(t *testing.T) {
	store := newMockStore()
	store.schema = world.SchemaReport{
		MigrationNeeded: true,
		MissingColumns:  []string{"height"},
		Message:         "modules table is missing columns: height",
		SQL:             "ALTER TABLE modules ADD COLUMN height REAL;",
	}
	m := newTestModule(store, Deps{})

	status, body := doRequest(t, m, httptest.NewRequest(http.MethodGet, "/api/check-migration", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"migrationNeeded":true`)
	assert.Contains(t, body, `ALTER TABLE modules ADD COLUMN height REAL;`)

	status, body = doRequest(t, m, httptest.NewRequest(http.MethodPost, "/api/migrate", nil))
	assert.Equal(t, http.StatusOK, status)
	var resp MigrateResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, store.schema.SQL, resp.SQL)

	store.schema = world.SchemaReport{Message: "schema is up to date"}
	_, body = doRequest(t, m, httptest.NewRequest(http.MethodPost, "/api/migrate", nil))
	assert.JSONEq(t, `{"success":true,"message":"schema is up to date"}`, body)

	store.schemaErr = errors.New("db down")
	status, _ = doRequest(t, m, httptest.NewRequest(http.MethodGet, "/api/check-migration", nil))
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestUnknownAPIRoute(t *testing.T) {
	m := newTestModule(newMockStore(), Deps{})

	status, body := doRequest(t, m, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, status)
	assert.JSONEq(t, `{"error":"API endpoint not found"}`, body)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("world_players_connected 0\n"))
	})
	m := newTestModule(newMockStore(), Deps{Metrics: metrics})

	status, body := doRequest(t, m, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "world_players_connected 0\n", body)
}

func TestWebSocketGuard(t *testing.T) {
	m := newTestModule(newMockStore(), Deps{Tokens: mockTokens{enabled: true}})

	status, _ := doRequest(t, m, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUpgradeRequired, status)

	req := httptest.NewRequest(http.MethodGet, "/ws?token=forged", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	status, body := doRequest(t, m, req)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, body, "Invalid or expired token")
}

func TestRateLimit(t *testing.T) {
	m := newTestModuleWithConfig(newMockStore(), Config{RateLimit: 2}, Deps{})
	app := m.newApp()

	for i := range 2 {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/health", nil), -1)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i+1)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/health", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, string(body), "rate_limited")
}
