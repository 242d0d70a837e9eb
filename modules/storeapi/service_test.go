package storeapi

import (
	"context"
	"errors"
	"testing"

	"github.com/example/modular-world/domain/world"
)

type fakeBackend struct {
	users      map[string]world.User
	loadErr    error
	userErr    error
	loadCalled string
}

func (b *fakeBackend) GetOrCreateRoom(_ context.Context, x, y int) (*world.Room, error) {
	return &world.Room{ID: "room-" + world.RoomKey(x, y), X: x, Y: y, Name: world.DefaultRoomName(x, y)}, nil
}

func (b *fakeBackend) LoadModules(_ context.Context, roomID string) ([]world.Module, error) {
	b.loadCalled = roomID
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	return []world.Module{{ID: "m1", Shape: world.ShapeSquare, Size: 10, Width: 10, Height: 10}}, nil
}

func (b *fakeBackend) GetUser(_ context.Context, id string) (*world.User, error) {
	if b.userErr != nil {
		return nil, b.userErr
	}
	u, ok := b.users[id]
	if !ok {
		return nil, world.ErrNotFound
	}
	return &u, nil
}

func (b *fakeBackend) UpsertUser(_ context.Context, u world.User) (*world.User, error) {
	b.users[u.ID] = u
	return &u, nil
}

func (b *fakeBackend) CheckSchema(_ context.Context) (world.SchemaReport, error) {
	return world.SchemaReport{MigrationNeeded: true, MissingColumns: []string{"width"}}, nil
}

func newServices(b Backend) *services {
	return &services{backend: func() Backend { return b }}
}

func TestServices_GetUser(t *testing.T) {
	backend := &fakeBackend{users: map[string]world.User{"u1": {ID: "u1", Username: "ana"}}}
	s := newServices(backend)
	ctx := context.Background()

	resp, err := s.getUser(ctx, GetUserRequest{ID: "u1"}, nil)
	if err != nil {
		t.Fatalf("getUser() error = %v", err)
	}
	if !resp.Found || resp.User.Username != "ana" {
		t.Errorf("getUser() = %+v, want ana", resp)
	}

	resp, err = s.getUser(ctx, GetUserRequest{ID: "ghost"}, nil)
	if err != nil {
		t.Fatalf("getUser() for missing user error = %v", err)
	}
	if resp.Found {
		t.Error("missing user must report Found=false")
	}

	backend.userErr = errors.New("db down")
	if _, err := s.getUser(ctx, GetUserRequest{ID: "u1"}, nil); err == nil {
		t.Error("expected backend error to propagate")
	}
}

func TestServices_GetRoomLoadsModulesOfResolvedRoom(t *testing.T) {
	backend := &fakeBackend{}
	s := newServices(backend)

	resp, err := s.getRoom(context.Background(), GetRoomRequest{X: 2, Y: -3}, nil)
	if err != nil {
		t.Fatalf("getRoom() error = %v", err)
	}
	if resp.Room.Name != "Sala (2, -3)" {
		t.Errorf("room name = %q", resp.Room.Name)
	}
	if backend.loadCalled != resp.Room.ID {
		t.Errorf("modules loaded for %q, want %q", backend.loadCalled, resp.Room.ID)
	}
	if len(resp.Modules) != 1 {
		t.Errorf("got %d modules, want 1", len(resp.Modules))
	}

	backend.loadErr = errors.New("db down")
	if _, err := s.getRoom(context.Background(), GetRoomRequest{}, nil); err == nil {
		t.Error("expected module load error to propagate")
	}
}

func TestServices_UpsertAndSchema(t *testing.T) {
	backend := &fakeBackend{users: map[string]world.User{}}
	s := newServices(backend)
	ctx := context.Background()

	resp, err := s.upsertUser(ctx, UpsertUserRequest{User: world.User{ID: "u1", Username: "ana"}}, nil)
	if err != nil {
		t.Fatalf("upsertUser() error = %v", err)
	}
	if resp.User.ID != "u1" {
		t.Errorf("upsertUser() = %+v", resp.User)
	}

	report, err := s.checkSchema(ctx, CheckSchemaRequest{}, nil)
	if err != nil {
		t.Fatalf("checkSchema() error = %v", err)
	}
	if !report.Report.MigrationNeeded {
		t.Error("expected migration to be needed")
	}
}

func TestServices_BackendNotStarted(t *testing.T) {
	s := &services{backend: func() Backend { return nil }}
	ctx := context.Background()

	if _, err := s.getUser(ctx, GetUserRequest{ID: "u1"}, nil); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("getUser() error = %v, want %v", err, ErrBackendUnavailable)
	}
	if _, err := s.getRoom(ctx, GetRoomRequest{}, nil); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("getRoom() error = %v, want %v", err, ErrBackendUnavailable)
	}
	if _, err := s.checkSchema(ctx, CheckSchemaRequest{}, nil); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("checkSchema() error = %v, want %v", err, ErrBackendUnavailable)
	}
}
