package storeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/modular-world/domain/world"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// Backend is the storage a module must provide to serve these services.
type Backend interface {
	GetOrCreateRoom(ctx context.Context, x, y int) (*world.Room, error)
	LoadModules(ctx context.Context, roomID string) ([]world.Module, error)
	GetUser(ctx context.Context, id string) (*world.User, error)
	UpsertUser(ctx context.Context, u world.User) (*world.User, error)
	CheckSchema(ctx context.Context) (world.SchemaReport, error)
}

// ErrBackendUnavailable is returned when a service is called before the
// storage module has started.
var ErrBackendUnavailable = errors.New("storage backend not started")

type services struct {
	backend func() Backend
}

// RegisterServices registers the storage services in the container. The
// backend is resolved on every call since it only exists once the storage
// module has started.
func RegisterServices(container mono.ServiceContainer, backend func() Backend) error {
	s := &services{backend: backend}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetUser, json.Unmarshal, json.Marshal, s.getUser,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetUser, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceUpsertUser, json.Unmarshal, json.Marshal, s.upsertUser,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceUpsertUser, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetRoom, json.Unmarshal, json.Marshal, s.getRoom,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetRoom, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceCheckSchema, json.Unmarshal, json.Marshal, s.checkSchema,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceCheckSchema, err)
	}

	return nil
}

func (s *services) resolve() (Backend, error) {
	b := s.backend()
	if b == nil {
		return nil, ErrBackendUnavailable
	}
	return b, nil
}

func (s *services) getUser(ctx context.Context, req GetUserRequest, _ *mono.Msg) (GetUserResponse, error) {
	b, err := s.resolve()
	if err != nil {
		return GetUserResponse{}, err
	}
	user, err := b.GetUser(ctx, req.ID)
	if errors.Is(err, world.ErrNotFound) {
		return GetUserResponse{Found: false}, nil
	}
	if err != nil {
		return GetUserResponse{}, err
	}
	return GetUserResponse{Found: true, User: user}, nil
}

func (s *services) upsertUser(ctx context.Context, req UpsertUserRequest, _ *mono.Msg) (UpsertUserResponse, error) {
	b, err := s.resolve()
	if err != nil {
		return UpsertUserResponse{}, err
	}
	user, err := b.UpsertUser(ctx, req.User)
	if err != nil {
		return UpsertUserResponse{}, err
	}
	return UpsertUserResponse{User: user}, nil
}

func (s *services) getRoom(ctx context.Context, req GetRoomRequest, _ *mono.Msg) (GetRoomResponse, error) {
	b, err := s.resolve()
	if err != nil {
		return GetRoomResponse{}, err
	}
	room, err := b.GetOrCreateRoom(ctx, req.X, req.Y)
	if err != nil {
		return GetRoomResponse{}, err
	}
	modules, err := b.LoadModules(ctx, room.ID)
	if err != nil {
		return GetRoomResponse{}, err
	}
	return GetRoomResponse{Room: room, Modules: modules}, nil
}

func (s *services) checkSchema(ctx context.Context, _ CheckSchemaRequest, _ *mono.Msg) (CheckSchemaResponse, error) {
	b, err := s.resolve()
	if err != nil {
		return CheckSchemaResponse{}, err
	}
	report, err := b.CheckSchema(ctx)
	if err != nil {
		return CheckSchemaResponse{}, err
	}
	return CheckSchemaResponse{Report: report}, nil
}
