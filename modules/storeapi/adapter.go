package storeapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/modular-world/domain/world"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// StorePort defines the storage operations used by the HTTP side channel.
type StorePort interface {
	GetUser(ctx context.Context, id string) (*world.User, error)
	UpsertUser(ctx context.Context, u world.User) (*world.User, error)
	GetRoom(ctx context.Context, x, y int) (*world.Room, []world.Module, error)
	CheckSchema(ctx context.Context) (world.SchemaReport, error)
}

// Adapter implements StorePort using the service container.
type Adapter struct {
	container mono.ServiceContainer
}

// NewAdapter creates a new Adapter.
func NewAdapter(container mono.ServiceContainer) StorePort {
	if container == nil {
		panic("storeapi: ServiceContainer is nil")
	}
	return &Adapter{container: container}
}

// GetUser returns world.ErrNotFound when the profile does not exist.
func (a *Adapter) GetUser(ctx context.Context, id string) (*world.User, error) {
	req := GetUserRequest{ID: id}
	var resp GetUserResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetUser,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !resp.Found {
		return nil, world.ErrNotFound
	}
	return resp.User, nil
}

// UpsertUser creates or updates a profile.
func (a *Adapter) UpsertUser(ctx context.Context, u world.User) (*world.User, error) {
	req := UpsertUserRequest{User: u}
	var resp UpsertUserResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceUpsertUser,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return resp.User, nil
}

// GetRoom returns the room at (x, y), creating it if needed, with its modules.
func (a *Adapter) GetRoom(ctx context.Context, x, y int) (*world.Room, []world.Module, error) {
	req := GetRoomRequest{X: x, Y: y}
	var resp GetRoomResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetRoom,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, nil, fmt.Errorf("failed to get room: %w", err)
	}
	return resp.Room, resp.Modules, nil
}

// CheckSchema returns the schema drift report.
func (a *Adapter) CheckSchema(ctx context.Context) (world.SchemaReport, error) {
	req := CheckSchemaRequest{}
	var resp CheckSchemaResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceCheckSchema,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return world.SchemaReport{}, fmt.Errorf("failed to check schema: %w", err)
	}
	return resp.Report, nil
}
