package realtime

import (
	"context"

	"github.com/example/modular-world/domain/world"
	"github.com/example/modular-world/events"
	"github.com/example/modular-world/modules/protocol"
)

// Gateway is the durable storage the router persists through. Every call
// either completes or returns an error; callers broadcast only on success.
type Gateway interface {
	GetOrCreateRoom(ctx context.Context, x, y int) (*world.Room, error)
	LoadModules(ctx context.Context, roomID string) ([]world.Module, error)
	SaveModule(ctx context.Context, roomID string, m world.Module, creatorID *string) (*world.Module, error)
	UpdateModule(ctx context.Context, roomID string, m world.Module) (*world.Module, error)
	DeleteModule(ctx context.Context, roomID, moduleID string) error
	SaveChatMessage(ctx context.Context, roomID, userID, text string) (*world.ChatMessage, error)
	LoadRecentChat(ctx context.Context, roomID string, limit int) ([]world.ChatMessage, error)
}

// Broadcaster delivers a frame to a set of connections.
type Broadcaster interface {
	Send(connIDs []string, msg protocol.Outbound)
}

// Publisher announces domain events after they have happened.
type Publisher interface {
	PlayerJoined(events.PlayerJoinedEvent)
	PlayerLeft(events.PlayerLeftEvent)
	ChatMessageSent(events.ChatMessageSentEvent)
	ModuleCreated(events.ModuleChangedEvent)
	ModuleUpdated(events.ModuleChangedEvent)
	ModuleDeleted(events.ModuleChangedEvent)
}

// RoomCache is a key/value cache for immutable room records.
type RoomCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

type nopPublisher struct{}

func (nopPublisher) PlayerJoined(events.PlayerJoinedEvent)       {}
func (nopPublisher) PlayerLeft(events.PlayerLeftEvent)           {}
func (nopPublisher) ChatMessageSent(events.ChatMessageSentEvent) {}
func (nopPublisher) ModuleCreated(events.ModuleChangedEvent)     {}
func (nopPublisher) ModuleUpdated(events.ModuleChangedEvent)     {}
func (nopPublisher) ModuleDeleted(events.ModuleChangedEvent)     {}
