package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// PlayerJoinedEvent is emitted when a connection joins a room.
type PlayerJoinedEvent struct {
	RoomID    string    `json:"room_id"`
	RoomKey   string    `json:"room_key"`
	PlayerID  string    `json:"player_id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// PlayerLeftEvent is emitted when a connection leaves a room, either by
// joining another one or by disconnecting.
type PlayerLeftEvent struct {
	RoomID    string    `json:"room_id"`
	RoomKey   string    `json:"room_key"`
	PlayerID  string    `json:"player_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatMessageSentEvent is emitted after a chat message has been persisted.
type ChatMessageSentEvent struct {
	MessageID string    `json:"message_id"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Length    int       `json:"length"`
	Timestamp time.Time `json:"timestamp"`
}

// ModuleChangedEvent is emitted after a module has been created, updated or
// deleted in durable storage.
type ModuleChangedEvent struct {
	ModuleID  string    `json:"module_id"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Shape     string    `json:"shape,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Event definitions for the world domain.
var (
	PlayerJoinedV1 = helper.EventDefinition[PlayerJoinedEvent](
		"realtime",
		"PlayerJoined",
		"v1",
	)

	PlayerLeftV1 = helper.EventDefinition[PlayerLeftEvent](
		"realtime",
		"PlayerLeft",
		"v1",
	)

	ChatMessageSentV1 = helper.EventDefinition[ChatMessageSentEvent](
		"realtime",
		"ChatMessageSent",
		"v1",
	)

	ModuleCreatedV1 = helper.EventDefinition[ModuleChangedEvent](
		"realtime",
		"ModuleCreated",
		"v1",
	)

	ModuleUpdatedV1 = helper.EventDefinition[ModuleChangedEvent](
		"realtime",
		"ModuleUpdated",
		"v1",
	)

	ModuleDeletedV1 = helper.EventDefinition[ModuleChangedEvent](
		"realtime",
		"ModuleDeleted",
		"v1",
	)
)
