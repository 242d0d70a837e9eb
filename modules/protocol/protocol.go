// Package protocol defines the websocket wire format. Every frame is a JSON
// envelope {"event": "<name>", "data": <payload>}; the set of inbound and
// outbound events is closed.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/modular-world/domain/world"
)

// Inbound event names.
const (
	EventJoinRoom     = "join-room"
	EventPlayerMove   = "player-move"
	EventChatMessage  = "chat-message"
	EventModuleCreate = "module-create"
	EventModuleUpdate = "module-update"
	EventModuleDelete = "module-delete"
	EventAvatarUpdate = "avatar-update"
)

// Outbound event names. chat-message is shared with the inbound set.
const (
	EventRoomState           = "room-state"
	EventPlayerJoined        = "player-joined"
	EventPlayerMoved         = "player-moved"
	EventPlayerChatBubble    = "player-chat-bubble"
	EventModuleCreated       = "module-created"
	EventModuleUpdated       = "module-updated"
	EventModuleDeleted       = "module-deleted"
	EventPlayerAvatarUpdated = "player-avatar-updated"
	EventPlayerLeft          = "player-left"
	EventError               = "error"
)

// Decoding errors.
var (
	ErrMalformed    = errors.New("malformed message")
	ErrUnknownEvent = errors.New("unknown event")
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is one of the client-to-server events defined in this package.
type Inbound interface {
	Event() string
	inbound()
}

// AvatarInput is the avatar a client presents when joining.
type AvatarInput struct {
	Name      string  `json:"name"`
	Color     string  `json:"color"`
	HeadShape string  `json:"headShape"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// JoinRoom asks to enter the room at Coords.
type JoinRoom struct {
	Coords world.Coords
	Avatar AvatarInput
	UserID string
}

// PlayerMove reports a new avatar position.
type PlayerMove struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ChatSend carries a chat message from the player.
type ChatSend struct {
	Message string `json:"message"`
}

// ModuleCreate places a new module in the current room.
type ModuleCreate struct {
	Module world.Module
}

// ModuleUpdate replaces a module in the current room.
type ModuleUpdate struct {
	Module world.Module
}

// ModuleDelete removes a module from the current room.
type ModuleDelete struct {
	ID string
}

// AvatarUpdate merges avatar fields into the player's presence.
type AvatarUpdate struct {
	Patch world.AvatarPatch
}

func (JoinRoom) Event() string     { return EventJoinRoom }
func (PlayerMove) Event() string   { return EventPlayerMove }
func (ChatSend) Event() string     { return EventChatMessage }
func (ModuleCreate) Event() string { return EventModuleCreate }
func (ModuleUpdate) Event() string { return EventModuleUpdate }
func (ModuleDelete) Event() string { return EventModuleDelete }
func (AvatarUpdate) Event() string { return EventAvatarUpdate }

func (JoinRoom) inbound()     {}
func (PlayerMove) inbound()   {}
func (ChatSend) inbound()     {}
func (ModuleCreate) inbound() {}
func (ModuleUpdate) inbound() {}
func (ModuleDelete) inbound() {}
func (AvatarUpdate) inbound() {}

// Decode parses a client frame into one of the inbound events.
func Decode(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Event {
	case EventJoinRoom:
		var data struct {
			Coords *world.Coords `json:"coords"`
			Avatar AvatarInput   `json:"avatar"`
			UserID string        `json:"userId"`
		}
		if err := decodeData(env, &data); err != nil {
			return nil, err
		}
		if data.Coords == nil {
			return nil, fmt.Errorf("%w: %s without coords", ErrMalformed, env.Event)
		}
		return JoinRoom{Coords: *data.Coords, Avatar: data.Avatar, UserID: data.UserID}, nil

	case EventPlayerMove:
		var data PlayerMove
		if err := decodeData(env, &data); err != nil {
			return nil, err
		}
		return data, nil

	case EventChatMessage:
		var data ChatSend
		if err := decodeData(env, &data); err != nil {
			return nil, err
		}
		return data, nil

	case EventModuleCreate, EventModuleUpdate:
		var m world.Module
		if err := decodeData(env, &m); err != nil {
			return nil, err
		}
		if env.Event == EventModuleCreate {
			return ModuleCreate{Module: m}, nil
		}
		return ModuleUpdate{Module: m}, nil

	case EventModuleDelete:
		var id string
		if err := decodeData(env, &id); err != nil {
			return nil, err
		}
		if id == "" {
			return nil, fmt.Errorf("%w: %s without id", ErrMalformed, env.Event)
		}
		return ModuleDelete{ID: id}, nil

	case EventAvatarUpdate:
		var patch world.AvatarPatch
		if err := decodeData(env, &patch); err != nil {
			return nil, err
		}
		return AvatarUpdate{Patch: patch}, nil

	case "":
		return nil, fmt.Errorf("%w: missing event name", ErrMalformed)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, env.Event)
}

func decodeData(env envelope, dest any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("%w: %s without data", ErrMalformed, env.Event)
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
	}
	return nil
}
