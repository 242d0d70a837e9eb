package protocol

import (
	"encoding/json"

	"github.com/example/modular-world/domain/world"
)

// Outbound is a server-to-client frame.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Encode marshals the frame.
func (o Outbound) Encode() ([]byte, error) {
	return json.Marshal(o)
}

// RoomState is the snapshot sent to a player that just joined.
type RoomState struct {
	Players     []world.Presence    `json:"players"`
	Modules     []world.Module      `json:"modules"`
	ChatHistory []world.ChatMessage `json:"chatHistory"`
}

// PlayerMoved is broadcast when a player changes position.
type PlayerMoved struct {
	PlayerID string  `json:"playerId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// PlayerChatBubble is broadcast when a player's speech bubble changes.
type PlayerChatBubble struct {
	PlayerID   string           `json:"playerId"`
	ChatBubble world.ChatBubble `json:"chatBubble"`
}

// PlayerAvatarUpdated carries the fields a player changed.
type PlayerAvatarUpdated struct {
	PlayerID string            `json:"playerId"`
	Avatar   world.AvatarPatch `json:"avatar"`
}

// PlayerLeft is broadcast when a player leaves the room.
type PlayerLeft struct {
	PlayerID string `json:"playerId"`
}

// ErrorMessage is sent to the originating connection only.
type ErrorMessage struct {
	Message string `json:"message"`
}

// NewRoomState builds a room-state frame. Nil slices encode as empty arrays.
func NewRoomState(players []world.Presence, modules []world.Module, history []world.ChatMessage) Outbound {
	if players == nil {
		players = []world.Presence{}
	}
	if modules == nil {
		modules = []world.Module{}
	}
	if history == nil {
		history = []world.ChatMessage{}
	}
	return Outbound{Event: EventRoomState, Data: RoomState{Players: players, Modules: modules, ChatHistory: history}}
}

// NewPlayerJoined builds a player-joined frame.
func NewPlayerJoined(p world.Presence) Outbound {
	return Outbound{Event: EventPlayerJoined, Data: p}
}

// NewPlayerMoved builds a player-moved frame.
func NewPlayerMoved(playerID string, x, y float64) Outbound {
	return Outbound{Event: EventPlayerMoved, Data: PlayerMoved{PlayerID: playerID, X: x, Y: y}}
}

// NewChatMessage builds a chat-message frame.
func NewChatMessage(msg world.ChatMessage) Outbound {
	return Outbound{Event: EventChatMessage, Data: msg}
}

// NewPlayerChatBubble builds a player-chat-bubble frame.
func NewPlayerChatBubble(playerID string, bubble world.ChatBubble) Outbound {
	return Outbound{Event: EventPlayerChatBubble, Data: PlayerChatBubble{PlayerID: playerID, ChatBubble: bubble}}
}

// NewModuleCreated builds a module-created frame.
func NewModuleCreated(m world.Module) Outbound {
	return Outbound{Event: EventModuleCreated, Data: m}
}

// NewModuleUpdated builds a module-updated frame.
func NewModuleUpdated(m world.Module) Outbound {
	return Outbound{Event: EventModuleUpdated, Data: m}
}

// NewModuleDeleted builds a module-deleted frame carrying the bare id.
func NewModuleDeleted(id string) Outbound {
	return Outbound{Event: EventModuleDeleted, Data: id}
}

// NewPlayerAvatarUpdated builds a player-avatar-updated frame.
func NewPlayerAvatarUpdated(playerID string, patch world.AvatarPatch) Outbound {
	return Outbound{Event: EventPlayerAvatarUpdated, Data: PlayerAvatarUpdated{PlayerID: playerID, Avatar: patch}}
}

// NewPlayerLeft builds a player-left frame.
func NewPlayerLeft(playerID string) Outbound {
	return Outbound{Event: EventPlayerLeft, Data: PlayerLeft{PlayerID: playerID}}
}

// NewError builds an error frame.
func NewError(message string) Outbound {
	return Outbound{Event: EventError, Data: ErrorMessage{Message: message}}
}
