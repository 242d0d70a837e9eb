package world

import (
	"encoding/json"
	"fmt"
	"time"
)

// Coords addresses a room on the world grid.
type Coords struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Key returns the live room key for the coordinates.
func (c Coords) Key() string {
	return RoomKey(c.X, c.Y)
}

// RoomKey formats grid coordinates as "x,y".
func RoomKey(x, y int) string {
	return fmt.Sprintf("%d,%d", x, y)
}

// DefaultRoomName is the name given to rooms created on first visit.
func DefaultRoomName(x, y int) string {
	return fmt.Sprintf("Sala (%d, %d)", x, y)
}

// Room is the durable record of a grid cell.
type Room struct {
	ID        string    `json:"id"`
	X         int       `json:"coord_x"`
	Y         int       `json:"coord_y"`
	Name      string    `json:"name"`
	IsPublic  bool      `json:"is_public"`
	CreatedAt time.Time `json:"created_at"`
}

// Coords returns the grid position of the room.
func (r Room) Coords() Coords {
	return Coords{X: r.X, Y: r.Y}
}

// Shape of a placed module.
type Shape string

const (
	ShapeSquare   Shape = "square"
	ShapeCircle   Shape = "circle"
	ShapeTriangle Shape = "triangle"
)

// Valid reports whether s is a known shape.
func (s Shape) Valid() bool {
	switch s {
	case ShapeSquare, ShapeCircle, ShapeTriangle:
		return true
	}
	return false
}

// Behavior attached to a module.
type Behavior string

const (
	BehaviorNone     Behavior = "none"
	BehaviorTeleport Behavior = "teleport"
	BehaviorButton   Behavior = "button"
	BehaviorPlatform Behavior = "platform"
	BehaviorMessage  Behavior = "message"
)

// Valid reports whether b is a known behavior. The empty value counts as none.
func (b Behavior) Valid() bool {
	switch b {
	case "", BehaviorNone, BehaviorTeleport, BehaviorButton, BehaviorPlatform, BehaviorMessage:
		return true
	}
	return false
}

// Module is a placed geometric object inside a room.
//
// The ID is chosen by the client. Size is the legacy single dimension;
// Width and Height are always populated once the module has been through
// Normalize.
type Module struct {
	ID           string          `json:"id"`
	X            float64         `json:"x"`
	Y            float64         `json:"y"`
	Shape        Shape           `json:"shape"`
	Size         float64         `json:"size"`
	Width        float64         `json:"width"`
	Height       float64         `json:"height"`
	Color        string          `json:"color"`
	Behavior     Behavior        `json:"behavior"`
	BehaviorData json.RawMessage `json:"behaviorData,omitempty"`
	CreatedBy    *string         `json:"createdBy,omitempty"`
}

// Dimensions resolves the effective width and height of a module whose
// explicit dimensions may be missing. Missing means nil or zero.
func Dimensions(size float64, width, height *float64) (float64, float64) {
	w, h := size, size
	if width != nil && *width != 0 {
		w = *width
	}
	if height != nil && *height != 0 {
		h = *height
	}
	return w, h
}

// Normalize fills missing width/height from size and defaults the behavior.
// Applying it twice yields the same module.
func (m *Module) Normalize() {
	m.Width, m.Height = Dimensions(m.Size, &m.Width, &m.Height)
	if m.Behavior == "" {
		m.Behavior = BehaviorNone
	}
}

// Validate checks the fields a client must supply.
func (m Module) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidModule)
	}
	if len(m.ID) > MaxModuleIDLength {
		return fmt.Errorf("%w: id too long", ErrInvalidModule)
	}
	if !m.Shape.Valid() {
		return fmt.Errorf("%w: unknown shape %q", ErrInvalidModule, m.Shape)
	}
	if !m.Behavior.Valid() {
		return fmt.Errorf("%w: unknown behavior %q", ErrInvalidModule, m.Behavior)
	}
	if m.Size < 0 || m.Width < 0 || m.Height < 0 {
		return fmt.Errorf("%w: negative dimension", ErrInvalidModule)
	}
	return nil
}

// ChatBubble is the transient speech bubble shown over an avatar.
type ChatBubble struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Presence is the live, in-memory state of a player in a room.
// ID is the connection id, not the durable user id.
type Presence struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Color      string      `json:"color"`
	HeadShape  string      `json:"headShape"`
	X          float64     `json:"x"`
	Y          float64     `json:"y"`
	Coords     Coords      `json:"coords"`
	ChatBubble *ChatBubble `json:"chatBubble,omitempty"`
}

// Clone returns a deep copy of the presence.
func (p Presence) Clone() Presence {
	if p.ChatBubble != nil {
		b := *p.ChatBubble
		p.ChatBubble = &b
	}
	return p
}

// AvatarPatch carries a partial avatar update. Nil fields are left unchanged.
type AvatarPatch struct {
	Name      *string  `json:"name,omitempty"`
	Color     *string  `json:"color,omitempty"`
	HeadShape *string  `json:"headShape,omitempty"`
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
}

// Apply merges the patch into the presence.
func (p *Presence) Apply(patch AvatarPatch) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Color != nil {
		p.Color = *patch.Color
	}
	if patch.HeadShape != nil {
		p.HeadShape = *patch.HeadShape
	}
	if patch.X != nil {
		p.X = *patch.X
	}
	if patch.Y != nil {
		p.Y = *patch.Y
	}
}

// ChatMessage is a persisted room message as sent to clients.
// Timestamp is Unix milliseconds.
type ChatMessage struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// UnknownAuthor is shown for chat history whose author has no profile.
const UnknownAuthor = "Unknown"

// User is a durable player profile.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email,omitempty"`
	AvatarColor string    `json:"avatar_color"`
	AvatarShape string    `json:"avatar_shape"`
	Level       int       `json:"level"`
	XP          int       `json:"xp"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeen    time.Time `json:"last_seen"`
}
