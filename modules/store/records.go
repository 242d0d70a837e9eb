package store

import (
	"encoding/json"
	"time"

	"github.com/example/modular-world/domain/world"
)

// roomRecord is the rooms table. The (coord_x, coord_y) pair is unique.
type roomRecord struct {
	ID        string    `gorm:"primaryKey;type:text"`
	CoordX    int       `gorm:"not null;uniqueIndex:idx_rooms_coords"`
	CoordY    int       `gorm:"not null;uniqueIndex:idx_rooms_coords"`
	Name      string    `gorm:"not null"`
	IsPublic  bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (roomRecord) TableName() string { return "rooms" }

func (r roomRecord) toDomain() *world.Room {
	return &world.Room{
		ID:        r.ID,
		X:         r.CoordX,
		Y:         r.CoordY,
		Name:      r.Name,
		IsPublic:  r.IsPublic,
		CreatedAt: r.CreatedAt,
	}
}

// moduleRecord is the modules table. Width and height are nullable because
// rows written before those columns existed only carry size.
type moduleRecord struct {
	ID           string   `gorm:"primaryKey;type:text"`
	RoomID       string   `gorm:"not null;index"`
	X            float64  `gorm:"not null"`
	Y            float64  `gorm:"not null"`
	Shape        string   `gorm:"not null"`
	Size         float64  `gorm:"not null"`
	Width        *float64 `gorm:"column:width"`
	Height       *float64 `gorm:"column:height"`
	Color        string
	Behavior     string `gorm:"not null;default:none"`
	BehaviorData string
	CreatorID    *string
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (moduleRecord) TableName() string { return "modules" }

func (r moduleRecord) toDomain() world.Module {
	m := world.Module{
		ID:        r.ID,
		X:         r.X,
		Y:         r.Y,
		Shape:     world.Shape(r.Shape),
		Size:      r.Size,
		Color:     r.Color,
		Behavior:  world.Behavior(r.Behavior),
		CreatedBy: r.CreatorID,
	}
	if r.BehaviorData != "" {
		m.BehaviorData = json.RawMessage(r.BehaviorData)
	}
	m.Width, m.Height = world.Dimensions(r.Size, r.Width, r.Height)
	if m.Behavior == "" {
		m.Behavior = world.BehaviorNone
	}
	return m
}

func newModuleRecord(roomID string, m world.Module) moduleRecord {
	m.Normalize()
	w, h := m.Width, m.Height
	return moduleRecord{
		ID:           m.ID,
		RoomID:       roomID,
		X:            m.X,
		Y:            m.Y,
		Shape:        string(m.Shape),
		Size:         m.Size,
		Width:        &w,
		Height:       &h,
		Color:        m.Color,
		Behavior:     string(m.Behavior),
		BehaviorData: string(m.BehaviorData),
		CreatorID:    m.CreatedBy,
	}
}

// chatRecord is the chat_messages table.
type chatRecord struct {
	ID        string    `gorm:"primaryKey;type:text"`
	RoomID    string    `gorm:"not null;index:idx_chat_room_created,priority:1"`
	UserID    string    `gorm:"not null"`
	Message   string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_chat_room_created,priority:2"`
}

func (chatRecord) TableName() string { return "chat_messages" }

// userRecord is the users table holding durable profiles.
type userRecord struct {
	ID          string `gorm:"primaryKey;type:text"`
	Username    string `gorm:"not null"`
	Email       string
	AvatarColor string
	AvatarShape string
	Level       int       `gorm:"not null;default:1"`
	XP          int       `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	LastSeen    time.Time
}

func (userRecord) TableName() string { return "users" }

func (r userRecord) toDomain() *world.User {
	return &world.User{
		ID:          r.ID,
		Username:    r.Username,
		Email:       r.Email,
		AvatarColor: r.AvatarColor,
		AvatarShape: r.AvatarShape,
		Level:       r.Level,
		XP:          r.XP,
		CreatedAt:   r.CreatedAt,
		LastSeen:    r.LastSeen,
	}
}

// models lists every table managed by AutoMigrate.
func models() []any {
	return []any{&roomRecord{}, &moduleRecord{}, &chatRecord{}, &userRecord{}}
}
