package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/modular-world/domain/world"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultHistoryLimit is the number of chat messages returned on join.
const DefaultHistoryLimit = 50

// Repository is the gorm-backed persistence gateway.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository creates a new repository over an open database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// GetOrCreateRoom returns the room at (x, y), creating it on first visit.
// A concurrent creator can win the insert; the unique index rejects ours
// and the winner is re-read.
func (r *Repository) GetOrCreateRoom(ctx context.Context, x, y int) (*world.Room, error) {
	room, err := r.findRoom(ctx, x, y)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, world.ErrNotFound) {
		return nil, err
	}

	rec := roomRecord{
		ID:       uuid.New().String(),
		CoordX:   x,
		CoordY:   y,
		Name:     world.DefaultRoomName(x, y),
		IsPublic: true,
	}
	if createErr := r.db.WithContext(ctx).Create(&rec).Error; createErr != nil {
		if existing, findErr := r.findRoom(ctx, x, y); findErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create room: %w", createErr)
	}
	return rec.toDomain(), nil
}

func (r *Repository) findRoom(ctx context.Context, x, y int) (*world.Room, error) {
	var rec roomRecord
	err := r.db.WithContext(ctx).
		Where("coord_x = ? AND coord_y = ?", x, y).
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, world.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	return rec.toDomain(), nil
}

// LoadModules returns every module in the room with dimensions normalized.
func (r *Repository) LoadModules(ctx context.Context, roomID string) ([]world.Module, error) {
	var recs []moduleRecord
	if err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC, id ASC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to load modules: %w", err)
	}

	modules := make([]world.Module, 0, len(recs))
	for _, rec := range recs {
		modules = append(modules, rec.toDomain())
	}
	return modules, nil
}

// SaveModule inserts a new module into the room.
func (r *Repository) SaveModule(ctx context.Context, roomID string, m world.Module, creatorID *string) (*world.Module, error) {
	m.CreatedBy = creatorID
	rec := newModuleRecord(roomID, m)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("module %s: %w", m.ID, world.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to save module: %w", err)
	}
	saved := rec.toDomain()
	return &saved, nil
}

// UpdateModule overwrites the mutable fields of a module in the room. The
// room and creator of a module never change.
func (r *Repository) UpdateModule(ctx context.Context, roomID string, m world.Module) (*world.Module, error) {
	rec := newModuleRecord(roomID, m)
	result := r.db.WithContext(ctx).
		Model(&moduleRecord{}).
		Where("id = ? AND room_id = ?", m.ID, roomID).
		Updates(map[string]any{
			"x":             rec.X,
			"y":             rec.Y,
			"shape":         rec.Shape,
			"size":          rec.Size,
			"width":         rec.Width,
			"height":        rec.Height,
			"color":         rec.Color,
			"behavior":      rec.Behavior,
			"behavior_data": rec.BehaviorData,
			"updated_at":    r.now(),
		})
	if err := result.Error; err != nil {
		return nil, fmt.Errorf("failed to update module: %w", err)
	}
	if result.RowsAffected == 0 {
		return nil, world.ErrNotFound
	}

	var updated moduleRecord
	if err := r.db.WithContext(ctx).Take(&updated, "id = ?", m.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload module: %w", err)
	}
	out := updated.toDomain()
	return &out, nil
}

// DeleteModule removes a module from the room. Deleting a module that does
// not exist is not an error.
func (r *Repository) DeleteModule(ctx context.Context, roomID, moduleID string) error {
	if err := r.db.WithContext(ctx).
		Where("id = ? AND room_id = ?", moduleID, roomID).
		Delete(&moduleRecord{}).Error; err != nil {
		return fmt.Errorf("failed to delete module: %w", err)
	}
	return nil
}

// SaveChatMessage persists a chat message and returns it with its id and
// creation time assigned.
func (r *Repository) SaveChatMessage(ctx context.Context, roomID, userID, text string) (*world.ChatMessage, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}
	rec := chatRecord{
		ID:        id.String(),
		RoomID:    roomID,
		UserID:    userID,
		Message:   text,
		CreatedAt: r.now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("failed to save chat message: %w", err)
	}
	return &world.ChatMessage{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Message:   rec.Message,
		Timestamp: rec.CreatedAt.UnixMilli(),
	}, nil
}

type chatRow struct {
	ID        string
	UserID    string
	Message   string
	CreatedAt time.Time
	Username  *string
}

// LoadRecentChat returns up to limit most recent messages, oldest first, with
// author names resolved from profiles.
func (r *Repository) LoadRecentChat(ctx context.Context, roomID string, limit int) ([]world.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	var rows []chatRow
	if err := r.db.WithContext(ctx).
		Table("chat_messages AS c").
		Select("c.id, c.user_id, c.message, c.created_at, u.username").
		Joins("LEFT JOIN users AS u ON u.id = c.user_id").
		Where("c.room_id = ?", roomID).
		Order("c.created_at DESC, c.id DESC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}

	messages := make([]world.ChatMessage, len(rows))
	for i, row := range rows {
		name := world.UnknownAuthor
		if row.Username != nil && *row.Username != "" {
			name = *row.Username
		}
		messages[len(rows)-1-i] = world.ChatMessage{
			ID:        row.ID,
			UserID:    row.UserID,
			UserName:  name,
			Message:   row.Message,
			Timestamp: row.CreatedAt.UnixMilli(),
		}
	}
	return messages, nil
}

// GetUser returns a profile by id.
func (r *Repository) GetUser(ctx context.Context, id string) (*world.User, error) {
	var rec userRecord
	if err := r.db.WithContext(ctx).Take(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, world.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return rec.toDomain(), nil
}

// UpsertUser creates or updates a profile and refreshes its last-seen time.
func (r *Repository) UpsertUser(ctx context.Context, u world.User) (*world.User, error) {
	if err := world.ValidateUser(u); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec userRecord
		err := tx.Take(&rec, "id = ?", u.ID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = userRecord{
				ID:          u.ID,
				Username:    u.Username,
				Email:       u.Email,
				AvatarColor: u.AvatarColor,
				AvatarShape: u.AvatarShape,
				Level:       1,
				LastSeen:    now,
			}
			return tx.Create(&rec).Error
		case err != nil:
			return err
		}
		return tx.Model(&userRecord{}).Where("id = ?", u.ID).Updates(map[string]any{
			"username":     u.Username,
			"email":        u.Email,
			"avatar_color": u.AvatarColor,
			"avatar_shape": u.AvatarShape,
			"last_seen":    now,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return r.GetUser(ctx, u.ID)
}

// CheckSchema reports module dimension columns missing from the database.
func (r *Repository) CheckSchema(_ context.Context) (world.SchemaReport, error) {
	migrator := r.db.Migrator()
	if !migrator.HasTable(&moduleRecord{}) {
		return world.SchemaReport{}, fmt.Errorf("failed to check schema: modules table does not exist")
	}

	var missing []string
	for _, col := range world.DimensionColumns {
		if !migrator.HasColumn(&moduleRecord{}, col) {
			missing = append(missing, col)
		}
	}
	if len(missing) == 0 {
		return world.SchemaReport{Message: "Migration already applied"}, nil
	}

	var sql strings.Builder
	for _, col := range missing {
		fmt.Fprintf(&sql, "ALTER TABLE modules ADD COLUMN %s REAL;\n", col)
	}
	for _, col := range missing {
		fmt.Fprintf(&sql, "UPDATE modules SET %s = size WHERE %s IS NULL;\n", col, col)
	}
	return world.SchemaReport{
		MigrationNeeded: true,
		MissingColumns:  missing,
		Message:         "Columns width/height are missing from modules",
		SQL:             sql.String(),
	}, nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
