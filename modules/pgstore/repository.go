package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/modular-world/domain/world"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultHistoryLimit is the number of chat messages returned on join.
const DefaultHistoryLimit = 50

// DBTX is the subset of pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the PostgreSQL persistence gateway.
type Repository struct {
	db DBTX
}

// NewRepository creates a new repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates missing tables. Existing tables are left untouched.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

const selectRoomSQL = `SELECT id, coord_x, coord_y, name, is_public, created_at
FROM rooms WHERE coord_x = $1 AND coord_y = $2`

// GetOrCreateRoom returns the room at (x, y), creating it on first visit.
// Concurrent creators race on the unique (coord_x, coord_y) constraint;
// the loser's insert is a no-op and both read the winner's row.
func (r *Repository) GetOrCreateRoom(ctx context.Context, x, y int) (*world.Room, error) {
	room, err := r.findRoom(ctx, x, y)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, world.ErrNotFound) {
		return nil, err
	}

	if _, err := r.db.Exec(ctx,
		`INSERT INTO rooms (id, coord_x, coord_y, name, is_public)
		 VALUES ($1, $2, $3, $4, true)
		 ON CONFLICT (coord_x, coord_y) DO NOTHING`,
		uuid.New().String(), x, y, world.DefaultRoomName(x, y),
	); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	room, err = r.findRoom(ctx, x, y)
	if err != nil {
		return nil, fmt.Errorf("failed to read created room: %w", err)
	}
	return room, nil
}

func (r *Repository) findRoom(ctx context.Context, x, y int) (*world.Room, error) {
	var room world.Room
	err := r.db.QueryRow(ctx, selectRoomSQL, x, y).Scan(
		&room.ID, &room.X, &room.Y, &room.Name, &room.IsPublic, &room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, world.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	return &room, nil
}

const moduleColumns = `id, x, y, shape, size, width, height, color, behavior, behavior_data, creator_id`

func scanModule(row pgx.Row) (world.Module, error) {
	var (
		m             world.Module
		shape         string
		behavior      string
		color         *string
		width, height *float64
		data          []byte
	)
	if err := row.Scan(&m.ID, &m.X, &m.Y, &shape, &m.Size, &width, &height, &color, &behavior, &data, &m.CreatedBy); err != nil {
		return world.Module{}, err
	}
	m.Shape = world.Shape(shape)
	m.Behavior = world.Behavior(behavior)
	if color != nil {
		m.Color = *color
	}
	if len(data) > 0 {
		m.BehaviorData = json.RawMessage(data)
	}
	m.Width, m.Height = world.Dimensions(m.Size, width, height)
	if m.Behavior == "" {
		m.Behavior = world.BehaviorNone
	}
	return m, nil
}

// moduleSelectList is moduleColumns with each missing dimension column
// replaced by a NULL of the same type, so reads keep working on a drifted
// table and scanModule backfills from size.
func moduleSelectList(missing []string) string {
	list := moduleColumns
	for _, col := range missing {
		list = strings.Replace(list, ", "+col+",", ", NULL::float8 AS "+col+",", 1)
	}
	return list
}

// LoadModules returns every module in the room with dimensions normalized.
func (r *Repository) LoadModules(ctx context.Context, roomID string) ([]world.Module, error) {
	missing, err := r.missingDimensionColumns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load modules: %w", err)
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+moduleSelectList(missing)+` FROM modules WHERE room_id = $1 ORDER BY created_at, id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load modules: %w", err)
	}
	defer rows.Close()

	modules := make([]world.Module, 0)
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		modules = append(modules, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load modules: %w", err)
	}
	return modules, nil
}

func behaviorData(m world.Module) []byte {
	if len(m.BehaviorData) == 0 {
		return nil
	}
	return []byte(m.BehaviorData)
}

// SaveModule inserts a new module into the room.
func (r *Repository) SaveModule(ctx context.Context, roomID string, m world.Module, creatorID *string) (*world.Module, error) {
	m.Normalize()
	row := r.db.QueryRow(ctx,
		`INSERT INTO modules (id, room_id, x, y, shape, size, width, height, color, behavior, behavior_data, creator_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING `+moduleColumns,
		m.ID, roomID, m.X, m.Y, string(m.Shape), m.Size, m.Width, m.Height, m.Color, string(m.Behavior), behaviorData(m), creatorID,
	)
	saved, err := scanModule(row)
	if err != nil {
		if isPgDuplicateKeyError(err) {
			return nil, fmt.Errorf("module %s: %w", m.ID, world.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to save module: %w", err)
	}
	return &saved, nil
}

// UpdateModule overwrites the mutable fields of a module in the room.
func (r *Repository) UpdateModule(ctx context.Context, roomID string, m world.Module) (*world.Module, error) {
	m.Normalize()
	row := r.db.QueryRow(ctx,
		`UPDATE modules
		 SET x = $3, y = $4, shape = $5, size = $6, width = $7, height = $8,
		     color = $9, behavior = $10, behavior_data = $11, updated_at = now()
		 WHERE id = $1 AND room_id = $2
		 RETURNING `+moduleColumns,
		m.ID, roomID, m.X, m.Y, string(m.Shape), m.Size, m.Width, m.Height, m.Color, string(m.Behavior), behaviorData(m),
	)
	updated, err := scanModule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, world.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update module: %w", err)
	}
	return &updated, nil
}

// DeleteModule removes a module from the room. Deleting a module that does
// not exist is not an error.
func (r *Repository) DeleteModule(ctx context.Context, roomID, moduleID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM modules WHERE id = $1 AND room_id = $2`, moduleID, roomID); err != nil {
		return fmt.Errorf("failed to delete module: %w", err)
	}
	return nil
}

// SaveChatMessage persists a chat message.
func (r *Repository) SaveChatMessage(ctx context.Context, roomID, userID, text string) (*world.ChatMessage, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	var createdAt time.Time
	if err := r.db.QueryRow(ctx,
		`INSERT INTO chat_messages (id, room_id, user_id, message)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		id.String(), roomID, userID, text,
	).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("failed to save chat message: %w", err)
	}

	return &world.ChatMessage{
		ID:        id.String(),
		UserID:    userID,
		Message:   text,
		Timestamp: createdAt.UnixMilli(),
	}, nil
}

// LoadRecentChat returns up to limit most recent messages, oldest first.
func (r *Repository) LoadRecentChat(ctx context.Context, roomID string, limit int) ([]world.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.user_id, c.message, c.created_at, u.username
		 FROM chat_messages c
		 LEFT JOIN users u ON u.id = c.user_id
		 WHERE c.room_id = $1
		 ORDER BY c.created_at DESC, c.id DESC
		 LIMIT $2`,
		roomID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	defer rows.Close()

	var newestFirst []world.ChatMessage
	for rows.Next() {
		var (
			msg       world.ChatMessage
			createdAt time.Time
			username  *string
		)
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.Message, &createdAt, &username); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		msg.Timestamp = createdAt.UnixMilli()
		msg.UserName = world.UnknownAuthor
		if username != nil && *username != "" {
			msg.UserName = *username
		}
		newestFirst = append(newestFirst, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}

	messages := make([]world.ChatMessage, len(newestFirst))
	for i, msg := range newestFirst {
		messages[len(newestFirst)-1-i] = msg
	}
	return messages, nil
}

const userColumns = `id, username, COALESCE(email, ''), COALESCE(avatar_color, ''), COALESCE(avatar_shape, ''), level, xp, created_at, last_seen`

func scanUser(row pgx.Row) (*world.User, error) {
	var u world.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.AvatarColor, &u.AvatarShape, &u.Level, &u.XP, &u.CreatedAt, &u.LastSeen); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser returns a profile by id.
func (r *Repository) GetUser(ctx context.Context, id string) (*world.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, world.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

// UpsertUser creates or updates a profile and refreshes its last-seen time.
func (r *Repository) UpsertUser(ctx context.Context, u world.User) (*world.User, error) {
	if err := world.ValidateUser(u); err != nil {
		return nil, err
	}

	stored, err := scanUser(r.db.QueryRow(ctx,
		`INSERT INTO users (id, username, email, avatar_color, avatar_shape, last_seen)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, now())
		 ON CONFLICT (id) DO UPDATE SET
		     username = EXCLUDED.username,
		     email = EXCLUDED.email,
		     avatar_color = EXCLUDED.avatar_color,
		     avatar_shape = EXCLUDED.avatar_shape,
		     last_seen = now()
		 RETURNING `+userColumns,
		u.ID, u.Username, u.Email, u.AvatarColor, u.AvatarShape,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return stored, nil
}

// missingDimensionColumns lists the entries of world.DimensionColumns the
// modules table does not have.
func (r *Repository) missingDimensionColumns(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = 'modules' AND column_name = ANY($1)`,
		world.DimensionColumns,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, col := range world.DimensionColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	return missing, nil
}

// CheckSchema reports module dimension columns missing from the database.
func (r *Repository) CheckSchema(ctx context.Context) (world.SchemaReport, error) {
	missing, err := r.missingDimensionColumns(ctx)
	if err != nil {
		return world.SchemaReport{}, fmt.Errorf("failed to check schema: %w", err)
	}
	if len(missing) == 0 {
		return world.SchemaReport{Message: "Migration already applied"}, nil
	}
	return world.SchemaReport{
		MigrationNeeded: true,
		MissingColumns:  missing,
		Message:         "Columns width/height are missing from modules",
		SQL:             migrationSQL,
	}, nil
}

// isPgDuplicateKeyError checks if error is a PostgreSQL unique violation.
func isPgDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
