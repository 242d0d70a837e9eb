package pgstore

// schemaSQL creates the tables used by the gateway if they do not exist.
// Width and height stay nullable so rows written before those columns
// existed can still be read.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	username     TEXT NOT NULL,
	email        TEXT,
	avatar_color TEXT,
	avatar_shape TEXT,
	level        INTEGER NOT NULL DEFAULT 1,
	xp           INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	coord_x    INTEGER NOT NULL,
	coord_y    INTEGER NOT NULL,
	name       TEXT NOT NULL,
	is_public  BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (coord_x, coord_y)
);

CREATE TABLE IF NOT EXISTS modules (
	id            TEXT PRIMARY KEY,
	room_id       TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	x             DOUBLE PRECISION NOT NULL,
	y             DOUBLE PRECISION NOT NULL,
	shape         TEXT NOT NULL,
	size          DOUBLE PRECISION NOT NULL,
	width         DOUBLE PRECISION,
	height        DOUBLE PRECISION,
	color         TEXT,
	behavior      TEXT NOT NULL DEFAULT 'none',
	behavior_data JSONB,
	creator_id    TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_modules_room ON modules (room_id);

CREATE TABLE IF NOT EXISTS chat_messages (
	id         TEXT PRIMARY KEY,
	room_id    TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chat_room_created ON chat_messages (room_id, created_at DESC);
`

// migrationSQL is the manual repair for databases created before modules
// had explicit dimensions.
const migrationSQL = `ALTER TABLE modules ADD COLUMN IF NOT EXISTS width DOUBLE PRECISION;
ALTER TABLE modules ADD COLUMN IF NOT EXISTS height DOUBLE PRECISION;
UPDATE modules SET width = size WHERE width IS NULL;
UPDATE modules SET height = size WHERE height IS NULL;
`
