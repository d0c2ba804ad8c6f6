package store

// migration represents a single schema migration. Statements run in order
// inside one transaction.
type migration struct {
	Version    int
	Name       string
	Statements []string
}

var sqliteMigrations = []migration{
	{
		Version: 1,
		Name:    "create sessions, messages and session keys",
		Statements: []string{
			`CREATE TABLE sessions (
				id          TEXT PRIMARY KEY,
				owner_id    TEXT NOT NULL DEFAULT '',
				title       TEXT NOT NULL DEFAULT '',
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			)`,
			`CREATE INDEX idx_sessions_owner ON sessions (owner_id, updated_at)`,
			`CREATE TABLE messages (
				seq         INTEGER PRIMARY KEY AUTOINCREMENT,
				id          TEXT NOT NULL UNIQUE,
				session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				role        TEXT NOT NULL,
				content     TEXT NOT NULL,
				image_ref   TEXT NOT NULL DEFAULT '',
				created_at  TEXT NOT NULL
			)`,
			`CREATE INDEX idx_messages_session ON messages (session_id, created_at, seq)`,
			`CREATE TABLE session_keys (
				key         TEXT PRIMARY KEY,
				session_id  TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			)`,
		},
	},
	{
		Version: 2,
		Name:    "create message search index with FTS5",
		Statements: []string{
			`CREATE VIRTUAL TABLE messages_fts USING fts5(
				content,
				content='messages',
				content_rowid='seq'
			)`,
			`CREATE TRIGGER messages_ai AFTER INSERT ON messages BEGIN
				INSERT INTO messages_fts(rowid, content) VALUES (new.seq, new.content);
			END`,
			`CREATE TRIGGER messages_ad AFTER DELETE ON messages BEGIN
				INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.seq, old.content);
			END`,
			`CREATE TRIGGER messages_au AFTER UPDATE ON messages BEGIN
				INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.seq, old.content);
				INSERT INTO messages_fts(rowid, content) VALUES (new.seq, new.content);
			END`,
		},
	},
}

var postgresMigrations = []migration{
	{
		Version: 1,
		Name:    "create sessions, messages and session keys",
		Statements: []string{
			`CREATE TABLE sessions (
				id          TEXT PRIMARY KEY,
				owner_id    TEXT NOT NULL DEFAULT '',
				title       TEXT NOT NULL DEFAULT '',
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			)`,
			`CREATE INDEX idx_sessions_owner ON sessions (owner_id, updated_at)`,
			`CREATE TABLE messages (
				seq         BIGSERIAL PRIMARY KEY,
				id          TEXT NOT NULL UNIQUE,
				session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				role        TEXT NOT NULL,
				content     TEXT NOT NULL,
				image_ref   TEXT NOT NULL DEFAULT '',
				created_at  TEXT NOT NULL
			)`,
			`CREATE INDEX idx_messages_session ON messages (session_id, created_at, seq)`,
			`CREATE TABLE session_keys (
				key         TEXT PRIMARY KEY,
				session_id  TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			)`,
		},
	},
}
