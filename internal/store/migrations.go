package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create sessions and messages",
		SQL: `
			CREATE TABLE sessions (
				id            TEXT PRIMARY KEY,
				requester_id  TEXT NOT NULL,
				requester_name TEXT NOT NULL DEFAULT '',
				agent_id      TEXT NOT NULL DEFAULT '',
				agent_name    TEXT NOT NULL DEFAULT '',
				status        TEXT NOT NULL,
				subject       TEXT NOT NULL DEFAULT '',
				department    TEXT NOT NULL DEFAULT '',
				priority      TEXT NOT NULL DEFAULT 'medium',
				rating        INTEGER,
				created_at    TEXT NOT NULL DEFAULT (datetime('now')),
				closed_at     TEXT
			);

			CREATE INDEX idx_sessions_requester ON sessions (requester_id);
			CREATE INDEX idx_sessions_agent ON sessions (agent_id);
			CREATE INDEX idx_sessions_status ON sessions (status);

			CREATE TABLE messages (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				message_id  TEXT NOT NULL,
				session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				sender_id   TEXT NOT NULL DEFAULT '',
				sender_name TEXT NOT NULL DEFAULT '',
				role        TEXT NOT NULL,
				kind        TEXT NOT NULL DEFAULT 'text',
				content     TEXT NOT NULL,
				timestamp   TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_messages_session ON messages (session_id, id);
		`,
	},
	{
		Version: 2,
		Name:    "create agents",
		SQL: `
			CREATE TABLE agents (
				id           TEXT PRIMARY KEY,
				name         TEXT NOT NULL DEFAULT '',
				departments  TEXT NOT NULL DEFAULT '',
				last_status  TEXT NOT NULL DEFAULT 'offline',
				last_seen    TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
}
