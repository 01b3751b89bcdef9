package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    description TEXT,
    category TEXT,
    route TEXT UNIQUE NOT NULL,
    original_url TEXT,
    is_active INTEGER DEFAULT 1,
    check_frequency INTEGER DEFAULT 30,
    custom_selectors TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    link TEXT,
    guid TEXT,
    description TEXT,
    content TEXT,
    author TEXT,
    image_url TEXT,
    published_at TEXT,
    fetched_at TEXT DEFAULT (datetime('now')),
    word_count INTEGER DEFAULT 0,
    has_full_content INTEGER DEFAULT 0,
    quality_issues TEXT,
    extraction_metadata TEXT
);

CREATE TABLE IF NOT EXISTS fetch_outcomes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    status TEXT NOT NULL CHECK(status IN ('success', 'warning', 'error')),
    http_status INTEGER,
    item_count INTEGER DEFAULT 0,
    avg_title_length REAL DEFAULT 0,
    avg_content_length REAL DEFAULT 0,
    image_count INTEGER DEFAULT 0,
    quality_score INTEGER DEFAULT 0,
    duration REAL DEFAULT 0,
    error_message TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS alerts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id INTEGER REFERENCES sources(id) ON DELETE SET NULL,
    level TEXT NOT NULL CHECK(level IN ('info', 'warning', 'error')),
    message TEXT NOT NULL,
    is_read INTEGER DEFAULT 0,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_items_source ON items(source_id);
CREATE INDEX IF NOT EXISTS idx_outcomes_source_created ON fetch_outcomes(source_id, created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_read ON alerts(is_read);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
