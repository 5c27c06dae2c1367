package repo

import "github.com/abdusco/shortlink/internal/db"

// ShortenerSchema creates the tables owned by the shortening service.
var ShortenerSchema = db.Schema{
	SQLite: []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS links (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			full_url TEXT NOT NULL,
			short_code TEXT UNIQUE NOT NULL,
			owner_id INTEGER REFERENCES users(id),
			device_id TEXT,
			title TEXT,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CHECK (owner_id IS NOT NULL OR device_id IS NOT NULL)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_links_owner_id ON links(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_links_device_id ON links(device_id)`,
	},
	Postgres: []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS links (
			id BIGSERIAL PRIMARY KEY,
			full_url TEXT NOT NULL,
			short_code TEXT UNIQUE NOT NULL,
			owner_id BIGINT REFERENCES users(id),
			device_id TEXT,
			title TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK (owner_id IS NOT NULL OR device_id IS NOT NULL)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_links_owner_id ON links(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_links_device_id ON links(device_id)`,
	},
}

// AnalyticsSchema creates the append-only event log of the analytics
// service. short_code has no foreign key.
var AnalyticsSchema = db.Schema{
	SQLite: []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			short_code TEXT,
			payload TEXT,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_short_code ON events(short_code, event_type)`,
	},
	Postgres: []string{
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			event_type TEXT NOT NULL,
			short_code TEXT,
			payload TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_short_code ON events(short_code, event_type)`,
	},
}

func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
