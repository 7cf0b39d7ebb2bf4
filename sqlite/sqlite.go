// Package sqlite persists integrations, reviews and plans in a local SQLite
// database. Timestamps are stored as Unix seconds (UTC).
package sqlite

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite" // sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS integrations (
	owner_id      TEXT NOT NULL,
	platform      TEXT NOT NULL,
	location_path TEXT NOT NULL DEFAULT '',
	page_id       TEXT NOT NULL DEFAULT '',
	instagram_id  TEXT NOT NULL DEFAULT '',
	access_token  BLOB,
	refresh_token BLOB,
	user_token    BLOB,
	expiry         INTEGER NOT NULL DEFAULT 0,
	last_synced_at INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'active',
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	PRIMARY KEY (owner_id, platform)
);

CREATE TABLE IF NOT EXISTS reviews (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	platform    TEXT NOT NULL,
	author      TEXT NOT NULL DEFAULT '',
	rating      INTEGER NOT NULL DEFAULT 0,
	comment     TEXT NOT NULL DEFAULT '',
	review_date INTEGER NOT NULL DEFAULT 0,
	synced_at   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_reviews_owner ON reviews(owner_id, review_date);

CREATE TABLE IF NOT EXISTS plans (
	owner_id           TEXT PRIMARY KEY,
	plan_id            TEXT NOT NULL,
	status             TEXT NOT NULL,
	current_period_end INTEGER NOT NULL DEFAULT 0
);
`

// Open initializes the database at path (":memory:" works for tests) and
// applies the schema.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, err
		}
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	return db, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.Unix()
}

func timeOrZero(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}

	return time.Unix(v, 0).UTC()
}
