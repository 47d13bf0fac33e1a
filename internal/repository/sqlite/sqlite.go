// Package sqlite implements the repository interfaces on an embedded SQLite
// database (modernc.org/sqlite, pure Go — no CGo).
//
// The store provides every primitive the service relies on:
//   - atomic counter increments performed store-side via
//     UPDATE ... SET x = x + 1 ... RETURNING, so increment-then-fetch is a
//     single statement;
//   - like dedup as a (script_id, user_id) primary key plus a conditional
//     counter increment inside one transaction;
//   - full-text relevance search via an FTS5 index over title, game name and
//     uploader name, kept in sync with the scripts table by triggers and
//     ranked with bm25().
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements the repository interfaces.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at dbPath (":memory:" for an in-memory
// database) and runs migrations. WAL mode is enabled so reads proceed while a
// write is in flight; foreign keys are enforced.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. Every statement is idempotent (IF NOT EXISTS),
// so this is safe to run on an existing database.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id             TEXT PRIMARY KEY,
			roblox_user_id INTEGER NOT NULL UNIQUE,
			username       TEXT NOT NULL,
			avatar_url     TEXT NOT NULL DEFAULT '',
			role           TEXT NOT NULL DEFAULT 'user',
			upload_count   INTEGER NOT NULL DEFAULT 0,
			last_active    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS scripts (
			id              TEXT PRIMARY KEY,
			title           TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			code            TEXT NOT NULL,
			uploader_id     TEXT NOT NULL REFERENCES users(id),
			uploader_name   TEXT NOT NULL,
			uploader_avatar TEXT NOT NULL DEFAULT '',
			anonymous       INTEGER NOT NULL DEFAULT 0,
			game_name       TEXT NOT NULL,
			views           INTEGER NOT NULL DEFAULT 0,
			likes           INTEGER NOT NULL DEFAULT 0,
			reports         INTEGER NOT NULL DEFAULT 0,
			status          TEXT NOT NULL DEFAULT 'active',
			created_at      DATETIME NOT NULL,
			updated_at      DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_scripts_created_at ON scripts(created_at);
		CREATE INDEX IF NOT EXISTS idx_scripts_views ON scripts(views);
		CREATE INDEX IF NOT EXISTS idx_scripts_status ON scripts(status);
		CREATE INDEX IF NOT EXISTS idx_scripts_uploader ON scripts(uploader_id);
	`)
	if err != nil {
		return fmt.Errorf("creating scripts table: %w", err)
	}

	// One row per (script, liker). The primary key is what makes a like
	// idempotent: INSERT OR IGNORE either takes effect exactly once or not
	// at all, and the likes counter is only bumped when it took effect.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS script_likes (
			script_id  TEXT NOT NULL REFERENCES scripts(id) ON DELETE CASCADE,
			user_id    INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (script_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_script_likes_user ON script_likes(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating script_likes table: %w", err)
	}

	// External-content FTS5 index over the searchable columns. The triggers
	// mirror inserts, deletes and updates of the scripts table into the
	// index, so search never reads stale text.
	_, err = db.conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS scripts_fts USING fts5(
			title, game_name, uploader_name,
			content='scripts', content_rowid='rowid'
		);

		CREATE TRIGGER IF NOT EXISTS scripts_fts_insert AFTER INSERT ON scripts BEGIN
			INSERT INTO scripts_fts(rowid, title, game_name, uploader_name)
			VALUES (new.rowid, new.title, new.game_name, new.uploader_name);
		END;

		CREATE TRIGGER IF NOT EXISTS scripts_fts_delete AFTER DELETE ON scripts BEGIN
			INSERT INTO scripts_fts(scripts_fts, rowid, title, game_name, uploader_name)
			VALUES ('delete', old.rowid, old.title, old.game_name, old.uploader_name);
		END;

		CREATE TRIGGER IF NOT EXISTS scripts_fts_update AFTER UPDATE ON scripts BEGIN
			INSERT INTO scripts_fts(scripts_fts, rowid, title, game_name, uploader_name)
			VALUES ('delete', old.rowid, old.title, old.game_name, old.uploader_name);
			INSERT INTO scripts_fts(rowid, title, game_name, uploader_name)
			VALUES (new.rowid, new.title, new.game_name, new.uploader_name);
		END;
	`)
	if err != nil {
		return fmt.Errorf("creating scripts_fts index: %w", err)
	}

	return nil
}
