// Package db provides the SQLite connection and schema for tfiacd.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Command journal - one row per command lifecycle event
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS command_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device TEXT NOT NULL,
			command_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			options TEXT,
			error TEXT,
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_command_events_device_ts ON command_events(device, timestamp);
		CREATE INDEX IF NOT EXISTS idx_command_events_command ON command_events(command_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to create command_events table: %w", err)
	}

	// State history - one row per net state change, full snapshot as JSON
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS state_changes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device TEXT NOT NULL,
			snapshot TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_state_changes_device_ts ON state_changes(device, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create state_changes table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
