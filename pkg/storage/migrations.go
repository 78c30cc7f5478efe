package storage

import (
	"database/sql"
	"fmt"
)

// MigrationVersion tracks the current database schema version.
const MigrationVersion = 1

// InitializeDatabase creates the SQLite schema for the frame history
// archive, with migration version tracking for future schema updates.
func InitializeDatabase(db *sql.DB) error {
	migrationsTable := `
	CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version INTEGER NOT NULL UNIQUE,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := db.Exec(migrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to check migration version: %w", err)
	}

	if currentVersion < 1 {
		if err := applyMigration1(db); err != nil {
			return fmt.Errorf("failed to apply migration 1: %w", err)
		}
	}

	return nil
}

// applyMigration1 creates the initial frame archive schema.
func applyMigration1(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Frames table - one row per closed frame. The frame body is stored as
	// JSON; the extracted columns exist for filtering and listing without
	// deserializing every row.
	framesTable := `
	CREATE TABLE frames (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL,
		end_reason TEXT NOT NULL,
		trigger_node_id TEXT,
		node_count INTEGER NOT NULL,
		outputs_emitted INTEGER NOT NULL,
		filtered_nodes INTEGER NOT NULL,
		errored_nodes INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		body TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := tx.Exec(framesTable); err != nil {
		return fmt.Errorf("failed to create frames table: %w", err)
	}

	framesIndexes := []string{
		"CREATE INDEX idx_frames_started_at ON frames(started_at DESC);",
		"CREATE INDEX idx_frames_end_reason ON frames(end_reason, started_at DESC);",
		"CREATE INDEX idx_frames_trigger ON frames(trigger_node_id, started_at DESC);",
	}

	for _, idx := range framesIndexes {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create frame index: %w", err)
		}
	}

	if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (1)"); err != nil {
		return fmt.Errorf("failed to record migration version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}
