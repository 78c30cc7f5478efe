// Package storage persists closed execution frames so the snapshot API can
// serve history beyond the in-memory ring buffer.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flowscope/flowscope/pkg/domain/frame"
	"github.com/flowscope/flowscope/pkg/domain/types"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteFrameRepository implements the frame history archive using SQLite.
type SQLiteFrameRepository struct {
	db *sql.DB
}

// NewSQLiteFrameRepository creates a repository at the default location,
// ~/.flowscope/flowscope.db.
func NewSQLiteFrameRepository() (*SQLiteFrameRepository, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	return NewSQLiteFrameRepositoryWithPath(filepath.Join(homeDir, ".flowscope", "flowscope.db"))
}

// NewSQLiteFrameRepositoryWithPath creates a repository with a custom
// database path. Useful for testing.
func NewSQLiteFrameRepositoryWithPath(dbPath string) (*SQLiteFrameRepository, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := InitializeDatabase(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &SQLiteFrameRepository{db: db}, nil
}

// Close releases the database connection.
func (r *SQLiteFrameRepository) Close() error {
	return r.db.Close()
}

// ArchiveFrame stores a closed frame. Re-archiving the same frame id
// replaces the previous row.
func (r *SQLiteFrameRepository) ArchiveFrame(f *frame.Frame) error {
	if f == nil {
		return fmt.Errorf("frame cannot be nil")
	}
	if f.IsActive() {
		return fmt.Errorf("cannot archive active frame %s", f.ID)
	}

	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to serialize frame %s: %w", f.ID, err)
	}

	query := `
	INSERT OR REPLACE INTO frames (
		id, started_at, ended_at, end_reason, trigger_node_id,
		node_count, outputs_emitted, filtered_nodes, errored_nodes,
		duration_ms, body
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.Exec(query,
		f.ID.String(),
		f.StartedAt,
		f.EndedAt,
		string(f.EndReason),
		f.TriggerNodeID.String(),
		f.Stats.NodeCount,
		f.Stats.OutputsEmitted,
		f.Stats.FilteredNodes,
		f.Stats.ErroredNodes,
		f.Stats.DurationMs,
		string(body),
	)
	if err != nil {
		return fmt.Errorf("failed to archive frame %s: %w", f.ID, err)
	}
	return nil
}

// Load retrieves one archived frame by id. Returns (nil, nil) when the
// frame is not in the archive.
func (r *SQLiteFrameRepository) Load(id types.FrameID) (*frame.Frame, error) {
	var body string
	err := r.db.QueryRow("SELECT body FROM frames WHERE id = ?", id.String()).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load frame %s: %w", id, err)
	}

	var f frame.Frame
	if err := json.Unmarshal([]byte(body), &f); err != nil {
		return nil, fmt.Errorf("failed to deserialize frame %s: %w", id, err)
	}
	return &f, nil
}

// ListRecent returns up to limit archived frames, newest first.
func (r *SQLiteFrameRepository) ListRecent(limit int) ([]*frame.Frame, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(
		"SELECT body FROM frames ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	defer func() { _ = rows.Close() }()

	frames := make([]*frame.Frame, 0, limit)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan frame row: %w", err)
		}
		var f frame.Frame
		if err := json.Unmarshal([]byte(body), &f); err != nil {
			// One corrupt row must not hide the rest of the history.
			continue
		}
		frames = append(frames, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate frame rows: %w", err)
	}
	return frames, nil
}

// Count returns the number of archived frames.
func (r *SQLiteFrameRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM frames").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count frames: %w", err)
	}
	return count, nil
}

// Prune deletes the oldest rows beyond maxRows, bounding archive growth.
func (r *SQLiteFrameRepository) Prune(maxRows int) error {
	if maxRows <= 0 {
		return nil
	}
	query := `
	DELETE FROM frames WHERE id NOT IN (
		SELECT id FROM frames ORDER BY started_at DESC, id DESC LIMIT ?
	)`
	if _, err := r.db.Exec(query, maxRows); err != nil {
		return fmt.Errorf("failed to prune frames: %w", err)
	}
	return nil
}

// Delete removes one archived frame by id.
func (r *SQLiteFrameRepository) Delete(id types.FrameID) error {
	if _, err := r.db.Exec("DELETE FROM frames WHERE id = ?", id.String()); err != nil {
		return fmt.Errorf("failed to delete frame %s: %w", id, err)
	}
	return nil
}
