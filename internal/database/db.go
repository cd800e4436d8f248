package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS fs_events (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	kind      TEXT    NOT NULL,
	path      TEXT    NOT NULL DEFAULT '',
	new_path  TEXT    NOT NULL DEFAULT '',
	rule      TEXT    NOT NULL DEFAULT '',
	errors    TEXT    NOT NULL DEFAULT '',
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fs_events_path ON fs_events(path);

CREATE TABLE IF NOT EXISTS file_versions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path    TEXT    NOT NULL,
	content_hash TEXT    NOT NULL,
	content      TEXT    NOT NULL,
	size         INTEGER NOT NULL,
	timestamp    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_file_versions_path ON file_versions(file_path);

CREATE TABLE IF NOT EXISTS content_diffs (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path      TEXT    NOT NULL,
	old_version_id INTEGER NOT NULL REFERENCES file_versions(id),
	new_version_id INTEGER NOT NULL REFERENCES file_versions(id),
	diff_content   TEXT    NOT NULL,
	lines_added    INTEGER NOT NULL,
	lines_removed  INTEGER NOT NULL,
	timestamp      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_content_diffs_path ON content_diffs(file_path);
`

// EventRecord is a journaled semantic event
type EventRecord struct {
	ID        int64
	Kind      string
	Path      string
	NewPath   string
	Rule      string
	Errors    string
	Timestamp int64
}

// DiffRecord is a stored content diff
type DiffRecord struct {
	ID           int64
	FilePath     string
	OldVersionID int64
	NewVersionID int64
	DiffContent  string
	LinesAdded   int
	LinesRemoved int
	Timestamp    int64
}

// DB wraps SQLite database connection
type DB struct {
	conn *sql.DB
}

// NewDB opens the database and creates missing tables
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

// InsertEvent journals an event and returns its id
func (db *DB) InsertEvent(ctx context.Context, rec EventRecord) (int64, error) {
	query := `
		INSERT INTO fs_events (kind, path, new_path, rule, errors, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().Unix()
	}

	result, err := db.conn.ExecContext(ctx, query, rec.Kind, rec.Path, rec.NewPath, rec.Rule, rec.Errors, rec.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return result.LastInsertId()
}

// RecentEvents returns up to limit events, newest first
func (db *DB) RecentEvents(ctx context.Context, limit int) ([]EventRecord, error) {
	query := `
		SELECT id, kind, path, new_path, rule, errors, timestamp
		FROM fs_events
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		var r EventRecord
		if err := rows.Scan(&r.ID, &r.Kind, &r.Path, &r.NewPath, &r.Rule, &r.Errors, &r.Timestamp); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetPreviousHash gets the latest hash and version ID for a file.
// Both are zero values when the file has no versions yet.
func (db *DB) GetPreviousHash(ctx context.Context, filePath string) (string, int64, error) {
	query := `
		SELECT content_hash, id
		FROM file_versions
		WHERE file_path = ?
		ORDER BY id DESC
		LIMIT 1
	`

	var hash string
	var versionID int64
	err := db.conn.QueryRowContext(ctx, query, filePath).Scan(&hash, &versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}

	return hash, versionID, nil
}

// InsertFileVersion inserts a new file version
func (db *DB) InsertFileVersion(ctx context.Context, filePath, hash, content string, size int64) (int64, error) {
	query := `
		INSERT INTO file_versions (file_path, content_hash, content, size, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := db.conn.ExecContext(ctx, query, filePath, hash, content, size, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("insert version: %w", err)
	}

	return result.LastInsertId()
}

// GetFileVersionContent gets the content of a file version
func (db *DB) GetFileVersionContent(ctx context.Context, versionID int64) (string, error) {
	query := `SELECT content FROM file_versions WHERE id = ?`

	var content string
	if err := db.conn.QueryRowContext(ctx, query, versionID).Scan(&content); err != nil {
		return "", err
	}

	return content, nil
}

// InsertDiff inserts a diff record
func (db *DB) InsertDiff(ctx context.Context, filePath string, oldVersionID, newVersionID int64, diffContent string, linesAdded, linesRemoved int) error {
	query := `
		INSERT INTO content_diffs (file_path, old_version_id, new_version_id, diff_content, lines_added, lines_removed, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.ExecContext(ctx, query, filePath, oldVersionID, newVersionID, diffContent, linesAdded, linesRemoved, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("insert diff: %w", err)
	}
	return nil
}

// DiffsForFile returns the diffs recorded for a path, oldest first
func (db *DB) DiffsForFile(ctx context.Context, filePath string) ([]DiffRecord, error) {
	query := `
		SELECT id, file_path, old_version_id, new_version_id, diff_content, lines_added, lines_removed, timestamp
		FROM content_diffs
		WHERE file_path = ?
		ORDER BY id ASC
	`

	rows, err := db.conn.QueryContext(ctx, query, filePath)
	if err != nil {
		return nil, fmt.Errorf("query diffs: %w", err)
	}
	defer rows.Close()

	var diffs []DiffRecord
	for rows.Next() {
		var d DiffRecord
		if err := rows.Scan(&d.ID, &d.FilePath, &d.OldVersionID, &d.NewVersionID, &d.DiffContent, &d.LinesAdded, &d.LinesRemoved, &d.Timestamp); err != nil {
			return nil, err
		}
		diffs = append(diffs, d)
	}
	return diffs, rows.Err()
}

// RenamePath moves the history of oldPath, and of anything below it when it
// is a directory, to newPath.
func (db *DB) RenamePath(ctx context.Context, oldPath, newPath string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"file_versions", "content_diffs"} {
		query := fmt.Sprintf(`
			UPDATE %s
			SET file_path = ? || substr(file_path, length(?) + 1)
			WHERE file_path = ? OR substr(file_path, 1, length(?) + 1) = ? || '/'
		`, table)
		if _, err := tx.ExecContext(ctx, query, newPath, oldPath, oldPath, oldPath, oldPath); err != nil {
			return fmt.Errorf("rename %s in %s: %w", oldPath, table, err)
		}
	}

	return tx.Commit()
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}
