package marker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLite is the default on-device Store. WAL mode keeps the marker write
// durable across the app being killed right after submission.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the marker database under baseDir.
func OpenSQLite(baseDir string) (*SQLite, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("marker: create data dir: %w", err)
	}

	dbPath := filepath.Join(baseDir, "presence.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("marker: open database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS completion_markers (
			key        TEXT PRIMARY KEY,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("marker: migrate: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (bool, error) {
	var k string
	err := s.db.QueryRowContext(ctx, `SELECT key FROM completion_markers WHERE key = ?`, key).Scan(&k)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLite) Set(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO completion_markers (key) VALUES (?)
		ON CONFLICT (key) DO NOTHING
	`, key)
	return err
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM completion_markers WHERE key = ?`, key)
	return err
}

func (s *SQLite) Close() error { return s.db.Close() }
