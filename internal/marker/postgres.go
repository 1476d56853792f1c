package marker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres is the fleet-mode Store: deployments where one identity may check
// in from several devices share a central marker table so the at-most-once
// guarantee holds across the fleet.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects with sane pool defaults and ensures the marker table.
func OpenPostgres(connString string) (*Postgres, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("marker: open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("marker: postgres not reachable: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS completion_markers (
			key        TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("marker: migrate: %w", err)
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) (bool, error) {
	var k string
	err := p.db.QueryRowContext(ctx, `SELECT key FROM completion_markers WHERE key = $1`, key).Scan(&k)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Postgres) Set(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO completion_markers (key) VALUES ($1)
		ON CONFLICT (key) DO NOTHING
	`, key)
	return err
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM completion_markers WHERE key = $1`, key)
	return err
}

func (p *Postgres) Close() error { return p.db.Close() }
