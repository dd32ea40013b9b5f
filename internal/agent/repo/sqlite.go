package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	errx "github.com/gasdesk/agent-server/internal/core/error"
)

// SQLiteBackend stores every record in a single (kind, id) keyed table.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(ctx context.Context, db *sql.DB) (*SQLiteBackend, error) {
	s := &SQLiteBackend{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteBackend) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS records (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		body BLOB NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (kind, id)
	);
	CREATE INDEX IF NOT EXISTS idx_records_updated ON records(kind, updated_at);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Get(ctx context.Context, kind Kind, id string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM records WHERE kind = ? AND id = ?`, string(kind), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", errx.ErrNotFound, kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s/%s: %w", kind, id, err)
	}
	return body, nil
}

func (s *SQLiteBackend) Put(ctx context.Context, kind Kind, id string, body []byte) error {
	if err := checkID(id); err != nil {
		return err
	}
	query := `
		INSERT INTO records (kind, id, body, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, string(kind), id, body, time.Now().Unix()); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", kind, id, err)
	}
	return nil
}

func (s *SQLiteBackend) List(ctx context.Context, kind Kind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM records WHERE kind = ? ORDER BY id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s id: %w", kind, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

var _ Backend = (*SQLiteBackend)(nil)
