package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Config struct {
	Path         string `envconfig:"SQLITE_PATH" default:"data/agent.db"`
	MaxOpenConns int    `envconfig:"SQLITE_MAX_OPEN_CONNS" default:"8"`
}

// Open creates the database directory if needed and opens a WAL-mode database.
func (c *Config) Open(ctx context.Context) (*sql.DB, error) {
	dsn := c.Path
	if c.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = c.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxOpen := c.MaxOpenConns
	if maxOpen <= 0 || c.Path == ":memory:" {
		// every in-memory connection is its own database
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
