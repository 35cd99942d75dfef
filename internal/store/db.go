package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Open opens the embedded local cache. An empty path keeps everything in memory.
// The handle is pinned to a single connection: SQLite serialises writers anyway,
// and an in-memory database only lives as long as its connection.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := ":memory:"
	if strings.TrimSpace(path) != "" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(on)"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open local db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping local db: %w", err)
	}
	return db, nil
}
