package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS fetch_targets (
	batch_id TEXT NOT NULL,
	key      TEXT NOT NULL,
	url      TEXT NOT NULL,
	PRIMARY KEY (batch_id, key)
);
CREATE TABLE IF NOT EXISTS fetch_records (
	batch_id   TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	kind       TEXT    NOT NULL,
	version    INTEGER NOT NULL,
	fields     TEXT    NOT NULL,
	fetched_at TEXT    NOT NULL,
	PRIMARY KEY (batch_id, key)
);
`

// Open opens (creating if needed) the database file in WAL mode. A single
// connection is kept because SQLite serializes writers anyway.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return db, nil
}
