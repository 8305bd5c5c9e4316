// Package store is the Persistence Store: a single sqlite file holding
// games, their node trees, analysis snapshots, and small app-wide state.
// Every tree-mutating operation commits as one transaction; snapshot
// writes are fire-and-forget inserts that never block a caller's
// broadcast, as long as the caller serializes them per node_id itself.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL,
	initial_sfen     TEXT NOT NULL,
	root_node_id     TEXT NOT NULL,
	current_node_id  TEXT NOT NULL,
	meta_json        TEXT NOT NULL DEFAULT '{}',
	ui_state_json    TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS nodes (
	id             TEXT PRIMARY KEY,
	game_id        TEXT NOT NULL REFERENCES games(id),
	parent_id      TEXT NOT NULL DEFAULT '',
	order_index    INTEGER NOT NULL,
	move_usi       TEXT NOT NULL DEFAULT '',
	comment        TEXT NOT NULL DEFAULT '',
	position_sfen  TEXT NOT NULL,
	created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nodes_game_id ON nodes(game_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_parent_order ON nodes(parent_id, order_index) WHERE parent_id != '';

CREATE TABLE IF NOT EXISTS analysis_snapshots (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	node_id     TEXT NOT NULL,
	elapsed_ms  INTEGER NOT NULL,
	multipv     INTEGER NOT NULL,
	lines_json  TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_node_id ON analysis_snapshots(node_id);

CREATE TABLE IF NOT EXISTS app_state (
	k TEXT PRIMARY KEY,
	v TEXT NOT NULL
);
`

// Store owns the sqlite connection pool. database/sql is itself safe for
// concurrent use, so Store needs no additional locking.
type Store struct {
	db *sql.DB
}

// Open creates or opens the sqlite database at path and ensures the schema
// exists. path may be ":memory:" for tests.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %v: %w", path, err)
	}
	// sqlite only tolerates one writer; modernc's driver does not pool
	// writes across connections for us, so pin it to one to avoid
	// "database is locked" under concurrent callers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}
