package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PutAppState upserts a single key/value pair, e.g. the last-opened game id.
func (s *Store) PutAppState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_state (k, v) VALUES (?, ?)
		ON CONFLICT(k) DO UPDATE SET v = excluded.v
	`, key, value)
	if err != nil {
		return fmt.Errorf("put app state %v: %w", key, err)
	}
	return nil
}

// GetAppState returns the value for key, and ok=false if it is unset.
func (s *Store) GetAppState(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT v FROM app_state WHERE k = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get app state %v: %w", key, err)
	}
	return v, true, nil
}
