package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AnalysisSnapshotRecord is the persisted form of one Analysis Coordinator
// flush. LinesJSON is caller-marshaled (the Synchronizer stores the
// router's PV line DTOs) so this
// package stays independent of the engine's wire types.
type AnalysisSnapshotRecord struct {
	ID        int64
	NodeID    string
	ElapsedMS int64
	MultiPV   int
	LinesJSON string
	CreatedAt time.Time
}

// AppendSnapshot inserts one analysis snapshot. Safe to call without
// blocking a broadcast -- callers only need to serialize calls per
// node_id to keep snapshot ordering meaningful.
func (s *Store) AppendSnapshot(ctx context.Context, rec AnalysisSnapshotRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_snapshots (node_id, elapsed_ms, multipv, lines_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.NodeID, rec.ElapsedMS, rec.MultiPV, rec.LinesJSON, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("append snapshot for node %v: %w", rec.NodeID, err)
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot recorded for nodeID, if
// any, for re-populating the UI on a fresh connection.
func (s *Store) LatestSnapshot(ctx context.Context, nodeID string) (AnalysisSnapshotRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, node_id, elapsed_ms, multipv, lines_json, created_at
		FROM analysis_snapshots WHERE node_id = ? ORDER BY id DESC LIMIT 1
	`, nodeID)

	var rec AnalysisSnapshotRecord
	var createdMs int64
	if err := row.Scan(&rec.ID, &rec.NodeID, &rec.ElapsedMS, &rec.MultiPV, &rec.LinesJSON, &createdMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AnalysisSnapshotRecord{}, false, nil
		}
		return AnalysisSnapshotRecord{}, false, fmt.Errorf("latest snapshot for %v: %w", nodeID, err)
	}
	rec.CreatedAt = time.UnixMilli(createdMs)
	return rec, true, nil
}
