package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sekiba/kifuroom/pkg/tree"
)

// UpsertNode persists one node, e.g. right after tree.Tree.PlayMove or
// SetComment. Unlike PutGame this never touches sibling rows.
func (s *Store) UpsertNode(ctx context.Context, n tree.Node) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := upsertNodeRow(ctx, tx, n); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertNodeRow(ctx context.Context, tx *sql.Tx, n tree.Node) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO nodes (id, game_id, parent_id, order_index, move_usi, comment, position_sfen, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			order_index = excluded.order_index,
			move_usi = excluded.move_usi,
			comment = excluded.comment,
			position_sfen = excluded.position_sfen
	`, n.ID, n.GameID, n.ParentID, n.OrderIndex, n.MoveUSI, n.Comment, n.PositionSFEN, n.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert node %v: %w", n.ID, err)
	}
	return nil
}

// RewriteChildrenOrder persists a new OrderIndex for every child of
// parentID, matching tree.Tree.ReorderChildren's result. All-or-nothing:
// the whole batch commits in one transaction, unique(parent_id,
// order_index) is deferred by writing through a temporary negative range
// first so interleaved indexes never collide mid-update.
func (s *Store) RewriteChildrenOrder(ctx context.Context, parentID string, orderedChildIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, id := range orderedChildIDs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE nodes SET order_index = ? WHERE id = ? AND parent_id = ?
		`, -(i + 1), id, parentID); err != nil {
			return fmt.Errorf("stage reorder for %v: %w", id, err)
		}
	}
	for i, id := range orderedChildIDs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE nodes SET order_index = ? WHERE id = ? AND parent_id = ?
		`, i, id, parentID); err != nil {
			return fmt.Errorf("commit reorder for %v: %w", id, err)
		}
	}
	return tx.Commit()
}
