package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sekiba/kifuroom/pkg/kifuerr"
	"github.com/sekiba/kifuroom/pkg/tree"
)

// GameSummary is one row of a ListGames page: everything but the node tree.
type GameSummary struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PutGame persists a full game and its node tree in one transaction,
// replacing any existing rows for the same game id. Used for game:new and
// whole-tree imports; incremental play uses UpsertNode instead.
func (s *Store) PutGame(ctx context.Context, game tree.Game, nodes []tree.Node) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := putGameRow(ctx, tx, game); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE game_id = ?`, game.ID); err != nil {
		return fmt.Errorf("clear nodes for %v: %w", game.ID, err)
	}
	for _, n := range nodes {
		if err := upsertNodeRow(ctx, tx, n); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func putGameRow(ctx context.Context, tx *sql.Tx, game tree.Game) error {
	metaJSON, err := json.Marshal(game.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	uiJSON, err := json.Marshal(game.UIState)
	if err != nil {
		return fmt.Errorf("marshal ui_state: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO games (id, title, created_at, updated_at, initial_sfen, root_node_id, current_node_id, meta_json, ui_state_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at,
			current_node_id = excluded.current_node_id,
			meta_json = excluded.meta_json,
			ui_state_json = excluded.ui_state_json
	`,
		game.ID, game.Title, game.CreatedAt.UnixMilli(), game.UpdatedAt.UnixMilli(),
		game.InitialSFEN, game.RootNodeID, game.CurrentNodeID, string(metaJSON), string(uiJSON))
	if err != nil {
		return fmt.Errorf("put game %v: %w", game.ID, err)
	}
	return nil
}

// SetGameMeta updates title/meta/ui_state for an existing game, as driven
// by PUT /api/games/{id}.
func (s *Store) SetGameMeta(ctx context.Context, gameID, title string, meta map[string]string, ui tree.UIState) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	uiJSON, err := json.Marshal(ui)
	if err != nil {
		return fmt.Errorf("marshal ui_state: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE games SET title = ?, meta_json = ?, ui_state_json = ?, updated_at = ?
		WHERE id = ?
	`, title, string(metaJSON), string(uiJSON), time.Now().UnixMilli(), gameID)
	if err != nil {
		return fmt.Errorf("set game meta %v: %w", gameID, err)
	}
	return requireRowAffected(res, gameID)
}

// SetCurrentNode updates the game's cursor, e.g. after play_move or jump.
func (s *Store) SetCurrentNode(ctx context.Context, gameID, nodeID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE games SET current_node_id = ?, updated_at = ? WHERE id = ?
	`, nodeID, time.Now().UnixMilli(), gameID)
	if err != nil {
		return fmt.Errorf("set current node for %v: %w", gameID, err)
	}
	return requireRowAffected(res, gameID)
}

func requireRowAffected(res sql.Result, gameID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return kifuerr.New(kifuerr.NotFound, "game %v not found", gameID)
	}
	return nil
}

// GetGameWithTree loads a game and its full node set, ready for tree.Load.
func (s *Store) GetGameWithTree(ctx context.Context, gameID string) (tree.Game, []tree.Node, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at, initial_sfen, root_node_id, current_node_id, meta_json, ui_state_json
		FROM games WHERE id = ?
	`, gameID)

	var game tree.Game
	var createdMs, updatedMs int64
	var metaJSON, uiJSON string
	err := row.Scan(&game.ID, &game.Title, &createdMs, &updatedMs, &game.InitialSFEN,
		&game.RootNodeID, &game.CurrentNodeID, &metaJSON, &uiJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return tree.Game{}, nil, kifuerr.New(kifuerr.NotFound, "game %v not found", gameID)
	}
	if err != nil {
		return tree.Game{}, nil, fmt.Errorf("get game %v: %w", gameID, err)
	}
	game.CreatedAt = time.UnixMilli(createdMs)
	game.UpdatedAt = time.UnixMilli(updatedMs)
	if err := json.Unmarshal([]byte(metaJSON), &game.Meta); err != nil {
		return tree.Game{}, nil, fmt.Errorf("unmarshal meta for %v: %w", gameID, err)
	}
	if err := json.Unmarshal([]byte(uiJSON), &game.UIState); err != nil {
		return tree.Game{}, nil, fmt.Errorf("unmarshal ui_state for %v: %w", gameID, err)
	}

	nodes, err := s.nodesForGame(ctx, gameID)
	if err != nil {
		return tree.Game{}, nil, err
	}
	return game, nodes, nil
}

func (s *Store) nodesForGame(ctx context.Context, gameID string) ([]tree.Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, game_id, parent_id, order_index, move_usi, comment, position_sfen, created_at
		FROM nodes WHERE game_id = ?
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list nodes for %v: %w", gameID, err)
	}
	defer rows.Close()

	var nodes []tree.Node
	for rows.Next() {
		var n tree.Node
		var createdMs int64
		if err := rows.Scan(&n.ID, &n.GameID, &n.ParentID, &n.OrderIndex, &n.MoveUSI, &n.Comment, &n.PositionSFEN, &createdMs); err != nil {
			return nil, fmt.Errorf("scan node for %v: %w", gameID, err)
		}
		n.CreatedAt = time.UnixMilli(createdMs)
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// ListGames returns a page of game summaries ordered by most recently
// updated, plus the total count across all pages.
func (s *Store) ListGames(ctx context.Context, limit, offset int) ([]GameSummary, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count games: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, created_at, updated_at FROM games
		ORDER BY updated_at DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var items []GameSummary
	for rows.Next() {
		var g GameSummary
		var createdMs, updatedMs int64
		if err := rows.Scan(&g.ID, &g.Title, &createdMs, &updatedMs); err != nil {
			return nil, 0, fmt.Errorf("scan game summary: %w", err)
		}
		g.CreatedAt = time.UnixMilli(createdMs)
		g.UpdatedAt = time.UnixMilli(updatedMs)
		items = append(items, g)
	}
	return items, total, rows.Err()
}

// DeleteGame removes a game and its nodes. Optional per the design; wired
// here for /api/games/{id} DELETE.
func (s *Store) DeleteGame(ctx context.Context, gameID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE game_id = ?`, gameID); err != nil {
		return fmt.Errorf("delete nodes for %v: %w", gameID, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, gameID)
	if err != nil {
		return fmt.Errorf("delete game %v: %w", gameID, err)
	}
	if err := requireRowAffected(res, gameID); err != nil {
		return err
	}
	return tx.Commit()
}
