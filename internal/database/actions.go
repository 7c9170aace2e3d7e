package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"streamqueue/internal/models"
)

// AppendAction records a mutating command in the undo log.
func (t *Tx) AppendAction(ctx context.Context, action *models.QueueAction) error {
	now := time.Now().UTC()
	query := `INSERT INTO queue_actions (shop_id, action_type, payload, created_at)
              VALUES (?, ?, ?, ?)`
	result, err := t.tx.ExecContext(ctx, query, action.ShopID, action.ActionType, action.Payload, now)
	if err != nil {
		return fmt.Errorf("failed to append action: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	action.ID = id
	action.CreatedAt = now
	return nil
}

// LatestPendingAction returns the most recent action of the shop that has not
// been undone, or nil when the log holds none.
func (t *Tx) LatestPendingAction(ctx context.Context, shopID string) (*models.QueueAction, error) {
	query := `SELECT id, shop_id, action_type, payload, created_at, undone_at
              FROM queue_actions
              WHERE shop_id = ? AND undone_at IS NULL
              ORDER BY created_at DESC, id DESC LIMIT 1`

	var (
		a        models.QueueAction
		undoneAt sql.NullTime
	)
	err := t.tx.QueryRowContext(ctx, query, shopID).
		Scan(&a.ID, &a.ShopID, &a.ActionType, &a.Payload, &a.CreatedAt, &undoneAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest pending action: %w", err)
	}
	if undoneAt.Valid {
		a.UndoneAt = &undoneAt.Time
	}
	return &a, nil
}

// MarkActionUndone sets undone_at once; a second attempt on the same action
// affects no rows and reports ErrNotFound.
func (t *Tx) MarkActionUndone(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE queue_actions SET undone_at = ? WHERE id = ? AND undone_at IS NULL`
	result, err := t.tx.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark action undone: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
