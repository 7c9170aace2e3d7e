package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"streamqueue/internal/models"
)

const entryColumns = `id, shop_id, first_name, source_order_id, order_number, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*models.QueueEntry, error) {
	var (
		e           models.QueueEntry
		sourceOrder sql.NullString
		orderNumber sql.NullString
	)
	err := row.Scan(&e.ID, &e.ShopID, &e.FirstName, &sourceOrder, &orderNumber, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if sourceOrder.Valid {
		e.SourceOrderID = &sourceOrder.String
	}
	if orderNumber.Valid {
		e.OrderNumber = &orderNumber.String
	}
	return &e, nil
}

// InsertEntry inserts a new entry and fills in its generated ID.
func (t *Tx) InsertEntry(ctx context.Context, entry *models.QueueEntry) error {
	now := time.Now().UTC()
	query := `INSERT INTO queue_entries (shop_id, first_name, source_order_id, order_number, status, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := t.tx.ExecContext(ctx, query,
		entry.ShopID,
		entry.FirstName,
		nullString(entry.SourceOrderID),
		nullString(entry.OrderNumber),
		entry.Status,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	entry.CreatedAt = now
	entry.UpdatedAt = now
	return nil
}

// FindBySourceOrder returns the live entry for a (shop, source order) pair.
// Removed and undone rows do not count; they released the dedup key.
func (t *Tx) FindBySourceOrder(ctx context.Context, shopID, sourceOrderID string) (*models.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries
              WHERE shop_id = ? AND source_order_id = ? AND status NOT IN (?, ?)
              ORDER BY created_at ASC, id ASC LIMIT 1`
	entry, err := scanEntry(t.tx.QueryRowContext(ctx, query, shopID, sourceOrderID, models.StatusRemoved, models.StatusUndone))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find entry by source order: %w", err)
	}
	return entry, nil
}

// CurrentActive returns the shop's active entry, oldest first as a defensive
// tie-break should more than one ever exist. Nil when there is none.
func (t *Tx) CurrentActive(ctx context.Context, shopID string) (*models.QueueEntry, error) {
	return t.oldestWithStatus(ctx, shopID, models.StatusActive)
}

// OldestWaiting returns the head of the waiting line, nil when empty.
func (t *Tx) OldestWaiting(ctx context.Context, shopID string) (*models.QueueEntry, error) {
	return t.oldestWithStatus(ctx, shopID, models.StatusWaiting)
}

func (t *Tx) oldestWithStatus(ctx context.Context, shopID, status string) (*models.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries
              WHERE shop_id = ? AND status = ?
              ORDER BY created_at ASC, id ASC LIMIT 1`
	entry, err := scanEntry(t.tx.QueryRowContext(ctx, query, shopID, status))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get oldest %s entry: %w", status, err)
	}
	return entry, nil
}

// EntryByID returns the entry only if it belongs to the shop.
func (t *Tx) EntryByID(ctx context.Context, shopID string, id int64) (*models.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries WHERE id = ? AND shop_id = ?`
	entry, err := scanEntry(t.tx.QueryRowContext(ctx, query, id, shopID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry %d: %w", id, err)
	}
	return entry, nil
}

// LiveEntries returns all waiting and active entries of the shop, the rows a
// reset touches.
func (t *Tx) LiveEntries(ctx context.Context, shopID string) ([]models.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries
              WHERE shop_id = ? AND status IN (?, ?)
              ORDER BY created_at ASC, id ASC`
	rows, err := t.tx.QueryContext(ctx, query, shopID, models.StatusWaiting, models.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list live entries: %w", err)
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// UpdateEntryStatus transitions a single entry.
func (t *Tx) UpdateEntryStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE queue_entries SET status = ?, updated_at = ? WHERE id = ?`
	result, err := t.tx.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update entry %d status: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// QueueState answers the read query behind both the dashboard and the
// overlay: the single active entry plus the waiting line, oldest first.
func (db *DB) QueueState(ctx context.Context, shopID string) (*models.QueueState, error) {
	state := &models.QueueState{Waiting: []models.QueueEntry{}}

	query := `SELECT ` + entryColumns + ` FROM queue_entries
              WHERE shop_id = ? AND status = ?
              ORDER BY created_at ASC, id ASC LIMIT 1`
	active, err := scanEntry(db.db.QueryRowContext(ctx, query, shopID, models.StatusActive))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get active entry: %w", err)
	}
	if err == nil {
		state.Active = active
	}

	query = `SELECT ` + entryColumns + ` FROM queue_entries
             WHERE shop_id = ? AND status = ?
             ORDER BY created_at ASC, id ASC`
	rows, err := db.db.QueryContext(ctx, query, shopID, models.StatusWaiting)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		state.Waiting = append(state.Waiting, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	state.TotalWaiting = len(state.Waiting)
	return state, nil
}

// ListEntries returns the shop's full history, newest first. Used by the
// export endpoint.
func (db *DB) ListEntries(ctx context.Context, shopID string) ([]models.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries
              WHERE shop_id = ?
              ORDER BY created_at DESC, id DESC`
	rows, err := db.db.QueryContext(ctx, query, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// GetEntry reads an entry outside a command transaction.
func (db *DB) GetEntry(ctx context.Context, shopID string, id int64) (*models.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries WHERE id = ? AND shop_id = ?`
	entry, err := scanEntry(db.db.QueryRowContext(ctx, query, id, shopID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry %d: %w", id, err)
	}
	return entry, nil
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
