package queue

import (
	"context"
	"errors"
	"time"

	"streamqueue/internal/database"
	"streamqueue/internal/domain"
	"streamqueue/internal/events"
	"streamqueue/internal/models"

	"github.com/rs/zerolog"
)

// Engine applies operator commands against a shop's waiting list. Each
// command performs exactly one state transition, written together with its
// undo-log record in a single transaction.
type Engine struct {
	db       *database.DB
	eventBus domain.EventPublisher
	archiver domain.HistoryArchiver
	logger   *zerolog.Logger
}

func NewEngine(db *database.DB, eventBus domain.EventPublisher, archiver domain.HistoryArchiver, logger *zerolog.Logger) *Engine {
	return &Engine{
		db:       db,
		eventBus: eventBus,
		archiver: archiver,
		logger:   logger,
	}
}

type EnqueueResult struct {
	EntryID   int64 `json:"inserted_id"`
	Duplicate bool  `json:"duplicate"`
}

type AdvanceResult struct {
	PrevActiveID *int64 `json:"prev_active_id"`
	NewActiveID  *int64 `json:"new_active_id"`
}

type SkipResult struct {
	Skipped   bool   `json:"skipped"`
	SkippedID *int64 `json:"skipped_id,omitempty"`
}

type ResetResult struct {
	Cleared int `json:"cleared"`
}

type RemoveResult struct {
	RemovedID int64 `json:"removed_id"`
}

type UndoResult struct {
	Undone     bool   `json:"undone"`
	ActionType string `json:"action_type,omitempty"`
}

// Enqueue appends a new waiting entry. Redelivered webhooks are recognized by
// their source order id and answered with the already-inserted entry.
func (e *Engine) Enqueue(ctx context.Context, shopID, firstName string, sourceOrderID, orderNumber *string) (*EnqueueResult, error) {
	if _, err := e.db.GetShop(ctx, shopID); err != nil {
		return nil, err
	}

	var result EnqueueResult
	err := e.db.InTx(ctx, func(tx *database.Tx) error {
		if sourceOrderID != nil {
			existing, err := tx.FindBySourceOrder(ctx, shopID, *sourceOrderID)
			if err != nil {
				return err
			}
			if existing != nil {
				result = EnqueueResult{EntryID: existing.ID, Duplicate: true}
				return nil
			}
		}

		entry := &models.QueueEntry{
			ShopID:        shopID,
			FirstName:     firstName,
			SourceOrderID: sourceOrderID,
			OrderNumber:   orderNumber,
			Status:        models.StatusWaiting,
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			// A concurrent delivery may have won the unique index race;
			// answer with its entry instead of failing the retry.
			if errors.Is(err, database.ErrDuplicateOrder) && sourceOrderID != nil {
				existing, findErr := tx.FindBySourceOrder(ctx, shopID, *sourceOrderID)
				if findErr != nil {
					return findErr
				}
				if existing != nil {
					result = EnqueueResult{EntryID: existing.ID, Duplicate: true}
					return nil
				}
			}
			return err
		}

		payload, err := models.EncodePayload(models.AddPayload{InsertedID: entry.ID})
		if err != nil {
			return err
		}
		if err := tx.AppendAction(ctx, &models.QueueAction{
			ShopID:     shopID,
			ActionType: models.ActionAdd,
			Payload:    payload,
		}); err != nil {
			return err
		}

		result = EnqueueResult{EntryID: entry.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Duplicate {
		e.publish(events.EventEntryEnqueued, events.QueueEventPayload{
			ShopID: shopID, EntryID: result.EntryID, FirstName: firstName,
		})
	}
	return &result, nil
}

// Advance marks the current active entry done and promotes the oldest
// waiting entry. Either side may be absent; the command still succeeds.
func (e *Engine) Advance(ctx context.Context, shopID string) (*AdvanceResult, error) {
	var (
		result AdvanceResult
		served *models.QueueEntry
	)
	err := e.db.InTx(ctx, func(tx *database.Tx) error {
		prev, err := tx.CurrentActive(ctx, shopID)
		if err != nil {
			return err
		}
		if prev != nil {
			if err := tx.UpdateEntryStatus(ctx, prev.ID, models.StatusDone); err != nil {
				return err
			}
			result.PrevActiveID = &prev.ID
			served = prev
		}

		next, err := tx.OldestWaiting(ctx, shopID)
		if err != nil {
			return err
		}
		if next != nil {
			if err := tx.UpdateEntryStatus(ctx, next.ID, models.StatusActive); err != nil {
				return err
			}
			result.NewActiveID = &next.ID
		}

		payload, err := models.EncodePayload(models.NextPayload{
			PrevActiveID: result.PrevActiveID,
			NewActiveID:  result.NewActiveID,
		})
		if err != nil {
			return err
		}
		return tx.AppendAction(ctx, &models.QueueAction{
			ShopID:     shopID,
			ActionType: models.ActionNext,
			Payload:    payload,
		})
	})
	if err != nil {
		return nil, err
	}

	e.publish(events.EventQueueAdvanced, events.QueueEventPayload{ShopID: shopID})
	e.archiveServed(ctx, shopID, served)
	return &result, nil
}

// Skip sidelines the oldest waiting entry without touching the active one.
// An empty waiting list is a successful no-op.
func (e *Engine) Skip(ctx context.Context, shopID string) (*SkipResult, error) {
	var result SkipResult
	err := e.db.InTx(ctx, func(tx *database.Tx) error {
		next, err := tx.OldestWaiting(ctx, shopID)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}

		if err := tx.UpdateEntryStatus(ctx, next.ID, models.StatusSkipped); err != nil {
			return err
		}

		payload, err := models.EncodePayload(models.SkipPayload{SkippedID: next.ID})
		if err != nil {
			return err
		}
		if err := tx.AppendAction(ctx, &models.QueueAction{
			ShopID:     shopID,
			ActionType: models.ActionSkip,
			Payload:    payload,
		}); err != nil {
			return err
		}

		result = SkipResult{Skipped: true, SkippedID: &next.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Skipped {
		e.publish(events.EventEntrySkipped, events.QueueEventPayload{ShopID: shopID, EntryID: *result.SkippedID})
	}
	return &result, nil
}

// Reset clears the whole live queue, recording every previous status so the
// action can be undone in one step.
func (e *Engine) Reset(ctx context.Context, shopID string) (*ResetResult, error) {
	var result ResetResult
	err := e.db.InTx(ctx, func(tx *database.Tx) error {
		live, err := tx.LiveEntries(ctx, shopID)
		if err != nil {
			return err
		}

		snapshot := models.ResetPayload{
			IDs:              make([]int64, 0, len(live)),
			PreviousStatuses: make(map[int64]string, len(live)),
		}
		for _, entry := range live {
			snapshot.IDs = append(snapshot.IDs, entry.ID)
			snapshot.PreviousStatuses[entry.ID] = entry.Status
		}

		for _, id := range snapshot.IDs {
			if err := tx.UpdateEntryStatus(ctx, id, models.StatusDone); err != nil {
				return err
			}
		}

		payload, err := models.EncodePayload(snapshot)
		if err != nil {
			return err
		}
		if err := tx.AppendAction(ctx, &models.QueueAction{
			ShopID:     shopID,
			ActionType: models.ActionReset,
			Payload:    payload,
		}); err != nil {
			return err
		}

		result = ResetResult{Cleared: len(snapshot.IDs)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(events.EventQueueReset, events.QueueEventPayload{ShopID: shopID, Cleared: result.Cleared})
	return &result, nil
}

// Remove marks one entry removed. The entry must exist and belong to the shop.
func (e *Engine) Remove(ctx context.Context, shopID string, entryID int64) (*RemoveResult, error) {
	var result RemoveResult
	err := e.db.InTx(ctx, func(tx *database.Tx) error {
		entry, err := tx.EntryByID(ctx, shopID, entryID)
		if err != nil {
			return err
		}

		if err := tx.UpdateEntryStatus(ctx, entry.ID, models.StatusRemoved); err != nil {
			return err
		}

		payload, err := models.EncodePayload(models.RemovePayload{
			RemovedID:      entry.ID,
			PreviousStatus: entry.Status,
		})
		if err != nil {
			return err
		}
		if err := tx.AppendAction(ctx, &models.QueueAction{
			ShopID:     shopID,
			ActionType: models.ActionRemove,
			Payload:    payload,
		}); err != nil {
			return err
		}

		result = RemoveResult{RemovedID: entry.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(events.EventEntryRemoved, events.QueueEventPayload{ShopID: shopID, EntryID: entryID})
	return &result, nil
}

// Undo reverses the most recent not-yet-undone action of the shop. Each
// action can be reversed exactly once; there is no redo.
func (e *Engine) Undo(ctx context.Context, shopID string) (*UndoResult, error) {
	var result UndoResult
	err := e.db.InTx(ctx, func(tx *database.Tx) error {
		action, err := tx.LatestPendingAction(ctx, shopID)
		if err != nil {
			return err
		}
		if action == nil {
			return nil
		}

		payload, err := action.DecodePayload()
		if err != nil {
			return err
		}

		if err := e.invert(ctx, tx, payload); err != nil {
			return err
		}

		if err := tx.MarkActionUndone(ctx, action.ID, time.Now()); err != nil {
			return err
		}

		result = UndoResult{Undone: true, ActionType: action.ActionType}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Undone {
		e.publish(events.EventActionUndone, events.QueueEventPayload{ShopID: shopID, ActionType: result.ActionType})
	}
	return &result, nil
}

// invert applies the inverse transition for one recorded action. Entries that
// vanished since the action was logged are skipped rather than failing the
// whole undo.
func (e *Engine) invert(ctx context.Context, tx *database.Tx, payload models.ActionPayload) error {
	restore := func(id int64, status string) error {
		err := tx.UpdateEntryStatus(ctx, id, status)
		if errors.Is(err, database.ErrNotFound) {
			e.logger.Warn().Int64("entry_id", id).Msg("undo target no longer exists")
			return nil
		}
		return err
	}

	switch p := payload.(type) {
	case models.AddPayload:
		return restore(p.InsertedID, models.StatusUndone)
	case models.SkipPayload:
		return restore(p.SkippedID, models.StatusWaiting)
	case models.NextPayload:
		if p.NewActiveID != nil {
			if err := restore(*p.NewActiveID, models.StatusWaiting); err != nil {
				return err
			}
		}
		if p.PrevActiveID != nil {
			if err := restore(*p.PrevActiveID, models.StatusActive); err != nil {
				return err
			}
		}
		return nil
	case models.ResetPayload:
		for _, id := range p.IDs {
			status := p.PreviousStatuses[id]
			if !models.ValidEntryStatus(status) {
				e.logger.Warn().Int64("entry_id", id).Str("status", status).Msg("reset snapshot holds unknown status")
				continue
			}
			if err := restore(id, status); err != nil {
				return err
			}
		}
		return nil
	case models.RemovePayload:
		return restore(p.RemovedID, p.PreviousStatus)
	default:
		return errors.New("unhandled action payload")
	}
}

// State answers the read query behind the dashboard and the overlay.
func (e *Engine) State(ctx context.Context, shopID string) (*models.QueueState, error) {
	return e.db.QueueState(ctx, shopID)
}

func (e *Engine) publish(eventType string, payload events.QueueEventPayload) {
	if e.eventBus == nil {
		return
	}
	if err := e.eventBus.PublishJSON(eventType, payload); err != nil {
		e.logger.Warn().Err(err).Str("event", eventType).Msg("publish event")
	}
}

// archiveServed hands a finished entry to the history worker. Archiving is
// best effort; the command already committed.
func (e *Engine) archiveServed(ctx context.Context, shopID string, entry *models.QueueEntry) {
	if e.archiver == nil || entry == nil {
		return
	}
	shop, err := e.db.GetShop(ctx, shopID)
	if err != nil {
		e.logger.Warn().Err(err).Str("shop_id", shopID).Msg("archive lookup failed")
		return
	}
	if err := e.archiver.EnqueueEntry(ctx, shop, entry); err != nil {
		e.logger.Warn().Err(err).Int64("entry_id", entry.ID).Msg("archive enqueue failed")
	}
}
