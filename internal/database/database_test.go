package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamqueue/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createTestShop(t *testing.T, db *DB, name string) *models.Shop {
	t.Helper()
	shop := &models.Shop{
		ID:       "shop-" + name,
		Name:     name,
		IsActive: true,
	}
	require.NoError(t, db.CreateShop(context.Background(), shop))
	return shop
}

func insertTestEntry(t *testing.T, db *DB, shopID, firstName, status string, sourceOrderID *string) *models.QueueEntry {
	t.Helper()
	entry := &models.QueueEntry{
		ShopID:        shopID,
		FirstName:     firstName,
		SourceOrderID: sourceOrderID,
		Status:        status,
	}
	require.NoError(t, db.InTx(context.Background(), func(tx *Tx) error {
		return tx.InsertEntry(context.Background(), entry)
	}))
	return entry
}

func TestInsertEntryDuplicateOrder(t *testing.T) {
	db := setupTestDB(t)
	shop := createTestShop(t, db, "teststore")
	orderID := "order-1"

	insertTestEntry(t, db, shop.ID, "Piet", models.StatusWaiting, &orderID)

	err := db.InTx(context.Background(), func(tx *Tx) error {
		return tx.InsertEntry(context.Background(), &models.QueueEntry{
			ShopID:        shop.ID,
			FirstName:     "Piet",
			SourceOrderID: &orderID,
			Status:        models.StatusWaiting,
		})
	})
	assert.ErrorIs(t, err, ErrDuplicateOrder)
}

func TestRemovedEntryFreesOrderID(t *testing.T) {
	db := setupTestDB(t)
	shop := createTestShop(t, db, "teststore")
	ctx := context.Background()
	orderID := "order-1"

	entry := insertTestEntry(t, db, shop.ID, "Piet", models.StatusWaiting, &orderID)

	require.NoError(t, db.InTx(ctx, func(tx *Tx) error {
		return tx.UpdateEntryStatus(ctx, entry.ID, models.StatusRemoved)
	}))

	// The partial unique index ignores removed rows, so the order can requeue.
	insertTestEntry(t, db, shop.ID, "Piet", models.StatusWaiting, &orderID)
}

func TestFindBySourceOrderSkipsRemovedAndUndone(t *testing.T) {
	db := setupTestDB(t)
	shop := createTestShop(t, db, "teststore")
	ctx := context.Background()
	orderID := "order-1"

	entry := insertTestEntry(t, db, shop.ID, "Piet", models.StatusWaiting, &orderID)

	require.NoError(t, db.InTx(ctx, func(tx *Tx) error {
		found, err := tx.FindBySourceOrder(ctx, shop.ID, orderID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, entry.ID, found.ID)

		require.NoError(t, tx.UpdateEntryStatus(ctx, entry.ID, models.StatusUndone))

		found, err = tx.FindBySourceOrder(ctx, shop.ID, orderID)
		require.NoError(t, err)
		assert.Nil(t, found)
		return nil
	}))
}

func TestOldestWaitingFIFO(t *testing.T) {
	db := setupTestDB(t)
	shop := createTestShop(t, db, "teststore")
	ctx := context.Background()

	first := insertTestEntry(t, db, shop.ID, "Piet", models.StatusWaiting, nil)
	insertTestEntry(t, db, shop.ID, "Anna", models.StatusWaiting, nil)

	require.NoError(t, db.InTx(ctx, func(tx *Tx) error {
		oldest, err := tx.OldestWaiting(ctx, shop.ID)
		require.NoError(t, err)
		require.NotNil(t, oldest)
		// Identical timestamps fall back to insertion id.
		assert.Equal(t, first.ID, oldest.ID)
		return nil
	}))
}

func TestUpdateEntryStatusNotFound(t *testing.T) {
	db := setupTestDB(t)

	err := db.InTx(context.Background(), func(tx *Tx) error {
		return tx.UpdateEntryStatus(context.Background(), 12345, models.StatusDone)
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueueStateShape(t *testing.T) {
	db := setupTestDB(t)
	shop := createTestShop(t, db, "teststore")
	ctx := context.Background()

	insertTestEntry(t, db, shop.ID, "Piet", models.StatusActive, nil)
	insertTestEntry(t, db, shop.ID, "Anna", models.StatusWaiting, nil)
	insertTestEntry(t, db, shop.ID, "Joop", models.StatusWaiting, nil)
	insertTestEntry(t, db, shop.ID, "Kees", models.StatusDone, nil)

	state, err := db.QueueState(ctx, shop.ID)
	require.NoError(t, err)
	require.NotNil(t, state.Active)
	assert.Equal(t, "Piet", state.Active.FirstName)
	require.Len(t, state.Waiting, 2)
	assert.Equal(t, "Anna", state.Waiting[0].FirstName)
	assert.Equal(t, "Joop", state.Waiting[1].FirstName)
	assert.Equal(t, 2, state.TotalWaiting)
}

func TestListEntriesNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	shop := createTestShop(t, db, "teststore")

	first := insertTestEntry(t, db, shop.ID, "Piet", models.StatusDone, nil)
	second := insertTestEntry(t, db, shop.ID, "Anna", models.StatusWaiting, nil)

	entries, err := db.ListEntries(context.Background(), shop.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second.ID, entries[0].ID)
	assert.Equal(t, first.ID, entries[1].ID)
}

func TestActionLogLatestAndUndone(t *testing.T) {
	db := setupTestDB(t)
	shop := createTestShop(t, db, "teststore")
	ctx := context.Background()

	var firstID, secondID int64
	require.NoError(t, db.InTx(ctx, func(tx *Tx) error {
		first := &models.QueueAction{ShopID: shop.ID, ActionType: models.ActionAdd, Payload: `{"inserted_id":1}`}
		if err := tx.AppendAction(ctx, first); err != nil {
			return err
		}
		firstID = first.ID

		second := &models.QueueAction{ShopID: shop.ID, ActionType: models.ActionNext, Payload: `{}`}
		if err := tx.AppendAction(ctx, second); err != nil {
			return err
		}
		secondID = second.ID
		return nil
	}))

	require.NoError(t, db.InTx(ctx, func(tx *Tx) error {
		latest, err := tx.LatestPendingAction(ctx, shop.ID)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, secondID, latest.ID)

		require.NoError(t, tx.MarkActionUndone(ctx, latest.ID, time.Now()))

		latest, err = tx.LatestPendingAction(ctx, shop.ID)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, firstID, latest.ID)

		// Marking the same action twice has no target left.
		err = tx.MarkActionUndone(ctx, secondID, time.Now())
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}

func TestGetShopByDomainRequiresActive(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	domain := "shop.example.com"
	shop := &models.Shop{ID: "shop-1", Name: "teststore", ShopDomain: &domain, IsActive: false}
	require.NoError(t, db.CreateShop(ctx, shop))

	_, err := db.GetShopByDomain(ctx, domain)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetShopByNameRequiresActive(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	shop := &models.Shop{ID: "shop-1", Name: "teststore", IsActive: false}
	require.NoError(t, db.CreateShop(ctx, shop))

	_, err := db.GetShopByName(ctx, "teststore")
	assert.ErrorIs(t, err, ErrNotFound)

	active := &models.Shop{ID: "shop-2", Name: "livestore", IsActive: true}
	require.NoError(t, db.CreateShop(ctx, active))

	got, err := db.GetShopByName(ctx, "livestore")
	require.NoError(t, err)
	assert.Equal(t, "shop-2", got.ID)
}
