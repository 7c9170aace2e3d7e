package worker

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamqueue/internal/database"
	"streamqueue/internal/models"
)

type fakeSheets struct {
	mu      sync.Mutex
	calls   []string
	failing bool
}

func (f *fakeSheets) AppendServedEntry(_ context.Context, shopName string, entry *models.QueueEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return assert.AnError
	}
	f.calls = append(f.calls, shopName+"/"+entry.FirstName)
	return nil
}

func setupWorker(t *testing.T, sheets SheetsWriter, retry RetryPolicy) (*HistoryWorker, *database.DB, *models.Shop) {
	t.Helper()

	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "worker_test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	shop := &models.Shop{ID: "shop-1", Name: "teststore", IsActive: true}
	require.NoError(t, db.CreateShop(context.Background(), shop))

	return NewHistoryWorker(db, sheets, nil, retry, &logger), db, shop
}

func insertEntry(t *testing.T, db *database.DB, shopID string) *models.QueueEntry {
	t.Helper()
	entry := &models.QueueEntry{ShopID: shopID, FirstName: "Piet", Status: models.StatusDone}
	err := db.InTx(context.Background(), func(tx *database.Tx) error {
		return tx.InsertEntry(context.Background(), entry)
	})
	require.NoError(t, err)
	return entry
}

func TestRetryPolicyNextDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, MaxDelay: 10 * time.Second, BackoffFactor: 2}

	assert.Equal(t, time.Second, p.NextDelay(1))
	assert.Equal(t, 2*time.Second, p.NextDelay(2))
	assert.Equal(t, 4*time.Second, p.NextDelay(3))
	assert.Equal(t, 10*time.Second, p.NextDelay(10), "delay is clamped to MaxDelay")
	assert.Equal(t, time.Second, p.NextDelay(0), "attempt below 1 is treated as 1")
}

func TestEnqueueAndProcess(t *testing.T) {
	sheets := &fakeSheets{}
	w, db, shop := setupWorker(t, sheets, RetryPolicy{})
	ctx := context.Background()

	entry := insertEntry(t, db, shop.ID)
	require.NoError(t, w.EnqueueEntry(ctx, shop, entry))

	tasks, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, TaskArchiveServed, tasks[0].TaskType)
	assert.Equal(t, shop.ID, tasks[0].ShopID)

	w.processTask(ctx, &tasks[0])

	assert.Equal(t, []string{"teststore/Piet"}, sheets.calls)

	tasks, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks, "completed task is no longer pending")
}

func TestDuplicateDeliveryArchivesOnce(t *testing.T) {
	sheets := &fakeSheets{}
	w, db, shop := setupWorker(t, sheets, RetryPolicy{})
	ctx := context.Background()

	entry := insertEntry(t, db, shop.ID)
	require.NoError(t, w.EnqueueEntry(ctx, shop, entry))

	tasks, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	// The same task can arrive via the redis queue and via the DB poll.
	// The second copy carries the stale pending status.
	stale := tasks[0]
	w.processTask(ctx, &tasks[0])
	w.processTask(ctx, &stale)

	assert.Equal(t, []string{"teststore/Piet"}, sheets.calls)
}

func TestRetryThenFail(t *testing.T) {
	sheets := &fakeSheets{failing: true}
	w, db, shop := setupWorker(t, sheets, RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond})
	ctx := context.Background()

	entry := insertEntry(t, db, shop.ID)
	require.NoError(t, w.EnqueueEntry(ctx, shop, entry))

	tasks, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	// First failure schedules a retry.
	w.processTask(ctx, &tasks[0])

	time.Sleep(5 * time.Millisecond)
	tasks, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.SyncRetry, tasks[0].Status)
	assert.Equal(t, 1, tasks[0].RetryCount)

	// Second failure exhausts the budget.
	w.processTask(ctx, &tasks[0])

	tasks, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].LastError)
}

func TestMalformedPayloadFailsFast(t *testing.T) {
	sheets := &fakeSheets{}
	w, db, shop := setupWorker(t, sheets, RetryPolicy{})
	ctx := context.Background()

	task := models.SyncTask{
		TaskType: TaskArchiveServed,
		EntryID:  1,
		ShopID:   shop.ID,
		Payload:  "{not json",
		Status:   models.SyncPending,
	}
	require.NoError(t, db.CreateSyncTask(ctx, &task))

	w.processTask(ctx, &task)

	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Empty(t, sheets.calls)
}

func TestNilArchiveIsCompleted(t *testing.T) {
	w, db, shop := setupWorker(t, nil, RetryPolicy{})
	ctx := context.Background()

	entry := insertEntry(t, db, shop.ID)
	require.NoError(t, w.EnqueueEntry(ctx, shop, entry))

	tasks, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	w.processTask(ctx, &tasks[0])

	tasks, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
