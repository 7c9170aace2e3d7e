package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"streamqueue/internal/database"
	"streamqueue/internal/models"
)

const (
	TaskArchiveServed = "archive_served"
)

// archivePayload is persisted in SyncTask.Payload as JSON. The entry is
// embedded so the archive row can be written even after further queue
// commands mutate the live table.
type archivePayload struct {
	ShopName string             `json:"shop_name"`
	Entry    *models.QueueEntry `json:"entry"`
}

// HistoryWorker drains sync_queue tasks and appends served entries to the
// external archive. Tasks survive restarts in sqlite; redis, when present,
// only shortens the pickup latency.
type HistoryWorker struct {
	db            *database.DB
	sheets        SheetsWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// SheetsWriter is the external archive the worker appends to.
type SheetsWriter interface {
	AppendServedEntry(ctx context.Context, shopName string, entry *models.QueueEntry) error
}

// NewHistoryWorker builds a worker with sane defaults.
func NewHistoryWorker(db *database.DB, sheets SheetsWriter, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *HistoryWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &HistoryWorker{
		db:            db,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "history:queue",
		deadLetterKey: "history:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// SetPollInterval overrides the idle poll interval.
func (w *HistoryWorker) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.pollInterval = d
	}
}

// SetBatchSize overrides how many pending tasks one poll picks up.
func (w *HistoryWorker) SetBatchSize(n int) {
	if n > 0 {
		w.batchSize = n
	}
}

// EnqueueEntry persists an archive task and schedules it via redis or the
// in-memory queue. A task that misses both still gets picked up by polling.
func (w *HistoryWorker) EnqueueEntry(ctx context.Context, shop *models.Shop, entry *models.QueueEntry) error {
	if shop == nil || entry == nil {
		return errors.New("shop and entry are required")
	}

	payloadBytes, err := json.Marshal(archivePayload{ShopName: shop.Name, Entry: entry})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.SyncTask{
		TaskType: TaskArchiveServed,
		EntryID:  entry.ID,
		ShopID:   shop.ID,
		Payload:  string(payloadBytes),
		Status:   models.SyncPending,
	}

	if err := w.db.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Msg("history worker: redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("history worker: in-memory queue full, task left to polling")
	}

	return nil
}

// Start launches the main loop; stops when ctx is done.
func (w *HistoryWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("history worker started")
	defer w.logger.Info().Msg("history worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.db.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("history worker: fetch pending tasks")
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *HistoryWorker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}

func (w *HistoryWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *HistoryWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return models.SyncTask{}, false
		}
		w.logger.Error().Err(err).Msg("history worker: redis BRPOP")
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("history worker: decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *HistoryWorker) processTask(ctx context.Context, stale *models.SyncTask) {
	// The same task can show up twice: once from the redis queue and once
	// from the DB poll. Reload the row and only process it while it is
	// still due.
	task, err := w.db.GetSyncTask(ctx, stale.ID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			w.logger.Error().Err(err).Int64("task_id", stale.ID).Msg("history worker: reload task")
		}
		return
	}
	if task.Status != models.SyncPending && task.Status != models.SyncRetry {
		return
	}
	if task.NextRetryAt != nil && task.NextRetryAt.After(time.Now().UTC()) {
		return
	}

	payload, err := w.decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleTask(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("history worker: mark completed")
	}
}

func (w *HistoryWorker) handleTask(ctx context.Context, taskType string, payload archivePayload) error {
	switch taskType {
	case TaskArchiveServed:
		if payload.Entry == nil {
			return errors.New("entry payload missing")
		}
		if w.sheets == nil {
			// Archive not configured; complete the task so it does not loop.
			return nil
		}
		return w.sheets.AppendServedEntry(ctx, payload.ShopName, payload.Entry)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *HistoryWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncFailed, cause.Error(), nil); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("history worker: mark failed")
		}
		w.pushDeadLetter(ctx, task)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("history worker: mark retry")
	}
}

func (w *HistoryWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("history worker: mark failed")
	}
	w.pushDeadLetter(ctx, task)
}

func (w *HistoryWorker) decodePayload(raw string) (archivePayload, error) {
	var payload archivePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *HistoryWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *HistoryWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("history worker: encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("history worker: deadletter push")
	}
}
