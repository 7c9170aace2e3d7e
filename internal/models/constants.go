package models

// Entry lifecycle statuses. Only waiting and active entries are visible on
// the overlay; the rest stay in the table for history and undo.
const (
	StatusWaiting = "waiting"
	StatusActive  = "active"
	StatusDone    = "done"
	StatusSkipped = "skipped"
	StatusRemoved = "removed"
	StatusUndone  = "undone"
)

// Action types recorded in the undo log.
const (
	ActionAdd    = "add"
	ActionNext   = "next"
	ActionSkip   = "skip"
	ActionReset  = "reset"
	ActionRemove = "remove"
)

// Sync task statuses for the history worker.
const (
	SyncPending   = "pending"
	SyncRetry     = "retry"
	SyncCompleted = "completed"
	SyncFailed    = "failed"
)

const (
	// DefaultCacheTTLSeconds время жизни кэша публичного состояния
	DefaultCacheTTLSeconds = 3

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 256
)

// ValidEntryStatus reports whether s is a known entry status. Used when
// restoring statuses from a reset snapshot.
func ValidEntryStatus(s string) bool {
	switch s {
	case StatusWaiting, StatusActive, StatusDone, StatusSkipped, StatusRemoved, StatusUndone:
		return true
	}
	return false
}
