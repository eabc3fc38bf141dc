package task

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by mutating operations when the target task run
// does not exist. It indicates either a caller bug or an external deletion.
var ErrNotFound = errors.New("task: not found")

// Store is the unified task persistence port. Implementations live under
// internal/infra/task — a local embedded database is the reference backend,
// but any backend that provides atomic row updates, a unique (task_id, path)
// constraint on artifacts, and FK-cascade delete is acceptable.
//
// Schema MUST be idempotently initialized on first connection. A single
// Store instance may be shared across tasks; each operation below is
// independently atomic, and no long-running transaction spans multiple
// public calls.
type Store interface {
	// EnsureSchema creates or migrates the schema. Safe to call repeatedly.
	EnsureSchema(ctx context.Context) error

	// InsertTaskRun creates a row in status Queued with zeroed counters and
	// created_at = updated_at = now.
	InsertTaskRun(ctx context.Context, id, channel, senderKey, replyTarget, originalRequest string) error

	// UpdateStatus writes the new status and updated_at = now; if newStatus
	// is terminal it also sets completed_at = now. Returns ErrNotFound if no
	// row exists. Does not itself enforce transition legality — the engine
	// is trusted — though implementations may assert in debug builds.
	UpdateStatus(ctx context.Context, id string, newStatus Status) error

	// IncrementAttemptCount bumps attempt_count by one with updated_at = now.
	IncrementAttemptCount(ctx context.Context, id string) error

	// IncrementProviderRetryCount bumps provider_retry_count by one with
	// updated_at = now.
	IncrementProviderRetryCount(ctx context.Context, id string) error

	// SetLastResponse overwrites last_response with updated_at = now.
	SetLastResponse(ctx context.Context, id, text string) error

	// GetTaskRun returns the run, or (nil, nil) if it does not exist.
	GetTaskRun(ctx context.Context, id string) (*Run, error)

	// ListRecoverableTasks returns every run whose status is one of
	// Queued/Running/Blocked, ordered by created_at ascending. This is the
	// crash-recovery query; terminal and Cancelled runs are excluded.
	ListRecoverableTasks(ctx context.Context) ([]*Run, error)

	// AppendEvent inserts an event with created_at = now. payload, when
	// non-nil, is serialized as JSON text.
	AppendEvent(ctx context.Context, id, eventType string, payload any) error

	// ListEvents returns a task's events in insertion order.
	ListEvents(ctx context.Context, id string) ([]*Event, error)

	// UpsertArtifactVerification inserts or updates the (id, path) artifact
	// row. Sets verified_at = now when verified is true, else null.
	UpsertArtifactVerification(ctx context.Context, id, path string, checksum *string, verified bool) error

	// ListArtifacts returns a task's artifacts ordered by insertion id
	// ascending.
	ListArtifacts(ctx context.Context, id string) ([]*Artifact, error)

	// Close releases any resources (connections, file handles) held by the
	// store.
	Close() error
}

// RecoverableStatuses is the fixed status set ListRecoverableTasks filters
// on. Exported so store backends share one source of truth instead of
// re-deriving the filter in SQL/Lua.
func RecoverableStatuses() []Status {
	return []Status{StatusQueued, StatusRunning, StatusBlocked}
}

// IsRecoverable reports whether a status belongs to RecoverableStatuses.
func IsRecoverable(s Status) bool {
	switch s {
	case StatusQueued, StatusRunning, StatusBlocked:
		return true
	default:
		return false
	}
}

// Now is the clock every store backend uses for created_at/updated_at/
// completed_at/verified_at. A package-level var so tests can override it.
var Now = func() time.Time { return time.Now().UTC() }
