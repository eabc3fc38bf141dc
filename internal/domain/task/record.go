package task

import "time"

// Run is the durable record of one task's lifecycle. Identified by an opaque
// unique string (a version-4 UUID is recommended; internal/engine generates
// one via google/uuid on create).
type Run struct {
	ID          string
	Channel     string
	SenderKey   string
	ReplyTarget string
	Status      Status

	OriginalRequest string
	LastResponse    *string

	AttemptCount       int
	ProviderRetryCount int

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Event is one append-only, monotonically numbered entry in a task's event
// log. PayloadJSON carries the structured payload serialized as JSON text,
// or nil when the event has no payload.
type Event struct {
	ID          int64
	TaskID      string
	EventType   string
	PayloadJSON *string
	CreatedAt   time.Time
}

// Artifact records whether a produced artifact has been confirmed to exist
// with expected content. Unique per (TaskID, Path); re-verifying a path
// updates the existing row rather than inserting a second one.
type Artifact struct {
	ID         int64
	TaskID     string
	Path       string
	Verified   bool
	Checksum   *string
	VerifiedAt *time.Time
}

// Stable event-type labels emitted by internal/engine. Event_type itself is
// a free-form string field; these constants are the vocabulary the engine
// actually emits and are part of the wire contract with any host reading the
// event log.
const (
	EventAccepted           = "accepted"
	EventStarted            = "started"
	EventContinue           = "continue"
	EventProviderRetry      = "provider_retry"
	EventToolWriteVerified  = "tool_write_verified"
	EventCompleted          = "completed"
	EventFailed             = "failed"
)

// HistoryVerifiedArtifactPath is the sentinel artifact path the engine
// upserts the first time a round's transcript shows a successful write
// followed by a successful read-back.
const HistoryVerifiedArtifactPath = "__history_verified__"
