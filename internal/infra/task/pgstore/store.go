// Package pgstore is a Postgres-backed task.Store, for hosts that already
// run Postgres for their other state and would rather not add a second
// embedded file store.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskcore/internal/domain/task"
)

const runsTable = "task_runs"
const eventsTable = "task_events"
const artifactsTable = "task_artifacts"

// Store implements task.Store backed by a pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ task.Store = (*Store)(nil)

// New wraps an already-connected pool. Store.Close closes that pool; it
// does not distinguish a pool passed to New from one created by Open.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + runsTable + ` (
		  id                   TEXT PRIMARY KEY,
		  channel              TEXT NOT NULL,
		  sender_key           TEXT NOT NULL,
		  reply_target         TEXT NOT NULL,
		  status               TEXT NOT NULL,
		  original_request     TEXT NOT NULL,
		  last_response        TEXT,
		  attempt_count        INTEGER NOT NULL DEFAULT 0,
		  provider_retry_count INTEGER NOT NULL DEFAULT 0,
		  created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		  updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		  completed_at         TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_runs_status ON ` + runsTable + `(status)`,
		`CREATE INDEX IF NOT EXISTS idx_task_runs_sender_status ON ` + runsTable + `(channel, sender_key, status)`,
		`CREATE TABLE IF NOT EXISTS ` + eventsTable + ` (
		  id         BIGSERIAL PRIMARY KEY,
		  task_id    TEXT NOT NULL REFERENCES ` + runsTable + `(id) ON DELETE CASCADE,
		  event_type TEXT NOT NULL,
		  payload    JSONB,
		  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_events_task_created ON ` + eventsTable + `(task_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS ` + artifactsTable + ` (
		  id          BIGSERIAL PRIMARY KEY,
		  task_id     TEXT NOT NULL REFERENCES ` + runsTable + `(id) ON DELETE CASCADE,
		  path        TEXT NOT NULL,
		  verified    BOOLEAN NOT NULL DEFAULT false,
		  checksum    TEXT,
		  verified_at TIMESTAMPTZ
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_task_artifacts_task_path ON ` + artifactsTable + `(task_id, path)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgstore: ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) InsertTaskRun(ctx context.Context, id, channel, senderKey, replyTarget, originalRequest string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+runsTable+` (id, channel, sender_key, reply_target, status, original_request)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, channel, senderKey, replyTarget, string(task.StatusQueued), originalRequest,
	)
	if err != nil {
		return fmt.Errorf("pgstore: insert task run %q: %w", id, err)
	}
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, newStatus task.Status) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+runsTable+`
		   SET status = $2,
		       updated_at = now(),
		       completed_at = CASE WHEN $3 THEN now() ELSE completed_at END
		 WHERE id = $1`,
		id, string(newStatus), newStatus.IsTerminal(),
	)
	if err != nil {
		return fmt.Errorf("pgstore: update status for %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return task.ErrNotFound
	}
	return nil
}

func (s *Store) IncrementAttemptCount(ctx context.Context, id string) error {
	return s.bumpCounter(ctx, id, "attempt_count")
}

func (s *Store) IncrementProviderRetryCount(ctx context.Context, id string) error {
	return s.bumpCounter(ctx, id, "provider_retry_count")
}

// bumpCounter increments one of the two known integer columns; column is
// never caller-controlled, so the fmt.Sprintf below carries no injection
// risk.
func (s *Store) bumpCounter(ctx context.Context, id, column string) error {
	stmt := fmt.Sprintf(`UPDATE %s SET %s = %s + 1, updated_at = now() WHERE id = $1`, runsTable, column, column)
	tag, err := s.pool.Exec(ctx, stmt, id)
	if err != nil {
		return fmt.Errorf("pgstore: bump %s for %q: %w", column, id, err)
	}
	if tag.RowsAffected() == 0 {
		return task.ErrNotFound
	}
	return nil
}

func (s *Store) SetLastResponse(ctx context.Context, id, text string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+runsTable+` SET last_response = $2, updated_at = now() WHERE id = $1`,
		id, text,
	)
	if err != nil {
		return fmt.Errorf("pgstore: set last response for %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return task.ErrNotFound
	}
	return nil
}

func (s *Store) GetTaskRun(ctx context.Context, id string) (*task.Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, channel, sender_key, reply_target, status, original_request,
		       last_response, attempt_count, provider_retry_count,
		       created_at, updated_at, completed_at
		  FROM `+runsTable+` WHERE id = $1`, id)

	run, err := scanTaskRun(row.Scan)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get task run %q: %w", id, err)
	}
	return run, nil
}

func (s *Store) ListRecoverableTasks(ctx context.Context) ([]*task.Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, channel, sender_key, reply_target, status, original_request,
		       last_response, attempt_count, provider_retry_count,
		       created_at, updated_at, completed_at
		  FROM `+runsTable+`
		 WHERE status IN ('queued', 'running', 'blocked')
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list recoverable tasks: %w", err)
	}
	defer rows.Close()

	var out []*task.Run
	for rows.Next() {
		run, err := scanTaskRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan recoverable task: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *Store) AppendEvent(ctx context.Context, id, eventType string, payload any) error {
	var payloadJSON []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("pgstore: marshal event payload for %q: %w", id, err)
		}
		payloadJSON = b
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+eventsTable+` (task_id, event_type, payload) VALUES ($1, $2, $3)`,
		id, eventType, payloadJSON,
	)
	if err != nil {
		return fmt.Errorf("pgstore: append event for %q: %w", id, err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, id string) ([]*task.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, task_id, event_type, payload, created_at
		  FROM `+eventsTable+` WHERE task_id = $1 ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list events for %q: %w", id, err)
	}
	defer rows.Close()

	var out []*task.Event
	for rows.Next() {
		ev := &task.Event{}
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.TaskID, &ev.EventType, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgstore: scan event for %q: %w", id, err)
		}
		if payload != nil {
			s := string(payload)
			ev.PayloadJSON = &s
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) UpsertArtifactVerification(ctx context.Context, id, path string, checksum *string, verified bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+artifactsTable+` (task_id, path, verified, checksum, verified_at)
		VALUES ($1, $2, $3, $4, CASE WHEN $3 THEN now() ELSE NULL END)
		ON CONFLICT (task_id, path) DO UPDATE SET
		  verified = excluded.verified,
		  checksum = excluded.checksum,
		  verified_at = excluded.verified_at`,
		id, path, verified, checksum,
	)
	if err != nil {
		return fmt.Errorf("pgstore: upsert artifact for %q: %w", id, err)
	}
	return nil
}

func (s *Store) ListArtifacts(ctx context.Context, id string) ([]*task.Artifact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, task_id, path, verified, checksum, verified_at
		  FROM `+artifactsTable+` WHERE task_id = $1 ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list artifacts for %q: %w", id, err)
	}
	defer rows.Close()

	var out []*task.Artifact
	for rows.Next() {
		a := &task.Artifact{}
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Path, &a.Verified, &a.Checksum, &a.VerifiedAt); err != nil {
			return nil, fmt.Errorf("pgstore: scan artifact for %q: %w", id, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
