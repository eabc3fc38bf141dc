// Package sqlitestore is the reference task.Store backend: a single SQLite
// file at <workspace_dir>/state/task-runs.db, opened through the pure-Go
// modernc.org/sqlite driver so the module never needs cgo.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"taskcore/internal/domain/task"
)

const schema = `
PRAGMA foreign_keys = ON;
CREATE TABLE IF NOT EXISTS task_runs (
  id                   TEXT PRIMARY KEY,
  channel              TEXT NOT NULL,
  sender_key           TEXT NOT NULL,
  reply_target         TEXT NOT NULL,
  status               TEXT NOT NULL,
  original_request     TEXT NOT NULL,
  last_response        TEXT,
  attempt_count        INTEGER NOT NULL DEFAULT 0,
  provider_retry_count INTEGER NOT NULL DEFAULT 0,
  created_at           TEXT NOT NULL,
  updated_at           TEXT NOT NULL,
  completed_at         TEXT
);
CREATE INDEX IF NOT EXISTS idx_task_runs_status
  ON task_runs(status);
CREATE INDEX IF NOT EXISTS idx_task_runs_sender_status
  ON task_runs(channel, sender_key, status);

CREATE TABLE IF NOT EXISTS task_events (
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  task_id    TEXT NOT NULL,
  event_type TEXT NOT NULL,
  payload    TEXT,
  created_at TEXT NOT NULL,
  FOREIGN KEY(task_id) REFERENCES task_runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_task_events_task_created
  ON task_events(task_id, created_at);

CREATE TABLE IF NOT EXISTS task_artifacts (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  task_id     TEXT NOT NULL,
  path        TEXT NOT NULL,
  verified    INTEGER NOT NULL DEFAULT 0,
  checksum    TEXT,
  verified_at TEXT,
  FOREIGN KEY(task_id) REFERENCES task_runs(id) ON DELETE CASCADE
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_task_artifacts_task_path
  ON task_artifacts(task_id, path);
`

// Store is the SQLite-backed task.Store implementation.
type Store struct {
	db *sql.DB

	// cache is a bounded read-through cache of GetTaskRun results, keyed by
	// task id. Invalidated on every mutating call for that id.
	cache *lru.Cache[string, *task.Run]
}

var _ task.Store = (*Store)(nil)

// Open creates the parent directory if needed, opens the database file,
// and initializes its schema.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlitestore: create directory %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %q: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid lock contention

	cache, err := lru.New[string, *task.Run](256)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: create cache: %w", err)
	}

	s := &Store{db: db, cache: cache}
	if err := s.EnsureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("sqlitestore: initialize schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) invalidate(id string) {
	s.cache.Remove(id)
}

func (s *Store) InsertTaskRun(ctx context.Context, id, channel, senderKey, replyTarget, originalRequest string) error {
	now := task.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_runs (
		  id, channel, sender_key, reply_target, status, original_request,
		  last_response, attempt_count, provider_retry_count,
		  created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, NULL, 0, 0, ?, ?, NULL)`,
		id, channel, senderKey, replyTarget, string(task.StatusQueued), originalRequest,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: insert task run %q: %w", id, err)
	}
	s.invalidate(id)
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, newStatus task.Status) error {
	now := task.Now()
	var completedAt *string
	if newStatus.IsTerminal() {
		v := formatTime(now)
		completedAt = &v
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE task_runs SET status = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		string(newStatus), formatTime(now), completedAt, id,
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: update status for %q: %w", id, err)
	}
	if rowsAffected(res) == 0 {
		return task.ErrNotFound
	}
	s.invalidate(id)
	return nil
}

func (s *Store) IncrementAttemptCount(ctx context.Context, id string) error {
	return s.bumpCounter(ctx, id, "attempt_count")
}

func (s *Store) IncrementProviderRetryCount(ctx context.Context, id string) error {
	return s.bumpCounter(ctx, id, "provider_retry_count")
}

// bumpCounter increments one of the two known integer counter columns.
// column is never caller-controlled — always one of the two literals
// above — so building the statement with fmt.Sprintf here carries no
// injection risk.
func (s *Store) bumpCounter(ctx context.Context, id, column string) error {
	now := task.Now()
	stmt := fmt.Sprintf(`UPDATE task_runs SET %s = %s + 1, updated_at = ? WHERE id = ?`, column, column)
	res, err := s.db.ExecContext(ctx, stmt, formatTime(now), id)
	if err != nil {
		return fmt.Errorf("sqlitestore: bump %s for %q: %w", column, id, err)
	}
	if rowsAffected(res) == 0 {
		return task.ErrNotFound
	}
	s.invalidate(id)
	return nil
}

func (s *Store) SetLastResponse(ctx context.Context, id, text string) error {
	now := task.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE task_runs SET last_response = ?, updated_at = ? WHERE id = ?`,
		text, formatTime(now), id,
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: set last response for %q: %w", id, err)
	}
	if rowsAffected(res) == 0 {
		return task.ErrNotFound
	}
	s.invalidate(id)
	return nil
}

func (s *Store) GetTaskRun(ctx context.Context, id string) (*task.Run, error) {
	if cached, ok := s.cache.Get(id); ok {
		return cached, nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, channel, sender_key, reply_target, status, original_request,
		       last_response, attempt_count, provider_retry_count,
		       created_at, updated_at, completed_at
		  FROM task_runs WHERE id = ?`, id)

	run, err := scanTaskRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get task run %q: %w", id, err)
	}

	s.cache.Add(id, run)
	return run, nil
}

func (s *Store) ListRecoverableTasks(ctx context.Context) ([]*task.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel, sender_key, reply_target, status, original_request,
		       last_response, attempt_count, provider_retry_count,
		       created_at, updated_at, completed_at
		  FROM task_runs
		 WHERE status IN ('queued', 'running', 'blocked')
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list recoverable tasks: %w", err)
	}
	defer rows.Close()

	var out []*task.Run
	for rows.Next() {
		run, err := scanTaskRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: scan recoverable task: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *Store) AppendEvent(ctx context.Context, id, eventType string, payload any) error {
	now := task.Now()

	var payloadJSON *string
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("sqlitestore: marshal event payload for %q: %w", id, err)
		}
		v := string(b)
		payloadJSON = &v
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_events (task_id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?)`,
		id, eventType, payloadJSON, formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: append event for %q: %w", id, err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, id string) ([]*task.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, event_type, payload, created_at
		  FROM task_events WHERE task_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list events for %q: %w", id, err)
	}
	defer rows.Close()

	var out []*task.Event
	for rows.Next() {
		ev := &task.Event{}
		var createdAt string
		if err := rows.Scan(&ev.ID, &ev.TaskID, &ev.EventType, &ev.PayloadJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan event for %q: %w", id, err)
		}
		ev.CreatedAt = parseTime(createdAt)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) UpsertArtifactVerification(ctx context.Context, id, path string, checksum *string, verified bool) error {
	var verifiedAt *string
	if verified {
		v := formatTime(task.Now())
		verifiedAt = &v
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_artifacts (task_id, path, verified, checksum, verified_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(task_id, path) DO UPDATE SET
		  verified = excluded.verified,
		  checksum = excluded.checksum,
		  verified_at = excluded.verified_at`,
		id, path, boolToInt(verified), checksum, verifiedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: upsert artifact for %q: %w", id, err)
	}
	return nil
}

func (s *Store) ListArtifacts(ctx context.Context, id string) ([]*task.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, path, verified, checksum, verified_at
		  FROM task_artifacts WHERE task_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list artifacts for %q: %w", id, err)
	}
	defer rows.Close()

	var out []*task.Artifact
	for rows.Next() {
		a := &task.Artifact{}
		var verifiedRaw int
		var verifiedAt *string
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Path, &verifiedRaw, &a.Checksum, &verifiedAt); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan artifact for %q: %w", id, err)
		}
		a.Verified = verifiedRaw == 1
		if verifiedAt != nil {
			t := parseTime(*verifiedAt)
			a.VerifiedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func rowsAffected(res sql.Result) int64 {
	n, _ := res.RowsAffected()
	return n
}
