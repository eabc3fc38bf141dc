package pgstore

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"taskcore/internal/domain/task"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres integration test")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	store := New(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DELETE FROM "+runsTable+" WHERE id LIKE 'test-%'")
	})
	return store
}

func TestStore_EnsureSchemaIdempotent(t *testing.T) {
	store := setupTestStore(t)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
}

func TestStore_InsertAndGetTaskRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	const taskID = "test-pg-1"
	if err := store.InsertTaskRun(ctx, taskID, "imessage", "sender-a", "sender-a", "draft report"); err != nil {
		t.Fatalf("InsertTaskRun: %v", err)
	}
	if err := store.UpdateStatus(ctx, taskID, task.StatusRunning); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := store.IncrementAttemptCount(ctx, taskID); err != nil {
		t.Fatalf("IncrementAttemptCount: %v", err)
	}

	run, err := store.GetTaskRun(ctx, taskID)
	if err != nil {
		t.Fatalf("GetTaskRun: %v", err)
	}
	if run == nil {
		t.Fatal("GetTaskRun returned nil for existing row")
	}
	if run.Status != task.StatusRunning {
		t.Errorf("Status = %q, want %q", run.Status, task.StatusRunning)
	}
	if run.AttemptCount != 1 {
		t.Errorf("AttemptCount = %d, want 1", run.AttemptCount)
	}
}

func TestStore_ListRecoverableTasksExcludesTerminal(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.InsertTaskRun(ctx, "test-pg-queued", "imessage", "s", "s", "req"); err != nil {
		t.Fatalf("InsertTaskRun(queued): %v", err)
	}
	if err := store.InsertTaskRun(ctx, "test-pg-completed", "imessage", "s", "s", "req"); err != nil {
		t.Fatalf("InsertTaskRun(completed): %v", err)
	}
	if err := store.UpdateStatus(ctx, "test-pg-completed", task.StatusCompleted); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	recoverable, err := store.ListRecoverableTasks(ctx)
	if err != nil {
		t.Fatalf("ListRecoverableTasks: %v", err)
	}
	for _, r := range recoverable {
		if r.ID == "test-pg-completed" {
			t.Errorf("ListRecoverableTasks included a completed task: %+v", r)
		}
	}
}
