package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"taskcore/internal/domain/task"
)

func TestStore_InitializesSchemaAndRoundtripsTaskRun(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "workspace", "state", "task-runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	const taskID = "task-1"
	if err := store.InsertTaskRun(ctx, taskID, "imessage", "sender-a", "sender-a", "draft report"); err != nil {
		t.Fatalf("InsertTaskRun: %v", err)
	}
	if err := store.UpdateStatus(ctx, taskID, task.StatusRunning); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := store.IncrementAttemptCount(ctx, taskID); err != nil {
		t.Fatalf("IncrementAttemptCount: %v", err)
	}
	if err := store.IncrementProviderRetryCount(ctx, taskID); err != nil {
		t.Fatalf("IncrementProviderRetryCount: %v", err)
	}
	if err := store.SetLastResponse(ctx, taskID, "processing"); err != nil {
		t.Fatalf("SetLastResponse: %v", err)
	}
	if err := store.AppendEvent(ctx, taskID, "started", map[string]string{"phase": "start"}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	checksum := "abc123"
	if err := store.UpsertArtifactVerification(ctx, taskID, "report.md", &checksum, true); err != nil {
		t.Fatalf("UpsertArtifactVerification: %v", err)
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
	if run.ProviderRetryCount != 1 {
		t.Errorf("ProviderRetryCount = %d, want 1", run.ProviderRetryCount)
	}
	if run.LastResponse == nil || *run.LastResponse != "processing" {
		t.Errorf("LastResponse = %v, want \"processing\"", run.LastResponse)
	}

	events, err := store.ListEvents(ctx, taskID)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 || events[0].EventType != "started" {
		t.Errorf("events = %+v, want one \"started\" event", events)
	}

	artifacts, err := store.ListArtifacts(ctx, taskID)
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(artifacts) != 1 || artifacts[0].Path != "report.md" || !artifacts[0].Verified {
		t.Errorf("artifacts = %+v, want one verified report.md", artifacts)
	}
}

func TestStore_ListsRecoverableStatusesOnly(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "workspace", "state", "task-runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.InsertTaskRun(ctx, "queued", "imessage", "sender-1", "sender-1", "req"); err != nil {
		t.Fatalf("InsertTaskRun(queued): %v", err)
	}
	if err := store.InsertTaskRun(ctx, "completed", "imessage", "sender-1", "sender-1", "req"); err != nil {
		t.Fatalf("InsertTaskRun(completed): %v", err)
	}
	if err := store.UpdateStatus(ctx, "completed", task.StatusCompleted); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	recoverable, err := store.ListRecoverableTasks(ctx)
	if err != nil {
		t.Fatalf("ListRecoverableTasks: %v", err)
	}
	if len(recoverable) != 1 || recoverable[0].ID != "queued" {
		t.Errorf("recoverable = %+v, want only [queued]", recoverable)
	}
}

func TestStore_MutatingCallsOnMissingRowReturnErrNotFound(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "workspace", "state", "task-runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.UpdateStatus(ctx, "missing", task.StatusRunning); err != task.ErrNotFound {
		t.Errorf("UpdateStatus on missing row = %v, want ErrNotFound", err)
	}
	if err := store.IncrementAttemptCount(ctx, "missing"); err != task.ErrNotFound {
		t.Errorf("IncrementAttemptCount on missing row = %v, want ErrNotFound", err)
	}
}

func TestStore_GetTaskRunReturnsNilForMissingRow(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "workspace", "state", "task-runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	run, err := store.GetTaskRun(ctx, "missing")
	if err != nil {
		t.Fatalf("GetTaskRun: %v", err)
	}
	if run != nil {
		t.Errorf("GetTaskRun(missing) = %+v, want nil", run)
	}
}
