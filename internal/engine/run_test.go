package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"taskcore/internal/completion"
	"taskcore/internal/domain/task"
	"taskcore/internal/engine"
	"taskcore/internal/engine/enginetest"
)

func TestIsRetryableProviderTransportError(t *testing.T) {
	// exported indirectly through executeSingleRoundWithRetry's behavior;
	// the classifier itself is unexported, so this test exercises it via a
	// scripted run that must retry once and then succeed.
	store := enginetest.NewMockStore()
	e := engine.New(store, engine.EngineConfig{MaxContinuationRounds: 2, ProviderRetryLimit: 1})

	runner := enginetest.NewScriptedRoundRunner(
		enginetest.Fail(enginetest.ErrTransport),
		enginetest.Ok("done"),
	)
	req := &engine.TaskRunRequest{
		Channel: "imessage", SenderKey: "sender-a", ReplyTarget: "sender-a",
		OriginalRequest: "hi", Runner: runner,
		History: []completion.Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "hi"}},
	}

	outcome, err := e.RunTask(context.Background(), req)
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if outcome.FinalResponse != "done" {
		t.Errorf("FinalResponse = %q, want %q", outcome.FinalResponse, "done")
	}

	run, _ := e.Store().GetTaskRun(context.Background(), outcome.TaskID)
	if run.ProviderRetryCount < 1 {
		t.Errorf("ProviderRetryCount = %d, want >= 1", run.ProviderRetryCount)
	}
	if run.Status != task.StatusCompleted {
		t.Errorf("Status = %q, want %q", run.Status, task.StatusCompleted)
	}
}

func TestRunTask_ContinuesOnProgressReplyWithoutUserFollowup(t *testing.T) {
	store := enginetest.NewMockStore()
	e := engine.New(store, engine.EngineConfig{MaxContinuationRounds: 4, ProviderRetryLimit: 0})

	runner := enginetest.NewScriptedRoundRunner(
		enginetest.Ok("我正在检查当前文件状态。"),
		enginetest.Ok("任务已完成。"),
	)
	req := &engine.TaskRunRequest{
		Channel: "imessage", SenderKey: "sender-a", ReplyTarget: "sender-a",
		OriginalRequest: "请继续处理这个任务", Runner: runner,
		History: []completion.Message{
			{Role: "system", Content: "system"},
			{Role: "user", Content: "请继续处理这个任务"},
		},
	}

	outcome, err := e.RunTask(context.Background(), req)
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if outcome.FinalResponse != "任务已完成。" {
		t.Errorf("FinalResponse = %q, want %q", outcome.FinalResponse, "任务已完成。")
	}

	run, _ := e.Store().GetTaskRun(context.Background(), outcome.TaskID)
	if run.Status != task.StatusCompleted {
		t.Errorf("Status = %q, want %q", run.Status, task.StatusCompleted)
	}
	if run.AttemptCount < 2 {
		t.Errorf("AttemptCount = %d, want >= 2", run.AttemptCount)
	}
}

func TestRunTask_FailsOnRepeatedStall(t *testing.T) {
	store := enginetest.NewMockStore()
	e := engine.New(store, engine.EngineConfig{MaxContinuationRounds: 10, ProviderRetryLimit: 0})

	runner := enginetest.NewScriptedRoundRunner(
		enginetest.Ok("working on it"),
		enginetest.Ok("working on it"),
		enginetest.Ok("working on it"),
	)
	req := &engine.TaskRunRequest{
		Channel: "imessage", SenderKey: "sender-a", ReplyTarget: "sender-a",
		OriginalRequest: "go", Runner: runner,
		History: []completion.Message{{Role: "user", Content: "go"}},
	}

	_, err := e.RunTask(context.Background(), req)
	if err == nil {
		t.Fatal("expected stall error, got nil")
	}
	if !strings.Contains(err.Error(), "stalled") {
		t.Errorf("error = %v, want a stall error", err)
	}
}

func TestRunTask_FailsOnRoundExhaustion(t *testing.T) {
	store := enginetest.NewMockStore()
	e := engine.New(store, engine.EngineConfig{MaxContinuationRounds: 2, ProviderRetryLimit: 0})

	runner := enginetest.NewScriptedRoundRunner(
		enginetest.Ok("working on it"),
		enginetest.Ok("working on it"),
	)
	req := &engine.TaskRunRequest{
		Channel: "imessage", SenderKey: "sender-a", ReplyTarget: "sender-a",
		OriginalRequest: "go", Runner: runner,
		History: []completion.Message{{Role: "user", Content: "go"}},
	}

	_, err := e.RunTask(context.Background(), req)
	if err == nil {
		t.Fatal("expected exhaustion error, got nil")
	}
	if !strings.Contains(err.Error(), "max continuation rounds") {
		t.Errorf("error = %v, want a round-exhaustion error", err)
	}
}

func TestRunTask_NonRetryableProviderErrorFailsImmediately(t *testing.T) {
	store := enginetest.NewMockStore()
	e := engine.New(store, engine.EngineConfig{MaxContinuationRounds: 4, ProviderRetryLimit: 2})

	wantErr := errors.New("tool not found: foo")
	runner := enginetest.NewScriptedRoundRunner(enginetest.Fail(wantErr))
	req := &engine.TaskRunRequest{
		Channel: "imessage", SenderKey: "sender-a", ReplyTarget: "sender-a",
		OriginalRequest: "go", Runner: runner,
		History: []completion.Message{{Role: "user", Content: "go"}},
	}

	_, err := e.RunTask(context.Background(), req)
	if err == nil || !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want wrapped %v", err, wantErr)
	}
}
