package engine

import (
	"context"
	"fmt"

	"taskcore/internal/completion"
	"taskcore/internal/domain/task"
	"taskcore/internal/tokenutil"
)

// TaskRunOutcome is returned on successful completion of a task run.
type TaskRunOutcome struct {
	TaskID        string
	FinalResponse string
	WriteVerified bool
}

const (
	maxConsecutiveContinues = 3

	reasonStalledLoop                = "stalled_loop"
	reasonMaxRoundsExhausted         = "max_continuation_rounds_exhausted"
	reasonProviderError              = "provider_error"
)

// CreateTask inserts a new Queued task row and records the "accepted"
// event. The event append is best-effort, mirroring the reference engine.
func (e *Engine) CreateTask(ctx context.Context, channel, senderKey, replyTarget, originalRequest string) (string, error) {
	taskID := newTaskID()
	if err := e.store.InsertTaskRun(ctx, taskID, channel, senderKey, replyTarget, originalRequest); err != nil {
		return "", err
	}
	_ = e.store.AppendEvent(ctx, taskID, task.EventAccepted, nil)
	return taskID, nil
}

// RunTask creates a task from req's identity fields, transitions it to
// Running, and drives it to completion via RunExistingTask.
func (e *Engine) RunTask(ctx context.Context, req *TaskRunRequest) (*TaskRunOutcome, error) {
	taskID, err := e.CreateTask(ctx, req.Channel, req.SenderKey, req.ReplyTarget, req.OriginalRequest)
	if err != nil {
		return nil, err
	}
	_ = e.store.UpdateStatus(ctx, taskID, task.StatusRunning)
	_ = e.store.AppendEvent(ctx, taskID, task.EventStarted, map[string]any{
		"estimated_tokens": tokenutil.CountHistory(historyContents(req.History)),
	})

	return e.RunExistingTask(ctx, taskID, req)
}

// RunExistingTask runs the continuation loop for an already-created task.
// Hosts recovering a crashed Queued/Running/Blocked task call this directly
// with the same taskID, instead of RunTask's create-then-run shortcut.
func (e *Engine) RunExistingTask(ctx context.Context, taskID string, req *TaskRunRequest) (*TaskRunOutcome, error) {
	logger := e.cfg.logger()
	writeVerified := false
	consecutiveContinues := 0

	for round := 0; round < e.cfg.MaxContinuationRounds; round++ {
		spanCtx, span := startRoundSpan(ctx, taskID, round+1, req.Model)

		response, err := e.executeSingleRoundWithRetry(spanCtx, taskID, req)
		markSpanResult(span, err)
		span.End()

		if err != nil {
			e.cfg.Metrics.ObserveRound("provider_error")
			e.cfg.Metrics.ObserveFailed(reasonProviderError)
			_ = e.store.UpdateStatus(ctx, taskID, task.StatusFailed)
			_ = e.store.AppendEvent(ctx, taskID, task.EventFailed, map[string]any{
				"reason": reasonProviderError,
				"error":  err.Error(),
			})
			return nil, err
		}

		_ = e.store.IncrementAttemptCount(ctx, taskID)
		_ = e.store.SetLastResponse(ctx, taskID, response)

		eval := completion.EvaluateCompletion(response, req.History)

		if eval.SawPostWriteReadAfterSuccess && !writeVerified {
			writeVerified = true
			_ = e.store.UpsertArtifactVerification(ctx, taskID, task.HistoryVerifiedArtifactPath, nil, true)
			_ = e.store.AppendEvent(ctx, taskID, task.EventToolWriteVerified, nil)
		}

		if eval.Decision.Complete {
			e.cfg.Metrics.ObserveRound("completed")
			e.cfg.Metrics.ObserveCompleted()
			_ = e.store.UpdateStatus(ctx, taskID, task.StatusCompleted)
			_ = e.store.AppendEvent(ctx, taskID, task.EventCompleted, map[string]any{"round": round + 1})
			return &TaskRunOutcome{
				TaskID:        taskID,
				FinalResponse: response,
				WriteVerified: writeVerified,
			}, nil
		}

		e.cfg.Metrics.ObserveRound("continue")
		e.cfg.Metrics.ObserveContinuation(eval.Decision.Reason)
		_ = e.store.AppendEvent(ctx, taskID, task.EventContinue, map[string]any{
			"reason":           eval.Decision.Reason,
			"round":            round + 1,
			"estimated_tokens": tokenutil.CountHistory(historyContents(req.History)),
		})

		consecutiveContinues++
		if consecutiveContinues >= maxConsecutiveContinues {
			e.cfg.Metrics.ObserveStalled()
			e.cfg.Metrics.ObserveFailed(reasonStalledLoop)
			_ = e.store.UpdateStatus(ctx, taskID, task.StatusFailed)
			_ = e.store.AppendEvent(ctx, taskID, task.EventFailed, map[string]any{"reason": reasonStalledLoop})
			logger.Warn("task %s stalled after %d consecutive Continue replies", taskID, consecutiveContinues)
			return nil, fmt.Errorf("task stalled in repeated progress-only replies")
		}

		req.History = append(req.History, completion.Message{
			Role:    "user",
			Content: e.cfg.nudgeMessage(),
		})
	}

	e.cfg.Metrics.ObserveExhausted()
	e.cfg.Metrics.ObserveFailed(reasonMaxRoundsExhausted)
	_ = e.store.UpdateStatus(ctx, taskID, task.StatusFailed)
	_ = e.store.AppendEvent(ctx, taskID, task.EventFailed, map[string]any{"reason": reasonMaxRoundsExhausted})
	return nil, fmt.Errorf("task exceeded max continuation rounds (%d)", e.cfg.MaxContinuationRounds)
}

func historyContents(history []completion.Message) []string {
	contents := make([]string, len(history))
	for i, m := range history {
		contents[i] = m.Content
	}
	return contents
}
