package engine

import (
	"context"
	"fmt"
	"strings"

	"taskcore/internal/domain/task"
)

// executeSingleRoundWithRetry invokes the round runner, retrying up to
// ProviderRetryLimit additional attempts when the error is classified as a
// retryable transport failure. Non-retryable errors and retry exhaustion
// propagate to the caller.
func (e *Engine) executeSingleRoundWithRetry(ctx context.Context, taskID string, req *TaskRunRequest) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= e.cfg.ProviderRetryLimit; attempt++ {
		text, err := req.Runner.RunRound(ctx, req)
		if err == nil {
			return text, nil
		}

		retryable := isRetryableProviderTransportError(err)
		if retryable && attempt < e.cfg.ProviderRetryLimit {
			_ = e.store.IncrementProviderRetryCount(ctx, taskID)
			_ = e.store.AppendEvent(ctx, taskID, task.EventProviderRetry, map[string]any{
				"attempt": attempt + 1,
				"error":   err.Error(),
			})
			e.cfg.Metrics.ObserveProviderRetry()
			lastErr = err
			continue
		}
		return "", err
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("unknown task round error")
	}
	return "", lastErr
}

// isRetryableProviderTransportError classifies an error as a retryable
// transport failure iff its rendered text, lowercased, contains any of a
// fixed set of substrings. This is a narrow, spec-mandated classifier over
// the external tool-call loop's error text — distinct from the general
// transient/permanent classification in internal/corerrors, which governs
// store-backend I/O retries instead.
func isRetryableProviderTransportError(err error) bool {
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "transport error") ||
		strings.Contains(lower, "error sending request for url") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "timed out")
}
