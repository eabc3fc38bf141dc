package pgstore

import (
	"fmt"

	"taskcore/internal/domain/task"
)

type scanFunc func(dest ...any) error

func scanTaskRun(scan scanFunc) (*task.Run, error) {
	var run task.Run
	var rawStatus string

	if err := scan(
		&run.ID, &run.Channel, &run.SenderKey, &run.ReplyTarget, &rawStatus,
		&run.OriginalRequest, &run.LastResponse, &run.AttemptCount, &run.ProviderRetryCount,
		&run.CreatedAt, &run.UpdatedAt, &run.CompletedAt,
	); err != nil {
		return nil, err
	}

	status, ok := task.ParseStatus(rawStatus)
	if !ok {
		return nil, fmt.Errorf("unknown task status: %q", rawStatus)
	}
	run.Status = status
	return &run, nil
}
