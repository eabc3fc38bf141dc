package sqlitestore

import (
	"fmt"
	"time"

	"taskcore/internal/domain/task"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// scanFunc matches both *sql.Row.Scan and *sql.Rows.Scan so scanTaskRun can
// serve GetTaskRun and ListRecoverableTasks alike.
type scanFunc func(dest ...any) error

func scanTaskRun(scan scanFunc) (*task.Run, error) {
	var (
		run          task.Run
		rawStatus    string
		createdAt    string
		updatedAt    string
		completedAt  *string
	)

	if err := scan(
		&run.ID, &run.Channel, &run.SenderKey, &run.ReplyTarget, &rawStatus,
		&run.OriginalRequest, &run.LastResponse, &run.AttemptCount, &run.ProviderRetryCount,
		&createdAt, &updatedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	status, ok := task.ParseStatus(rawStatus)
	if !ok {
		return nil, fmt.Errorf("unknown task status: %q", rawStatus)
	}
	run.Status = status
	run.CreatedAt = parseTime(createdAt)
	run.UpdatedAt = parseTime(updatedAt)
	if completedAt != nil {
		t := parseTime(*completedAt)
		run.CompletedAt = &t
	}

	return &run, nil
}
