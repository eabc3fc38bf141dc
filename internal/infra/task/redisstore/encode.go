package redisstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"taskcore/internal/domain/task"
)

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	return time.Parse(timeLayout, s)
}

// runFromFields decodes a task.Run out of an HGETALL result. Unset optional
// fields (last_response, completed_at) are simply absent from the map.
func runFromFields(fields map[string]string) (*task.Run, error) {
	status, ok := task.ParseStatus(fields["status"])
	if !ok {
		return nil, fmt.Errorf("unknown task status: %q", fields["status"])
	}

	attemptCount, err := strconv.Atoi(fields["attempt_count"])
	if err != nil {
		return nil, fmt.Errorf("attempt_count: %w", err)
	}
	providerRetryCount, err := strconv.Atoi(fields["provider_retry_count"])
	if err != nil {
		return nil, fmt.Errorf("provider_retry_count: %w", err)
	}
	createdAt, err := parseTime(fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	updatedAt, err := parseTime(fields["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}

	run := &task.Run{
		ID:                 fields["id"],
		Channel:            fields["channel"],
		SenderKey:          fields["sender_key"],
		ReplyTarget:        fields["reply_target"],
		Status:             status,
		OriginalRequest:    fields["original_request"],
		AttemptCount:       attemptCount,
		ProviderRetryCount: providerRetryCount,
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
	}
	if v, ok := fields["last_response"]; ok {
		run.LastResponse = &v
	}
	if v, ok := fields["completed_at"]; ok && v != "" {
		t, err := parseTime(v)
		if err != nil {
			return nil, fmt.Errorf("completed_at: %w", err)
		}
		run.CompletedAt = &t
	}
	return run, nil
}

type wireEvent struct {
	ID        int64           `json:"id"`
	TaskID    string          `json:"task_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt string          `json:"created_at"`
}

func encodeEvent(id int64, taskID, eventType string, payload any, createdAt time.Time) (string, error) {
	w := wireEvent{ID: id, TaskID: taskID, EventType: eventType, CreatedAt: formatTime(createdAt)}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return "", err
		}
		w.Payload = raw
	}
	b, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeEvent(blob string) (*task.Event, error) {
	var w wireEvent
	if err := json.Unmarshal([]byte(blob), &w); err != nil {
		return nil, err
	}
	createdAt, err := parseTime(w.CreatedAt)
	if err != nil {
		return nil, err
	}
	ev := &task.Event{ID: w.ID, TaskID: w.TaskID, EventType: w.EventType, CreatedAt: createdAt}
	if len(w.Payload) > 0 {
		s := string(w.Payload)
		ev.PayloadJSON = &s
	}
	return ev, nil
}

type wireArtifact struct {
	ID         int64   `json:"id"`
	TaskID     string  `json:"task_id"`
	Path       string  `json:"path"`
	Verified   bool    `json:"verified"`
	Checksum   *string `json:"checksum"`
	VerifiedAt *string `json:"verified_at"`
}

func decodeArtifact(blob string) (*task.Artifact, error) {
	var w wireArtifact
	if err := json.Unmarshal([]byte(blob), &w); err != nil {
		return nil, err
	}
	a := &task.Artifact{ID: w.ID, TaskID: w.TaskID, Path: w.Path, Verified: w.Verified, Checksum: w.Checksum}
	if w.VerifiedAt != nil && *w.VerifiedAt != "" {
		t, err := parseTime(*w.VerifiedAt)
		if err != nil {
			return nil, err
		}
		a.VerifiedAt = &t
	}
	return a, nil
}
