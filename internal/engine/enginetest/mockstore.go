package enginetest

import (
	"context"
	"fmt"
	"sync"

	"taskcore/internal/domain/task"
)

// MockStore is an in-memory task.Store for engine tests, grounded in the
// same hand-written mock-struct-over-a-map style used elsewhere in this
// codebase for store-consumer tests.
//
// It keeps only what the engine tests read back and is looser than the
// task.Store contract: ListRecoverableTasks returns runs in map order, not
// by created_at; AppendEvent drops the payload; the counter bumps and
// SetLastResponse leave UpdatedAt unchanged; artifacts get no ID or
// VerifiedAt.
type MockStore struct {
	mu        sync.Mutex
	runs      map[string]*task.Run
	events    map[string][]*task.Event
	artifacts map[string][]*task.Artifact
	nextEvent int64
}

// NewMockStore returns an empty store.
func NewMockStore() *MockStore {
	return &MockStore{
		runs:      make(map[string]*task.Run),
		events:    make(map[string][]*task.Event),
		artifacts: make(map[string][]*task.Artifact),
	}
}

func (m *MockStore) EnsureSchema(context.Context) error { return nil }
func (m *MockStore) Close() error                        { return nil }

func (m *MockStore) InsertTaskRun(_ context.Context, id, channel, senderKey, replyTarget, originalRequest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := task.Now()
	m.runs[id] = &task.Run{
		ID:              id,
		Channel:         channel,
		SenderKey:       senderKey,
		ReplyTarget:     replyTarget,
		Status:          task.StatusQueued,
		OriginalRequest: originalRequest,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return nil
}

func (m *MockStore) UpdateStatus(_ context.Context, id string, newStatus task.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return task.ErrNotFound
	}
	run.Status = newStatus
	run.UpdatedAt = task.Now()
	if newStatus.IsTerminal() {
		t := run.UpdatedAt
		run.CompletedAt = &t
	}
	return nil
}

func (m *MockStore) IncrementAttemptCount(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return task.ErrNotFound
	}
	run.AttemptCount++
	return nil
}

func (m *MockStore) IncrementProviderRetryCount(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return task.ErrNotFound
	}
	run.ProviderRetryCount++
	return nil
}

func (m *MockStore) SetLastResponse(_ context.Context, id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return task.ErrNotFound
	}
	run.LastResponse = &text
	return nil
}

func (m *MockStore) GetTaskRun(_ context.Context, id string) (*task.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	copied := *run
	return &copied, nil
}

func (m *MockStore) ListRecoverableTasks(_ context.Context) ([]*task.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*task.Run
	for _, run := range m.runs {
		if task.IsRecoverable(run.Status) {
			copied := *run
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MockStore) AppendEvent(_ context.Context, id, eventType string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[id]; !ok {
		return fmt.Errorf("task %s: not found", id)
	}
	m.nextEvent++
	m.events[id] = append(m.events[id], &task.Event{
		ID:        m.nextEvent,
		TaskID:    id,
		EventType: eventType,
		CreatedAt: task.Now(),
	})
	return nil
}

func (m *MockStore) ListEvents(_ context.Context, id string) ([]*task.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*task.Event(nil), m.events[id]...), nil
}

func (m *MockStore) UpsertArtifactVerification(_ context.Context, id, path string, checksum *string, verified bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.artifacts[id] {
		if a.Path == path {
			a.Verified = verified
			a.Checksum = checksum
			return nil
		}
	}
	m.artifacts[id] = append(m.artifacts[id], &task.Artifact{
		TaskID:   id,
		Path:     path,
		Verified: verified,
		Checksum: checksum,
	})
	return nil
}

func (m *MockStore) ListArtifacts(_ context.Context, id string) ([]*task.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*task.Artifact(nil), m.artifacts[id]...), nil
}

var _ task.Store = (*MockStore)(nil)
