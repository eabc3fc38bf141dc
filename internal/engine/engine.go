// Package engine implements the bounded continuation loop that drives one
// task run to completion: it creates the task record, repeatedly invokes
// the external tool-call loop for one round, evaluates completion of the
// reply, retries transport-class provider errors, nudges the model to keep
// going on Continue, and fails the task on a stall or on exhausting its
// round budget.
package engine

import (
	"path/filepath"

	"github.com/google/uuid"

	"taskcore/internal/corelog"
	"taskcore/internal/coremetrics"
	"taskcore/internal/domain/task"
	"taskcore/internal/infra/task/sqlitestore"
)

// EngineConfig tunes one engine instance. Zero value is not valid; use
// DefaultEngineConfig.
type EngineConfig struct {
	// MaxContinuationRounds bounds how many rounds a task may run before it
	// is failed with "exceeded max continuation rounds".
	MaxContinuationRounds int
	// ProviderRetryLimit is the number of retries (not attempts) permitted
	// for a retryable transport error within a single round.
	ProviderRetryLimit int
	// NudgeMessage overrides the literal message appended to history on
	// Continue. Empty means use defaultNudgeMessage.
	NudgeMessage string

	Logger  corelog.Logger
	Metrics *coremetrics.EngineMetrics
}

// DefaultEngineConfig mirrors the reference defaults: four rounds, two
// provider retries per round.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxContinuationRounds: 4,
		ProviderRetryLimit:    2,
	}
}

func (c EngineConfig) nudgeMessage() string {
	if c.NudgeMessage != "" {
		return c.NudgeMessage
	}
	return defaultNudgeMessage
}

func (c EngineConfig) logger() corelog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return corelog.Nop{}
}

// Engine executes task runs against a Store.
type Engine struct {
	store task.Store
	cfg   EngineConfig
}

// New builds an engine over an already-constructed store.
func New(store task.Store, cfg EngineConfig) *Engine {
	return &Engine{store: store, cfg: cfg}
}

// DefaultForWorkspace builds an engine backed by the reference SQLite store
// at <workspaceDir>/state/task-runs.db, with default config.
func DefaultForWorkspace(workspaceDir string) (*Engine, error) {
	store, err := sqlitestore.Open(filepath.Join(workspaceDir, "state", "task-runs.db"))
	if err != nil {
		return nil, err
	}
	return New(store, DefaultEngineConfig()), nil
}

// Store exposes the underlying task store, mirroring the reference engine's
// accessor so a host can query task runs/events/artifacts directly.
func (e *Engine) Store() task.Store {
	return e.store
}

func newTaskID() string {
	return uuid.NewString()
}
