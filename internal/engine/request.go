package engine

import (
	"context"

	"taskcore/internal/completion"
)

// RoundRunner is the external tool-call loop: it sends the current history
// to a provider, dispatches whatever tool calls the reply contains, and
// returns the assistant's final reply text for the round. The engine never
// parses model output or dispatches tools itself — that belongs entirely to
// the host-supplied RoundRunner.
//
// Implementations are expected to append every message they produce
// (assistant replies, tool-result turns) to req.History in place, since the
// evaluator reads that history back after the round returns.
type RoundRunner interface {
	RunRound(ctx context.Context, req *TaskRunRequest) (string, error)
}

// StreamCallbacks lets a caller observe incremental output from a round as
// it is produced. A nil OnContentDelta means the caller doesn't want
// streaming.
type StreamCallbacks struct {
	OnContentDelta func(delta string)
}

// TaskRunRequest carries everything one task run needs for the lifetime of
// the run: identity fields persisted on the task row, the mutable chat
// history the round runner and evaluator both operate on, and the knobs a
// concrete RoundRunner needs (model selection, tool exclusions, streaming,
// cancellation). The engine treats this as a single value object passed by
// pointer through every round so a host can assemble it once per task.
type TaskRunRequest struct {
	Channel         string
	SenderKey       string
	ReplyTarget     string
	OriginalRequest string

	// Runner executes one round of the tool-call loop.
	Runner RoundRunner

	// History is the full chat transcript. The engine reads it for
	// completion evaluation and appends the literal nudge message to it on
	// Continue; the RoundRunner appends the assistant/tool-result turns
	// produced during the round.
	History []completion.Message

	ProviderName   string
	Model          string
	Temperature    float64
	ExcludedTools  []string
	MaxToolRounds  int
	Stream         StreamCallbacks
}
