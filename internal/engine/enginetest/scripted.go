// Package enginetest provides test doubles for internal/engine, mirroring
// the original implementation's ScriptedProvider fixture.
package enginetest

import (
	"context"
	"errors"
	"sync"

	"taskcore/internal/engine"
)

// ScriptedRoundRunner returns a scripted sequence of (text, error) results,
// one per call to RunRound, in order. Once exhausted it returns "done" with
// a nil error, matching the original fixture's fallback behavior.
type ScriptedRoundRunner struct {
	mu        sync.Mutex
	responses []Response
}

// Response is one scripted round outcome. Exactly one of Text or Err should
// be set; a non-nil Err makes RunRound return that error instead of Text.
type Response struct {
	Text string
	Err  error
}

// NewScriptedRoundRunner builds a runner that replays responses in order.
func NewScriptedRoundRunner(responses ...Response) *ScriptedRoundRunner {
	return &ScriptedRoundRunner{responses: responses}
}

// Ok is a convenience constructor for a successful scripted response.
func Ok(text string) Response { return Response{Text: text} }

// Fail is a convenience constructor for a failing scripted response.
func Fail(err error) Response { return Response{Err: err} }

func (r *ScriptedRoundRunner) RunRound(_ context.Context, _ *engine.TaskRunRequest) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.responses) == 0 {
		return "done", nil
	}
	next := r.responses[0]
	r.responses = r.responses[1:]
	if next.Err != nil {
		return "", next.Err
	}
	return next.Text, nil
}

var _ engine.RoundRunner = (*ScriptedRoundRunner)(nil)

// ErrTransport is a representative retryable transport error, shaped like
// the provider errors the engine's classifier recognizes.
var ErrTransport = errors.New("custom native chat transport error: error sending request for url (https://x)")
