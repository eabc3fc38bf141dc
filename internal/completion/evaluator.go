// Package completion implements the deterministic, stateless completion
// evaluator: given the assistant's latest reply and the prior chat history,
// it decides whether the task is Complete or should Continue, and if so why.
//
// The evaluator never calls a model and never mutates state. It is pure text
// analysis over the reply and the transcript's tool-call/tool-result
// envelopes, so the same (responseText, history) pair always yields the same
// CompletionEvaluation.
package completion

import (
	"container/list"
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Decision is the evaluator's verdict on one assistant reply.
type Decision struct {
	// Complete is true when the task should be considered done.
	Complete bool
	// Reason identifies why Complete is false. Empty when Complete is true.
	Reason string
}

// CompletionEvaluation is the full result of evaluating one reply against
// its history, including the tool-use evidence the decision was based on.
type CompletionEvaluation struct {
	Decision Decision

	// SawSuccessfulWrite is true if any write-like shell command or
	// file_write tool call in the history produced a non-failure result.
	SawSuccessfulWrite bool
	// SawPostWriteReadAfterSuccess is true if, after SawSuccessfulWrite
	// became true, a read-like shell command or file_read tool call also
	// produced a non-failure result.
	SawPostWriteReadAfterSuccess bool
}

// Message is the minimal chat-history shape the evaluator needs: a role
// ("assistant" or "user") and the raw message content, which may embed
// <tool_call>/<invoke> envelopes (assistant turns) or <tool_result> bodies
// (user turns, i.e. tool-result turns fed back as user messages).
type Message struct {
	Role    string
	Content string
}

const (
	reasonGuardrailNotice               = "guardrail_notice"
	reasonWriteClaimWithoutVerification = "write_claim_without_post_write_verification"
	reasonInProgressUpdate              = "in_progress_update"
)

// shellToolKind classifies a shell invocation's effect for the purposes of
// write/read verification tracking.
type shellToolKind int

const (
	shellOther shellToolKind = iota
	shellWriteLike
	shellReadLike
)

// EvaluateCompletion applies the decision rules, in order: a guardrail
// notice in the reply always continues; an unverified filesystem-write
// claim continues; a reply that reads as an in-progress narration
// continues; otherwise the task is complete.
func EvaluateCompletion(responseText string, history []Message) CompletionEvaluation {
	sawWrite, sawReadAfterWrite := collectToolEvidence(history)

	eval := CompletionEvaluation{
		SawSuccessfulWrite:           sawWrite,
		SawPostWriteReadAfterSuccess: sawReadAfterWrite,
	}

	if strings.Contains(responseText, "[Guardrail Notice]") {
		eval.Decision = Decision{Complete: false, Reason: reasonGuardrailNotice}
		return eval
	}

	if looksLikeFilesystemWriteClaim(responseText) && !sawReadAfterWrite {
		eval.Decision = Decision{Complete: false, Reason: reasonWriteClaimWithoutVerification}
		return eval
	}

	if looksLikeInProgressUpdate(responseText) {
		eval.Decision = Decision{Complete: false, Reason: reasonInProgressUpdate}
		return eval
	}

	eval.Decision = Decision{Complete: true}
	return eval
}

// collectToolEvidence walks the history in order, tracking shell tool calls
// made by assistant turns in a FIFO queue so that the tool-result turn that
// eventually reports their outcome can be matched back to the right call.
func collectToolEvidence(history []Message) (sawSuccessfulWrite, sawPostWriteReadAfterSuccess bool) {
	shellKinds := list.New()

	for _, msg := range history {
		switch msg.Role {
		case "assistant":
			collectShellToolKindsFromAssistantCalls(msg.Content, shellKinds)
		case "user":
			collectToolResultEvidence(msg.Content, shellKinds, &sawSuccessfulWrite, &sawPostWriteReadAfterSuccess)
		}
	}

	return sawSuccessfulWrite, sawPostWriteReadAfterSuccess
}

var toolCallTagPairs = [4][2]string{
	{"<tool_call>", "</tool_call>"},
	{"<toolcall>", "</toolcall>"},
	{"<tool-call>", "</tool-call>"},
	{"<invoke>", "</invoke>"},
}

// toolCallEnvelope is the subset of a <tool_call> JSON body the evaluator
// reads. Unknown fields are ignored.
type toolCallEnvelope struct {
	Name      string `json:"name"`
	Arguments struct {
		Command string `json:"command"`
	} `json:"arguments"`
}

func collectShellToolKindsFromAssistantCalls(content string, out *list.List) {
	for _, pair := range toolCallTagPairs {
		openTag, closeTag := pair[0], pair[1]

		for _, segment := range strings.Split(content, openTag) {
			jsonEnd := strings.Index(segment, closeTag)
			if jsonEnd < 0 {
				continue
			}
			jsonStr := strings.TrimSpace(segment[:jsonEnd])

			var env toolCallEnvelope
			if err := json.Unmarshal([]byte(jsonStr), &env); err != nil {
				repaired, repairErr := jsonrepair.JSONRepair(jsonStr)
				if repairErr != nil {
					continue
				}
				if err := json.Unmarshal([]byte(repaired), &env); err != nil {
					continue
				}
			}

			if env.Name != "shell" {
				continue
			}

			kind := shellOther
			if env.Arguments.Command != "" {
				kind = classifyShellCommand(env.Arguments.Command)
			}
			out.PushBack(kind)
		}
	}
}

const (
	toolResultNameMarker = `<tool_result name="`
	toolResultCloseTag   = "</tool_result>"
)

func collectToolResultEvidence(content string, shellKinds *list.List, sawSuccessfulWrite, sawPostWriteReadAfterSuccess *bool) {
	remaining := content

	for {
		start := strings.Index(remaining, toolResultNameMarker)
		if start < 0 {
			return
		}
		nameStart := start + len(toolResultNameMarker)
		afterNameStart := remaining[nameStart:]

		nameEnd := strings.IndexByte(afterNameStart, '"')
		if nameEnd < 0 {
			return
		}
		toolName := afterNameStart[:nameEnd]
		afterTagStart := afterNameStart[nameEnd:]

		bodyStart := strings.IndexByte(afterTagStart, '>')
		if bodyStart < 0 {
			return
		}
		afterBodyStart := afterTagStart[bodyStart+1:]

		closeIdx := strings.Index(afterBodyStart, toolResultCloseTag)
		if closeIdx < 0 {
			return
		}
		output := strings.TrimSpace(afterBodyStart[:closeIdx])
		isSuccess := !toolResultOutputLikelyFailure(output)

		var kind shellToolKind
		switch toolName {
		case "file_write":
			kind = shellWriteLike
		case "file_read":
			kind = shellReadLike
		case "shell":
			if front := shellKinds.Front(); front != nil {
				kind = front.Value.(shellToolKind)
				shellKinds.Remove(front)
			} else {
				kind = shellOther
			}
		default:
			kind = shellOther
		}

		if kind == shellWriteLike && isSuccess {
			*sawSuccessfulWrite = true
		}
		if kind == shellReadLike && isSuccess && *sawSuccessfulWrite {
			*sawPostWriteReadAfterSuccess = true
		}

		remaining = afterBodyStart[closeIdx+len(toolResultCloseTag):]
	}
}

func toolResultOutputLikelyFailure(output string) bool {
	lower := strings.ToLower(output)
	for _, marker := range toolResultFailureMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func classifyShellCommand(command string) shellToolKind {
	lower := strings.ToLower(command)

	for _, marker := range shellWriteMarkers {
		if strings.Contains(lower, marker) {
			return shellWriteLike
		}
	}
	for _, marker := range shellReadMarkers {
		if strings.Contains(lower, marker) {
			return shellReadLike
		}
	}
	return shellOther
}

func looksLikeFilesystemWriteClaim(text string) bool {
	for _, hint := range chineseWriteClaimMarkers {
		if strings.Contains(text, hint) {
			return true
		}
	}

	lower := strings.ToLower(text)

	verbHit := false
	for _, verb := range completionVerbs {
		if strings.Contains(lower, verb) {
			verbHit = true
			break
		}
	}
	if !verbHit {
		return false
	}

	for _, indicator := range fileIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

func looksLikeInProgressUpdate(text string) bool {
	lower := strings.ToLower(text)

	for _, hint := range completionMarkers {
		if strings.Contains(lower, hint) || strings.Contains(text, hint) {
			return false
		}
	}

	for _, hint := range progressMarkers {
		if strings.Contains(lower, hint) || strings.Contains(text, hint) {
			return true
		}
	}
	return false
}
