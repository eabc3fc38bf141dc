package completion

import (
	"container/list"
	"testing"
)

func TestEvaluateCompletion_BlocksWriteClaimWithoutEvidence(t *testing.T) {
	history := []Message{
		{Role: "assistant", Content: "<tool_call>\n" +
			`{"name":"file_write","arguments":{"path":"a.md","content":"x"}}` + "\n</tool_call>"},
		{Role: "user", Content: "[Tool results]\n" +
			`<tool_result name="file_write">` + "\nAction blocked: denied\n" + `</tool_result>`},
	}

	eval := EvaluateCompletion("好的，我已经保存到 a.md。", history)

	if eval.Decision.Complete {
		t.Fatalf("expected Continue, got Complete")
	}
	if eval.Decision.Reason != reasonWriteClaimWithoutVerification {
		t.Errorf("reason = %q, want %q", eval.Decision.Reason, reasonWriteClaimWithoutVerification)
	}
	if eval.SawSuccessfulWrite {
		t.Error("SawSuccessfulWrite = true, want false")
	}
	if eval.SawPostWriteReadAfterSuccess {
		t.Error("SawPostWriteReadAfterSuccess = true, want false")
	}
}

func TestEvaluateCompletion_AcceptsWriteClaimAfterPostWriteReadVerification(t *testing.T) {
	history := []Message{
		{Role: "assistant", Content: "<tool_call>\n" +
			`{"name":"file_write","arguments":{"path":"report.md","content":"abc"}}` + "\n</tool_call>"},
		{Role: "user", Content: "[Tool results]\n" +
			`<tool_result name="file_write">` + "\nWritten 3 bytes to report.md\n" + `</tool_result>`},
		{Role: "assistant", Content: "<tool_call>\n" +
			`{"name":"file_read","arguments":{"path":"report.md"}}` + "\n</tool_call>"},
		{Role: "user", Content: "[Tool results]\n" +
			`<tool_result name="file_read">` + "\nabc\n" + `</tool_result>`},
	}

	eval := EvaluateCompletion("报告已保存到 report.md。", history)

	if !eval.Decision.Complete {
		t.Fatalf("expected Complete, got Continue(%q)", eval.Decision.Reason)
	}
	if !eval.SawSuccessfulWrite {
		t.Error("SawSuccessfulWrite = false, want true")
	}
	if !eval.SawPostWriteReadAfterSuccess {
		t.Error("SawPostWriteReadAfterSuccess = false, want true")
	}
}

func TestEvaluateCompletion_DetectsInProgressUpdate(t *testing.T) {
	history := []Message{
		{Role: "user", Content: "帮我继续实现"},
	}

	eval := EvaluateCompletion("我正在检查当前文件状态。", history)

	if eval.Decision.Complete {
		t.Fatalf("expected Continue, got Complete")
	}
	if eval.Decision.Reason != reasonInProgressUpdate {
		t.Errorf("reason = %q, want %q", eval.Decision.Reason, reasonInProgressUpdate)
	}
}

func TestEvaluateCompletion_GuardrailNoticeAlwaysContinues(t *testing.T) {
	eval := EvaluateCompletion("[Guardrail Notice] refusing to proceed without confirmation.", nil)

	if eval.Decision.Complete {
		t.Fatalf("expected Continue, got Complete")
	}
	if eval.Decision.Reason != reasonGuardrailNotice {
		t.Errorf("reason = %q, want %q", eval.Decision.Reason, reasonGuardrailNotice)
	}
}

func TestEvaluateCompletion_PlainSuccessWithNoWriteClaimCompletes(t *testing.T) {
	eval := EvaluateCompletion("The answer to your question is 42.", nil)

	if !eval.Decision.Complete {
		t.Fatalf("expected Complete, got Continue(%q)", eval.Decision.Reason)
	}
}

func TestEvaluateCompletion_ShellWriteThenReadViaFIFO(t *testing.T) {
	history := []Message{
		{Role: "assistant", Content: "<tool_call>\n" +
			`{"name":"shell","arguments":{"command":"echo hi >> out.log"}}` + "\n</tool_call>"},
		{Role: "user", Content: "[Tool results]\n" +
			`<tool_result name="shell">` + "\nok\n" + `</tool_result>`},
		{Role: "assistant", Content: "<tool_call>\n" +
			`{"name":"shell","arguments":{"command":"cat out.log"}}` + "\n</tool_call>"},
		{Role: "user", Content: "[Tool results]\n" +
			`<tool_result name="shell">` + "\nhi\n" + `</tool_result>`},
	}

	eval := EvaluateCompletion("Logged the message to out.log.", history)

	if !eval.SawSuccessfulWrite {
		t.Error("SawSuccessfulWrite = false, want true")
	}
	if !eval.SawPostWriteReadAfterSuccess {
		t.Error("SawPostWriteReadAfterSuccess = false, want true")
	}
	if !eval.Decision.Complete {
		t.Fatalf("expected Complete, got Continue(%q)", eval.Decision.Reason)
	}
}

func TestClassifyShellCommand(t *testing.T) {
	tests := []struct {
		command string
		want    shellToolKind
	}{
		{"echo hi >> out.log", shellWriteLike},
		{"touch new.txt", shellWriteLike},
		{"sed -i 's/a/b/' f.go", shellWriteLike},
		{"cat out.log", shellReadLike},
		{"grep foo bar.txt", shellReadLike},
		{"ls -la", shellReadLike},
		{"echo hello", shellOther},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			if got := classifyShellCommand(tt.command); got != tt.want {
				t.Errorf("classifyShellCommand(%q) = %v, want %v", tt.command, got, tt.want)
			}
		})
	}
}

func TestCollectShellToolKindsFromAssistantCalls_RepairsNearMissJSON(t *testing.T) {
	shellKinds := list.New()
	content := "<tool_call>\n" +
		`{"name":"shell","arguments":{"command":"touch a.txt",}}` + "\n</tool_call>"

	collectShellToolKindsFromAssistantCalls(content, shellKinds)

	if shellKinds.Len() != 1 {
		t.Fatalf("expected one queued shell kind, got %d", shellKinds.Len())
	}
	if got := shellKinds.Front().Value; got != shellWriteLike {
		t.Errorf("queued kind = %v, want %v", got, shellWriteLike)
	}
}
