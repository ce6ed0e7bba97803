package flow

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/nexar-labs/nexar/internal/tools"
)

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

func TestAskUserBlocksRun(t *testing.T) {
	result, err := NewAskUserTool().Execute(context.Background(),
		mustJSON(t, AskUserInput{Question: "Which database?"}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Blocked {
		t.Error("ask_user must block the run")
	}
	var out AskUserInput
	if err := json.Unmarshal(result.Output, &out); err != nil {
		t.Fatal(err)
	}
	if out.Question != "Which database?" {
		t.Errorf("question = %q", out.Question)
	}
}

func TestAskUserRequiresQuestion(t *testing.T) {
	_, err := NewAskUserTool().Execute(context.Background(), mustJSON(t, AskUserInput{}))
	te, ok := tools.IsToolError(err)
	if !ok || te.Kind != tools.KindInvalidInput {
		t.Fatalf("err = %v, want invalid_input", err)
	}
}

func TestRequestApprovalBlocksRun(t *testing.T) {
	result, err := NewRequestApprovalTool().Execute(context.Background(),
		mustJSON(t, RequestApprovalInput{Prompt: "Delete 14 files?"}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Blocked {
		t.Error("request_approval must block the run")
	}
}

func TestRequestApprovalRequiresPrompt(t *testing.T) {
	_, err := NewRequestApprovalTool().Execute(context.Background(),
		mustJSON(t, RequestApprovalInput{ActionSummary: "stuff"}))
	te, ok := tools.IsToolError(err)
	if !ok || te.Kind != tools.KindInvalidInput {
		t.Fatalf("err = %v, want invalid_input", err)
	}
}

func TestFinalAnswerEchoesPayload(t *testing.T) {
	result, err := NewFinalAnswerTool().Execute(context.Background(),
		mustJSON(t, FinalAnswerInput{Content: "done", FilePath: "main.py"}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Blocked {
		t.Error("final_answer must not block")
	}
	var out FinalAnswerInput
	if err := json.Unmarshal(result.Output, &out); err != nil {
		t.Fatal(err)
	}
	if out.Content != "done" || out.FilePath != "main.py" {
		t.Errorf("out = %+v", out)
	}
}

func TestFinalAnswerRequiresContent(t *testing.T) {
	_, err := NewFinalAnswerTool().Execute(context.Background(), mustJSON(t, FinalAnswerInput{}))
	te, ok := tools.IsToolError(err)
	if !ok || te.Kind != tools.KindInvalidInput {
		t.Fatalf("err = %v, want invalid_input", err)
	}
}

func TestReportBlockerBlocksWithReason(t *testing.T) {
	result, err := NewReportBlockerTool().Execute(context.Background(),
		mustJSON(t, ReportBlockerInput{Reason: "missing credentials"}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Blocked {
		t.Error("report_blocker must block the run")
	}
	if !strings.Contains(result.Detail, "missing credentials") {
		t.Errorf("detail = %q", result.Detail)
	}
}

func TestValidateResult(t *testing.T) {
	tests := []struct {
		name     string
		in       ValidateInput
		passed   bool
		failures int
	}{
		{
			name:   "all pass",
			in:     ValidateInput{Criteria: []string{"tests pass", "lint clean"}, Evidence: "Tests PASS and lint clean."},
			passed: true,
		},
		{
			name:     "one fails",
			in:       ValidateInput{Criteria: []string{"tests pass", "docs updated"}, Evidence: "tests pass"},
			failures: 1,
		},
		{
			name:   "no criteria",
			in:     ValidateInput{Evidence: "whatever"},
			passed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewValidateResultTool().Execute(context.Background(), mustJSON(t, tt.in))
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			var out ValidateOutput
			if err := json.Unmarshal(result.Output, &out); err != nil {
				t.Fatal(err)
			}
			if out.Passed != tt.passed || len(out.Failures) != tt.failures {
				t.Errorf("out = %+v", out)
			}
		})
	}
}
