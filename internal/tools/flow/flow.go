// Package flow implements the actions that steer a run rather than
// touch the workspace: user-input requests, terminal answers, and the
// pure reasoning helpers.
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nexar-labs/nexar/internal/tools"
	"github.com/nexar-labs/nexar/pkg/models"
)

// AskUserTool suspends the run until the user replies.
type AskUserTool struct{}

// NewAskUserTool creates an ask_user tool.
func NewAskUserTool() *AskUserTool { return &AskUserTool{} }

// AskUserInput is the ask_user input.
type AskUserInput struct {
	Question string `json:"question"`
}

// Type returns the action type.
func (t *AskUserTool) Type() models.ActionType { return models.ActionAskUser }

// Description returns the planner-facing description.
func (t *AskUserTool) Description() string {
	return "Ask the user a clarifying question. The run waits for the reply."
}

// Schema returns the input schema.
func (t *AskUserTool) Schema() json.RawMessage { return tools.SchemaFor(&AskUserInput{}) }

// Execute echoes the question and blocks the run.
func (t *AskUserTool) Execute(_ context.Context, input json.RawMessage) (*tools.Result, error) {
	var in AskUserInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, tools.NewToolError("ask_user", tools.KindInvalidInput, err.Error())
	}
	if strings.TrimSpace(in.Question) == "" {
		return nil, tools.NewToolError("ask_user", tools.KindInvalidInput, "question is required")
	}
	result, err := tools.JSONResult(in, "waiting for user reply")
	if err != nil {
		return nil, err
	}
	result.Blocked = true
	return result, nil
}

// RequestApprovalTool suspends the run until the user approves.
type RequestApprovalTool struct{}

// NewRequestApprovalTool creates a request_approval tool.
func NewRequestApprovalTool() *RequestApprovalTool { return &RequestApprovalTool{} }

// RequestApprovalInput is the request_approval input.
type RequestApprovalInput struct {
	Prompt        string `json:"prompt"`
	ActionSummary string `json:"action_summary,omitempty"`
}

// Type returns the action type.
func (t *RequestApprovalTool) Type() models.ActionType { return models.ActionRequestApproval }

// Description returns the planner-facing description.
func (t *RequestApprovalTool) Description() string {
	return "Ask the user to approve the described actions before proceeding."
}

// Schema returns the input schema.
func (t *RequestApprovalTool) Schema() json.RawMessage {
	return tools.SchemaFor(&RequestApprovalInput{})
}

// Execute echoes the prompt and blocks the run.
func (t *RequestApprovalTool) Execute(_ context.Context, input json.RawMessage) (*tools.Result, error) {
	var in RequestApprovalInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, tools.NewToolError("request_approval", tools.KindInvalidInput, err.Error())
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, tools.NewToolError("request_approval", tools.KindInvalidInput, "prompt is required")
	}
	result, err := tools.JSONResult(in, "waiting for user approval")
	if err != nil {
		return nil, err
	}
	result.Blocked = true
	return result, nil
}

// FinalAnswerTool delivers the run's terminal answer.
type FinalAnswerTool struct{}

// NewFinalAnswerTool creates a final_answer tool.
func NewFinalAnswerTool() *FinalAnswerTool { return &FinalAnswerTool{} }

// FinalAnswerInput is the final_answer input.
type FinalAnswerInput struct {
	Content     string              `json:"content"`
	FilePath    string              `json:"file_path,omitempty"`
	FileContent string              `json:"file_content,omitempty"`
	Changes     []models.FileChange `json:"changes,omitempty"`
}

// Type returns the action type.
func (t *FinalAnswerTool) Type() models.ActionType { return models.ActionFinalAnswer }

// Description returns the planner-facing description.
func (t *FinalAnswerTool) Description() string {
	return "Deliver the final answer to the user and finish the run."
}

// Schema returns the input schema.
func (t *FinalAnswerTool) Schema() json.RawMessage { return tools.SchemaFor(&FinalAnswerInput{}) }

// Execute echoes the answer payload.
func (t *FinalAnswerTool) Execute(_ context.Context, input json.RawMessage) (*tools.Result, error) {
	var in FinalAnswerInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, tools.NewToolError("final_answer", tools.KindInvalidInput, err.Error())
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, tools.NewToolError("final_answer", tools.KindInvalidInput, "content is required")
	}
	return tools.JSONResult(in, "final answer delivered")
}

// ReportBlockerTool terminates the run with an unresolvable blocker.
type ReportBlockerTool struct{}

// NewReportBlockerTool creates a report_blocker tool.
func NewReportBlockerTool() *ReportBlockerTool { return &ReportBlockerTool{} }

// ReportBlockerInput is the report_blocker input.
type ReportBlockerInput struct {
	Reason string `json:"reason"`
}

// Type returns the action type.
func (t *ReportBlockerTool) Type() models.ActionType { return models.ActionReportBlocker }

// Description returns the planner-facing description.
func (t *ReportBlockerTool) Description() string {
	return "Report that the task cannot proceed and finish the run."
}

// Schema returns the input schema.
func (t *ReportBlockerTool) Schema() json.RawMessage { return tools.SchemaFor(&ReportBlockerInput{}) }

// Execute echoes the reason and blocks the run.
func (t *ReportBlockerTool) Execute(_ context.Context, input json.RawMessage) (*tools.Result, error) {
	var in ReportBlockerInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, tools.NewToolError("report_blocker", tools.KindInvalidInput, err.Error())
	}
	result, err := tools.JSONResult(in, fmt.Sprintf("blocked: %s", in.Reason))
	if err != nil {
		return nil, err
	}
	result.Blocked = true
	return result, nil
}

// ValidateResultTool checks acceptance criteria against evidence text.
type ValidateResultTool struct{}

// NewValidateResultTool creates a validate_result tool.
func NewValidateResultTool() *ValidateResultTool { return &ValidateResultTool{} }

// ValidateInput is the validate_result input.
type ValidateInput struct {
	Criteria []string `json:"criteria"`
	Evidence string   `json:"evidence"`
}

// ValidateOutput is the validate_result output.
type ValidateOutput struct {
	Passed   bool     `json:"passed"`
	Failures []string `json:"failures"`
}

// Type returns the action type.
func (t *ValidateResultTool) Type() models.ActionType { return models.ActionValidateResult }

// Description returns the planner-facing description.
func (t *ValidateResultTool) Description() string {
	return "Check each acceptance criterion against the gathered evidence."
}

// Schema returns the input schema.
func (t *ValidateResultTool) Schema() json.RawMessage { return tools.SchemaFor(&ValidateInput{}) }

// Execute reports which criteria are not supported by the evidence.
func (t *ValidateResultTool) Execute(_ context.Context, input json.RawMessage) (*tools.Result, error) {
	var in ValidateInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, tools.NewToolError("validate_result", tools.KindInvalidInput, err.Error())
	}
	out := ValidateOutput{Failures: []string{}}
	evidence := strings.ToLower(in.Evidence)
	for _, criterion := range in.Criteria {
		if !strings.Contains(evidence, strings.ToLower(criterion)) {
			out.Failures = append(out.Failures, criterion)
		}
	}
	out.Passed = len(out.Failures) == 0
	return tools.JSONResult(out, fmt.Sprintf("%d/%d criteria passed", len(in.Criteria)-len(out.Failures), len(in.Criteria)))
}

// SummarizeContextTool echoes a planner-written summary into the record.
type SummarizeContextTool struct{}

// NewSummarizeContextTool creates a summarize_context tool.
func NewSummarizeContextTool() *SummarizeContextTool { return &SummarizeContextTool{} }

// SummarizeInput is the summarize_context input.
type SummarizeInput struct {
	Summary string `json:"summary"`
}

// Type returns the action type.
func (t *SummarizeContextTool) Type() models.ActionType { return models.ActionSummarizeContext }

// Description returns the planner-facing description.
func (t *SummarizeContextTool) Description() string {
	return "Record a summary of the gathered context for later iterations."
}

// Schema returns the input schema.
func (t *SummarizeContextTool) Schema() json.RawMessage { return tools.SchemaFor(&SummarizeInput{}) }

// Execute echoes the summary.
func (t *SummarizeContextTool) Execute(_ context.Context, input json.RawMessage) (*tools.Result, error) {
	var in SummarizeInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, tools.NewToolError("summarize_context", tools.KindInvalidInput, err.Error())
	}
	return tools.JSONResult(in, "context summarized")
}

// ProposeSubplanTool echoes a planner-written subplan into the record.
type ProposeSubplanTool struct{}

// NewProposeSubplanTool creates a propose_subplan tool.
func NewProposeSubplanTool() *ProposeSubplanTool { return &ProposeSubplanTool{} }

// SubplanInput is the propose_subplan input.
type SubplanInput struct {
	Plan string `json:"plan"`
}

// Type returns the action type.
func (t *ProposeSubplanTool) Type() models.ActionType { return models.ActionProposeSubplan }

// Description returns the planner-facing description.
func (t *ProposeSubplanTool) Description() string {
	return "Record a proposed plan of follow-up work."
}

// Schema returns the input schema.
func (t *ProposeSubplanTool) Schema() json.RawMessage { return tools.SchemaFor(&SubplanInput{}) }

// Execute echoes the plan.
func (t *ProposeSubplanTool) Execute(_ context.Context, input json.RawMessage) (*tools.Result, error) {
	var in SubplanInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, tools.NewToolError("propose_subplan", tools.KindInvalidInput, err.Error())
	}
	return tools.JSONResult(in, "subplan recorded")
}
