package models

import "encoding/json"

// ActionType is the closed set of operations the planner may request.
type ActionType string

const (
	ActionScanWorkspace       ActionType = "scan_workspace"
	ActionReadFiles           ActionType = "read_files"
	ActionSearchCode          ActionType = "search_code"
	ActionExtractSymbols      ActionType = "extract_symbols"
	ActionAnalyzeDependencies ActionType = "analyze_dependencies"
	ActionSummarizeContext    ActionType = "summarize_context"
	ActionProposeSubplan      ActionType = "propose_subplan"
	ActionCreateFile          ActionType = "create_file"
	ActionUpdateFile          ActionType = "update_file"
	ActionDeleteFile          ActionType = "delete_file"
	ActionMoveFile            ActionType = "move_file"
	ActionApplyPatch          ActionType = "apply_patch"
	ActionRunCommand          ActionType = "run_command"
	ActionRunTests            ActionType = "run_tests"
	ActionRunLint             ActionType = "run_lint"
	ActionRunBuild            ActionType = "run_build"
	ActionValidateResult      ActionType = "validate_result"
	ActionAskUser             ActionType = "ask_user"
	ActionRequestApproval     ActionType = "request_approval"
	ActionFinalAnswer         ActionType = "final_answer"
	ActionReportBlocker       ActionType = "report_blocker"
)

// AllActionTypes lists every action type in declaration order.
func AllActionTypes() []ActionType {
	return []ActionType{
		ActionScanWorkspace, ActionReadFiles, ActionSearchCode,
		ActionExtractSymbols, ActionAnalyzeDependencies,
		ActionSummarizeContext, ActionProposeSubplan,
		ActionCreateFile, ActionUpdateFile, ActionDeleteFile,
		ActionMoveFile, ActionApplyPatch,
		ActionRunCommand, ActionRunTests, ActionRunLint, ActionRunBuild,
		ActionValidateResult, ActionAskUser, ActionRequestApproval,
		ActionFinalAnswer, ActionReportBlocker,
	}
}

// IsWrite reports whether the action mutates the workspace.
func (t ActionType) IsWrite() bool {
	switch t {
	case ActionCreateFile, ActionUpdateFile, ActionDeleteFile, ActionMoveFile, ActionApplyPatch:
		return true
	}
	return false
}

// IsUserInput reports whether the action suspends the run for user input.
func (t ActionType) IsUserInput() bool {
	return t == ActionAskUser || t == ActionRequestApproval
}

// IsTerminal reports whether the action ends the run.
func (t ActionType) IsTerminal() bool {
	return t == ActionFinalAnswer || t == ActionReportBlocker
}

// IsCritical reports whether a failure of this action must fail the run.
func (t ActionType) IsCritical() bool {
	return t.IsWrite() || t.IsTerminal()
}

// DecisionMode is the planner's verdict for one tick.
type DecisionMode string

const (
	ModeContinue DecisionMode = "continue"
	ModeAskUser  DecisionMode = "ask_user"
	ModeDone     DecisionMode = "done"
	ModeBlocked  DecisionMode = "blocked"
)

// BatchDecision carries the planner's verdict and its rationale.
type BatchDecision struct {
	Mode              DecisionMode `json:"mode"`
	Reason            string       `json:"reason,omitempty"`
	NeedsUserTrigger  bool         `json:"needs_user_trigger"`
	SatisfactionScore *float64     `json:"satisfaction_score,omitempty"`
}

// ActionSpec is a single planner-emitted operation.
type ActionSpec struct {
	ID              string          `json:"id"`
	Type            ActionType      `json:"type"`
	Title           string          `json:"title,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	Input           json.RawMessage `json:"input,omitempty"`
	Response        json.RawMessage `json:"response,omitempty"`
	DependsOn       []string        `json:"depends_on,omitempty"`
	CanParallel     bool            `json:"can_parallel"`
	Priority        int             `json:"priority"`
	TimeoutSec      int             `json:"timeout_sec"`
	MaxRetries      int             `json:"max_retries"`
	SuccessCriteria []string        `json:"success_criteria,omitempty"`
	OnFailure       string          `json:"on_failure,omitempty"`
	Artifacts       []string        `json:"artifacts,omitempty"`
}

// BatchVersion is the ActionBatch schema version the engine emits and accepts.
const BatchVersion = "1.0"

// ActionBatch is the planner's output for one tick.
type ActionBatch struct {
	Version       string        `json:"version"`
	Iteration     int           `json:"iteration"`
	Summary       string        `json:"summary,omitempty"`
	Decision      BatchDecision `json:"decision"`
	Actions       []ActionSpec  `json:"actions"`
	Acceptance    []string      `json:"acceptance,omitempty"`
	Risks         []string      `json:"risks,omitempty"`
	NextQuestions []string      `json:"next_questions,omitempty"`
}

// Action returns the spec with the given id, if present.
func (b *ActionBatch) Action(id string) (*ActionSpec, bool) {
	for i := range b.Actions {
		if b.Actions[i].ID == id {
			return &b.Actions[i], true
		}
	}
	return nil, false
}

// ActionStatus tracks an action through its lifecycle.
type ActionStatus string

const (
	ActionQueued    ActionStatus = "queued"
	ActionRunning   ActionStatus = "running"
	ActionCompleted ActionStatus = "completed"
	ActionFailed    ActionStatus = "failed"
	ActionSkipped   ActionStatus = "skipped"
	ActionCancelled ActionStatus = "cancelled"
)

// Terminal reports whether the status is final for the action.
func (s ActionStatus) Terminal() bool {
	switch s {
	case ActionCompleted, ActionFailed, ActionSkipped, ActionCancelled:
		return true
	}
	return false
}

// ActionRecord is the stored result of one executed action.
type ActionRecord struct {
	Iteration int             `json:"iteration"`
	ActionID  string          `json:"action_id"`
	Type      ActionType      `json:"type"`
	Status    ActionStatus    `json:"status"`
	Title     string          `json:"title,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
	Artifacts []string        `json:"artifacts,omitempty"`
	Error     string          `json:"error,omitempty"`
	Attempts  int             `json:"attempts,omitempty"`
}
