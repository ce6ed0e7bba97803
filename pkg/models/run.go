package models

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunQueued      RunStatus = "queued"
	RunRunning     RunStatus = "running"
	RunWaitingUser RunStatus = "waiting_user"
	RunPaused      RunStatus = "paused"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
	RunCancelled   RunStatus = "cancelled"
	RunBlocked     RunStatus = "blocked"
)

// Terminal reports whether the run has finished.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunBlocked:
		return true
	}
	return false
}

// RunIntent classifies what the user is asking for.
type RunIntent string

const (
	IntentQA       RunIntent = "qa"
	IntentCodeEdit RunIntent = "code_edit"
)

// WriteResult is the outcome of a file-mutating action.
type WriteResult string

const (
	WriteWritten WriteResult = "written"
	WriteFailed  WriteResult = "failed"
	WriteSkipped WriteResult = "skipped"
)

// FileChange describes one workspace mutation, with enough material for
// the UI to render a diff preview and detect stale edits.
type FileChange struct {
	FilePath      string      `json:"file_path"`
	BeforeContent string      `json:"before_content,omitempty"`
	AfterContent  string      `json:"after_content,omitempty"`
	FileContent   string      `json:"file_content"`
	DiffUnified   string      `json:"diff_unified,omitempty"`
	BeforeHash    string      `json:"before_hash,omitempty"`
	AfterHash     string      `json:"after_hash,omitempty"`
	WriteResult   WriteResult `json:"write_result"`
	Error         string      `json:"error,omitempty"`
}

// PlanRunInfo is the full snapshot of a run served to clients. It is a
// deep copy; callers may not reach the live run through it.
type PlanRunInfo struct {
	RunID            string           `json:"run_id"`
	Intent           string           `json:"intent"`
	IntentKind       RunIntent        `json:"intent_kind,omitempty"`
	ProviderID       string           `json:"provider_id"`
	Status           RunStatus        `json:"status"`
	Iteration        int              `json:"iteration"`
	MaxRetries       int              `json:"max_retries"`
	Messages         []ChatMessage    `json:"messages,omitempty"`
	HistoryConfig    HistoryConfig    `json:"history_config"`
	ActionHistory    []ActionRecord   `json:"action_history,omitempty"`
	LatestBatch      *ActionBatch     `json:"latest_batch,omitempty"`
	PendingActionIDs []string         `json:"pending_action_ids,omitempty"`
	ActiveActionID   string           `json:"active_action_id,omitempty"`
	Events           []ExecutionEvent `json:"events,omitempty"`
	ResultContent    string           `json:"result_content,omitempty"`
	ResultFilePath   string           `json:"result_file_path,omitempty"`
	ResultChanges    []FileChange     `json:"result_changes,omitempty"`
	PauseRequested   bool             `json:"pause_requested"`
	CancelRequested  bool             `json:"cancel_requested"`
	StartedAt        time.Time        `json:"started_at"`
	FinishedAt       *time.Time       `json:"finished_at,omitempty"`
}
