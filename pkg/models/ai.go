package models

// ProviderInfo describes one configured LLM provider for /api/ai/providers.
type ProviderInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

// AIRequest is the body of /api/ai/chat and /api/ai/runs/start.
type AIRequest struct {
	Provider      string         `json:"provider"`
	Messages      []ChatMessage  `json:"messages"`
	CurrentFile   string         `json:"current_file,omitempty"`
	CurrentCode   string         `json:"current_code,omitempty"`
	Snippets      []CodeSnippet  `json:"snippets,omitempty"`
	ChatOnly      bool           `json:"chat_only,omitempty"`
	PlanningMode  bool           `json:"planning_mode,omitempty"`
	ForceCodeEdit bool           `json:"force_code_edit,omitempty"`
	MaxRetries    int            `json:"max_retries,omitempty"`
	HistoryConfig *HistoryConfig `json:"history_config,omitempty"`
}

// ReplyRequest is the body of /api/ai/runs/{id}/reply.
type ReplyRequest struct {
	Message string `json:"message"`
}

// AIResponse is returned by /api/ai/chat and the run tick endpoints.
type AIResponse struct {
	Content          string       `json:"content"`
	Action           string       `json:"action"`
	FilePath         string       `json:"file_path,omitempty"`
	FileContent      string       `json:"file_content,omitempty"`
	Plan             *ActionBatch `json:"plan,omitempty"`
	Changes          []FileChange `json:"changes,omitempty"`
	Run              *PlanRunInfo `json:"run,omitempty"`
	RunID            string       `json:"run_id,omitempty"`
	NeedsUserTrigger bool         `json:"needs_user_trigger,omitempty"`
	PendingActions   []ActionSpec `json:"pending_actions,omitempty"`
}
