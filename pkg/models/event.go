package models

import (
	"encoding/json"
	"time"
)

// EventStatus is the status attached to an execution event.
type EventStatus string

const (
	EventQueued      EventStatus = "queued"
	EventRunning     EventStatus = "running"
	EventCompleted   EventStatus = "completed"
	EventFailed      EventStatus = "failed"
	EventWaitingUser EventStatus = "waiting_user"
	EventBlocked     EventStatus = "blocked"
	EventInfo        EventStatus = "info"
)

// TokenUsage reports token counts for one provider call. Source is
// "provider" when the vendor reported them and "estimated" otherwise.
type TokenUsage struct {
	Input  int    `json:"input"`
	Output int    `json:"output"`
	Total  int    `json:"total"`
	Source string `json:"source"`
}

// LLMCallMeta is attached to planning events under the "llm" data key so
// the UI can show exactly what was sent and what it cost.
type LLMCallMeta struct {
	Provider       string        `json:"provider"`
	Model          string        `json:"model"`
	ElapsedMS      int64         `json:"elapsed_ms"`
	PromptMessages []ChatMessage `json:"prompt_messages,omitempty"`
	Tokens         TokenUsage    `json:"tokens"`
}

// ExecutionEvent is one append-only entry in a run's event log.
type ExecutionEvent struct {
	EventID        string          `json:"event_id"`
	Kind           string          `json:"kind"`
	Stage          string          `json:"stage"`
	Title          string          `json:"title"`
	Detail         string          `json:"detail,omitempty"`
	Status         EventStatus     `json:"status"`
	Timestamp      time.Time       `json:"timestamp"`
	Iteration      int             `json:"iteration"`
	ActionID       string          `json:"action_id,omitempty"`
	ParentActionID string          `json:"parent_action_id,omitempty"`
	Input          json.RawMessage `json:"input,omitempty"`
	Output         json.RawMessage `json:"output,omitempty"`
	Metrics        map[string]any  `json:"metrics,omitempty"`
	Artifacts      []string        `json:"artifacts,omitempty"`
	Error          string          `json:"error,omitempty"`
	Data           map[string]any  `json:"data,omitempty"`
}
