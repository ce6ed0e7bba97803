package models

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// CodeSnippet is a user-attached fragment of workspace code carried as
// extra context on a chat message.
type CodeSnippet struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Content   string `json:"content"`
}

// ChatMessage is one entry in a run's canonical conversation.
type ChatMessage struct {
	Role     Role          `json:"role"`
	Content  string        `json:"content"`
	Snippets []CodeSnippet `json:"snippets,omitempty"`
	ChatOnly bool          `json:"chat_only,omitempty"`
}

// HistoryConfig bounds the conversational context compiled for the LLM.
// Zero values mean "use defaults".
type HistoryConfig struct {
	Turns              int  `json:"turns,omitempty"`
	MaxCharsPerMessage int  `json:"max_chars_per_message,omitempty"`
	SummaryEnabled     bool `json:"summary_enabled"`
	SummaryMaxChars    int  `json:"summary_max_chars,omitempty"`
}

// DefaultHistoryConfig returns the history bounds applied when a request
// does not override them.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Turns:              40,
		MaxCharsPerMessage: 4000,
		SummaryEnabled:     true,
		SummaryMaxChars:    1200,
	}
}

// Normalize fills unset fields from the defaults.
func (h HistoryConfig) Normalize() HistoryConfig {
	def := DefaultHistoryConfig()
	if h.Turns <= 0 {
		h.Turns = def.Turns
	}
	if h.MaxCharsPerMessage <= 0 {
		h.MaxCharsPerMessage = def.MaxCharsPerMessage
	}
	if h.SummaryMaxChars <= 0 {
		h.SummaryMaxChars = def.SummaryMaxChars
	}
	return h
}
