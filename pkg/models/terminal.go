package models

// TerminalCreateRequest is the body of POST /api/terminal/sessions.
type TerminalCreateRequest struct {
	Cwd   string `json:"cwd,omitempty"`
	Shell string `json:"shell,omitempty"`
}

// TerminalSessionInfo describes one PTY session.
type TerminalSessionInfo struct {
	SessionID string `json:"session_id"`
	Cwd       string `json:"cwd"`
	Shell     string `json:"shell"`
	Alive     bool   `json:"alive"`
	Output    string `json:"output,omitempty"`
}

// TerminalInputRequest is the body of POST /api/terminal/sessions/{id}/input.
type TerminalInputRequest struct {
	Data string `json:"data"`
}

// TerminalOutput is the payload of GET /api/terminal/sessions/{id}/output.
// Output holds the bytes accumulated since the previous read.
type TerminalOutput struct {
	SessionID string `json:"session_id"`
	Output    string `json:"output"`
	Alive     bool   `json:"alive"`
	ExitCode  *int   `json:"exit_code,omitempty"`
}

// TerminalResizeRequest is the body of POST /api/terminal/sessions/{id}/resize.
type TerminalResizeRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}
