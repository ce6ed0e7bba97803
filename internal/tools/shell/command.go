// Package shell implements the command-running actions. Commands always
// execute with their working directory clamped inside the workspace;
// the host is assumed trusted.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/nexar-labs/nexar/internal/tools"
	"github.com/nexar-labs/nexar/internal/tools/files"
	"github.com/nexar-labs/nexar/pkg/models"
)

// StreamCap bounds captured stdout and stderr, each.
const StreamCap = 64 << 10 // 64KiB

// Config wires the command tools to one workspace.
type Config struct {
	Workspace string
}

// CommandTool serves run_command and its aliases (run_tests, run_lint,
// run_build): identical mechanics, distinct planner intent.
type CommandTool struct {
	actionType models.ActionType
	resolver   files.Resolver
}

// NewCommandTool creates a command tool for one action type.
func NewCommandTool(actionType models.ActionType, cfg Config) *CommandTool {
	return &CommandTool{
		actionType: actionType,
		resolver:   files.Resolver{Root: cfg.Workspace},
	}
}

// CommandInput is the run_command input.
type CommandInput struct {
	Command    string `json:"command"`
	Cwd        string `json:"cwd,omitempty"`
	TimeoutSec int    `json:"timeout_sec,omitempty"`
}

// CommandOutput is the run_command output.
type CommandOutput struct {
	Command         string `json:"command"`
	ExitCode        int    `json:"exit_code"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	StdoutTruncated bool   `json:"stdout_truncated,omitempty"`
	StderrTruncated bool   `json:"stderr_truncated,omitempty"`
	DurationMS      int64  `json:"duration_ms"`
}

// Type returns the action type.
func (t *CommandTool) Type() models.ActionType { return t.actionType }

// Description returns the planner-facing description.
func (t *CommandTool) Description() string {
	switch t.actionType {
	case models.ActionRunTests:
		return "Run the project's test command inside the workspace."
	case models.ActionRunLint:
		return "Run the project's lint command inside the workspace."
	case models.ActionRunBuild:
		return "Run the project's build command inside the workspace."
	default:
		return "Run a shell command inside the workspace."
	}
}

// Schema returns the input schema.
func (t *CommandTool) Schema() json.RawMessage { return tools.SchemaFor(&CommandInput{}) }

// Execute runs the command under the action's context. A non-zero exit
// code is a successful execution with the code recorded; only failures
// to run the command at all are errors.
func (t *CommandTool) Execute(ctx context.Context, input json.RawMessage) (*tools.Result, error) {
	name := string(t.actionType)
	var in CommandInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, tools.NewToolError(name, tools.KindInvalidInput, err.Error())
	}
	if strings.TrimSpace(in.Command) == "" {
		return nil, tools.NewToolError(name, tools.KindInvalidInput, "command is required")
	}

	cwd := in.Cwd
	if cwd == "" {
		cwd = "."
	}
	resolvedCwd, err := t.resolver.Resolve(cwd)
	if err != nil {
		return nil, err
	}

	// The action-level timeout is already on ctx; an input timeout may
	// only tighten it.
	if in.TimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(in.TimeoutSec)*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", in.Command)
	cmd.Dir = resolvedCwd
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, tools.NewToolError(name, tools.KindTimeout, "command timed out")
		}
		return nil, tools.NewToolError(name, tools.KindCancelled, "command cancelled")
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, tools.NewToolError(name, tools.KindIO, runErr.Error()).WithCause(runErr)
		}
	}

	out := CommandOutput{
		Command:    in.Command,
		ExitCode:   exitCode,
		DurationMS: elapsed.Milliseconds(),
	}
	out.Stdout, out.StdoutTruncated = capStream(stdout.String())
	out.Stderr, out.StderrTruncated = capStream(stderr.String())

	return tools.JSONResult(out, fmt.Sprintf("%s exited %d in %dms", firstWord(in.Command), exitCode, out.DurationMS))
}

func capStream(s string) (string, bool) {
	if len(s) > StreamCap {
		return s[:StreamCap], true
	}
	return s, false
}

func firstWord(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return command
	}
	return fields[0]
}
