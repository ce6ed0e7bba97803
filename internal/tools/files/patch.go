package files

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nexar-labs/nexar/internal/tools"
	"github.com/nexar-labs/nexar/pkg/models"
)

// ApplyPatchTool applies a unified diff to one workspace file.
type ApplyPatchTool struct{ writeConfig }

// NewApplyPatchTool creates an apply_patch tool.
func NewApplyPatchTool(cfg Config) *ApplyPatchTool {
	return &ApplyPatchTool{newWriteConfig(cfg)}
}

// ApplyPatchInput is the apply_patch input.
type ApplyPatchInput struct {
	Path        string `json:"path"`
	DiffUnified string `json:"diff_unified"`
}

// Type returns the action type.
func (t *ApplyPatchTool) Type() models.ActionType { return models.ActionApplyPatch }

// Description returns the planner-facing description.
func (t *ApplyPatchTool) Description() string {
	return "Apply a unified diff to a workspace file."
}

// Schema returns the input schema.
func (t *ApplyPatchTool) Schema() json.RawMessage { return tools.SchemaFor(&ApplyPatchInput{}) }

// Execute applies the hunks and writes the result atomically.
func (t *ApplyPatchTool) Execute(ctx context.Context, input json.RawMessage) (*tools.Result, error) {
	var in ApplyPatchInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, tools.NewToolError("apply_patch", tools.KindInvalidInput, err.Error())
	}
	if strings.TrimSpace(in.DiffUnified) == "" {
		return nil, tools.NewToolError("apply_patch", tools.KindInvalidInput, "diff_unified is required")
	}
	resolved, err := t.resolver.Resolve(in.Path)
	if err != nil {
		return nil, err
	}

	hunks, err := parseHunks(in.DiffUnified)
	if err != nil {
		return nil, tools.NewToolError("apply_patch", tools.KindInvalidInput, err.Error()).WithPath(in.Path)
	}

	unlock := t.locks.Lock(resolved)
	defer unlock()

	before, existed := readBefore(resolved)
	if !existed {
		return nil, tools.NewToolError("apply_patch", tools.KindNotFound, "file not found").WithPath(in.Path)
	}

	after, err := applyHunks(before, hunks)
	if err != nil {
		return nil, tools.NewToolError("apply_patch", tools.KindInvalidInput, err.Error()).WithPath(in.Path)
	}
	if ctx.Err() != nil {
		return nil, tools.NewToolError("apply_patch", tools.KindCancelled, "cancelled before write").WithPath(in.Path)
	}

	if err := AtomicWrite(resolved, after); err != nil {
		return nil, tools.NewToolError("apply_patch", tools.KindIO, err.Error()).WithPath(in.Path).WithCause(err)
	}

	change := models.FileChange{
		FilePath:      in.Path,
		BeforeContent: before,
		AfterContent:  after,
		FileContent:   after,
		DiffUnified:   UnifiedDiff(in.Path, before, after),
		BeforeHash:    ContentHash(before),
		AfterHash:     ContentHash(after),
		WriteResult:   models.WriteWritten,
	}
	return changeResult(change, fmt.Sprintf("patched %s (%d hunks)", in.Path, len(hunks)))
}

type hunk struct {
	OldStart int
	Lines    []string
}

var hunkHeader = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// parseHunks extracts the hunks from a unified diff, ignoring the file
// headers (the target path comes from the action input).
func parseHunks(diff string) ([]hunk, error) {
	var hunks []hunk
	var current *hunk
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "diff ") || strings.HasPrefix(line, "index "),
			strings.HasPrefix(line, "--- ") || strings.HasPrefix(line, "+++ "):
			continue
		case strings.HasPrefix(line, "@@"):
			match := hunkHeader.FindStringSubmatch(line)
			if match == nil {
				return nil, fmt.Errorf("malformed hunk header: %s", line)
			}
			start, _ := strconv.Atoi(match[1])
			hunks = append(hunks, hunk{OldStart: start})
			current = &hunks[len(hunks)-1]
		case line == "\\ No newline at end of file":
			continue
		default:
			if current == nil {
				continue
			}
			if line == "" {
				// A blank context line loses its leading space in
				// some producers.
				current.Lines = append(current.Lines, " ")
				continue
			}
			prefix := line[:1]
			if prefix != " " && prefix != "+" && prefix != "-" {
				return nil, fmt.Errorf("invalid patch line: %s", line)
			}
			current.Lines = append(current.Lines, line)
		}
	}
	if len(hunks) == 0 {
		return nil, fmt.Errorf("no hunks found")
	}
	return hunks, nil
}

// applyHunks replays the hunks against the file content, verifying
// context and delete lines match. Hunk starts index the old file, so
// the line-count delta of earlier hunks carries forward as an offset.
func applyHunks(content string, hunks []hunk) (string, error) {
	hadTrailing := strings.HasSuffix(content, "\n")
	trimmed := strings.TrimSuffix(content, "\n")
	var lines []string
	if trimmed != "" {
		lines = strings.Split(trimmed, "\n")
	}

	offset := 0
	for _, h := range hunks {
		idx := h.OldStart - 1 + offset
		if idx < 0 {
			idx = 0
		}
		for _, line := range h.Lines {
			prefix := line[:1]
			text := ""
			if len(line) > 1 {
				text = line[1:]
			}
			switch prefix {
			case " ":
				if idx >= len(lines) || lines[idx] != text {
					return "", fmt.Errorf("context mismatch at line %d", idx+1)
				}
				idx++
			case "-":
				if idx >= len(lines) || lines[idx] != text {
					return "", fmt.Errorf("delete mismatch at line %d", idx+1)
				}
				lines = append(lines[:idx], lines[idx+1:]...)
				offset--
			case "+":
				lines = append(lines[:idx], append([]string{text}, lines[idx:]...)...)
				idx++
				offset++
			}
		}
	}

	result := strings.Join(lines, "\n")
	if hadTrailing && result != "" {
		result += "\n"
	}
	return result, nil
}
