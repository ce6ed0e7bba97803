package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nexar-labs/nexar/internal/tools"
	"github.com/nexar-labs/nexar/pkg/models"
)

// MaxReadFiles bounds the number of files one read action may request.
const MaxReadFiles = 50

// ReadFilesTool returns file contents with a per-file size cap.
type ReadFilesTool struct {
	resolver Resolver
}

// NewReadFilesTool creates a read_files tool.
func NewReadFilesTool(cfg Config) *ReadFilesTool {
	return &ReadFilesTool{resolver: Resolver{Root: cfg.Workspace}}
}

// ReadFilesInput is the read_files input.
type ReadFilesInput struct {
	Paths []string `json:"paths"`
}

// ReadFileEntry is one file in the read_files output.
type ReadFileEntry struct {
	Path             string `json:"path"`
	Chars            int    `json:"chars"`
	Content          string `json:"content,omitempty"`
	ContentTruncated bool   `json:"content_truncated"`
	Error            string `json:"error,omitempty"`
}

// ReadFilesOutput is the read_files output.
type ReadFilesOutput struct {
	Files []ReadFileEntry `json:"files"`
}

// Type returns the action type.
func (t *ReadFilesTool) Type() models.ActionType { return models.ActionReadFiles }

// Description returns the planner-facing description.
func (t *ReadFilesTool) Description() string {
	return "Read workspace file contents. Large files are truncated."
}

// Schema returns the input schema.
func (t *ReadFilesTool) Schema() json.RawMessage { return tools.SchemaFor(&ReadFilesInput{}) }

// Execute reads the requested files. Per-file failures are recorded in
// the output instead of failing the whole action; a path escape still
// fails the action before any I/O.
func (t *ReadFilesTool) Execute(ctx context.Context, input json.RawMessage) (*tools.Result, error) {
	var in ReadFilesInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, tools.NewToolError("read_files", tools.KindInvalidInput, err.Error())
	}
	if len(in.Paths) == 0 {
		return nil, tools.NewToolError("read_files", tools.KindInvalidInput, "paths is required")
	}
	if len(in.Paths) > MaxReadFiles {
		in.Paths = in.Paths[:MaxReadFiles]
	}

	out := ReadFilesOutput{Files: make([]ReadFileEntry, 0, len(in.Paths))}
	for _, path := range in.Paths {
		if ctx.Err() != nil {
			return nil, tools.NewToolError("read_files", tools.KindCancelled, "read cancelled")
		}
		resolved, err := t.resolver.Resolve(path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			entry := ReadFileEntry{Path: path}
			if os.IsNotExist(err) {
				entry.Error = "file not found"
			} else {
				entry.Error = err.Error()
			}
			out.Files = append(out.Files, entry)
			continue
		}
		content := string(data)
		entry := ReadFileEntry{Path: path, Chars: len(content)}
		if len(content) > ReadCap {
			entry.Content = content[:ReadCap]
			entry.ContentTruncated = true
		} else {
			entry.Content = content
		}
		out.Files = append(out.Files, entry)
	}

	return tools.JSONResult(out, fmt.Sprintf("read %d files", len(out.Files)))
}
