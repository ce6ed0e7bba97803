package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nexar-labs/nexar/internal/tools"
	"github.com/nexar-labs/nexar/pkg/models"
)

// writeConfig is shared by all mutating tools.
type writeConfig struct {
	resolver Resolver
	locks    *PathLocks
}

func newWriteConfig(cfg Config) writeConfig {
	locks := cfg.Locks
	if locks == nil {
		locks = NewPathLocks()
	}
	return writeConfig{resolver: Resolver{Root: cfg.Workspace}, locks: locks}
}

// AtomicWrite writes content via a temp file in the target directory
// followed by a rename, so a crash never leaves a torn file.
func AtomicWrite(resolved, content string) error {
	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".nexar-write-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, resolved); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// readBefore captures the pre-write content when the file exists.
func readBefore(resolved string) (content string, exists bool) {
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", false
	}
	return string(data), true
}

func changeResult(change models.FileChange, detail string) (*tools.Result, error) {
	payload, err := json.Marshal(change)
	if err != nil {
		return nil, err
	}
	return &tools.Result{
		Output:  payload,
		Detail:  detail,
		Changes: []models.FileChange{change},
	}, nil
}

// WriteFileInput is the create_file / update_file input.
type WriteFileInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// writeFile performs the shared create/update flow.
func (w writeConfig) writeFile(ctx context.Context, toolName string, in WriteFileInput) (*tools.Result, error) {
	if strings.TrimSpace(in.Path) == "" {
		return nil, tools.NewToolError(toolName, tools.KindInvalidInput, "path is required")
	}
	resolved, err := w.resolver.Resolve(in.Path)
	if err != nil {
		return nil, err
	}

	unlock := w.locks.Lock(resolved)
	defer unlock()

	before, existed := readBefore(resolved)

	// Cancellation wins over the write: once the run is cancelled no
	// further workspace mutation may happen.
	if ctx.Err() != nil {
		return nil, tools.NewToolError(toolName, tools.KindCancelled, "cancelled before write").WithPath(in.Path)
	}

	change := models.FileChange{
		FilePath:    in.Path,
		AfterContent: in.Content,
		FileContent:  in.Content,
		AfterHash:    ContentHash(in.Content),
	}
	if existed {
		change.BeforeContent = before
		change.BeforeHash = ContentHash(before)
	}
	change.DiffUnified = UnifiedDiff(in.Path, before, in.Content)

	if err := AtomicWrite(resolved, in.Content); err != nil {
		change.WriteResult = models.WriteFailed
		change.Error = err.Error()
		return nil, tools.NewToolError(toolName, tools.KindIO, err.Error()).WithPath(in.Path).WithCause(err)
	}
	change.WriteResult = models.WriteWritten

	return changeResult(change, fmt.Sprintf("wrote %s (%d bytes)", in.Path, len(in.Content)))
}

// CreateFileTool writes a new workspace file.
type CreateFileTool struct{ writeConfig }

// NewCreateFileTool creates a create_file tool.
func NewCreateFileTool(cfg Config) *CreateFileTool {
	return &CreateFileTool{newWriteConfig(cfg)}
}

// Type returns the action type.
func (t *CreateFileTool) Type() models.ActionType { return models.ActionCreateFile }

// Description returns the planner-facing description.
func (t *CreateFileTool) Description() string {
	return "Create a workspace file with the given content. Parent directories are created."
}

// Schema returns the input schema.
func (t *CreateFileTool) Schema() json.RawMessage { return tools.SchemaFor(&WriteFileInput{}) }

// Execute writes the file atomically.
func (t *CreateFileTool) Execute(ctx context.Context, input json.RawMessage) (*tools.Result, error) {
	var in WriteFileInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, tools.NewToolError("create_file", tools.KindInvalidInput, err.Error())
	}
	return t.writeFile(ctx, "create_file", in)
}

// UpdateFileTool overwrites an existing workspace file.
type UpdateFileTool struct{ writeConfig }

// NewUpdateFileTool creates an update_file tool.
func NewUpdateFileTool(cfg Config) *UpdateFileTool {
	return &UpdateFileTool{newWriteConfig(cfg)}
}

// Type returns the action type.
func (t *UpdateFileTool) Type() models.ActionType { return models.ActionUpdateFile }

// Description returns the planner-facing description.
func (t *UpdateFileTool) Description() string {
	return "Replace the content of a workspace file."
}

// Schema returns the input schema.
func (t *UpdateFileTool) Schema() json.RawMessage { return tools.SchemaFor(&WriteFileInput{}) }

// Execute writes the file atomically.
func (t *UpdateFileTool) Execute(ctx context.Context, input json.RawMessage) (*tools.Result, error) {
	var in WriteFileInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, tools.NewToolError("update_file", tools.KindInvalidInput, err.Error())
	}
	return t.writeFile(ctx, "update_file", in)
}

// DeleteFileInput is the delete_file input.
type DeleteFileInput struct {
	Path string `json:"path"`
}

// DeleteFileTool removes a workspace entry.
type DeleteFileTool struct{ writeConfig }

// NewDeleteFileTool creates a delete_file tool.
func NewDeleteFileTool(cfg Config) *DeleteFileTool {
	return &DeleteFileTool{newWriteConfig(cfg)}
}

// Type returns the action type.
func (t *DeleteFileTool) Type() models.ActionType { return models.ActionDeleteFile }

// Description returns the planner-facing description.
func (t *DeleteFileTool) Description() string {
	return "Delete a workspace file or directory."
}

// Schema returns the input schema.
func (t *DeleteFileTool) Schema() json.RawMessage { return tools.SchemaFor(&DeleteFileInput{}) }

// Execute deletes the entry.
func (t *DeleteFileTool) Execute(ctx context.Context, input json.RawMessage) (*tools.Result, error) {
	var in DeleteFileInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, tools.NewToolError("delete_file", tools.KindInvalidInput, err.Error())
	}
	resolved, err := t.resolver.Resolve(in.Path)
	if err != nil {
		return nil, err
	}

	unlock := t.locks.Lock(resolved)
	defer unlock()

	before, existed := readBefore(resolved)
	if !existed {
		if _, statErr := os.Stat(resolved); statErr != nil {
			return nil, tools.NewToolError("delete_file", tools.KindNotFound, "file not found").WithPath(in.Path)
		}
	}
	if ctx.Err() != nil {
		return nil, tools.NewToolError("delete_file", tools.KindCancelled, "cancelled before delete").WithPath(in.Path)
	}

	if err := os.RemoveAll(resolved); err != nil {
		return nil, tools.NewToolError("delete_file", tools.KindIO, err.Error()).WithPath(in.Path).WithCause(err)
	}

	change := models.FileChange{
		FilePath:    in.Path,
		WriteResult: models.WriteWritten,
	}
	if existed {
		change.BeforeContent = before
		change.BeforeHash = ContentHash(before)
		change.DiffUnified = UnifiedDiff(in.Path, before, "")
	}
	return changeResult(change, fmt.Sprintf("deleted %s", in.Path))
}

// MoveFileInput is the move_file input.
type MoveFileInput struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// MoveFileTool renames a workspace entry.
type MoveFileTool struct{ writeConfig }

// NewMoveFileTool creates a move_file tool.
func NewMoveFileTool(cfg Config) *MoveFileTool {
	return &MoveFileTool{newWriteConfig(cfg)}
}

// Type returns the action type.
func (t *MoveFileTool) Type() models.ActionType { return models.ActionMoveFile }

// Description returns the planner-facing description.
func (t *MoveFileTool) Description() string {
	return "Move or rename a workspace file or directory."
}

// Schema returns the input schema.
func (t *MoveFileTool) Schema() json.RawMessage { return tools.SchemaFor(&MoveFileInput{}) }

// Execute renames the entry. Both endpoints must stay inside the
// workspace.
func (t *MoveFileTool) Execute(ctx context.Context, input json.RawMessage) (*tools.Result, error) {
	var in MoveFileInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, tools.NewToolError("move_file", tools.KindInvalidInput, err.Error())
	}
	fromResolved, err := t.resolver.Resolve(in.From)
	if err != nil {
		return nil, err
	}
	toResolved, err := t.resolver.Resolve(in.To)
	if err != nil {
		return nil, err
	}

	unlock := t.locks.Lock(fromResolved)
	defer unlock()

	if _, err := os.Stat(fromResolved); err != nil {
		return nil, tools.NewToolError("move_file", tools.KindNotFound, "source not found").WithPath(in.From)
	}
	if ctx.Err() != nil {
		return nil, tools.NewToolError("move_file", tools.KindCancelled, "cancelled before move").WithPath(in.From)
	}

	content, _ := readBefore(fromResolved)
	if err := os.MkdirAll(filepath.Dir(toResolved), 0o755); err != nil {
		return nil, tools.NewToolError("move_file", tools.KindIO, err.Error()).WithPath(in.To).WithCause(err)
	}
	if err := os.Rename(fromResolved, toResolved); err != nil {
		return nil, tools.NewToolError("move_file", tools.KindIO, err.Error()).WithPath(in.From).WithCause(err)
	}

	change := models.FileChange{
		FilePath:    in.To,
		FileContent: content,
		WriteResult: models.WriteWritten,
	}
	if content != "" {
		change.AfterContent = content
		change.AfterHash = ContentHash(content)
	}
	return changeResult(change, fmt.Sprintf("moved %s to %s", in.From, in.To))
}
