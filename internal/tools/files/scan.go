package files

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/nexar-labs/nexar/internal/tools"
	"github.com/nexar-labs/nexar/pkg/models"
)

// Config wires the file tools to one workspace.
type Config struct {
	Workspace string
	Locks     *PathLocks
}

// DefaultScanLimit bounds a workspace scan when the planner omits one.
const DefaultScanLimit = 200

// ScanTool lists workspace files for planner orientation.
type ScanTool struct {
	resolver Resolver
}

// NewScanTool creates a scan_workspace tool.
func NewScanTool(cfg Config) *ScanTool {
	return &ScanTool{resolver: Resolver{Root: cfg.Workspace}}
}

// ScanInput is the scan_workspace input.
type ScanInput struct {
	Root     string   `json:"root,omitempty"`
	Include  []string `json:"include,omitempty"`
	Exclude  []string `json:"exclude,omitempty"`
	MaxFiles int      `json:"max_files,omitempty"`
}

// ScanOutput is the scan_workspace output.
type ScanOutput struct {
	Files     []string `json:"files"`
	FileCount int      `json:"file_count"`
	Truncated bool     `json:"truncated,omitempty"`
}

// Type returns the action type.
func (t *ScanTool) Type() models.ActionType { return models.ActionScanWorkspace }

// Description returns the planner-facing description.
func (t *ScanTool) Description() string {
	return "List files under the workspace root, skipping VCS, build output, and binary files."
}

// Schema returns the input schema.
func (t *ScanTool) Schema() json.RawMessage { return tools.SchemaFor(&ScanInput{}) }

// Execute walks the workspace and returns relative file paths.
func (t *ScanTool) Execute(ctx context.Context, input json.RawMessage) (*tools.Result, error) {
	var in ScanInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, tools.NewToolError("scan_workspace", tools.KindInvalidInput, err.Error())
		}
	}
	if in.MaxFiles <= 0 {
		in.MaxFiles = DefaultScanLimit
	}
	root := in.Root
	if root == "" {
		root = "."
	}
	rootAbs, err := t.resolver.Resolve(root)
	if err != nil {
		return nil, err
	}

	out := ScanOutput{Files: []string{}}
	walkErr := filepath.WalkDir(rootAbs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if path != rootAbs && (ignoredDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if skippable(name) {
			return nil
		}
		rel := t.resolver.Rel(path)
		if !matchFilters(rel, in.Include, in.Exclude) {
			return nil
		}
		if len(out.Files) >= in.MaxFiles {
			out.Truncated = true
			return filepath.SkipAll
		}
		out.Files = append(out.Files, rel)
		return nil
	})
	if walkErr != nil && ctx.Err() != nil {
		return nil, tools.NewToolError("scan_workspace", tools.KindCancelled, "scan cancelled")
	}
	out.FileCount = len(out.Files)

	return tools.JSONResult(out, fmt.Sprintf("scanned %d files", out.FileCount))
}

func matchFilters(rel string, include, exclude []string) bool {
	for _, pattern := range exclude {
		if matchPattern(rel, pattern) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, pattern := range include {
		if matchPattern(rel, pattern) {
			return true
		}
	}
	return false
}

func matchPattern(rel, pattern string) bool {
	if pattern == "" {
		return false
	}
	if ok, err := filepath.Match(pattern, rel); err == nil && ok {
		return true
	}
	if ok, err := filepath.Match(pattern, filepath.Base(rel)); err == nil && ok {
		return true
	}
	return strings.Contains(rel, pattern)
}
