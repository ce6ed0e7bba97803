package files

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nexar-labs/nexar/internal/tools"
	"github.com/nexar-labs/nexar/pkg/models"
)

const (
	// DefaultSearchLimit bounds matches per search.
	DefaultSearchLimit = 50

	// searchLineCap bounds the reported line length.
	searchLineCap = 240
)

// SearchTool performs a case-insensitive literal search across the
// workspace.
type SearchTool struct {
	resolver Resolver
}

// NewSearchTool creates a search_code tool.
func NewSearchTool(cfg Config) *SearchTool {
	return &SearchTool{resolver: Resolver{Root: cfg.Workspace}}
}

// SearchInput is the search_code input.
type SearchInput struct {
	Query      string `json:"query"`
	Root       string `json:"root,omitempty"`
	MaxMatches int    `json:"max_matches,omitempty"`
}

// SearchMatch is one hit in the search output.
type SearchMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// SearchOutput is the search_code output.
type SearchOutput struct {
	Query   string        `json:"query"`
	Matches []SearchMatch `json:"matches"`
}

// Type returns the action type.
func (t *SearchTool) Type() models.ActionType { return models.ActionSearchCode }

// Description returns the planner-facing description.
func (t *SearchTool) Description() string {
	return "Search workspace text files for a case-insensitive literal query."
}

// Schema returns the input schema.
func (t *SearchTool) Schema() json.RawMessage { return tools.SchemaFor(&SearchInput{}) }

// Execute scans text files line by line until the match cap is hit.
func (t *SearchTool) Execute(ctx context.Context, input json.RawMessage) (*tools.Result, error) {
	var in SearchInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, tools.NewToolError("search_code", tools.KindInvalidInput, err.Error())
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, tools.NewToolError("search_code", tools.KindInvalidInput, "query is required")
	}
	if in.MaxMatches <= 0 {
		in.MaxMatches = DefaultSearchLimit
	}
	root := in.Root
	if root == "" {
		root = "."
	}
	rootAbs, err := t.resolver.Resolve(root)
	if err != nil {
		return nil, err
	}

	pattern, err := regexp.Compile("(?i)" + regexp.QuoteMeta(in.Query))
	if err != nil {
		return nil, tools.NewToolError("search_code", tools.KindInvalidInput, err.Error())
	}

	out := SearchOutput{Query: in.Query, Matches: []SearchMatch{}}
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
		if len(out.Matches) >= in.MaxMatches {
			return filepath.SkipAll
		}
		t.searchFile(path, pattern, in.MaxMatches, &out)
		return nil
	})
	if walkErr != nil && ctx.Err() != nil {
		return nil, tools.NewToolError("search_code", tools.KindCancelled, "search cancelled")
	}

	return tools.JSONResult(out, fmt.Sprintf("%d matches for %q", len(out.Matches), in.Query))
}

func (t *SearchTool) searchFile(path string, pattern *regexp.Regexp, maxMatches int, out *SearchOutput) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if !pattern.MatchString(line) {
			continue
		}
		if len(line) > searchLineCap {
			line = line[:searchLineCap]
		}
		out.Matches = append(out.Matches, SearchMatch{
			Path: t.resolver.Rel(path),
			Line: lineNo,
			Text: strings.TrimSpace(line),
		})
		if len(out.Matches) >= maxMatches {
			return
		}
	}
}
