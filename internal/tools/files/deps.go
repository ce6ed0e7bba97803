package files

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/nexar-labs/nexar/internal/tools"
	"github.com/nexar-labs/nexar/pkg/models"
)

// MaxDependencies caps the reported dependency list.
const MaxDependencies = 80

// dependencyPatterns are tried in order per line, most specific first,
// so an ES "import X from 'y'" resolves to the module and not the
// binding name.
var dependencyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*import\s+.*from\s+['"]([^'"]+)['"]`),
	regexp.MustCompile(`^\s*from\s+([\w\.]+)\s+import`),
	regexp.MustCompile(`require\(['"]([^'"]+)['"]\)`),
	regexp.MustCompile(`^\s*import\s+([\w\.]+)`),
}

// AnalyzeDependenciesTool lists the modules one file imports.
type AnalyzeDependenciesTool struct {
	resolver Resolver
}

// NewAnalyzeDependenciesTool creates an analyze_dependencies tool.
func NewAnalyzeDependenciesTool(cfg Config) *AnalyzeDependenciesTool {
	return &AnalyzeDependenciesTool{resolver: Resolver{Root: cfg.Workspace}}
}

// DepsInput is the analyze_dependencies input.
type DepsInput struct {
	Path string `json:"path"`
}

// DepsOutput is the analyze_dependencies output.
type DepsOutput struct {
	Path         string   `json:"path"`
	Dependencies []string `json:"dependencies"`
}

// Type returns the action type.
func (t *AnalyzeDependenciesTool) Type() models.ActionType { return models.ActionAnalyzeDependencies }

// Description returns the planner-facing description.
func (t *AnalyzeDependenciesTool) Description() string {
	return "List the imports and requires of a workspace file."
}

// Schema returns the input schema.
func (t *AnalyzeDependenciesTool) Schema() json.RawMessage { return tools.SchemaFor(&DepsInput{}) }

// Execute scans the file for import statements.
func (t *AnalyzeDependenciesTool) Execute(ctx context.Context, input json.RawMessage) (*tools.Result, error) {
	var in DepsInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, tools.NewToolError("analyze_dependencies", tools.KindInvalidInput, err.Error())
	}
	resolved, err := t.resolver.Resolve(in.Path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tools.NewToolError("analyze_dependencies", tools.KindNotFound, "file not found").WithPath(in.Path)
		}
		return nil, tools.NewToolError("analyze_dependencies", tools.KindIO, err.Error()).WithPath(in.Path)
	}
	defer file.Close()

	out := DepsOutput{Path: in.Path, Dependencies: []string{}}
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil, tools.NewToolError("analyze_dependencies", tools.KindCancelled, "cancelled")
		}
		line := scanner.Text()
		for _, pattern := range dependencyPatterns {
			m := pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			if !seen[m[1]] {
				seen[m[1]] = true
				out.Dependencies = append(out.Dependencies, m[1])
				if len(out.Dependencies) >= MaxDependencies {
					return tools.JSONResult(out, fmt.Sprintf("%d dependencies in %s", len(out.Dependencies), in.Path))
				}
			}
			break
		}
	}

	return tools.JSONResult(out, fmt.Sprintf("%d dependencies in %s", len(out.Dependencies), in.Path))
}
