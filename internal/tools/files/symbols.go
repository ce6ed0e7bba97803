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

// symbolPattern recognises common declaration forms across the languages
// the editor works with (Python, JS/TS, Go).
var symbolPattern = regexp.MustCompile(`^\s*(def|class|function|func|type)\s+(\w+)`)

// ExtractSymbolsTool lists top-level declarations in one file.
type ExtractSymbolsTool struct {
	resolver Resolver
}

// NewExtractSymbolsTool creates an extract_symbols tool.
func NewExtractSymbolsTool(cfg Config) *ExtractSymbolsTool {
	return &ExtractSymbolsTool{resolver: Resolver{Root: cfg.Workspace}}
}

// SymbolsInput is the extract_symbols input.
type SymbolsInput struct {
	Path string `json:"path"`
}

// Symbol is one declaration found in the file.
type Symbol struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Line int    `json:"line"`
}

// SymbolsOutput is the extract_symbols output.
type SymbolsOutput struct {
	Path    string   `json:"path"`
	Symbols []Symbol `json:"symbols"`
}

// Type returns the action type.
func (t *ExtractSymbolsTool) Type() models.ActionType { return models.ActionExtractSymbols }

// Description returns the planner-facing description.
func (t *ExtractSymbolsTool) Description() string {
	return "List function, class, and type declarations in a workspace file."
}

// Schema returns the input schema.
func (t *ExtractSymbolsTool) Schema() json.RawMessage { return tools.SchemaFor(&SymbolsInput{}) }

// Execute scans the file for declaration lines.
func (t *ExtractSymbolsTool) Execute(ctx context.Context, input json.RawMessage) (*tools.Result, error) {
	var in SymbolsInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, tools.NewToolError("extract_symbols", tools.KindInvalidInput, err.Error())
	}
	resolved, err := t.resolver.Resolve(in.Path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tools.NewToolError("extract_symbols", tools.KindNotFound, "file not found").WithPath(in.Path)
		}
		return nil, tools.NewToolError("extract_symbols", tools.KindIO, err.Error()).WithPath(in.Path)
	}
	defer file.Close()

	out := SymbolsOutput{Path: in.Path, Symbols: []Symbol{}}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if ctx.Err() != nil {
			return nil, tools.NewToolError("extract_symbols", tools.KindCancelled, "cancelled")
		}
		m := symbolPattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		kind := m[1]
		if kind == "def" || kind == "func" {
			kind = "function"
		}
		out.Symbols = append(out.Symbols, Symbol{Name: m[2], Kind: kind, Line: lineNo})
	}

	return tools.JSONResult(out, fmt.Sprintf("%d symbols in %s", len(out.Symbols), in.Path))
}
