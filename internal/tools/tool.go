// Package tools defines the closed set of side-effectful operations the
// planner may invoke and the registry that dispatches them.
package tools

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/nexar-labs/nexar/pkg/models"
)

// Result is the pure-data outcome of one action execution.
type Result struct {
	// Output is the action's typed output payload.
	Output json.RawMessage

	// Detail is a one-line human-readable summary for the event stream.
	Detail string

	// Changes lists workspace mutations performed by the action.
	Changes []models.FileChange

	// Blocked marks actions that suspend the run for user input or
	// report an unresolvable blocker.
	Blocked bool
}

// Tool is one action type implementation. Implementations must be safe
// for concurrent use; the registry may execute them in parallel.
type Tool interface {
	// Type returns the action type this tool serves.
	Type() models.ActionType

	// Description returns the planner-facing description.
	Description() string

	// Schema returns the JSON schema of the tool's input.
	Schema() json.RawMessage

	// Execute runs the action. Implementations must respect ctx
	// cancellation on any blocking I/O.
	Execute(ctx context.Context, input json.RawMessage) (*Result, error)
}

// SchemaFor reflects a JSON schema from an input struct. Definitions are
// inlined and additional properties rejected so planner output can be
// validated strictly.
func SchemaFor(v any) json.RawMessage {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(v)
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// JSONResult marshals v into a Result with the given detail line.
func JSONResult(v any, detail string) (*Result, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Result{Output: payload, Detail: detail}, nil
}
