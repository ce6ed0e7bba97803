package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nexar-labs/nexar/pkg/models"
)

// Defaults applied to planner-emitted action specs.
const (
	DefaultPriority   = 3
	DefaultTimeoutSec = 120
	DefaultMaxRetries = 1

	MinPriority   = 1
	MaxPriority   = 5
	MaxTimeoutSec = 600
)

// batchSchemaJSON is the structural contract for planner output. Typed
// per-tool inputs are validated by the tools themselves; this schema
// holds the envelope honest.
const batchSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["decision", "actions"],
  "properties": {
    "version": {"type": "string"},
    "iteration": {"type": "integer", "minimum": 0},
    "summary": {"type": "string"},
    "decision": {
      "type": "object",
      "required": ["mode"],
      "properties": {
        "mode": {"type": "string", "enum": ["continue", "ask_user", "done", "blocked"]},
        "reason": {"type": "string"},
        "needs_user_trigger": {"type": "boolean"},
        "satisfaction_score": {"type": "number", "minimum": 0, "maximum": 1}
      }
    },
    "actions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "id": {"type": "string"},
          "type": {"type": "string"},
          "title": {"type": "string"},
          "reason": {"type": "string"},
          "input": {"type": "object"},
          "depends_on": {"type": "array", "items": {"type": "string"}},
          "can_parallel": {"type": "boolean"},
          "priority": {"type": "integer"},
          "timeout_sec": {"type": "integer"},
          "max_retries": {"type": "integer", "minimum": 0},
          "success_criteria": {"type": "array", "items": {"type": "string"}},
          "on_failure": {"type": "string"},
          "artifacts": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "acceptance": {"type": "array", "items": {"type": "string"}},
    "risks": {"type": "array", "items": {"type": "string"}},
    "next_questions": {"type": "array", "items": {"type": "string"}}
  }
}`

var batchSchema = jsonschema.MustCompileString("action_batch.json", batchSchemaJSON)

// knownActionTypes is the closed enum the validator accepts.
var knownActionTypes = func() map[models.ActionType]bool {
	m := make(map[models.ActionType]bool)
	for _, t := range models.AllActionTypes() {
		m[t] = true
	}
	return m
}()

// BatchValidationError reports why a planner batch was rejected. Its
// message is fed back to the planner as the repair prompt.
type BatchValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *BatchValidationError) Error() string {
	return "invalid action batch: " + strings.Join(e.Problems, "; ")
}

func newBatchError(format string, args ...any) *BatchValidationError {
	return &BatchValidationError{Problems: []string{fmt.Sprintf(format, args...)}}
}

// ParseBatch decodes and schema-validates raw planner JSON.
func ParseBatch(raw []byte) (*models.ActionBatch, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, newBatchError("not valid JSON: %v", err)
	}
	if err := batchSchema.Validate(doc); err != nil {
		return nil, newBatchError("schema violation: %v", err)
	}
	var batch models.ActionBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, newBatchError("decode failed: %v", err)
	}
	return &batch, nil
}

// ValidateBatch checks the semantic rules the JSON schema cannot
// express: known action types, resolvable dependency edges, no cycles,
// mode/action consistency, and bounded priorities and timeouts.
// completedIDs are action ids from prior iterations that already reached
// completed; depends_on may reference them.
func ValidateBatch(batch *models.ActionBatch, completedIDs map[string]bool) error {
	var problems []string

	switch batch.Decision.Mode {
	case models.ModeContinue, models.ModeAskUser, models.ModeDone, models.ModeBlocked:
	default:
		problems = append(problems, fmt.Sprintf("unknown decision mode %q", batch.Decision.Mode))
	}

	inBatch := make(map[string]int, len(batch.Actions))
	var hasFinal, hasUserInput bool
	for i := range batch.Actions {
		a := &batch.Actions[i]
		if !knownActionTypes[a.Type] {
			problems = append(problems, fmt.Sprintf("action %q: unknown type %q", a.ID, a.Type))
			continue
		}
		if a.Type == models.ActionFinalAnswer {
			hasFinal = true
		}
		if a.Type.IsUserInput() {
			hasUserInput = true
		}
		if a.ID != "" {
			inBatch[a.ID] = i
		}
		if a.Priority != 0 && (a.Priority < MinPriority || a.Priority > MaxPriority) {
			problems = append(problems, fmt.Sprintf("action %q: priority %d out of range [%d,%d]", a.ID, a.Priority, MinPriority, MaxPriority))
		}
		if a.TimeoutSec < 0 || a.TimeoutSec > MaxTimeoutSec {
			problems = append(problems, fmt.Sprintf("action %q: timeout_sec %d out of range [0,%d]", a.ID, a.TimeoutSec, MaxTimeoutSec))
		}
	}

	for i := range batch.Actions {
		a := &batch.Actions[i]
		for _, dep := range a.DependsOn {
			if dep == a.ID {
				problems = append(problems, fmt.Sprintf("action %q depends on itself", a.ID))
				continue
			}
			if _, ok := inBatch[dep]; ok {
				continue
			}
			if completedIDs[dep] {
				continue
			}
			problems = append(problems, fmt.Sprintf("action %q: depends_on %q is neither in this batch nor a completed prior action", a.ID, dep))
		}
	}

	if cycle := findCycle(batch.Actions, inBatch); len(cycle) > 0 {
		problems = append(problems, fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")))
	}

	if batch.Decision.Mode == models.ModeDone && !hasFinal {
		problems = append(problems, "decision mode done requires a final_answer action")
	}
	if batch.Decision.Mode == models.ModeAskUser {
		if !hasUserInput {
			problems = append(problems, "decision mode ask_user requires an ask_user or request_approval action")
		}
		if !batch.Decision.NeedsUserTrigger {
			problems = append(problems, "decision mode ask_user requires needs_user_trigger=true")
		}
	}

	if len(problems) > 0 {
		return &BatchValidationError{Problems: problems}
	}
	return nil
}

// findCycle walks the in-batch dependency graph and returns one cycle
// path if any exists. Edges to prior-iteration ids cannot cycle.
func findCycle(actions []models.ActionSpec, inBatch map[string]int) []string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(actions))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = visiting
		stack = append(stack, id)
		idx := inBatch[id]
		for _, dep := range actions[idx].DependsOn {
			if _, ok := inBatch[dep]; !ok {
				continue
			}
			switch state[dep] {
			case visiting:
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				cycle = append(append([]string(nil), stack[start:]...), dep)
				return true
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	ids := make([]string, 0, len(inBatch))
	for id := range inBatch {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if state[id] == unvisited && visit(id) {
			return cycle
		}
	}
	return nil
}

// discoveryTypes benefit from a workspace scan before they run.
var discoveryTypes = map[models.ActionType]bool{
	models.ActionSearchCode:          true,
	models.ActionReadFiles:           true,
	models.ActionExtractSymbols:      true,
	models.ActionAnalyzeDependencies: true,
}

// NormalizeBatch applies defaults and shape fixes to a validated batch:
// ids deduplicated, spec defaults filled in, a final_answer action
// forcing mode done, an empty continue downgraded to ask_user, and a
// workspace scan injected ahead of first-iteration discovery actions.
func NormalizeBatch(batch *models.ActionBatch, iteration int, scanned bool) {
	if batch.Version == "" {
		batch.Version = models.BatchVersion
	}
	batch.Iteration = iteration

	seen := make(map[string]bool, len(batch.Actions))
	for i := range batch.Actions {
		a := &batch.Actions[i]
		if a.ID == "" || seen[a.ID] {
			a.ID = fmt.Sprintf("a%d", i)
		}
		seen[a.ID] = true
		if a.Priority == 0 {
			a.Priority = DefaultPriority
		}
		if a.TimeoutSec == 0 {
			a.TimeoutSec = DefaultTimeoutSec
		}
		if a.MaxRetries == 0 {
			a.MaxRetries = DefaultMaxRetries
		}
		if len(a.SuccessCriteria) == 0 && a.Title != "" {
			a.SuccessCriteria = []string{a.Title}
		}
		if len(a.Input) == 0 {
			a.Input = json.RawMessage(`{}`)
		}
		if a.Type == models.ActionFinalAnswer {
			a.CanParallel = false
			batch.Decision.Mode = models.ModeDone
		}
	}

	if batch.Decision.Mode == models.ModeContinue && len(batch.Actions) == 0 {
		batch.Decision.Mode = models.ModeAskUser
		batch.Decision.NeedsUserTrigger = true
		if batch.Decision.Reason == "" {
			batch.Decision.Reason = "planner produced no actions"
		}
	}
	if batch.Decision.Mode == models.ModeAskUser {
		batch.Decision.NeedsUserTrigger = true
	}

	if iteration == 0 && !scanned {
		injectScan(batch)
	}
}

// injectScan prepends one scan_workspace action and makes every
// discovery action depend on it, so first-iteration searches never run
// against an unmapped workspace.
func injectScan(batch *models.ActionBatch) {
	var discovery []int
	for i := range batch.Actions {
		if batch.Actions[i].Type == models.ActionScanWorkspace {
			return
		}
		if discoveryTypes[batch.Actions[i].Type] {
			discovery = append(discovery, i)
		}
	}
	if len(discovery) == 0 {
		return
	}

	scanID := "a_scan"
	for n := 0; hasID(batch.Actions, scanID); n++ {
		scanID = fmt.Sprintf("a_scan%d", n)
	}

	scan := models.ActionSpec{
		ID:         scanID,
		Type:       models.ActionScanWorkspace,
		Title:      "Scan workspace",
		Reason:     "map the workspace before discovery actions",
		Input:      json.RawMessage(`{}`),
		Priority:   MaxPriority,
		TimeoutSec: DefaultTimeoutSec,
		MaxRetries: DefaultMaxRetries,
	}
	for _, idx := range discovery {
		batch.Actions[idx].DependsOn = append(batch.Actions[idx].DependsOn, scanID)
	}
	batch.Actions = append([]models.ActionSpec{scan}, batch.Actions...)
}

func hasID(actions []models.ActionSpec, id string) bool {
	for i := range actions {
		if actions[i].ID == id {
			return true
		}
	}
	return false
}

// lowerLastUser returns the lower-cased content of the most recent user
// message.
func lowerLastUser(messages []models.ChatMessage) string {
	return strings.ToLower(lastUserContent(messages))
}

// containsWord reports whether s contains word as a whole token.
func containsWord(s, word string) bool {
	for _, field := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9' || r == '_')
	}) {
		if field == word {
			return true
		}
	}
	return false
}
