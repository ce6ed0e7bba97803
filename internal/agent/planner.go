package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/nexar-labs/nexar/internal/agent/history"
	"github.com/nexar-labs/nexar/internal/agent/providers"
	"github.com/nexar-labs/nexar/internal/observability"
	"github.com/nexar-labs/nexar/internal/tools"
	"github.com/nexar-labs/nexar/pkg/models"
)

// Planner parameters. Low temperature keeps batches deterministic
// enough to validate; repairRetries bounds the error-feedback loop.
const (
	plannerTemperature = 0.2
	plannerMaxTokens   = 8192
	repairRetries      = 2
)

// Planner turns a run's state into the next validated ActionBatch by
// prompting the configured provider and repairing invalid output.
type Planner struct {
	router    *providers.Router
	registry  *tools.Registry
	compactor *history.Compactor
	workspace string
	logger    *observability.Logger
}

// PlannerConfig wires a Planner.
type PlannerConfig struct {
	Router    *providers.Router
	Registry  *tools.Registry
	Workspace string
	Logger    *observability.Logger
}

// NewPlanner creates a planner with a fresh summary cache.
func NewPlanner(cfg PlannerConfig) *Planner {
	return &Planner{
		router:    cfg.Router,
		registry:  cfg.Registry,
		compactor: history.NewCompactor(),
		workspace: cfg.Workspace,
		logger:    cfg.Logger,
	}
}

// Plan produces the next batch for the run. It appends planning events
// (with call metadata) to the run as it goes. A validation failure is
// fed back to the model up to repairRetries times; exhaustion returns
// ErrPlannerInvalidOutput. Provider failures return the provider error
// unwrapped.
func (p *Planner) Plan(ctx context.Context, r *Run) (*models.ActionBatch, error) {
	r.mu.RLock()
	iteration := r.iteration
	messages := append([]models.ChatMessage(nil), r.messages...)
	historyCfg := r.historyConfig
	providerID := r.providerID
	chatOnly := r.chatOnly
	planningMode := r.planningMode
	scanned := hasCompletedScan(r.actionHistory)
	completed := completedActionIDs(r.actionHistory)
	r.mu.RUnlock()

	snap := buildSnapshot(p.workspace, r)

	compacted, err := p.compactor.Compact(ctx, messages, historyCfg, p.summarizer(providerID))
	if err != nil {
		compacted = history.Result{Messages: messages}
	}

	prompt := p.buildPrompt(snap, iteration, chatOnly, planningMode)

	r.appendEvent(eventSpec{
		kind:   "planning",
		stage:  "planning",
		title:  fmt.Sprintf("Planning iteration %d", iteration),
		status: models.EventInfo,
		data: map[string]any{
			"omitted_messages": compacted.OmittedCount,
			"history_summary":  compacted.Summary != "",
		},
	})

	var lastProblem string
	for attempt := 0; attempt <= repairRetries; attempt++ {
		callMessages := compacted.Messages
		if attempt > 0 {
			callMessages = append(append([]models.ChatMessage(nil), compacted.Messages...), models.ChatMessage{
				Role: models.RoleUser,
				Content: fmt.Sprintf(
					"Your previous response was rejected: %s\nReturn a corrected JSON action batch. Respond with JSON only.",
					lastProblem,
				),
			})
		}

		result, err := p.router.Chat(ctx, providerID, callMessages, providers.ChatOptions{
			Temperature:          plannerTemperature,
			MaxTokens:            plannerMaxTokens,
			ResponseFormat:       providers.FormatJSONObject,
			SystemPromptOverride: prompt,
		})
		if err != nil {
			r.appendEvent(eventSpec{
				kind:    "planning",
				stage:   "planning",
				title:   "Planner call failed",
				status:  models.EventFailed,
				errText: err.Error(),
			})
			return nil, err
		}

		r.appendEvent(eventSpec{
			kind:   "planning",
			stage:  "planning",
			title:  "Planner responded",
			status: models.EventInfo,
			data: map[string]any{
				"llm": models.LLMCallMeta{
					Provider:       result.Provider,
					Model:          result.Model,
					ElapsedMS:      result.ElapsedMS,
					PromptMessages: result.PromptMessages,
					Tokens:         result.Usage,
				},
			},
		})

		batch, problem := p.parseAndValidate(result.Content, completed)
		if problem == "" {
			NormalizeBatch(batch, iteration, scanned)
			if err := ValidateBatch(batch, completed); err != nil {
				// Normalization only tightens shape; a failure here means
				// the injected defaults conflict with the model's graph.
				problem = err.Error()
			} else {
				return batch, nil
			}
		}

		lastProblem = problem
		p.logger.Warn(ctx, "planner output rejected",
			"run_id", r.id,
			"attempt", attempt,
			"problem", problem,
		)
		r.appendEvent(eventSpec{
			kind:    "planning",
			stage:   "planning",
			title:   fmt.Sprintf("Planner output rejected (attempt %d)", attempt+1),
			status:  models.EventFailed,
			errText: problem,
		})
	}

	return nil, fmt.Errorf("%w: %s", ErrPlannerInvalidOutput, lastProblem)
}

func (p *Planner) parseAndValidate(content string, completed map[string]bool) (*models.ActionBatch, string) {
	raw := ExtractJSON(content)
	if raw == "" {
		return nil, "no JSON object found in response"
	}
	batch, err := ParseBatch([]byte(raw))
	if err != nil {
		return nil, err.Error()
	}
	if err := ValidateBatch(batch, completed); err != nil {
		return nil, err.Error()
	}
	return batch, ""
}

// summarizer adapts the router into the compactor's Summarizer.
func (p *Planner) summarizer(providerID string) history.Summarizer {
	return &routerSummarizer{router: p.router, providerID: providerID}
}

type routerSummarizer struct {
	router     *providers.Router
	providerID string
}

func (s *routerSummarizer) Summarize(ctx context.Context, content string, maxChars int) (string, error) {
	result, err := s.router.Chat(ctx, s.providerID, []models.ChatMessage{
		{Role: models.RoleUser, Content: content},
	}, providers.ChatOptions{
		Temperature:          0,
		MaxTokens:            maxChars,
		SystemPromptOverride: history.SummaryPrompt(),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Content), nil
}

// buildPrompt renders the full system prompt: role, tool catalog with
// schemas, output contract, and the run's context snapshot.
func (p *Planner) buildPrompt(snap *contextSnapshot, iteration int, chatOnly, planningMode bool) string {
	var b strings.Builder

	b.WriteString("You are the planning engine of a code editor agent. ")
	b.WriteString("Each turn you emit exactly one JSON action batch describing the next operations to run against the user's workspace.\n\n")

	b.WriteString("Available action types:\n")
	for _, t := range p.registry.Types() {
		tool, _ := p.registry.Get(t)
		fmt.Fprintf(&b, "- %s: %s\n  input schema: %s\n", t, tool.Description(), compactSchema(tool.Schema()))
	}

	b.WriteString("\nRespond with a single JSON object of this shape (no prose, no markdown):\n")
	b.WriteString(`{
  "version": "1.0",
  "summary": "<one line>",
  "decision": {"mode": "continue|ask_user|done|blocked", "reason": "<why>", "needs_user_trigger": false},
  "actions": [
    {"id": "a0", "type": "<action type>", "title": "<short>", "reason": "<why>",
     "input": {}, "depends_on": [], "can_parallel": false, "priority": 3,
     "timeout_sec": 120, "max_retries": 1, "success_criteria": []}
  ],
  "acceptance": [], "risks": [], "next_questions": []
}` + "\n")

	b.WriteString("\nRules:\n")
	b.WriteString("- mode done requires a final_answer action carrying the complete answer.\n")
	b.WriteString("- mode ask_user requires an ask_user or request_approval action and needs_user_trigger=true.\n")
	b.WriteString("- depends_on may reference actions in this batch or previously completed action ids.\n")
	b.WriteString("- Set can_parallel=true only for actions safe to run concurrently.\n")
	b.WriteString("- Inspect before you mutate: read or search before editing files.\n")
	if chatOnly {
		b.WriteString("- This is a chat-only request: do not mutate the workspace; answer with final_answer.\n")
	}
	if planningMode {
		b.WriteString("- Planning mode: first produce a propose_subplan action laying out the full plan, then request_approval before any workspace mutation.\n")
	}

	fmt.Fprintf(&b, "\nIteration: %d\n\n", iteration)
	b.WriteString("Context:\n")
	b.WriteString(renderSnapshot(snap))
	return b.String()
}

// compactSchema renders a tool schema on one line.
func compactSchema(schema json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, schema); err != nil {
		return string(schema)
	}
	return buf.String()
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ExtractJSON pulls the first JSON object out of model output: fenced
// block first, then the outermost brace span.
func ExtractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "{") && strings.HasSuffix(content, "}") {
		return content
	}
	if m := fencedJSON.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return ""
}

func hasCompletedScan(history []models.ActionRecord) bool {
	for _, rec := range history {
		if rec.Type == models.ActionScanWorkspace && rec.Status == models.ActionCompleted {
			return true
		}
	}
	return false
}

func completedActionIDs(history []models.ActionRecord) map[string]bool {
	out := make(map[string]bool, len(history))
	for _, rec := range history {
		if rec.Status == models.ActionCompleted {
			out[rec.ActionID] = true
		}
	}
	return out
}
