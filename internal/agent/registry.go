package agent

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nexar-labs/nexar/internal/observability"
	"github.com/nexar-labs/nexar/pkg/models"
)

// DefaultRunTTL is how long terminal runs stay queryable.
const DefaultRunTTL = 30 * time.Minute

// Registry is the control plane: it owns the run table, serializes
// executor ticks per run, and garbage-collects terminal runs.
type Registry struct {
	executor *Executor
	logger   *observability.Logger
	metrics  *observability.Metrics
	ttl      time.Duration
	retries  int

	mu   sync.RWMutex
	runs map[string]*Run

	sweeper *cron.Cron
}

// RegistryConfig wires a Registry.
type RegistryConfig struct {
	Executor *Executor
	Logger   *observability.Logger
	Metrics  *observability.Metrics

	// RunTTL evicts terminal runs this long after they finish.
	RunTTL time.Duration

	// DefaultRetries is the per-action retry ceiling when the request
	// does not set one.
	DefaultRetries int
}

// NewRegistry creates the registry and starts the TTL sweeper.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.RunTTL <= 0 {
		cfg.RunTTL = DefaultRunTTL
	}
	if cfg.DefaultRetries <= 0 {
		cfg.DefaultRetries = 2
	}
	r := &Registry{
		executor: cfg.Executor,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		ttl:      cfg.RunTTL,
		retries:  cfg.DefaultRetries,
		runs:     make(map[string]*Run),
	}
	r.sweeper = cron.New()
	r.sweeper.AddFunc("@every 1m", r.Sweep)
	r.sweeper.Start()
	return r
}

// Close stops the background sweeper.
func (r *Registry) Close() {
	if r.sweeper != nil {
		ctx := r.sweeper.Stop()
		<-ctx.Done()
	}
}

// CreateRun registers a new queued run for the request. The active-runs
// gauge counts from creation, so a run cancelled while still queued
// decrements a gauge it actually incremented.
func (r *Registry) CreateRun(req *models.AIRequest) *Run {
	run := newRun(req, r.retries)
	r.mu.Lock()
	r.runs[run.id] = run
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.RunStarted()
	}
	r.logger.Info(context.Background(), "run created",
		"run_id", run.id,
		"provider", run.providerID,
		"intent_kind", run.intentKind,
	)
	return run
}

// get returns the live run.
func (r *Registry) get(id string) (*Run, error) {
	r.mu.RLock()
	run, ok := r.runs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// Get returns a snapshot of the run.
func (r *Registry) Get(id string) (*models.PlanRunInfo, error) {
	run, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return run.Snapshot(), nil
}

// Chat creates a run and executes exactly one tick synchronously.
func (r *Registry) Chat(req *models.AIRequest) (*models.AIResponse, error) {
	run := r.CreateRun(req)
	if err := run.beginTick(); err != nil {
		return nil, err
	}
	r.executor.Tick(run)
	run.endTick()
	return r.buildResponse(run), nil
}

// Start creates a run and kicks off its first tick in the background.
func (r *Registry) Start(req *models.AIRequest) string {
	run := r.CreateRun(req)
	go r.tickAsync(run)
	return run.id
}

func (r *Registry) tickAsync(run *Run) {
	if err := run.beginTick(); err != nil {
		return
	}
	defer run.endTick()
	r.executor.Tick(run)
}

// Continue executes one more tick. Terminal runs return their latched
// result unchanged without re-invoking the planner.
func (r *Registry) Continue(id string) (*models.AIResponse, error) {
	run, err := r.get(id)
	if err != nil {
		return nil, err
	}
	if run.Status().Terminal() {
		return r.buildResponse(run), nil
	}
	if run.Status() == models.RunWaitingUser {
		return nil, NewConflictError(id, run.Status(), "continue")
	}
	if err := run.beginTick(); err != nil {
		if run.Status().Terminal() {
			return r.buildResponse(run), nil
		}
		return nil, err
	}
	r.executor.Tick(run)
	run.endTick()
	return r.buildResponse(run), nil
}

// Reply resolves a waiting_user run: the message is appended to the
// conversation, pending user-input actions complete with the reply as
// their output, and one tick runs.
func (r *Registry) Reply(id, message string) (*models.AIResponse, error) {
	run, err := r.get(id)
	if err != nil {
		return nil, err
	}
	if run.Status() != models.RunWaitingUser {
		return nil, NewConflictError(id, run.Status(), "reply")
	}

	run.appendMessage(models.ChatMessage{Role: models.RoleUser, Content: message})
	resolvePendingInput(run, message)

	run.mu.Lock()
	run.status = models.RunRunning
	run.iteration++
	run.mu.Unlock()

	if err := run.beginTick(); err != nil {
		return nil, err
	}
	r.executor.Tick(run)
	run.endTick()
	return r.buildResponse(run), nil
}

// resolvePendingInput completes the user-input actions the run parked
// on. Approval prompts read the reply's leading token: "no" or "deny"
// means rejected.
func resolvePendingInput(run *Run, message string) {
	approved := !isRejection(message)
	for _, spec := range run.pendingSpecs() {
		if !spec.Type.IsUserInput() {
			continue
		}
		spec := spec
		output := map[string]any{"reply": message}
		if spec.Type == models.ActionRequestApproval {
			output["approved"] = approved
		}
		raw, _ := json.Marshal(output)
		run.updateRecord(spec.ID, func(rec *models.ActionRecord) {
			rec.Status = models.ActionCompleted
			rec.Output = raw
		})
		run.removePending(spec.ID)
		run.appendEvent(eventSpec{
			stage:    "execute",
			title:    actionTitle(spec),
			status:   models.EventCompleted,
			actionID: spec.ID,
			output:   raw,
			detail:   "resolved by user reply",
		})
	}
}

func isRejection(message string) bool {
	word := strings.ToLower(strings.TrimSpace(message))
	if i := strings.IndexFunc(word, func(r rune) bool { return r == ' ' || r == ',' || r == '.' || r == '!' }); i > 0 {
		word = word[:i]
	}
	return word == "no" || word == "deny" || word == "denied" || word == "reject"
}

// Pause requests a pause and returns the current snapshot immediately.
func (r *Registry) Pause(id string) (*models.PlanRunInfo, error) {
	run, err := r.get(id)
	if err != nil {
		return nil, err
	}
	run.RequestPause()
	return run.Snapshot(), nil
}

// Resume clears a pause and schedules the next tick in the background.
func (r *Registry) Resume(id string) (*models.PlanRunInfo, error) {
	run, err := r.get(id)
	if err != nil {
		return nil, err
	}
	if err := run.ClearPause(); err != nil {
		return nil, err
	}
	go r.tickAsync(run)
	return run.Snapshot(), nil
}

// Cancel requests cancellation and returns the current snapshot
// immediately; a running tick observes the flag at its next safe point.
func (r *Registry) Cancel(id string) (*models.PlanRunInfo, error) {
	run, err := r.get(id)
	if err != nil {
		return nil, err
	}
	wasTerminal := run.Status().Terminal()
	run.RequestCancel()
	if !wasTerminal && run.Status() == models.RunCancelled && r.metrics != nil {
		r.metrics.RunFinished(string(models.RunCancelled))
	}
	return run.Snapshot(), nil
}

// Sweep evicts terminal runs older than the TTL.
func (r *Registry) Sweep() {
	cutoff := time.Now().Add(-r.ttl)
	var evicted []string

	r.mu.Lock()
	for id, run := range r.runs {
		run.mu.RLock()
		expired := run.status.Terminal() && run.finishedAt != nil && run.finishedAt.Before(cutoff)
		run.mu.RUnlock()
		if expired {
			delete(r.runs, id)
			evicted = append(evicted, id)
		}
	}
	r.mu.Unlock()

	for _, id := range evicted {
		r.logger.Debug(context.Background(), "run evicted", "run_id", id)
	}
}

// buildResponse assembles the client-facing view of a run after a tick.
func (r *Registry) buildResponse(run *Run) *models.AIResponse {
	snap := run.Snapshot()

	resp := &models.AIResponse{
		RunID:   snap.RunID,
		Run:     snap,
		Plan:    snap.LatestBatch,
		Changes: snap.ResultChanges,
	}

	switch snap.Status {
	case models.RunCompleted:
		resp.Action = "final_answer"
		resp.Content = snap.ResultContent
		resp.FilePath = snap.ResultFilePath
	case models.RunWaitingUser:
		resp.Action = "ask_user"
		resp.Content = pendingQuestion(snap)
		resp.NeedsUserTrigger = true
	case models.RunFailed, models.RunBlocked:
		resp.Action = "error"
		resp.Content = snap.ResultContent
	default:
		resp.Action = "progress"
		if snap.LatestBatch != nil {
			resp.Content = snap.LatestBatch.Summary
		}
	}
	if resp.Content == "" && snap.LatestBatch != nil {
		resp.Content = snap.LatestBatch.Decision.Reason
	}

	if snap.LatestBatch != nil {
		for _, id := range snap.PendingActionIDs {
			if spec, ok := snap.LatestBatch.Action(id); ok {
				resp.PendingActions = append(resp.PendingActions, *spec)
			}
		}
		if snap.Status == models.RunWaitingUser {
			resp.NeedsUserTrigger = resp.NeedsUserTrigger || snap.LatestBatch.Decision.NeedsUserTrigger
		}
	}
	return resp
}

// pendingQuestion extracts the question text of the first pending
// user-input action, falling back to the decision reason.
func pendingQuestion(snap *models.PlanRunInfo) string {
	if snap.LatestBatch == nil {
		return ""
	}
	for _, id := range snap.PendingActionIDs {
		spec, ok := snap.LatestBatch.Action(id)
		if !ok || !spec.Type.IsUserInput() {
			continue
		}
		var in struct {
			Question string `json:"question"`
			Prompt   string `json:"prompt"`
		}
		if json.Unmarshal(spec.Input, &in) == nil {
			if in.Question != "" {
				return in.Question
			}
			if in.Prompt != "" {
				return in.Prompt
			}
		}
	}
	return snap.LatestBatch.Decision.Reason
}
