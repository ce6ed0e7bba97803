package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nexar-labs/nexar/internal/observability"
	"github.com/nexar-labs/nexar/internal/tools"
	"github.com/nexar-labs/nexar/internal/tools/flow"
	"github.com/nexar-labs/nexar/pkg/models"
)

// Tool retry backoff. Provider calls have their own policy inside the
// adapters; this one covers re-queued actions.
const (
	actionRetryBase = 100 * time.Millisecond
	actionRetryCap  = 5 * time.Second
)

// Executor advances runs one tick at a time: plan, schedule the batch
// respecting dependencies and can_parallel, apply results, transition
// status. It is the only writer of run state beyond the control flags.
type Executor struct {
	planner  *Planner
	registry *tools.Registry
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// ExecutorConfig wires an Executor.
type ExecutorConfig struct {
	Planner  *Planner
	Registry *tools.Registry
	Logger   *observability.Logger
	Metrics  *observability.Metrics
}

// NewExecutor creates an executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	return &Executor{
		planner:  cfg.Planner,
		registry: cfg.Registry,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// Tick runs one plan+execute cycle. The caller must hold the run's tick
// claim (beginTick). On return the run is in running, waiting_user,
// paused, or a terminal state.
func (e *Executor) Tick(r *Run) {
	ctx := observability.AddRunID(r.Context(), r.id)

	r.mu.Lock()
	if r.cancelRequested {
		r.finishLocked(models.RunCancelled)
		r.appendEventLocked(eventSpec{stage: "finalize", title: "Run cancelled"})
		r.mu.Unlock()
		e.runFinished(models.RunCancelled)
		return
	}
	if r.pauseRequested {
		r.status = models.RunPaused
		r.mu.Unlock()
		return
	}
	r.status = models.RunRunning
	iteration := r.iteration
	r.mu.Unlock()

	batch, err := e.planner.Plan(ctx, r)
	if err != nil {
		e.failRun(r, plannerFailureMessage(err), err)
		return
	}

	r.mu.Lock()
	r.latestBatch = batch
	r.pending = actionIDs(batch.Actions)
	r.mu.Unlock()

	e.logger.Info(ctx, "batch planned",
		"run_id", r.id,
		"iteration", iteration,
		"mode", batch.Decision.Mode,
		"actions", len(batch.Actions),
	)

	outcome := e.executeBatch(ctx, r, batch)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.appendEventLocked(eventSpec{
		kind:   "iteration",
		stage:  "iteration_summary",
		title:  fmt.Sprintf("Iteration %d finished", iteration),
		detail: fmt.Sprintf("%d completed, %d failed, %d skipped", outcome.completed, outcome.failed, outcome.skipped),
		data: map[string]any{
			"completed": outcome.completed,
			"failed":    outcome.failed,
			"skipped":   outcome.skipped,
		},
	})

	switch {
	case outcome.cancelled || r.cancelRequested:
		r.finishLocked(models.RunCancelled)
		r.appendEventLocked(eventSpec{stage: "finalize", title: "Run cancelled"})
		e.runFinished(models.RunCancelled)

	case outcome.runFailed:
		r.finishLocked(models.RunFailed)
		if r.resultContent == "" {
			r.resultContent = outcome.failureMessage
		}
		r.appendEventLocked(eventSpec{stage: "finalize", title: "Run failed", status: models.EventFailed, errText: outcome.failureMessage})
		e.runFinished(models.RunFailed)

	case outcome.blocked:
		r.finishLocked(models.RunBlocked)
		r.resultContent = outcome.blockReason
		r.appendEventLocked(eventSpec{stage: "finalize", title: "Run blocked", status: models.EventBlocked, detail: outcome.blockReason})
		e.runFinished(models.RunBlocked)

	case outcome.waitingUser:
		r.status = models.RunWaitingUser
		r.appendEventLocked(eventSpec{stage: "wait", title: "Waiting for user input", status: models.EventWaitingUser})

	case batch.Decision.Mode == models.ModeDone && outcome.finalAnswer != nil:
		r.resultContent = outcome.finalAnswer.Content
		r.resultFilePath = outcome.finalAnswer.FilePath
		if len(outcome.finalAnswer.Changes) > 0 {
			r.resultChanges = append(r.resultChanges, outcome.finalAnswer.Changes...)
		}
		r.finishLocked(models.RunCompleted)
		r.appendEventLocked(eventSpec{stage: "finalize", title: "Run completed", status: models.EventCompleted})
		e.runFinished(models.RunCompleted)

	case batch.Decision.Mode == models.ModeAskUser || batch.Decision.Mode == models.ModeBlocked:
		// The planner wants input but emitted no blocking action that
		// reached execution; park the run rather than spin.
		r.status = models.RunWaitingUser
		r.appendEventLocked(eventSpec{stage: "wait", title: "Waiting for user input", status: models.EventWaitingUser, detail: batch.Decision.Reason})

	case r.pauseRequested:
		r.status = models.RunPaused

	default:
		r.status = models.RunRunning
		r.iteration++
	}
}

// batchOutcome aggregates what happened while executing one batch.
type batchOutcome struct {
	completed int
	failed    int
	skipped   int

	waitingUser bool
	cancelled   bool

	runFailed      bool
	failureMessage string

	blocked     bool
	blockReason string

	finalAnswer *flow.FinalAnswerInput
}

// executeBatch runs the batch's actions frontier by frontier.
func (e *Executor) executeBatch(ctx context.Context, r *Run, batch *models.ActionBatch) *batchOutcome {
	outcome := &batchOutcome{}
	frontiers := buildFrontiers(batch.Actions)
	failedIDs := make(map[string]bool)

	for _, frontier := range frontiers {
		if outcome.waitingUser || outcome.runFailed || outcome.blocked || outcome.cancelled {
			break
		}

		// Drop actions whose prerequisites failed before spawning anything.
		var runnable []models.ActionSpec
		for _, spec := range frontier {
			if dependsOnFailed(spec, failedIDs) {
				e.skipAction(r, spec, failedIDs)
				outcome.skipped++
				continue
			}
			runnable = append(runnable, spec)
		}
		if len(runnable) == 0 {
			continue
		}

		parallel := len(runnable) > 1 && allParallel(runnable)
		results := make([]actionOutcome, len(runnable))
		if parallel {
			var wg sync.WaitGroup
			for i, spec := range runnable {
				wg.Add(1)
				go func(i int, spec models.ActionSpec) {
					defer wg.Done()
					results[i] = e.executeAction(ctx, r, spec)
				}(i, spec)
			}
			wg.Wait()
		} else {
			for i, spec := range runnable {
				results[i] = e.executeAction(ctx, r, spec)
				e.foldOutcome(outcome, runnable[i], results[i], failedIDs)
				results[i].folded = true
				if outcome.waitingUser || outcome.runFailed || outcome.blocked || outcome.cancelled {
					// The rest of the frontier stays pending for the next
					// tick (or is discarded by the terminal transition).
					break
				}
			}
		}
		for i := range results {
			if !results[i].folded {
				e.foldOutcome(outcome, runnable[i], results[i], failedIDs)
			}
		}
	}
	return outcome
}

// actionOutcome is the per-action result the frontier loop folds into
// the batch outcome.
type actionOutcome struct {
	status    models.ActionStatus
	result    *tools.Result
	err       error
	cancelled bool
	folded    bool
}

// foldOutcome merges one action result into the batch outcome.
func (e *Executor) foldOutcome(outcome *batchOutcome, spec models.ActionSpec, ao actionOutcome, failedIDs map[string]bool) {
	switch ao.status {
	case models.ActionCompleted:
		outcome.completed++
		switch spec.Type {
		case models.ActionFinalAnswer:
			var in flow.FinalAnswerInput
			if ao.result != nil && json.Unmarshal(ao.result.Output, &in) == nil {
				outcome.finalAnswer = &in
			}
		case models.ActionReportBlocker:
			var in flow.ReportBlockerInput
			if ao.result != nil {
				_ = json.Unmarshal(ao.result.Output, &in)
			}
			outcome.blocked = true
			outcome.blockReason = in.Reason
		}

	case models.ActionQueued:
		// User-input action executed; the run parks until the reply
		// resolves it.
		outcome.waitingUser = true

	case models.ActionCancelled:
		outcome.cancelled = true

	case models.ActionFailed:
		outcome.failed++
		failedIDs[spec.ID] = true
		if spec.Type.IsCritical() {
			outcome.runFailed = true
			outcome.failureMessage = fmt.Sprintf("critical action %s (%s) failed: %v", spec.ID, spec.Type, ao.err)
		}
	}
}

// executeAction runs one action with retries, recording events and the
// action record. Returns the terminal (or parked) status.
func (e *Executor) executeAction(ctx context.Context, r *Run, spec models.ActionSpec) actionOutcome {
	r.mu.Lock()
	iteration := r.iteration
	r.activeActionID = spec.ID
	r.appendEventLocked(eventSpec{
		stage:    "execute",
		title:    actionTitle(spec),
		status:   models.EventQueued,
		actionID: spec.ID,
		input:    spec.Input,
	})
	r.mu.Unlock()

	r.appendRecord(models.ActionRecord{
		Iteration: iteration,
		ActionID:  spec.ID,
		Type:      spec.Type,
		Status:    models.ActionRunning,
		Title:     spec.Title,
		Input:     spec.Input,
	})
	r.appendEvent(eventSpec{
		stage:    "execute",
		title:    actionTitle(spec),
		status:   models.EventRunning,
		actionID: spec.ID,
	})

	maxAttempts := effectiveAttempts(spec, r.maxRetries)
	timeout := time.Duration(spec.TimeoutSec) * time.Second

	var result *tools.Result
	var execErr error
	attempts := 0
	for attempts < maxAttempts {
		attempts++
		result, execErr = e.registry.Execute(ctx, spec.Type, spec.Input, timeout)
		if execErr == nil {
			break
		}
		if !retryableToolError(execErr) || attempts >= maxAttempts || ctx.Err() != nil {
			break
		}
		delay := actionRetryBase << (attempts - 1)
		if delay > actionRetryCap {
			delay = actionRetryCap
		}
		e.logger.Warn(ctx, "action retrying",
			"run_id", r.id, "action_id", spec.ID, "attempt", attempts, "error", execErr)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			attempts = maxAttempts
		}
	}

	if execErr != nil {
		status := models.ActionFailed
		if cancelledToolError(execErr) {
			status = models.ActionCancelled
		}
		r.updateRecord(spec.ID, func(rec *models.ActionRecord) {
			rec.Status = status
			rec.Error = execErr.Error()
			rec.Attempts = attempts
		})
		r.removePending(spec.ID)
		r.appendEvent(eventSpec{
			stage:    "execute",
			title:    actionTitle(spec),
			status:   models.EventFailed,
			actionID: spec.ID,
			errText:  execErr.Error(),
		})
		return actionOutcome{status: status, err: execErr, cancelled: status == models.ActionCancelled}
	}

	if result.Blocked && spec.Type.IsUserInput() {
		// The record stays open; reply_run resolves it with the user's
		// answer as output. The action id stays pending.
		r.updateRecord(spec.ID, func(rec *models.ActionRecord) {
			rec.Status = models.ActionQueued
			rec.Output = result.Output
			rec.Attempts = attempts
		})
		r.appendEvent(eventSpec{
			stage:    "execute",
			title:    actionTitle(spec),
			status:   models.EventWaitingUser,
			actionID: spec.ID,
			output:   result.Output,
			detail:   result.Detail,
		})
		return actionOutcome{status: models.ActionQueued, result: result}
	}

	r.updateRecord(spec.ID, func(rec *models.ActionRecord) {
		rec.Status = models.ActionCompleted
		rec.Output = result.Output
		rec.Artifacts = spec.Artifacts
		rec.Attempts = attempts
	})
	r.removePending(spec.ID)
	if len(result.Changes) > 0 {
		r.mu.Lock()
		r.resultChanges = append(r.resultChanges, result.Changes...)
		r.mu.Unlock()
	}
	r.appendEvent(eventSpec{
		stage:     "execute",
		title:     actionTitle(spec),
		status:    models.EventCompleted,
		actionID:  spec.ID,
		output:    result.Output,
		detail:    result.Detail,
		artifacts: spec.Artifacts,
	})
	return actionOutcome{status: models.ActionCompleted, result: result}
}

// skipAction records an action skipped because a prerequisite failed.
func (e *Executor) skipAction(r *Run, spec models.ActionSpec, failedIDs map[string]bool) {
	failedIDs[spec.ID] = true // dependents of a skipped action skip too
	r.appendRecord(models.ActionRecord{
		Iteration: r.iteration,
		ActionID:  spec.ID,
		Type:      spec.Type,
		Status:    models.ActionSkipped,
		Title:     spec.Title,
		Input:     spec.Input,
		Error:     "prerequisite failed",
	})
	r.removePending(spec.ID)
	r.appendEvent(eventSpec{
		stage:    "execute",
		title:    actionTitle(spec),
		status:   models.EventFailed,
		actionID: spec.ID,
		detail:   "skipped: prerequisite failed",
	})
}

// failRun latches a failed status from a planner error.
func (e *Executor) failRun(r *Run, message string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelRequested || errors.Is(err, context.Canceled) {
		r.finishLocked(models.RunCancelled)
		r.appendEventLocked(eventSpec{stage: "finalize", title: "Run cancelled"})
		e.runFinished(models.RunCancelled)
		return
	}
	r.finishLocked(models.RunFailed)
	r.resultContent = message
	r.appendEventLocked(eventSpec{stage: "finalize", title: "Run failed", status: models.EventFailed, errText: err.Error()})
	e.runFinished(models.RunFailed)
}

func (e *Executor) runFinished(status models.RunStatus) {
	if e.metrics != nil {
		e.metrics.RunFinished(string(status))
	}
}

// buildFrontiers orders actions into dependency levels. Within a level,
// higher priority first, ties by id. Dependencies on ids outside the
// batch (completed prior actions) are already satisfied.
func buildFrontiers(actions []models.ActionSpec) [][]models.ActionSpec {
	inBatch := make(map[string]bool, len(actions))
	for i := range actions {
		inBatch[actions[i].ID] = true
	}

	placed := make(map[string]bool, len(actions))
	remaining := append([]models.ActionSpec(nil), actions...)
	var frontiers [][]models.ActionSpec

	for len(remaining) > 0 {
		var frontier []models.ActionSpec
		var next []models.ActionSpec
		for _, spec := range remaining {
			ready := true
			for _, dep := range spec.DependsOn {
				if inBatch[dep] && !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				frontier = append(frontier, spec)
			} else {
				next = append(next, spec)
			}
		}
		if len(frontier) == 0 {
			// Validation rejects cycles; guard against them anyway.
			frontier = next
			next = nil
		}
		sort.SliceStable(frontier, func(i, j int) bool {
			if frontier[i].Priority != frontier[j].Priority {
				return frontier[i].Priority > frontier[j].Priority
			}
			return frontier[i].ID < frontier[j].ID
		})
		for _, spec := range frontier {
			placed[spec.ID] = true
		}
		frontiers = append(frontiers, frontier)
		remaining = next
	}
	return frontiers
}

func dependsOnFailed(spec models.ActionSpec, failedIDs map[string]bool) bool {
	for _, dep := range spec.DependsOn {
		if failedIDs[dep] {
			return true
		}
	}
	return false
}

func allParallel(specs []models.ActionSpec) bool {
	for i := range specs {
		if !specs[i].CanParallel {
			return false
		}
	}
	return true
}

// effectiveAttempts is the action's retry budget capped by the run's.
func effectiveAttempts(spec models.ActionSpec, runMax int) int {
	attempts := spec.MaxRetries
	if attempts <= 0 {
		attempts = DefaultMaxRetries
	}
	if runMax > 0 && attempts > runMax {
		attempts = runMax
	}
	return attempts
}

func retryableToolError(err error) bool {
	var te *tools.ToolError
	return errors.As(err, &te) && te.Retryable()
}

func cancelledToolError(err error) bool {
	var te *tools.ToolError
	return errors.As(err, &te) && te.Kind == tools.KindCancelled
}

func actionTitle(spec models.ActionSpec) string {
	if spec.Title != "" {
		return spec.Title
	}
	return string(spec.Type)
}

func actionIDs(actions []models.ActionSpec) []string {
	out := make([]string, len(actions))
	for i := range actions {
		out[i] = actions[i].ID
	}
	return out
}

func plannerFailureMessage(err error) string {
	if errors.Is(err, ErrPlannerInvalidOutput) {
		return "The planner could not produce a valid plan. Please retry or rephrase the request."
	}
	return fmt.Sprintf("The AI provider call failed: %v", err)
}
