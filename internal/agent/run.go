package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexar-labs/nexar/pkg/models"
)

// Run is the server-side state of one user intent. All fields are
// guarded by mu; the executor is the only writer of status and history,
// while any caller may set the two control flags through the request
// helpers. Snapshots are deep copies.
type Run struct {
	mu sync.RWMutex

	id         string
	intent     string
	intentKind models.RunIntent
	providerID string

	status     models.RunStatus
	iteration  int
	maxRetries int

	messages      []models.ChatMessage
	historyConfig models.HistoryConfig

	actionHistory []models.ActionRecord
	recordIndex   map[string]int

	latestBatch    *models.ActionBatch
	pending        []string
	activeActionID string

	events        []models.ExecutionEvent
	eventSeq      int
	lastEventTime time.Time

	resultContent  string
	resultFilePath string
	resultChanges  []models.FileChange

	pauseRequested  bool
	cancelRequested bool

	startedAt  time.Time
	finishedAt *time.Time

	// Request context carried from creation into every planner prompt.
	currentFile  string
	currentCode  string
	snippets     []models.CodeSnippet
	chatOnly     bool
	planningMode bool

	// masterCancel aborts all in-flight work for this run.
	masterCtx    context.Context
	masterCancel context.CancelFunc

	// ticking enforces at most one executor goroutine per run.
	ticking bool
}

// newRun builds a queued run from a request.
func newRun(req *models.AIRequest, defaultRetries int) *Run {
	ctx, cancel := context.WithCancel(context.Background())

	historyCfg := models.DefaultHistoryConfig()
	if req.HistoryConfig != nil {
		historyCfg = req.HistoryConfig.Normalize()
	}
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultRetries
	}

	messages := make([]models.ChatMessage, len(req.Messages))
	copy(messages, req.Messages)

	return &Run{
		id:            uuid.NewString(),
		intent:        lastUserContent(messages),
		intentKind:    inferIntent(req),
		providerID:    req.Provider,
		status:        models.RunQueued,
		maxRetries:    maxRetries,
		messages:      messages,
		historyConfig: historyCfg,
		recordIndex:   make(map[string]int),
		startedAt:     time.Now(),
		currentFile:   req.CurrentFile,
		currentCode:   req.CurrentCode,
		snippets:      req.Snippets,
		chatOnly:      req.ChatOnly,
		planningMode:  req.PlanningMode,
		masterCtx:     ctx,
		masterCancel:  cancel,
	}
}

// editMarkers flag a message as asking for a code change.
var editMarkers = []string{
	"fix", "add", "create", "implement", "update", "refactor",
	"rename", "delete", "write", "modify", "change", "generate",
}

// inferIntent classifies the request. Explicit flags win; otherwise an
// attached file or an edit-flavoured prompt means code_edit.
func inferIntent(req *models.AIRequest) models.RunIntent {
	if req.ForceCodeEdit {
		return models.IntentCodeEdit
	}
	if req.ChatOnly {
		return models.IntentQA
	}
	if req.CurrentFile != "" || len(req.Snippets) > 0 {
		return models.IntentCodeEdit
	}
	prompt := lowerLastUser(req.Messages)
	for _, marker := range editMarkers {
		if containsWord(prompt, marker) {
			return models.IntentCodeEdit
		}
	}
	return models.IntentQA
}

// ID returns the run id.
func (r *Run) ID() string { return r.id }

// Context returns the run's master cancellation context.
func (r *Run) Context() context.Context { return r.masterCtx }

// Status returns the current status.
func (r *Run) Status() models.RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// RequestPause sets the pause flag. A run already waiting for user
// input pauses immediately; a running run pauses at the next safe point.
func (r *Run) RequestPause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return
	}
	r.pauseRequested = true
	if r.status == models.RunWaitingUser {
		r.status = models.RunPaused
	}
}

// ClearPause resumes a paused run.
func (r *Run) ClearPause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != models.RunPaused {
		return NewConflictError(r.id, r.status, "resume")
	}
	r.pauseRequested = false
	r.status = models.RunRunning
	return nil
}

// RequestCancel sets the cancel flag and aborts in-flight work. Runs
// parked in waiting_user or paused cancel immediately; a running run
// cancels at the next safe point.
func (r *Run) RequestCancel() {
	r.mu.Lock()
	if r.status.Terminal() {
		r.mu.Unlock()
		return
	}
	r.cancelRequested = true
	immediate := r.status == models.RunWaitingUser || r.status == models.RunPaused || r.status == models.RunQueued
	if immediate {
		r.finishLocked(models.RunCancelled)
	}
	r.mu.Unlock()
	r.masterCancel()
	if immediate {
		r.appendEvent(eventSpec{
			stage:  "finalize",
			title:  "Run cancelled",
			status: models.EventInfo,
		})
	}
}

// beginTick claims the run for one executor pass. Only one tick may be
// active per run at any instant.
func (r *Run) beginTick() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ticking {
		return NewConflictError(r.id, r.status, "tick (already running)")
	}
	if r.status.Terminal() {
		return NewConflictError(r.id, r.status, "tick")
	}
	r.ticking = true
	return nil
}

func (r *Run) endTick() {
	r.mu.Lock()
	r.ticking = false
	r.mu.Unlock()
}

// finishLocked latches a terminal status. Caller holds mu.
func (r *Run) finishLocked(status models.RunStatus) {
	r.status = status
	now := time.Now()
	r.finishedAt = &now
	r.pending = nil
	r.activeActionID = ""
}

type eventSpec struct {
	kind      string
	stage     string
	title     string
	detail    string
	status    models.EventStatus
	actionID  string
	input     []byte
	output    []byte
	artifacts []string
	errText   string
	data      map[string]any
	metrics   map[string]any
}

// appendEvent appends one event with a monotonically assigned id and a
// non-decreasing timestamp.
func (r *Run) appendEvent(spec eventSpec) models.ExecutionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendEventLocked(spec)
}

func (r *Run) appendEventLocked(spec eventSpec) models.ExecutionEvent {
	r.eventSeq++
	now := time.Now()
	if now.Before(r.lastEventTime) {
		now = r.lastEventTime
	}
	r.lastEventTime = now

	kind := spec.kind
	if kind == "" {
		kind = "action"
	}
	status := spec.status
	if status == "" {
		status = models.EventInfo
	}

	ev := models.ExecutionEvent{
		EventID:   fmt.Sprintf("evt-%08d", r.eventSeq),
		Kind:      kind,
		Stage:     spec.stage,
		Title:     spec.title,
		Detail:    spec.detail,
		Status:    status,
		Timestamp: now,
		Iteration: r.iteration,
		ActionID:  spec.actionID,
		Input:     spec.input,
		Output:    spec.output,
		Artifacts: spec.artifacts,
		Error:     spec.errText,
		Data:      spec.data,
		Metrics:   spec.metrics,
	}
	r.events = append(r.events, ev)
	return ev
}

// appendRecord adds an action record and indexes it by action id.
func (r *Run) appendRecord(record models.ActionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordIndex[record.ActionID] = len(r.actionHistory)
	r.actionHistory = append(r.actionHistory, record)
}

// updateRecord rewrites the indexed record for an action in place; the
// record's position in the history is stable.
func (r *Run) updateRecord(actionID string, update func(*models.ActionRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.recordIndex[actionID]
	if !ok {
		return
	}
	update(&r.actionHistory[idx])
}

// record returns a copy of the indexed record for an action.
func (r *Run) record(actionID string) (models.ActionRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.recordIndex[actionID]
	if !ok {
		return models.ActionRecord{}, false
	}
	return r.actionHistory[idx], true
}

// appendMessage appends a conversation message.
func (r *Run) appendMessage(msg models.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

// removePending drops one action id from the pending set.
func (r *Run) removePending(actionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, id := range r.pending {
		if id == actionID {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return
		}
	}
}

// Snapshot returns a deep copy of the run state for clients.
func (r *Run) Snapshot() *models.PlanRunInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info := &models.PlanRunInfo{
		RunID:           r.id,
		Intent:          r.intent,
		IntentKind:      r.intentKind,
		ProviderID:      r.providerID,
		Status:          r.status,
		Iteration:       r.iteration,
		MaxRetries:      r.maxRetries,
		HistoryConfig:   r.historyConfig,
		ActiveActionID:  r.activeActionID,
		ResultContent:   r.resultContent,
		ResultFilePath:  r.resultFilePath,
		PauseRequested:  r.pauseRequested,
		CancelRequested: r.cancelRequested,
		StartedAt:       r.startedAt,
	}
	if r.finishedAt != nil {
		t := *r.finishedAt
		info.FinishedAt = &t
	}
	info.Messages = append([]models.ChatMessage(nil), r.messages...)
	info.ActionHistory = append([]models.ActionRecord(nil), r.actionHistory...)
	info.PendingActionIDs = append([]string(nil), r.pending...)
	info.Events = append([]models.ExecutionEvent(nil), r.events...)
	info.ResultChanges = append([]models.FileChange(nil), r.resultChanges...)
	if r.latestBatch != nil {
		batch := *r.latestBatch
		batch.Actions = append([]models.ActionSpec(nil), r.latestBatch.Actions...)
		info.LatestBatch = &batch
	}
	return info
}

// pendingSpecs returns the specs for the still-pending actions of the
// latest batch.
func (r *Run) pendingSpecs() []models.ActionSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.latestBatch == nil {
		return nil
	}
	var specs []models.ActionSpec
	for _, id := range r.pending {
		if spec, ok := r.latestBatch.Action(id); ok {
			specs = append(specs, *spec)
		}
	}
	return specs
}

func lastUserContent(messages []models.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
