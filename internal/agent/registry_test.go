package agent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nexar-labs/nexar/internal/agent/providers"
	"github.com/nexar-labs/nexar/internal/config"
	"github.com/nexar-labs/nexar/internal/observability"
	"github.com/nexar-labs/nexar/internal/tools"
	"github.com/nexar-labs/nexar/internal/tools/catalog"
	"github.com/nexar-labs/nexar/pkg/models"
)

// scriptedProvider returns canned planner replies in order, repeating
// the last one once the script runs out.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
}

func (p *scriptedProvider) ID() string    { return "scripted" }
func (p *scriptedProvider) Name() string  { return "Scripted" }
func (p *scriptedProvider) Model() string { return "scripted-model" }

func (p *scriptedProvider) Chat(_ context.Context, _ []models.ChatMessage, _ providers.ChatOptions) (*providers.ChatResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	idx := p.calls
	if idx >= len(p.replies) {
		idx = len(p.replies) - 1
	}
	p.calls++
	return &providers.ChatResult{
		Content:  p.replies[idx],
		Provider: "scripted",
		Model:    "scripted-model",
	}, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestRegistry(t *testing.T, provider providers.Provider, ttl time.Duration) *Registry {
	t.Helper()
	runs, _ := newTestRegistryWithMetrics(t, provider, ttl)
	return runs
}

func newTestRegistryWithMetrics(t *testing.T, provider providers.Provider, ttl time.Duration) (*Registry, *observability.Metrics) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	logger := observability.NewLogger(observability.LogConfig{Level: "error"})
	metrics := observability.NewMetrics()

	router := providers.NewRouter(cfg, logger, metrics)
	router.Register(provider)

	toolReg := tools.NewRegistry(tools.RegistryConfig{Logger: logger, Metrics: metrics})
	catalog.Register(toolReg, workspace, nil)

	planner := NewPlanner(PlannerConfig{
		Router:    router,
		Registry:  toolReg,
		Workspace: workspace,
		Logger:    logger,
	})
	executor := NewExecutor(ExecutorConfig{
		Planner:  planner,
		Registry: toolReg,
		Logger:   logger,
		Metrics:  metrics,
	})
	runs := NewRegistry(RegistryConfig{
		Executor: executor,
		Logger:   logger,
		Metrics:  metrics,
		RunTTL:   ttl,
	})
	t.Cleanup(runs.Close)
	return runs, metrics
}

const doneBatch = `{
  "decision": {"mode": "done", "reason": "answered"},
  "actions": [{"id": "a0", "type": "final_answer", "input": {"content": "The answer is 42."}}]
}`

const askBatch = `{
  "decision": {"mode": "ask_user", "reason": "need more detail", "needs_user_trigger": true},
  "actions": [{"id": "q0", "type": "ask_user", "input": {"question": "Which database?"}}]
}`

func chatRequest() *models.AIRequest {
	return &models.AIRequest{
		Provider: "scripted",
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "What is the meaning of life?"}},
	}
}

func waitForStatus(t *testing.T, runs *Registry, id string, want models.RunStatus) *models.PlanRunInfo {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		info, err := runs.Get(id)
		if err == nil && info.Status == want {
			return info
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s never reached %s", id, want)
	return nil
}

func TestChatCompletesWithFinalAnswer(t *testing.T) {
	provider := &scriptedProvider{replies: []string{doneBatch}}
	runs := newTestRegistry(t, provider, 0)

	resp, err := runs.Chat(chatRequest())
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Action != "final_answer" {
		t.Errorf("action = %q", resp.Action)
	}
	if resp.Content != "The answer is 42." {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Run == nil || resp.Run.Status != models.RunCompleted {
		t.Fatalf("run = %+v", resp.Run)
	}
	if resp.Run.FinishedAt == nil {
		t.Error("finished_at not set")
	}
}

func TestContinueOnTerminalRunIsIdempotent(t *testing.T) {
	provider := &scriptedProvider{replies: []string{doneBatch}}
	runs := newTestRegistry(t, provider, 0)

	resp, err := runs.Chat(chatRequest())
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	calls := provider.callCount()

	again, err := runs.Continue(resp.RunID)
	if err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if again.Action != "final_answer" || again.Content != resp.Content {
		t.Errorf("latched response = %+v", again)
	}
	if provider.callCount() != calls {
		t.Error("terminal continue must not call the planner")
	}
}

func TestChatAskUserThenReply(t *testing.T) {
	provider := &scriptedProvider{replies: []string{askBatch, doneBatch}}
	runs := newTestRegistry(t, provider, 0)

	resp, err := runs.Chat(chatRequest())
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Action != "ask_user" || !resp.NeedsUserTrigger {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Content != "Which database?" {
		t.Errorf("question = %q", resp.Content)
	}
	if resp.Run.Status != models.RunWaitingUser {
		t.Fatalf("status = %s", resp.Run.Status)
	}

	// A bare continue must not bypass the pending question.
	if _, err := runs.Continue(resp.RunID); !IsConflict(err) {
		t.Fatalf("Continue on waiting run = %v, want conflict", err)
	}

	final, err := runs.Reply(resp.RunID, "Postgres")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if final.Action != "final_answer" {
		t.Errorf("action = %q", final.Action)
	}

	info, err := runs.Get(resp.RunID)
	if err != nil {
		t.Fatal(err)
	}
	var asked *models.ActionRecord
	for i := range info.ActionHistory {
		if info.ActionHistory[i].ActionID == "q0" {
			asked = &info.ActionHistory[i]
		}
	}
	if asked == nil || asked.Status != models.ActionCompleted {
		t.Fatalf("ask record = %+v", asked)
	}
	if !strings.Contains(string(asked.Output), "Postgres") {
		t.Errorf("ask output = %s", asked.Output)
	}
	last := info.Messages[len(info.Messages)-1]
	if last.Role != models.RoleUser || last.Content != "Postgres" {
		t.Errorf("last message = %+v", last)
	}
}

func TestReplyRequiresWaitingRun(t *testing.T) {
	provider := &scriptedProvider{replies: []string{doneBatch}}
	runs := newTestRegistry(t, provider, 0)

	resp, err := runs.Chat(chatRequest())
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if _, err := runs.Reply(resp.RunID, "hello"); !IsConflict(err) {
		t.Fatalf("Reply on completed run = %v, want conflict", err)
	}
}

func TestInvalidPlannerOutputFailsRun(t *testing.T) {
	provider := &scriptedProvider{replies: []string{"this is not a plan"}}
	runs := newTestRegistry(t, provider, 0)

	resp, err := runs.Chat(chatRequest())
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Action != "error" {
		t.Errorf("action = %q", resp.Action)
	}
	if !strings.Contains(resp.Content, "could not produce a valid plan") {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Run.Status != models.RunFailed {
		t.Errorf("status = %s", resp.Run.Status)
	}
	// Initial attempt plus two repair retries.
	if provider.callCount() != 3 {
		t.Errorf("planner calls = %d, want 3", provider.callCount())
	}
}

func TestProviderFailureFailsRun(t *testing.T) {
	provider := &scriptedProvider{err: providers.NewProviderError("scripted", providers.KindAuth, "bad key", nil)}
	runs := newTestRegistry(t, provider, 0)

	resp, err := runs.Chat(chatRequest())
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Action != "error" || resp.Run.Status != models.RunFailed {
		t.Fatalf("resp = %+v", resp)
	}
	if !strings.Contains(resp.Content, "provider call failed") {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestFailedPrerequisiteSkipsDependents(t *testing.T) {
	const failingBatch = `{
	  "decision": {"mode": "continue", "reason": "inspect"},
	  "actions": [
	    {"id": "a0", "type": "read_files", "input": {"paths": []}},
	    {"id": "a1", "type": "summarize_context", "input": {"summary": "s"}, "depends_on": ["a0"]}
	  ]
	}`
	provider := &scriptedProvider{replies: []string{failingBatch, doneBatch}}
	runs := newTestRegistry(t, provider, 0)

	resp, err := runs.Chat(chatRequest())
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Action != "progress" || resp.Run.Status != models.RunRunning {
		t.Fatalf("resp = %+v", resp.Run)
	}

	byID := make(map[string]models.ActionRecord)
	for _, rec := range resp.Run.ActionHistory {
		byID[rec.ActionID] = rec
	}
	// First iteration injects a workspace scan ahead of discovery.
	if scan, ok := byID["a_scan"]; !ok || scan.Status != models.ActionCompleted {
		t.Errorf("scan record = %+v", scan)
	}
	if byID["a0"].Status != models.ActionFailed {
		t.Errorf("a0 = %+v", byID["a0"])
	}
	if byID["a1"].Status != models.ActionSkipped {
		t.Errorf("a1 = %+v", byID["a1"])
	}

	final, err := runs.Continue(resp.RunID)
	if err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if final.Run.Status != models.RunCompleted {
		t.Errorf("status = %s", final.Run.Status)
	}
}

func TestCriticalActionFailureFailsRun(t *testing.T) {
	const criticalBatch = `{
	  "decision": {"mode": "continue", "reason": "write"},
	  "actions": [{"id": "w0", "type": "update_file", "input": {"path": "../escape.txt", "content": "x"}}]
	}`
	provider := &scriptedProvider{replies: []string{criticalBatch}}
	runs := newTestRegistry(t, provider, 0)

	resp, err := runs.Chat(chatRequest())
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Run.Status != models.RunFailed {
		t.Fatalf("status = %s", resp.Run.Status)
	}
	if !strings.Contains(resp.Content, "critical action w0") {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestCancelWaitingRunIsImmediate(t *testing.T) {
	provider := &scriptedProvider{replies: []string{askBatch}}
	runs := newTestRegistry(t, provider, 0)

	resp, err := runs.Chat(chatRequest())
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	info, err := runs.Cancel(resp.RunID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if info.Status != models.RunCancelled {
		t.Errorf("status = %s", info.Status)
	}
	if info.FinishedAt == nil {
		t.Error("finished_at not set")
	}
	if _, err := runs.Reply(resp.RunID, "too late"); !IsConflict(err) {
		t.Errorf("Reply after cancel = %v, want conflict", err)
	}
}

func TestPauseAndResume(t *testing.T) {
	provider := &scriptedProvider{replies: []string{askBatch, doneBatch}}
	runs := newTestRegistry(t, provider, 0)

	resp, err := runs.Chat(chatRequest())
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	info, err := runs.Pause(resp.RunID)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if info.Status != models.RunPaused {
		t.Fatalf("status = %s", info.Status)
	}

	if _, err := runs.Resume(resp.RunID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	waitForStatus(t, runs, resp.RunID, models.RunCompleted)
}

func TestResumeRequiresPausedRun(t *testing.T) {
	provider := &scriptedProvider{replies: []string{doneBatch}}
	runs := newTestRegistry(t, provider, 0)

	resp, err := runs.Chat(chatRequest())
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if _, err := runs.Resume(resp.RunID); !IsConflict(err) {
		t.Fatalf("Resume on completed run = %v, want conflict", err)
	}
}

func TestStartRunsAsynchronously(t *testing.T) {
	provider := &scriptedProvider{replies: []string{doneBatch}}
	runs := newTestRegistry(t, provider, 0)

	id := runs.Start(chatRequest())
	info := waitForStatus(t, runs, id, models.RunCompleted)
	if info.ResultContent != "The answer is 42." {
		t.Errorf("result = %q", info.ResultContent)
	}
}

func TestGetUnknownRun(t *testing.T) {
	runs := newTestRegistry(t, &scriptedProvider{replies: []string{doneBatch}}, 0)
	if _, err := runs.Get("nope"); err != ErrRunNotFound {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

func TestSweepEvictsExpiredRuns(t *testing.T) {
	provider := &scriptedProvider{replies: []string{doneBatch}}
	runs := newTestRegistry(t, provider, time.Millisecond)

	resp, err := runs.Chat(chatRequest())
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	runs.Sweep()
	if _, err := runs.Get(resp.RunID); err != ErrRunNotFound {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

func TestApprovalRejectionRecorded(t *testing.T) {
	const approvalBatch = `{
	  "decision": {"mode": "ask_user", "reason": "destructive change", "needs_user_trigger": true},
	  "actions": [{"id": "p0", "type": "request_approval", "input": {"prompt": "Delete 14 files?"}}]
	}`
	provider := &scriptedProvider{replies: []string{approvalBatch, doneBatch}}
	runs := newTestRegistry(t, provider, 0)

	resp, err := runs.Chat(chatRequest())
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "Delete 14 files?" {
		t.Errorf("prompt = %q", resp.Content)
	}

	if _, err := runs.Reply(resp.RunID, "No, keep them."); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	info, err := runs.Get(resp.RunID)
	if err != nil {
		t.Fatal(err)
	}
	var rec *models.ActionRecord
	for i := range info.ActionHistory {
		if info.ActionHistory[i].ActionID == "p0" {
			rec = &info.ActionHistory[i]
		}
	}
	if rec == nil || rec.Status != models.ActionCompleted {
		t.Fatalf("approval record = %+v", rec)
	}
	if !strings.Contains(string(rec.Output), `"approved":false`) {
		t.Errorf("output = %s", rec.Output)
	}
}

func TestIsRejection(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"no", true},
		{"No, keep them.", true},
		{"deny", true},
		{"DENIED", true},
		{"yes", false},
		{"sure, go ahead", false},
		{"not sure", false},
	}
	for _, tt := range tests {
		if got := isRejection(tt.message); got != tt.want {
			t.Errorf("isRejection(%q) = %v", tt.message, got)
		}
	}
}

func TestPlanningEventsUsePlanningStage(t *testing.T) {
	provider := &scriptedProvider{replies: []string{doneBatch}}
	runs := newTestRegistry(t, provider, 0)

	resp, err := runs.Chat(chatRequest())
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	found := false
	for _, ev := range resp.Run.Events {
		if ev.Kind != "planning" {
			continue
		}
		found = true
		if ev.Stage != "planning" {
			t.Errorf("stage = %q, want planning", ev.Stage)
		}
	}
	if !found {
		t.Fatal("no planning events recorded")
	}
}

func TestCancelQueuedRunBalancesActiveRunsGauge(t *testing.T) {
	provider := &scriptedProvider{replies: []string{doneBatch}}
	runs, metrics := newTestRegistryWithMetrics(t, provider, 0)

	run := runs.CreateRun(chatRequest())
	if got := testutil.ToFloat64(metrics.ActiveRuns); got != 1 {
		t.Fatalf("active runs after create = %v", got)
	}
	info, err := runs.Cancel(run.id)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if info.Status != models.RunCancelled {
		t.Fatalf("status = %s", info.Status)
	}
	if got := testutil.ToFloat64(metrics.ActiveRuns); got != 0 {
		t.Errorf("active runs after cancel = %v", got)
	}
}
