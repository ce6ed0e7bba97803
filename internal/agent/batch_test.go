package agent

import (
	"strings"
	"testing"

	"github.com/nexar-labs/nexar/pkg/models"
)

func TestParseBatchRejectsNonJSON(t *testing.T) {
	if _, err := ParseBatch([]byte("I think we should scan first.")); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseBatchRejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing decision", `{"actions": []}`},
		{"missing actions", `{"decision": {"mode": "continue"}}`},
		{"bad mode enum", `{"decision": {"mode": "maybe"}, "actions": []}`},
		{"action without type", `{"decision": {"mode": "continue"}, "actions": [{"id": "a0"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseBatch([]byte(tt.raw)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseBatchAcceptsMinimalBatch(t *testing.T) {
	batch, err := ParseBatch([]byte(`{
		"decision": {"mode": "continue", "reason": "explore"},
		"actions": [{"id": "a0", "type": "scan_workspace"}]
	}`))
	if err != nil {
		t.Fatalf("ParseBatch: %v", err)
	}
	if batch.Decision.Mode != models.ModeContinue || len(batch.Actions) != 1 {
		t.Errorf("batch = %+v", batch)
	}
}

func spec(id string, typ models.ActionType, deps ...string) models.ActionSpec {
	return models.ActionSpec{ID: id, Type: typ, DependsOn: deps}
}

func TestValidateBatchSemanticRules(t *testing.T) {
	tests := []struct {
		name      string
		batch     models.ActionBatch
		completed map[string]bool
		wantIn    string
	}{
		{
			name: "unknown action type",
			batch: models.ActionBatch{
				Decision: models.BatchDecision{Mode: models.ModeContinue},
				Actions:  []models.ActionSpec{spec("a0", "warp_core_eject")},
			},
			wantIn: "unknown type",
		},
		{
			name: "unresolved dependency",
			batch: models.ActionBatch{
				Decision: models.BatchDecision{Mode: models.ModeContinue},
				Actions:  []models.ActionSpec{spec("a0", models.ActionReadFiles, "ghost")},
			},
			wantIn: "neither in this batch",
		},
		{
			name: "self dependency",
			batch: models.ActionBatch{
				Decision: models.BatchDecision{Mode: models.ModeContinue},
				Actions:  []models.ActionSpec{spec("a0", models.ActionReadFiles, "a0")},
			},
			wantIn: "depends on itself",
		},
		{
			name: "dependency cycle",
			batch: models.ActionBatch{
				Decision: models.BatchDecision{Mode: models.ModeContinue},
				Actions: []models.ActionSpec{
					spec("a0", models.ActionReadFiles, "a1"),
					spec("a1", models.ActionSearchCode, "a0"),
				},
			},
			wantIn: "dependency cycle",
		},
		{
			name: "done without final answer",
			batch: models.ActionBatch{
				Decision: models.BatchDecision{Mode: models.ModeDone},
				Actions:  []models.ActionSpec{spec("a0", models.ActionReadFiles)},
			},
			wantIn: "requires a final_answer",
		},
		{
			name: "ask_user without user input action",
			batch: models.ActionBatch{
				Decision: models.BatchDecision{Mode: models.ModeAskUser, NeedsUserTrigger: true},
				Actions:  []models.ActionSpec{spec("a0", models.ActionReadFiles)},
			},
			wantIn: "requires an ask_user",
		},
		{
			name: "ask_user without trigger flag",
			batch: models.ActionBatch{
				Decision: models.BatchDecision{Mode: models.ModeAskUser},
				Actions:  []models.ActionSpec{spec("a0", models.ActionAskUser)},
			},
			wantIn: "needs_user_trigger",
		},
		{
			name: "priority out of range",
			batch: models.ActionBatch{
				Decision: models.BatchDecision{Mode: models.ModeContinue},
				Actions:  []models.ActionSpec{{ID: "a0", Type: models.ActionReadFiles, Priority: 9}},
			},
			wantIn: "priority 9 out of range",
		},
		{
			name: "timeout out of range",
			batch: models.ActionBatch{
				Decision: models.BatchDecision{Mode: models.ModeContinue},
				Actions:  []models.ActionSpec{{ID: "a0", Type: models.ActionReadFiles, TimeoutSec: 4000}},
			},
			wantIn: "timeout_sec 4000 out of range",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatch(&tt.batch, tt.completed)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantIn) {
				t.Errorf("error = %q, want substring %q", err, tt.wantIn)
			}
		})
	}
}

func TestValidateBatchAcceptsCompletedPriorIDs(t *testing.T) {
	batch := models.ActionBatch{
		Decision: models.BatchDecision{Mode: models.ModeContinue},
		Actions:  []models.ActionSpec{spec("a0", models.ActionReadFiles, "scan-from-iter-0")},
	}
	if err := ValidateBatch(&batch, map[string]bool{"scan-from-iter-0": true}); err != nil {
		t.Fatalf("ValidateBatch: %v", err)
	}
}

func TestValidateBatchAcceptsDiamondDependencies(t *testing.T) {
	batch := models.ActionBatch{
		Decision: models.BatchDecision{Mode: models.ModeContinue},
		Actions: []models.ActionSpec{
			spec("a0", models.ActionScanWorkspace),
			spec("a1", models.ActionReadFiles, "a0"),
			spec("a2", models.ActionSearchCode, "a0"),
			spec("a3", models.ActionUpdateFile, "a1", "a2"),
		},
	}
	if err := ValidateBatch(&batch, nil); err != nil {
		t.Fatalf("ValidateBatch: %v", err)
	}
}

func TestNormalizeBatchFillsDefaults(t *testing.T) {
	batch := models.ActionBatch{
		Decision: models.BatchDecision{Mode: models.ModeContinue},
		Actions: []models.ActionSpec{
			{Type: models.ActionRunTests, Title: "Run tests"},
			{Type: models.ActionRunLint},
		},
	}
	NormalizeBatch(&batch, 2, true)

	if batch.Iteration != 2 || batch.Version != models.BatchVersion {
		t.Errorf("batch = %+v", batch)
	}
	a := batch.Actions[0]
	if a.ID != "a0" || a.Priority != DefaultPriority || a.TimeoutSec != DefaultTimeoutSec || a.MaxRetries != DefaultMaxRetries {
		t.Errorf("defaults = %+v", a)
	}
	if len(a.SuccessCriteria) != 1 || a.SuccessCriteria[0] != "Run tests" {
		t.Errorf("success criteria = %v", a.SuccessCriteria)
	}
	if batch.Actions[1].ID != "a1" {
		t.Errorf("second id = %q", batch.Actions[1].ID)
	}
}

func TestNormalizeBatchDeduplicatesIDs(t *testing.T) {
	batch := models.ActionBatch{
		Decision: models.BatchDecision{Mode: models.ModeContinue},
		Actions: []models.ActionSpec{
			spec("dup", models.ActionRunTests),
			spec("dup", models.ActionRunLint),
		},
	}
	NormalizeBatch(&batch, 1, true)
	if batch.Actions[0].ID != "dup" || batch.Actions[1].ID != "a1" {
		t.Errorf("ids = %q, %q", batch.Actions[0].ID, batch.Actions[1].ID)
	}
}

func TestNormalizeBatchFinalAnswerForcesDone(t *testing.T) {
	batch := models.ActionBatch{
		Decision: models.BatchDecision{Mode: models.ModeContinue},
		Actions: []models.ActionSpec{
			{ID: "a0", Type: models.ActionFinalAnswer, CanParallel: true},
		},
	}
	NormalizeBatch(&batch, 3, true)
	if batch.Decision.Mode != models.ModeDone {
		t.Errorf("mode = %s", batch.Decision.Mode)
	}
	if batch.Actions[0].CanParallel {
		t.Error("final_answer must not be parallel")
	}
}

func TestNormalizeBatchEmptyContinueBecomesAskUser(t *testing.T) {
	batch := models.ActionBatch{Decision: models.BatchDecision{Mode: models.ModeContinue}}
	NormalizeBatch(&batch, 1, true)
	if batch.Decision.Mode != models.ModeAskUser || !batch.Decision.NeedsUserTrigger {
		t.Errorf("decision = %+v", batch.Decision)
	}
}

func TestNormalizeBatchInjectsScanOnFirstIteration(t *testing.T) {
	batch := models.ActionBatch{
		Decision: models.BatchDecision{Mode: models.ModeContinue},
		Actions: []models.ActionSpec{
			spec("a0", models.ActionSearchCode),
			spec("a1", models.ActionRunTests),
		},
	}
	NormalizeBatch(&batch, 0, false)

	if len(batch.Actions) != 3 {
		t.Fatalf("actions = %d, want injected scan", len(batch.Actions))
	}
	scan := batch.Actions[0]
	if scan.Type != models.ActionScanWorkspace || scan.ID != "a_scan" {
		t.Errorf("scan = %+v", scan)
	}
	var search models.ActionSpec
	for _, a := range batch.Actions {
		if a.Type == models.ActionSearchCode {
			search = a
		}
	}
	found := false
	for _, dep := range search.DependsOn {
		if dep == scan.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("search depends_on = %v, want %q", search.DependsOn, scan.ID)
	}
	for _, a := range batch.Actions {
		if a.Type == models.ActionRunTests && len(a.DependsOn) != 0 {
			t.Errorf("non-discovery action gained deps: %v", a.DependsOn)
		}
	}
}

func TestNormalizeBatchSkipsScanInjection(t *testing.T) {
	t.Run("already scanned", func(t *testing.T) {
		batch := models.ActionBatch{
			Decision: models.BatchDecision{Mode: models.ModeContinue},
			Actions:  []models.ActionSpec{spec("a0", models.ActionSearchCode)},
		}
		NormalizeBatch(&batch, 0, true)
		if len(batch.Actions) != 1 {
			t.Errorf("actions = %d", len(batch.Actions))
		}
	})
	t.Run("batch has its own scan", func(t *testing.T) {
		batch := models.ActionBatch{
			Decision: models.BatchDecision{Mode: models.ModeContinue},
			Actions: []models.ActionSpec{
				spec("a0", models.ActionScanWorkspace),
				spec("a1", models.ActionSearchCode),
			},
		}
		NormalizeBatch(&batch, 0, false)
		if len(batch.Actions) != 2 {
			t.Errorf("actions = %d", len(batch.Actions))
		}
	})
	t.Run("no discovery actions", func(t *testing.T) {
		batch := models.ActionBatch{
			Decision: models.BatchDecision{Mode: models.ModeContinue},
			Actions:  []models.ActionSpec{spec("a0", models.ActionRunTests)},
		}
		NormalizeBatch(&batch, 0, false)
		if len(batch.Actions) != 1 {
			t.Errorf("actions = %d", len(batch.Actions))
		}
	})
}

func TestBuildFrontiersLevelsAndOrder(t *testing.T) {
	specs := []models.ActionSpec{
		{ID: "low", Type: models.ActionReadFiles, Priority: 1},
		{ID: "high", Type: models.ActionSearchCode, Priority: 5},
		{ID: "mid", Type: models.ActionRunTests, Priority: 3},
		{ID: "child", Type: models.ActionUpdateFile, Priority: 5, DependsOn: []string{"high", "mid"}},
	}
	frontiers := buildFrontiers(specs)
	if len(frontiers) != 2 {
		t.Fatalf("frontiers = %d", len(frontiers))
	}
	first := frontiers[0]
	if len(first) != 3 || first[0].ID != "high" || first[1].ID != "mid" || first[2].ID != "low" {
		ids := make([]string, len(first))
		for i, s := range first {
			ids[i] = s.ID
		}
		t.Errorf("first frontier order = %v", ids)
	}
	if len(frontiers[1]) != 1 || frontiers[1][0].ID != "child" {
		t.Errorf("second frontier = %+v", frontiers[1])
	}
}

func TestBuildFrontiersTieBreaksByID(t *testing.T) {
	specs := []models.ActionSpec{
		{ID: "b", Type: models.ActionReadFiles, Priority: 3},
		{ID: "a", Type: models.ActionReadFiles, Priority: 3},
	}
	frontiers := buildFrontiers(specs)
	if frontiers[0][0].ID != "a" || frontiers[0][1].ID != "b" {
		t.Errorf("order = %v, %v", frontiers[0][0].ID, frontiers[0][1].ID)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"surrounding whitespace", "\n  {\"a\": 1}\n", `{"a": 1}`},
		{"fenced json block", "Here is the plan:\n```json\n{\"a\": 1}\n```\nDone.", `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose around braces", `The batch is {"a": {"b": 2}} as requested.`, `{"a": {"b": 2}}`},
		{"no json", "no braces here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.raw); got != tt.want {
				t.Errorf("ExtractJSON = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContainsWord(t *testing.T) {
	tests := []struct {
		s    string
		word string
		want bool
	}{
		{"please fix the bug", "fix", true},
		{"prefix matters", "fix", false},
		{"refactor_this now", "refactor_this", true},
		{"Fix it", "fix", false},
	}
	for _, tt := range tests {
		if got := containsWord(tt.s, tt.word); got != tt.want {
			t.Errorf("containsWord(%q, %q) = %v", tt.s, tt.word, got)
		}
	}
}
