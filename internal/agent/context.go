package agent

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/nexar-labs/nexar/pkg/models"
)

// Limits on the context snapshot handed to the planner.
const (
	snapshotMaxFiles      = 120
	snapshotFilePreview   = 1200
	snapshotMaxRecords    = 20
	snapshotRecordPreview = 400
)

// contextSnapshot is the engine-owned view of the run's surroundings
// that the planner reasons over. It is rebuilt before every planning
// call so file lists and action digests stay current.
type contextSnapshot struct {
	WorkspaceFileCount int
	WorkspaceSample    []string
	CurrentFile        string
	CurrentFilePreview string
	SnippetCount       int
	SnippetChars       int
	IntentKind         models.RunIntent
	RecentActions      []string
	PendingQuestions   []string
}

// buildSnapshot assembles the planner context for one run. Workspace
// walking reuses the same skip rules as the scan tool so the planner
// sees what the tools would see.
func buildSnapshot(workspace string, r *Run) *contextSnapshot {
	snap := &contextSnapshot{
		CurrentFile: r.currentFile,
		IntentKind:  r.intentKind,
	}

	snap.WorkspaceFileCount, snap.WorkspaceSample = sampleWorkspace(workspace, snapshotMaxFiles)

	if r.currentCode != "" {
		snap.CurrentFilePreview = clampChars(r.currentCode, snapshotFilePreview)
	}
	snap.SnippetCount = len(r.snippets)
	for _, s := range r.snippets {
		snap.SnippetChars += len(s.Content)
	}

	r.mu.RLock()
	history := r.actionHistory
	start := 0
	if len(history) > snapshotMaxRecords {
		start = len(history) - snapshotMaxRecords
	}
	for _, rec := range history[start:] {
		snap.RecentActions = append(snap.RecentActions, digestRecord(rec))
	}
	if r.latestBatch != nil {
		snap.PendingQuestions = append([]string(nil), r.latestBatch.NextQuestions...)
	}
	r.mu.RUnlock()

	return snap
}

// sampleWorkspace counts regular files under root and returns the first
// max paths in walk order, relative with forward slashes.
func sampleWorkspace(root string, max int) (int, []string) {
	var count int
	var sample []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			switch name {
			case "node_modules", "dist", "build", "__pycache__":
				return filepath.SkipDir
			}
			return nil
		}
		count++
		if len(sample) < max {
			if rel, relErr := filepath.Rel(root, path); relErr == nil {
				sample = append(sample, filepath.ToSlash(rel))
			}
		}
		return nil
	})
	return count, sample
}

// digestRecord renders one action record as a single prompt line.
func digestRecord(rec models.ActionRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[iter %d] %s (%s) %s", rec.Iteration, rec.ActionID, rec.Type, rec.Status)
	if rec.Title != "" {
		fmt.Fprintf(&b, ": %s", rec.Title)
	}
	if rec.Error != "" {
		fmt.Fprintf(&b, " error=%s", clampChars(rec.Error, 160))
	} else if len(rec.Output) > 0 {
		fmt.Fprintf(&b, " output=%s", clampChars(string(rec.Output), snapshotRecordPreview))
	}
	return b.String()
}

// renderSnapshot formats the snapshot as a prompt section.
func renderSnapshot(snap *contextSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workspace: %d files", snap.WorkspaceFileCount)
	if len(snap.WorkspaceSample) > 0 {
		fmt.Fprintf(&b, " (showing %d):\n", len(snap.WorkspaceSample))
		for _, f := range snap.WorkspaceSample {
			b.WriteString("  " + f + "\n")
		}
	} else {
		b.WriteString(" (empty)\n")
	}
	fmt.Fprintf(&b, "Intent: %s\n", snap.IntentKind)
	if snap.CurrentFile != "" {
		fmt.Fprintf(&b, "Current file: %s\n", snap.CurrentFile)
	}
	if snap.CurrentFilePreview != "" {
		fmt.Fprintf(&b, "Current file preview:\n%s\n", snap.CurrentFilePreview)
	}
	if snap.SnippetCount > 0 {
		fmt.Fprintf(&b, "Attached snippets: %d (%d chars)\n", snap.SnippetCount, snap.SnippetChars)
	}
	if len(snap.RecentActions) > 0 {
		b.WriteString("Recent actions:\n")
		for _, line := range snap.RecentActions {
			b.WriteString("  " + line + "\n")
		}
	}
	if len(snap.PendingQuestions) > 0 {
		b.WriteString("Open questions from the previous plan:\n")
		for _, q := range snap.PendingQuestions {
			b.WriteString("  - " + q + "\n")
		}
	}
	return b.String()
}

// clampChars cuts s to at most max runes, marking the cut.
func clampChars(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
