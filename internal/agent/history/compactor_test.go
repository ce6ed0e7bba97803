package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nexar-labs/nexar/pkg/models"
)

type fakeSummarizer struct {
	calls   int
	summary string
	err     error
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ string, _ int) (string, error) {
	f.calls++
	return f.summary, f.err
}

func messages(n int) []models.ChatMessage {
	out := make([]models.ChatMessage, n)
	for i := range out {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		out[i] = models.ChatMessage{Role: role, Content: fmt.Sprintf("message %d", i)}
	}
	return out
}

func TestCompactWithinWindow(t *testing.T) {
	c := NewCompactor()
	msgs := messages(5)
	cfg := models.HistoryConfig{Turns: 10, MaxCharsPerMessage: 100, SummaryEnabled: true, SummaryMaxChars: 50}

	result, err := c.Compact(context.Background(), msgs, cfg, &fakeSummarizer{summary: "unused"})
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if len(result.Messages) != 5 {
		t.Errorf("len = %d", len(result.Messages))
	}
	if result.OmittedCount != 0 {
		t.Errorf("omitted = %d", result.OmittedCount)
	}
	if result.Summary != "" {
		t.Errorf("summary = %q", result.Summary)
	}
}

func TestCompactWindowsAndSummarizes(t *testing.T) {
	c := NewCompactor()
	msgs := messages(10)
	cfg := models.HistoryConfig{Turns: 4, MaxCharsPerMessage: 100, SummaryEnabled: true, SummaryMaxChars: 50}
	sum := &fakeSummarizer{summary: "earlier discussion recap"}

	result, err := c.Compact(context.Background(), msgs, cfg, sum)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if result.OmittedCount != 6 {
		t.Errorf("omitted = %d, want 6", result.OmittedCount)
	}
	// One synthetic system message plus the 4-message window.
	if len(result.Messages) != 5 {
		t.Fatalf("len = %d, want 5", len(result.Messages))
	}
	first := result.Messages[0]
	if first.Role != models.RoleSystem || !strings.Contains(first.Content, "earlier discussion recap") {
		t.Errorf("summary message = %+v", first)
	}
	if !strings.Contains(first.Content, "6 earlier messages") {
		t.Errorf("summary message should name the omitted count: %q", first.Content)
	}
	if result.Messages[1].Content != "message 6" {
		t.Errorf("window start = %q", result.Messages[1].Content)
	}
}

func TestCompactCachesSummaryByPrefix(t *testing.T) {
	c := NewCompactor()
	msgs := messages(10)
	cfg := models.HistoryConfig{Turns: 4, MaxCharsPerMessage: 100, SummaryEnabled: true, SummaryMaxChars: 50}
	sum := &fakeSummarizer{summary: "recap"}

	for i := 0; i < 3; i++ {
		if _, err := c.Compact(context.Background(), msgs, cfg, sum); err != nil {
			t.Fatalf("Compact: %v", err)
		}
	}
	if sum.calls != 1 {
		t.Errorf("summarizer calls = %d, want 1 (cached)", sum.calls)
	}

	// A different prefix misses the cache.
	grown := messages(12)
	if _, err := c.Compact(context.Background(), grown, cfg, sum); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if sum.calls != 2 {
		t.Errorf("summarizer calls = %d, want 2", sum.calls)
	}
}

func TestCompactDegradesOnSummaryFailure(t *testing.T) {
	c := NewCompactor()
	msgs := messages(10)
	cfg := models.HistoryConfig{Turns: 4, MaxCharsPerMessage: 100, SummaryEnabled: true, SummaryMaxChars: 50}
	sum := &fakeSummarizer{err: errors.New("provider down")}

	result, err := c.Compact(context.Background(), msgs, cfg, sum)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if len(result.Messages) != 4 {
		t.Errorf("len = %d, want plain window", len(result.Messages))
	}
	if result.OmittedCount != 6 {
		t.Errorf("omitted = %d", result.OmittedCount)
	}
}

func TestCompactNilSummarizerDisablesSummary(t *testing.T) {
	c := NewCompactor()
	result, err := c.Compact(context.Background(), messages(10),
		models.HistoryConfig{Turns: 4, MaxCharsPerMessage: 100, SummaryEnabled: true, SummaryMaxChars: 50}, nil)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if len(result.Messages) != 4 {
		t.Errorf("len = %d", len(result.Messages))
	}
}

func TestTruncateMessageKeepsHeadAndTail(t *testing.T) {
	content := strings.Repeat("a", 50) + strings.Repeat("z", 50)
	m := truncateMessage(models.ChatMessage{Role: models.RoleUser, Content: content}, 20)
	if !strings.Contains(m.Content, TruncationMarker) {
		t.Fatalf("marker missing: %q", m.Content)
	}
	if !strings.HasPrefix(m.Content, "aaaaaaaaaa") {
		t.Errorf("head lost: %q", m.Content)
	}
	if !strings.HasSuffix(m.Content, "zzzzzzzzzz") {
		t.Errorf("tail lost: %q", m.Content)
	}
}

func TestCompactDoesNotMutateInput(t *testing.T) {
	c := NewCompactor()
	long := models.ChatMessage{Role: models.RoleUser, Content: strings.Repeat("x", 500)}
	msgs := []models.ChatMessage{long}
	cfg := models.HistoryConfig{Turns: 4, MaxCharsPerMessage: 10, SummaryEnabled: false, SummaryMaxChars: 50}

	if _, err := c.Compact(context.Background(), msgs, cfg, nil); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if len(msgs[0].Content) != 500 {
		t.Errorf("input mutated: len = %d", len(msgs[0].Content))
	}
}
