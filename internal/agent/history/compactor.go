// Package history bounds the conversational context compiled for LLM
// calls: it windows recent turns, truncates oversized messages, and
// optionally folds older turns into one synthetic summary message.
package history

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/nexar-labs/nexar/pkg/models"
)

// TruncationMarker joins the head and tail of an over-long message.
const TruncationMarker = "\n…[truncated]…\n"

// summarySystemPrompt is the fixed instruction for history summaries.
const summarySystemPrompt = "Compress the prior conversation turns into a short brief. Preserve decisions, constraints, and open questions. Reply with the brief only."

// Summarizer produces a bounded summary of older conversation turns.
type Summarizer interface {
	Summarize(ctx context.Context, content string, maxChars int) (string, error)
}

// Compactor derives the bounded prompt view of a run's messages.
// Summaries are cached by a hash of the older-message prefix, so the
// LLM is only consulted again when that prefix changes.
type Compactor struct {
	mu    sync.Mutex
	cache map[string]string
}

// NewCompactor creates a compactor with an empty summary cache.
func NewCompactor() *Compactor {
	return &Compactor{cache: make(map[string]string)}
}

// Result carries the compacted view plus bookkeeping for planner input.
type Result struct {
	Messages     []models.ChatMessage
	OmittedCount int
	Summary      string
}

// Compact returns the prompt messages for one LLM call. The input slice
// is never mutated. summarizer may be nil, which disables summaries
// regardless of configuration.
func (c *Compactor) Compact(ctx context.Context, messages []models.ChatMessage, cfg models.HistoryConfig, summarizer Summarizer) (Result, error) {
	cfg = cfg.Normalize()

	keep := len(messages)
	if keep > cfg.Turns {
		keep = cfg.Turns
	}
	older := messages[:len(messages)-keep]
	recent := messages[len(messages)-keep:]

	out := make([]models.ChatMessage, 0, len(recent)+1)
	result := Result{OmittedCount: len(older)}

	if len(older) > 0 && cfg.SummaryEnabled && summarizer != nil {
		summary, err := c.summarize(ctx, older, cfg.SummaryMaxChars, summarizer)
		if err != nil {
			// A failed summary degrades to a plain window; the planner
			// still sees the omitted count.
			summary = ""
		}
		if summary != "" {
			result.Summary = summary
			out = append(out, models.ChatMessage{
				Role:    models.RoleSystem,
				Content: fmt.Sprintf("Summary of %d earlier messages: %s", len(older), summary),
			})
		}
	}

	for _, m := range recent {
		out = append(out, truncateMessage(m, cfg.MaxCharsPerMessage))
	}
	result.Messages = out
	return result, nil
}

func (c *Compactor) summarize(ctx context.Context, older []models.ChatMessage, maxChars int, summarizer Summarizer) (string, error) {
	key := prefixHash(older)

	c.mu.Lock()
	cached, ok := c.cache[key]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	var b strings.Builder
	for _, m := range older {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	summary, err := summarizer.Summarize(ctx, b.String(), maxChars)
	if err != nil {
		return "", err
	}
	summary = clampRunes(summary, maxChars)

	c.mu.Lock()
	c.cache[key] = summary
	c.mu.Unlock()
	return summary, nil
}

// SummaryPrompt returns the fixed system prompt used for summaries.
func SummaryPrompt() string {
	return summarySystemPrompt
}

func prefixHash(messages []models.ChatMessage) string {
	h := sha256.New()
	for _, m := range messages {
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// truncateMessage bounds one message to maxChars characters, keeping the
// first and last halves joined by the truncation marker.
func truncateMessage(m models.ChatMessage, maxChars int) models.ChatMessage {
	runes := []rune(m.Content)
	if len(runes) <= maxChars {
		return m
	}
	half := maxChars / 2
	m.Content = string(runes[:half]) + TruncationMarker + string(runes[len(runes)-half:])
	return m
}

func clampRunes(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
