package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nexar-labs/nexar/pkg/models"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestRetryDoSucceedsAfterTransient(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return NewProviderError("p", KindTransport, "flaky", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return NewProviderError("p", KindAuth, "bad key", nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return NewProviderError("p", KindTimeout, "slow", nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryDoHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}.Do(ctx, func() error {
		return NewProviderError("p", KindTransport, "flaky", nil)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestDelayCapped(t *testing.T) {
	p := DefaultRetryPolicy()
	if got := p.Delay(0); got != 500*time.Millisecond {
		t.Errorf("Delay(0) = %v", got)
	}
	if got := p.Delay(1); got != time.Second {
		t.Errorf("Delay(1) = %v", got)
	}
	if got := p.Delay(10); got != 4*time.Second {
		t.Errorf("Delay(10) = %v, want cap", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"the quick brown fox", 5},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestResolveUsagePrefersProvider(t *testing.T) {
	usage := resolveUsage(10, 5, nil, "")
	if usage.Source != "provider" || usage.Total != 15 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestResolveUsageEstimates(t *testing.T) {
	prompt := []models.ChatMessage{{Role: models.RoleUser, Content: "abcdefgh"}}
	usage := resolveUsage(0, 0, prompt, "abcd")
	if usage.Source != "estimated" {
		t.Errorf("source = %q", usage.Source)
	}
	if usage.Input != 2 || usage.Output != 1 || usage.Total != 3 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestCompilePromptDoesNotMutate(t *testing.T) {
	messages := []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}}
	prompt := compilePrompt(messages, "system text")
	if len(prompt) != 2 {
		t.Fatalf("prompt length = %d", len(prompt))
	}
	if prompt[0].Role != models.RoleSystem {
		t.Errorf("first role = %s", prompt[0].Role)
	}
	if len(messages) != 1 {
		t.Errorf("caller slice mutated: %v", messages)
	}
}
