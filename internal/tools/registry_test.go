package tools

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nexar-labs/nexar/pkg/models"
)

type stubTool struct {
	actionType models.ActionType
	execute    func(ctx context.Context, input json.RawMessage) (*Result, error)
}

func (s *stubTool) Type() models.ActionType { return s.actionType }
func (s *stubTool) Description() string     { return "stub" }
func (s *stubTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }

func (s *stubTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	return s.execute(ctx, input)
}

func TestExecuteUnknownActionType(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	_, err := r.Execute(context.Background(), models.ActionScanWorkspace, nil, time.Second)
	te, ok := IsToolError(err)
	if !ok || te.Kind != KindNotFound {
		t.Fatalf("err = %v, want not_found", err)
	}
}

func TestExecuteOversizedInput(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	r.Register(&stubTool{
		actionType: models.ActionRunCommand,
		execute: func(context.Context, json.RawMessage) (*Result, error) {
			t.Error("tool must not run on oversized input")
			return nil, nil
		},
	})
	_, err := r.Execute(context.Background(), models.ActionRunCommand,
		make(json.RawMessage, MaxInputSize+1), time.Second)
	te, ok := IsToolError(err)
	if !ok || te.Kind != KindInvalidInput {
		t.Fatalf("err = %v, want invalid_input", err)
	}
}

func TestExecuteTimesOut(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	r.Register(&stubTool{
		actionType: models.ActionRunCommand,
		execute: func(ctx context.Context, _ json.RawMessage) (*Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	_, err := r.Execute(context.Background(), models.ActionRunCommand,
		json.RawMessage(`{}`), 20*time.Millisecond)
	te, ok := IsToolError(err)
	if !ok || te.Kind != KindTimeout {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestExecuteParentCancellation(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	r.Register(&stubTool{
		actionType: models.ActionRunCommand,
		execute: func(ctx context.Context, _ json.RawMessage) (*Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := r.Execute(ctx, models.ActionRunCommand, json.RawMessage(`{}`), time.Minute)
	te, ok := IsToolError(err)
	if !ok || te.Kind != KindCancelled {
		t.Fatalf("err = %v, want cancelled", err)
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	r.Register(&stubTool{
		actionType: models.ActionRunCommand,
		execute: func(context.Context, json.RawMessage) (*Result, error) {
			panic("boom")
		},
	})
	_, err := r.Execute(context.Background(), models.ActionRunCommand, json.RawMessage(`{}`), time.Second)
	te, ok := IsToolError(err)
	if !ok {
		t.Fatalf("err = %v, want ToolError", err)
	}
	if te.Kind != KindIO || te.Message != "panic: boom" {
		t.Errorf("error = %+v", te)
	}
}

func TestExecuteSuccess(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	r.Register(&stubTool{
		actionType: models.ActionRunCommand,
		execute: func(_ context.Context, input json.RawMessage) (*Result, error) {
			return &Result{Output: input, Detail: "ok"}, nil
		},
	})
	result, err := r.Execute(context.Background(), models.ActionRunCommand,
		json.RawMessage(`{"command":"true"}`), time.Second)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Detail != "ok" {
		t.Errorf("detail = %q", result.Detail)
	}
}

func TestExecutePoolBoundsConcurrency(t *testing.T) {
	r := NewRegistry(RegistryConfig{PoolSize: 1})
	var inFlight, maxInFlight atomic.Int32
	r.Register(&stubTool{
		actionType: models.ActionRunCommand,
		execute: func(context.Context, json.RawMessage) (*Result, error) {
			n := inFlight.Add(1)
			if n > maxInFlight.Load() {
				maxInFlight.Store(n)
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			return &Result{}, nil
		},
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Execute(context.Background(), models.ActionRunCommand,
				json.RawMessage(`{}`), time.Second); err != nil {
				t.Errorf("Execute: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxInFlight.Load() != 1 {
		t.Errorf("max concurrent executions = %d, want 1", maxInFlight.Load())
	}
}

func TestTypesFollowsCanonicalOrder(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	r.Register(&stubTool{actionType: models.ActionFinalAnswer})
	r.Register(&stubTool{actionType: models.ActionScanWorkspace})

	types := r.Types()
	if len(types) != 2 {
		t.Fatalf("types = %v", types)
	}
	if types[0] != models.ActionScanWorkspace || types[1] != models.ActionFinalAnswer {
		t.Errorf("order = %v", types)
	}
}
