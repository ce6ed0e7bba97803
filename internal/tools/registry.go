package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/nexar-labs/nexar/internal/observability"
	"github.com/nexar-labs/nexar/pkg/models"
)

// MaxInputSize bounds a single action's input payload.
const MaxInputSize = 10 << 20 // 10MB

// Registry dispatches action executions to the registered tools. A
// shared semaphore bounds concurrent executions across all runs, and
// every execution runs under its action's timeout with panic recovery.
type Registry struct {
	mu      sync.RWMutex
	tools   map[models.ActionType]Tool
	sem     chan struct{}
	logger  *observability.Logger
	metrics *observability.Metrics
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// PoolSize bounds concurrent tool executions. Default 16.
	PoolSize int

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.LogConfig{Level: "error"})
	}
	return &Registry{
		tools:   make(map[models.ActionType]Tool),
		sem:     make(chan struct{}, cfg.PoolSize),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Register adds a tool. Registering the same action type twice replaces
// the earlier tool.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Type()] = tool
}

// Get returns the tool serving an action type.
func (r *Registry) Get(actionType models.ActionType) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[actionType]
	return tool, ok
}

// Types returns the registered action types.
func (r *Registry) Types() []models.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ActionType, 0, len(r.tools))
	for _, t := range models.AllActionTypes() {
		if _, ok := r.tools[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Execute runs one action under the pool semaphore and the given
// timeout. Unknown action types and oversized inputs fail without
// touching the pool.
func (r *Registry) Execute(ctx context.Context, actionType models.ActionType, input json.RawMessage, timeout time.Duration) (*Result, error) {
	tool, ok := r.Get(actionType)
	if !ok {
		return nil, NewToolError(string(actionType), KindNotFound, "unknown action type")
	}
	if len(input) > MaxInputSize {
		return nil, NewToolError(string(actionType), KindInvalidInput,
			fmt.Sprintf("input exceeds %d bytes", MaxInputSize))
	}

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return nil, r.cancellationError(actionType, ctx)
	}

	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := r.executeGuarded(execCtx, tool, input)
	elapsed := time.Since(start)

	if err != nil {
		// Prefer the cause recorded on ctx over whatever the tool
		// surfaced while being torn down.
		if execCtx.Err() != nil {
			err = r.cancellationError(actionType, execCtx)
			if parentErr := ctx.Err(); parentErr == context.Canceled {
				err = NewToolError(string(actionType), KindCancelled, "execution cancelled")
			}
		}
		if r.metrics != nil {
			r.metrics.RecordToolExecution(string(actionType), "error", elapsed.Seconds())
			r.metrics.RecordError("tool", string(ErrorKindOf(err)))
		}
		r.logger.Warn(ctx, "action failed", "action_type", actionType, "elapsed", elapsed, "error", err)
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.RecordToolExecution(string(actionType), "success", elapsed.Seconds())
	}
	r.logger.Debug(ctx, "action completed", "action_type", actionType, "elapsed", elapsed)
	return result, nil
}

// executeGuarded runs the tool in its own goroutine so a timeout can
// abandon it, and converts panics into invalid_input errors.
func (r *Registry) executeGuarded(ctx context.Context, tool Tool, input json.RawMessage) (*Result, error) {
	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error(ctx, "tool panic",
					"action_type", tool.Type(),
					"panic", fmt.Sprint(rec),
					"stack", string(debug.Stack()),
				)
				done <- outcome{err: NewToolError(string(tool.Type()), KindIO, fmt.Sprintf("panic: %v", rec))}
			}
		}()
		result, err := tool.Execute(ctx, input)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, r.cancellationError(tool.Type(), ctx)
	}
}

func (r *Registry) cancellationError(actionType models.ActionType, ctx context.Context) *ToolError {
	if ctx.Err() == context.DeadlineExceeded {
		return NewToolError(string(actionType), KindTimeout, "execution timed out")
	}
	return NewToolError(string(actionType), KindCancelled, "execution cancelled")
}
