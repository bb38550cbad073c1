package toolclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"opsbot/internal/agent/ports"
	apperrors "opsbot/internal/errors"
	"opsbot/internal/observability"
	id "opsbot/internal/shared/id"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// errNoResult marks an executor that returned neither a payload nor an error.
var errNoResult = errors.New("tool returned no result")

// CallOption customises a single dispatch.
type CallOption func(*ports.ToolCall)

// WithCallContext attaches caller-supplied context to the tool call.
func WithCallContext(values map[string]any) CallOption {
	return func(call *ports.ToolCall) { call.Context = values }
}

// WithCallID overrides the generated call identifier.
func WithCallID(callID string) CallOption {
	return func(call *ports.ToolCall) {
		if callID != "" {
			call.ID = callID
		}
	}
}

// CallTool validates, serves from cache or executes the named tool and
// returns its result payload. Failures are *errors.ToolError values with
// code NOT_CONNECTED, TOOL_NOT_FOUND, INVALID_PARAMETERS or EXECUTION_FAILED.
func (c *Client) CallTool(ctx context.Context, name string, params map[string]any, opts ...CallOption) (any, error) {
	call := ports.ToolCall{ID: id.NewCallID(), Name: name, Parameters: params}
	for _, opt := range opts {
		opt(&call)
	}
	result, err := c.dispatch(ctx, call)
	if err != nil {
		return nil, err
	}
	return result.Result, nil
}

// CallToolsBatch runs every call concurrently, each subject to the shared
// gate. The returned slice matches calls by index; one member's failure is
// captured in its own slot and never affects the others.
func (c *Client) CallToolsBatch(ctx context.Context, calls []ports.ToolCall) []ports.ToolResult {
	ctx, span := c.tracer.Start(ctx, observability.SpanToolBatch,
		trace.WithAttributes(observability.AttrToolCallCount.Int(len(calls))))
	defer span.End()

	results := make([]ports.ToolResult, len(calls))
	var group errgroup.Group
	for i, call := range calls {
		if call.ID == "" {
			call.ID = id.NewCallID()
		}
		group.Go(func() error {
			results[i] = c.Invoke(ctx, call)
			return nil
		})
	}
	_ = group.Wait()
	return results
}

// Invoke dispatches call and always returns a ToolResult, converting any
// failure into the result's error descriptor.
func (c *Client) Invoke(ctx context.Context, call ports.ToolCall) ports.ToolResult {
	start := time.Now()
	result, err := c.dispatch(ctx, call)
	if err == nil {
		return result
	}
	if result.ID != "" {
		// Execution failures already carry a fully populated result.
		return result
	}
	return failureResult(call, toToolError(call.Name, err), start)
}

func (c *Client) dispatch(ctx context.Context, call ports.ToolCall) (result ports.ToolResult, err error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, observability.SpanToolCall,
		trace.WithAttributes(observability.AttrToolName.String(call.Name)))
	defer func() { observability.EndSpan(span, err) }()

	tool, err := c.lookup(call.Name)
	if err != nil {
		return ports.ToolResult{}, err
	}
	if err := validateParameters(tool, call.Parameters); err != nil {
		c.logger.Debug("Rejected call %s to %s: %v", call.ID, call.Name, err)
		return ports.ToolResult{}, err
	}

	useCache := c.cacheEnabled.Load()
	var key string
	if useCache {
		key, err = CacheKey(call.Name, call.Parameters)
		if err != nil {
			c.logger.Warn("Bypassing cache for %s: %v", call.Name, err)
			useCache = false
		}
	}

	if useCache {
		if cached, ok := c.cache.Get(key); ok {
			span.SetAttributes(observability.AttrToolCached.Bool(true))
			result = successResult(call, cached, start)
			result.Cached = true
			c.complete(ctx, result)
			return result, nil
		}
	}

	value, execErr := c.execute(ctx, call)
	if execErr == nil && value == nil {
		execErr = errNoResult
	}
	if execErr != nil {
		toolErr := apperrors.NewToolError(apperrors.CodeExecutionFailed, call.Name, "tool execution failed", execErr)
		var inner *apperrors.ToolError
		if errors.As(execErr, &inner) {
			toolErr.Message = inner.Message
		}
		result = failureResult(call, toolErr, start)
		c.complete(ctx, result)
		c.logger.Warn("Tool %s failed after %.1fms: %v", call.Name, result.ExecutionTime, execErr)
		return result, toolErr
	}

	if useCache {
		c.cache.Put(key, value, c.opts.CacheTimeout)
	}
	result = successResult(call, value, start)
	c.complete(ctx, result)
	c.logger.Debug("Tool %s succeeded in %.1fms", call.Name, result.ExecutionTime)
	return result, nil
}

type execOutcome struct {
	value any
	err   error
}

// execute holds one gate slot for as long as the executor runs and races it
// against the configured timeout. An execution abandoned by the timeout keeps
// its slot until it actually returns, so the in-flight bound stays exact.
func (c *Client) execute(ctx context.Context, call ports.ToolCall) (any, error) {
	if c.executor == nil {
		return nil, errors.New("no tool executor configured")
	}
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for execution slot: %w", err)
	}
	c.metrics.IncInFlight()

	execCtx, cancel := context.WithCancel(ctx)
	if c.opts.Timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
	}
	defer cancel()

	done := make(chan execOutcome, 1)
	go func() {
		defer func() {
			c.metrics.DecInFlight()
			c.gate.Release(1)
		}()
		defer func() {
			if r := recover(); r != nil {
				done <- execOutcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		value, err := apperrors.RetryWithResultAndLog(execCtx, c.retryConfig(), func(ctx context.Context) (any, error) {
			return c.executor.Execute(ctx, call)
		}, c.logger)
		done <- execOutcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-execCtx.Done():
		if ctx.Err() == nil && errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("tool execution timed out after %v", c.opts.Timeout)
		}
		return nil, fmt.Errorf("tool execution cancelled: %w", execCtx.Err())
	}
}

func (c *Client) retryConfig() apperrors.RetryConfig {
	return apperrors.RetryConfig{
		MaxAttempts:  c.opts.RetryAttempts - 1,
		BaseDelay:    c.opts.RetryDelay,
		MaxDelay:     60 * time.Second,
		JitterFactor: 0.25,
	}
}

// complete records a finished call in stats, metrics and observers.
func (c *Client) complete(ctx context.Context, result ports.ToolResult) {
	c.stats.Record(result.Success, result.ExecutionTime, result.Cached)
	c.metrics.RecordToolCall(result.ToolName, result.Success, result.Cached,
		time.Duration(result.ExecutionTime*float64(time.Millisecond)))
	for _, observer := range c.observers {
		observer.ObserveCall(ctx, result)
	}
}

func successResult(call ports.ToolCall, value any, start time.Time) ports.ToolResult {
	return ports.ToolResult{
		ID:            call.ID,
		ToolName:      call.Name,
		Success:       true,
		Result:        value,
		ExecutionTime: elapsedMs(start),
		Timestamp:     time.Now(),
	}
}

func failureResult(call ports.ToolCall, toolErr *apperrors.ToolError, start time.Time) ports.ToolResult {
	return ports.ToolResult{
		ID:            call.ID,
		ToolName:      call.Name,
		Success:       false,
		Error:         toolErr,
		ExecutionTime: elapsedMs(start),
		Timestamp:     time.Now(),
	}
}

func toToolError(tool string, err error) *apperrors.ToolError {
	var toolErr *apperrors.ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}
	return apperrors.NewToolError(apperrors.CodeExecutionFailed, tool, "tool execution failed", err)
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
