package llm

import (
	"context"
	"time"

	"opsbot/internal/agent/ports"
	"opsbot/internal/observability"

	"go.opentelemetry.io/otel/trace"
)

type instrumentedClient struct {
	base    ports.LLMClient
	tracer  trace.Tracer
	metrics *observability.Metrics
}

// WithInstrumentation records a span and Prometheus metrics for every model
// call. Both tracer and metrics may be nil.
func WithInstrumentation(client ports.LLMClient, tracer trace.Tracer, metrics *observability.Metrics) ports.LLMClient {
	if tracer == nil {
		tracer = observability.NoopTracerProvider().Tracer()
	}
	return &instrumentedClient{base: client, tracer: tracer, metrics: metrics}
}

func (c *instrumentedClient) Complete(ctx context.Context, req ports.CompletionRequest) (resp *ports.CompletionResponse, err error) {
	ctx, span := c.tracer.Start(ctx, observability.SpanLLMGenerate,
		trace.WithAttributes(observability.AttrLLMModel.String(c.base.Model())))
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()
	resp, err = c.base.Complete(ctx, req)
	var usage ports.TokenUsage
	if resp != nil {
		usage = resp.Usage
	}
	c.metrics.RecordLLMRequest(c.base.Model(), err == nil, time.Since(start), usage.PromptTokens, usage.CompletionTokens)
	return resp, err
}

func (c *instrumentedClient) Model() string {
	return c.base.Model()
}
