package analyzer

import (
	"context"
	"time"

	dlerrors "github.com/daylogger/daylog/pkg/errors"
	"github.com/daylogger/daylog/pkg/observability"
)

// InstrumentedClient wraps a Client with an inference span and call metrics
// per Complete. The operation label distinguishes the extraction pass from
// the ticket ranking pass on shared metric series.
type InstrumentedClient struct {
	inner     Client
	metrics   *observability.PipelineMetrics
	tracer    *observability.Tracer
	operation string
	model     string
}

// NewInstrumentedClient wraps inner. metrics may be nil; spans are always
// emitted.
func NewInstrumentedClient(inner Client, metrics *observability.PipelineMetrics, operation, model string) *InstrumentedClient {
	return &InstrumentedClient{
		inner:     inner,
		metrics:   metrics,
		tracer:    observability.NewTracer(),
		operation: operation,
		model:     model,
	}
}

// Complete delegates to the wrapped client, recording latency, status, and
// the span for the call.
func (c *InstrumentedClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	ctx, span := c.tracer.StartInferenceSpan(ctx, c.model)
	defer span.End()
	helper := observability.NewSpanHelper(span)

	start := time.Now()
	resp, err := c.inner.Complete(ctx, req)
	elapsed := time.Since(start)
	helper.SetDuration(elapsed.Milliseconds())

	if err != nil {
		pe := dlerrors.Classify(err, "inference")
		helper.SetError(pe, string(pe.Code), dlerrors.IsRetryable(pe))
		if c.metrics != nil {
			c.metrics.RecordInference(c.operation, c.model, "error", elapsed.Seconds())
		}
		return nil, err
	}

	helper.SetSuccess()
	model := resp.Model
	if model == "" {
		model = c.model
	}
	if c.metrics != nil {
		c.metrics.RecordInference(c.operation, model, "success", elapsed.Seconds())
	}
	return resp, nil
}
