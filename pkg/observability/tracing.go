package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the name of the tracer for pipeline operations.
const TracerName = "daylog"

// Span attribute keys
const (
	AttrUserID     = "user_id"
	AttrMessageID  = "message_id"
	AttrSource     = "source"
	AttrStage      = "stage"
	AttrOrdinal    = "ordinal"
	AttrTicketKey  = "ticket_key"
	AttrTier       = "tier"
	AttrConfidence = "confidence"
	AttrModel      = "model"
	AttrDurationMs = "duration_ms"
	AttrErrorType  = "error_type"
	AttrRetryable  = "retryable"
)

// Span names
const (
	SpanProcessMessage = "daylog.process_message"
	SpanAnalyze        = "daylog.stage.analyze"
	SpanMatch          = "daylog.stage.match"
	SpanRoute          = "daylog.stage.route"
	SpanPersist        = "daylog.stage.persist"
	SpanInferenceCall  = "daylog.inference_call"
	SpanGenerateReport = "daylog.generate_report"
)

// Tracer provides distributed tracing for pipeline operations.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a pipeline tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(TracerName),
	}
}

// StartMessageSpan starts the root span for one message's pipeline run.
func (t *Tracer) StartMessageSpan(ctx context.Context, userID, messageID, source string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanProcessMessage,
		trace.WithAttributes(
			attribute.String(AttrUserID, userID),
			attribute.String(AttrMessageID, messageID),
			attribute.String(AttrSource, source),
		),
	)
}

// StartStageSpan starts a span for a pipeline stage.
func (t *Tracer) StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("daylog.stage.%s", stage),
		trace.WithAttributes(
			attribute.String(AttrStage, stage),
		),
	)
}

// StartInferenceSpan starts a span for an inference call.
func (t *Tracer) StartInferenceSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanInferenceCall,
		trace.WithAttributes(
			attribute.String(AttrModel, model),
		),
	)
}

// SpanHelper wraps common attribute and status patterns on a span.
type SpanHelper struct {
	span trace.Span
}

// NewSpanHelper creates a helper for the given span.
func NewSpanHelper(span trace.Span) *SpanHelper {
	return &SpanHelper{span: span}
}

// SetRouting sets routing decision attributes.
func (h *SpanHelper) SetRouting(ordinal int, tier string, confidence float64) {
	h.span.SetAttributes(
		attribute.Int(AttrOrdinal, ordinal),
		attribute.String(AttrTier, tier),
		attribute.Float64(AttrConfidence, confidence),
	)
}

// SetTicket sets the linked ticket attribute.
func (h *SpanHelper) SetTicket(key string) {
	h.span.SetAttributes(attribute.String(AttrTicketKey, key))
}

// SetDuration sets the duration attribute.
func (h *SpanHelper) SetDuration(durationMs int64) {
	h.span.SetAttributes(attribute.Int64(AttrDurationMs, durationMs))
}

// SetError records an error on the span.
func (h *SpanHelper) SetError(err error, errorType string, retryable bool) {
	h.span.SetStatus(codes.Error, err.Error())
	h.span.SetAttributes(
		attribute.String(AttrErrorType, errorType),
		attribute.Bool(AttrRetryable, retryable),
	)
	h.span.RecordError(err)
}

// SetSuccess marks the span as successful.
func (h *SpanHelper) SetSuccess() {
	h.span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
