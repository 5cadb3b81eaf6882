// Package observability provides Prometheus metrics, OpenTelemetry tracing,
// and the completion event sink for the pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics holds the Prometheus metrics for the pipeline.
type PipelineMetrics struct {
	// Queue metrics
	QueueTasksTotal  *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
	QueueWaitSeconds *prometheus.HistogramVec
	DLQTasksTotal    *prometheus.CounterVec

	// Pipeline run metrics
	MessagesProcessedTotal *prometheus.CounterVec
	StageSeconds           *prometheus.HistogramVec
	RoutingDecisionsTotal  *prometheus.CounterVec
	RetriesTotal           *prometheus.CounterVec

	// Inference metrics
	InferenceCallsTotal      *prometheus.CounterVec
	InferenceLatencySeconds  *prometheus.HistogramVec
	ExtractionConfidence     *prometheus.HistogramVec
	FallbackExtractionsTotal *prometheus.CounterVec
}

// DefaultPipelineMetrics registers metrics on the default registerer.
func DefaultPipelineMetrics() *PipelineMetrics {
	return NewPipelineMetrics(prometheus.DefaultRegisterer)
}

// NewPipelineMetrics creates and registers the pipeline metrics.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)

	return &PipelineMetrics{
		QueueTasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "daylog_queue_tasks_total",
				Help: "Total tasks entering each queue",
			},
			[]string{"queue", "priority"},
		),
		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "daylog_queue_depth",
				Help: "Current queue depth",
			},
			[]string{"queue"},
		),
		QueueWaitSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "daylog_queue_wait_seconds",
				Help:    "Time a task spent queued before pickup",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600, 1800},
			},
			[]string{"queue", "priority"},
		),
		DLQTasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "daylog_dlq_tasks_total",
				Help: "Total tasks parked in the dead letter queue",
			},
			[]string{"queue", "error_type"},
		),

		MessagesProcessedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "daylog_messages_processed_total",
				Help: "Total pipeline runs by terminal outcome",
			},
			[]string{"source", "outcome"},
		),
		StageSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "daylog_stage_seconds",
				Help:    "Latency per pipeline stage",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"stage"},
		),
		RoutingDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "daylog_routing_decisions_total",
				Help: "Validation routing decisions by tier",
			},
			[]string{"tier"},
		),
		RetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "daylog_retries_total",
				Help: "Pipeline retries by stage and error code",
			},
			[]string{"stage", "code"},
		),

		InferenceCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "daylog_inference_calls_total",
				Help: "Total inference calls",
			},
			[]string{"operation", "model", "status"},
		),
		InferenceLatencySeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "daylog_inference_latency_seconds",
				Help:    "Inference call latency",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30, 60},
			},
			[]string{"operation", "model"},
		),
		ExtractionConfidence: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "daylog_extraction_confidence",
				Help:    "Confidence of accepted extractions",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1.0},
			},
			[]string{"source"},
		),
		FallbackExtractionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "daylog_fallback_extractions_total",
				Help: "Extractions synthesized after inference parse failures",
			},
			[]string{"source"},
		),
	}
}

// RecordOutcome records a pipeline run's terminal outcome.
func (m *PipelineMetrics) RecordOutcome(source, outcome string) {
	m.MessagesProcessedTotal.WithLabelValues(source, outcome).Inc()
}

// RecordStage records a stage's latency.
func (m *PipelineMetrics) RecordStage(stage string, seconds float64) {
	m.StageSeconds.WithLabelValues(stage).Observe(seconds)
}

// RecordRouting records a validation routing decision.
func (m *PipelineMetrics) RecordRouting(tier string) {
	m.RoutingDecisionsTotal.WithLabelValues(tier).Inc()
}

// RecordRetry records a retry attempt.
func (m *PipelineMetrics) RecordRetry(stage, code string) {
	m.RetriesTotal.WithLabelValues(stage, code).Inc()
}

// RecordInference records an inference call.
func (m *PipelineMetrics) RecordInference(operation, model, status string, seconds float64) {
	m.InferenceCallsTotal.WithLabelValues(operation, model, status).Inc()
	m.InferenceLatencySeconds.WithLabelValues(operation, model).Observe(seconds)
}

// RecordExtraction records an accepted extraction's confidence.
func (m *PipelineMetrics) RecordExtraction(source string, confidence float64) {
	m.ExtractionConfidence.WithLabelValues(source).Observe(confidence)
}

// RecordFallback records a fallback extraction.
func (m *PipelineMetrics) RecordFallback(source string) {
	m.FallbackExtractionsTotal.WithLabelValues(source).Inc()
}
