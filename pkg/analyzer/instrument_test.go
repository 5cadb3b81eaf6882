package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daylogger/daylog/pkg/observability"
)

func TestInstrumentedClientRecordsCalls(t *testing.T) {
	metrics := observability.NewPipelineMetrics(prometheus.NewRegistry())
	inner := &fakeClient{content: `[]`}
	c := NewInstrumentedClient(inner, metrics, "extract", "gpt-4o-mini")

	_, err := c.Complete(context.Background(), &CompletionRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		metrics.InferenceCallsTotal.WithLabelValues("extract", "gpt-4o-mini", "success")))

	inner.err = errors.New("connection refused")
	_, err = c.Complete(context.Background(), &CompletionRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		metrics.InferenceCallsTotal.WithLabelValues("extract", "gpt-4o-mini", "error")))
}

func TestInstrumentedClientPrefersResponseModel(t *testing.T) {
	metrics := observability.NewPipelineMetrics(prometheus.NewRegistry())
	inner := &modelClient{model: "gpt-4o"}
	c := NewInstrumentedClient(inner, metrics, "rank", "gpt-4o-mini")

	_, err := c.Complete(context.Background(), &CompletionRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		metrics.InferenceCallsTotal.WithLabelValues("rank", "gpt-4o", "success")))
}

type modelClient struct{ model string }

func (m *modelClient) Complete(context.Context, *CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{Content: "[]", Model: m.model}, nil
}
