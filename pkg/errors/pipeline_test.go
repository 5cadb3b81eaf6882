package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{"deadline exceeded", context.DeadlineExceeded, CodeTransient},
		{"context cancelled", context.Canceled, CodeCancelled},
		{"domain cancelled", ErrCancelled, CodeCancelled},
		{"validation sentinel", fmt.Errorf("bad shape: %w", ErrValidation), CodeValidation},
		{"rate limit text", errors.New("upstream returned 429 too many requests"), CodeRateLimit},
		{"service unavailable", errors.New("inference service unavailable (503)"), CodeTransient},
		{"connection refused", errors.New("dial tcp: connection refused"), CodeTransient},
		{"unknown", errors.New("something odd"), CodeProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := Classify(tt.err, "analyze")
			assert.Equal(t, tt.wantCode, pe.Code)
			assert.Equal(t, "analyze", pe.Stage)
			assert.ErrorIs(t, pe, tt.err)
		})
	}
}

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, Classify(nil, "analyze"))
}

func TestClassifyPassThrough(t *testing.T) {
	orig := NewPipelineError(CodeMalformedResponse, "parse", "not json", nil)
	wrapped := fmt.Errorf("stage failed: %w", orig)
	assert.Same(t, orig, Classify(wrapped, "other"))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Classify(context.DeadlineExceeded, "analyze")))
	assert.True(t, IsRetryable(NewPipelineError(CodeRateLimit, "analyze", "429", nil)))
	assert.True(t, IsRetryable(NewPipelineError(CodePersistence, "commit", "store down", nil)))
	assert.False(t, IsRetryable(NewPipelineError(CodeMalformedResponse, "parse", "garbage", nil)))
	assert.False(t, IsRetryable(NewPipelineError(CodeValidation, "normalize", "bad input", nil)))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodePersistence, CodeOf(fmt.Errorf("wrap: %w", NewPipelineError(CodePersistence, "commit", "down", nil))))
	assert.Equal(t, CodeProcessing, CodeOf(errors.New("plain")))
}
