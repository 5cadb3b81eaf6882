package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode classifies a pipeline failure.
type ErrorCode string

const (
	// CodeTransient covers timeouts, 5xx responses, and connection errors
	// from the inference service. Retried by the orchestrator with backoff.
	CodeTransient ErrorCode = "transient"

	// CodeRateLimit is a transient subtype for 429/quota responses.
	CodeRateLimit ErrorCode = "rate_limit"

	// CodeMalformedResponse means the inference service returned content
	// the analyzer could not parse. Not retried; the analyzer recovers
	// locally with a fallback extraction.
	CodeMalformedResponse ErrorCode = "malformed_response"

	// CodeValidation means the input shape was rejected before processing.
	CodeValidation ErrorCode = "validation"

	// CodeCapacityExceeded means the weekly distributor could not place
	// all work within the week. Reported, never thrown on the hot path.
	CodeCapacityExceeded ErrorCode = "capacity_exceeded"

	// CodePersistence means the work item store was unreachable. The
	// pipeline run aborts and the message stays eligible for retry.
	CodePersistence ErrorCode = "persistence"

	// CodeCancelled means the source message was cancelled mid-flight.
	CodeCancelled ErrorCode = "cancelled"

	// CodeProcessing is the default for unclassified failures.
	CodeProcessing ErrorCode = "processing_error"
)

// codeInfo describes how the orchestrator should treat an error code.
type codeInfo struct {
	Retryable   bool
	Description string
}

// errorCodeRegistry maps each code to its retry classification.
var errorCodeRegistry = map[ErrorCode]codeInfo{
	CodeTransient:         {Retryable: true, Description: "transient external failure (timeout, 5xx)"},
	CodeRateLimit:         {Retryable: true, Description: "inference service rate limit"},
	CodePersistence:       {Retryable: true, Description: "work item store unreachable"},
	CodeMalformedResponse: {Retryable: false, Description: "unparseable inference response, recovered by fallback"},
	CodeValidation:        {Retryable: false, Description: "input rejected before processing"},
	CodeCapacityExceeded:  {Retryable: false, Description: "weekly capacity overflow, reported not thrown"},
	CodeCancelled:         {Retryable: false, Description: "source message cancelled mid-flight"},
	CodeProcessing:        {Retryable: false, Description: "unclassified processing failure"},
}

// PipelineError is a structured error for pipeline failures.
type PipelineError struct {
	Code     ErrorCode
	Stage    string
	Message  string
	Duration time.Duration
	Timeout  time.Duration
	Cause    error
}

func (e *PipelineError) Error() string {
	if e.Timeout > 0 && e.Duration > 0 {
		return fmt.Sprintf("%s: %s timed out after %s (limit: %s)", e.Code, e.Stage, e.Duration.Truncate(time.Millisecond), e.Timeout.Truncate(time.Millisecond))
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// NewPipelineError builds a PipelineError with an explicit code.
func NewPipelineError(code ErrorCode, stage, message string, cause error) *PipelineError {
	return &PipelineError{Code: code, Stage: stage, Message: message, Cause: cause}
}

// Classify inspects an error and returns a *PipelineError with the
// appropriate code. Errors that are already PipelineErrors pass through
// unchanged; unknown errors default to CodeProcessing.
func Classify(err error, stage string) *PipelineError {
	if err == nil {
		return nil
	}

	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}

	out := &PipelineError{Stage: stage, Cause: err, Message: err.Error()}

	if errors.Is(err, context.DeadlineExceeded) {
		out.Code = CodeTransient
		out.Message = "operation timed out"
		return out
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
		out.Code = CodeCancelled
		out.Message = "operation cancelled"
		return out
	}
	if errors.Is(err, ErrValidation) {
		out.Code = CodeValidation
		return out
	}

	lower := strings.ToLower(err.Error())

	if strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") || strings.Contains(lower, "too many requests") || strings.Contains(lower, "quota exceeded") {
		out.Code = CodeRateLimit
		return out
	}
	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "unavailable") || strings.Contains(lower, "502") || strings.Contains(lower, "503") || strings.Contains(lower, "no such host") || strings.Contains(lower, "timeout") {
		out.Code = CodeTransient
		return out
	}

	out.Code = CodeProcessing
	return out
}

// IsRetryable reports whether the error is transient and worth retrying,
// per the error code registry. Unknown codes and plain errors are not
// retryable.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		if info, ok := errorCodeRegistry[pe.Code]; ok {
			return info.Retryable
		}
		return false
	}
	return false
}

// CodeOf returns the error code of err, or CodeProcessing if err carries
// no PipelineError.
func CodeOf(err error) ErrorCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeProcessing
}
