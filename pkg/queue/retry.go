package queue

import (
	"time"

	"github.com/daylogger/daylog/config"
	dlerrors "github.com/daylogger/daylog/pkg/errors"
)

// RetryPolicy defines retry behavior for failed pipeline runs.
type RetryPolicy struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	BackoffFactor  float64       `yaml:"backoff_factor"`
}

// DefaultRetryPolicy returns the default retry policy: three attempts with
// exponential backoff starting at one second, capped at five minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     config.DefaultMaxAttempts,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     5 * time.Minute,
		BackoffFactor:  2.0,
	}
}

// PolicyFromConfig builds a RetryPolicy from the pipeline retry config.
func PolicyFromConfig(rc config.RetryConfig) RetryPolicy {
	p := DefaultRetryPolicy()
	if rc.MaxAttempts > 0 {
		p.MaxRetries = rc.MaxAttempts
	}
	if rc.InitialBackoff > 0 {
		p.InitialBackoff = rc.InitialBackoff
	}
	if rc.MaxBackoff > 0 {
		p.MaxBackoff = rc.MaxBackoff
	}
	if rc.BackoffFactor > 1 {
		p.BackoffFactor = rc.BackoffFactor
	}
	return p
}

// CalculateBackoff returns the backoff duration before the given retry.
// retryCount is the number of failures so far.
func (p RetryPolicy) CalculateBackoff(retryCount int) time.Duration {
	if retryCount <= 0 {
		return p.InitialBackoff
	}

	backoff := p.InitialBackoff
	for i := 0; i < retryCount; i++ {
		backoff = time.Duration(float64(backoff) * p.BackoffFactor)
		if backoff > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return backoff
}

// RetryDecision is the outcome of a retry check.
type RetryDecision struct {
	ShouldRetry     bool
	BackoffDuration time.Duration
	Reason          string
}

// DecideRetry decides whether a failed run should be retried. Only errors
// classified as retryable (transient, rate limit, persistence) earn another
// attempt; malformed responses and validation failures never do, since
// replaying the same input reproduces them.
func (p RetryPolicy) DecideRetry(err error, retryCount int) RetryDecision {
	if retryCount >= p.MaxRetries {
		return RetryDecision{
			ShouldRetry: false,
			Reason:      "max retries exceeded",
		}
	}

	if !dlerrors.IsRetryable(err) {
		return RetryDecision{
			ShouldRetry: false,
			Reason:      "permanent error: " + string(dlerrors.CodeOf(err)),
		}
	}

	return RetryDecision{
		ShouldRetry:     true,
		BackoffDuration: p.CalculateBackoff(retryCount),
		Reason:          "retryable error",
	}
}
