// Package retry decides whether a failed chunk transaction is attempted again.
package retry

import (
	"context"
	"time"

	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// RetryPolicy is consulted after a chunk transaction was rolled back.
type RetryPolicy interface {
	// ShouldRetry reports whether err is worth another attempt.
	ShouldRetry(err error) bool
	// GetBackoffInterval returns the wait before attempt (2 for the first retry).
	GetBackoffInterval(attempt int) time.Duration
	// GetMaxAttempts returns the total number of attempts, including the first.
	GetMaxAttempts() int
}

// NewRetryPolicy builds a policy from surfin.batch.retry.
func NewRetryPolicy(cfg config.RetryConfig) RetryPolicy {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &defaultRetryPolicy{
		maxAttempts:     attempts,
		initialInterval: time.Duration(cfg.IntervalMillis) * time.Millisecond,
		retryableErrors: cfg.RetryableErrors,
	}
}

// NoRetry never retries.
func NoRetry() RetryPolicy {
	return &defaultRetryPolicy{maxAttempts: 1}
}

// defaultRetryPolicy retries temporary errors and errors named in retryableErrors,
// with exponential backoff starting at initialInterval.
type defaultRetryPolicy struct {
	maxAttempts     int
	initialInterval time.Duration
	retryableErrors []string
}

func (p *defaultRetryPolicy) GetMaxAttempts() int {
	return p.maxAttempts
}

func (p *defaultRetryPolicy) ShouldRetry(err error) bool {
	if err == nil || p.maxAttempts <= 1 {
		return false
	}
	if exception.IsTemporary(err) {
		return true
	}
	for _, name := range p.retryableErrors {
		if exception.IsErrorOfType(err, name) {
			return true
		}
	}
	return false
}

func (p *defaultRetryPolicy) GetBackoffInterval(attempt int) time.Duration {
	if attempt < 2 {
		return 0
	}
	return p.initialInterval << (attempt - 2)
}

var _ RetryPolicy = (*defaultRetryPolicy)(nil)

// Do calls fn until it succeeds, the policy gives up, or ctx is done.
// name identifies the operation in log messages.
func Do(ctx context.Context, policy RetryPolicy, name string, fn func(attempt int) error) error {
	var err error
	for attempt := 1; attempt <= policy.GetMaxAttempts(); attempt++ {
		if attempt > 1 {
			wait := policy.GetBackoffInterval(attempt)
			logger.Warnf("%s: attempt %d/%d after %v: %v", name, attempt, policy.GetMaxAttempts(), wait, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err = fn(attempt); err == nil || !policy.ShouldRetry(err) {
			return err
		}
	}
	return err
}
