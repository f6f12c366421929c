package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Decision tells a caller how to react to a failed provider call.
type Decision int

const (
	// DecisionFail aborts: the error is not recoverable by retrying.
	DecisionFail Decision = iota
	// DecisionBackoff retries the same request after a backoff delay.
	DecisionBackoff
	// DecisionBisect splits the batch in half and retries each half.
	DecisionBisect
)

// Decide maps an error to the retry policy for provider calls:
// transient and rate-limit failures back off, invalid-input failures
// bisect, everything else is fatal to the call.
func Decide(err error) Decision {
	switch KindOf(err) {
	case KindTransient, KindRateLimited:
		return DecisionBackoff
	case KindInvalidInput:
		return DecisionBisect
	default:
		return DecisionFail
	}
}

// RetryConfig configures exponential backoff behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (initial try included).
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// Multiplier grows the delay after each retry.
	Multiplier float64

	// Jitter randomizes each delay by a factor in [0.5, 1.0) to avoid
	// thundering-herd retries against a rate-limited provider.
	Jitter bool
}

// DefaultRetryConfig returns the retry policy used for provider calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  4,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retry runs fn with exponential backoff, retrying only while Decide
// reports DecisionBackoff. Context cancellation aborts immediately.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult is Retry for functions returning a value.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	delay := cfg.InitialDelay
	var lastErr error
	attempts := 0

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := fn()
		attempts++
		if err == nil {
			return result, nil
		}
		lastErr = err

		if Decide(err) != DecisionBackoff || attempt == cfg.MaxAttempts-1 {
			break
		}

		wait := delay
		if cfg.Jitter {
			wait = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return zero, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
