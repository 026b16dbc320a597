package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/TheWillMundy/CapitolGains/models"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
)

// RetryConfig holds the parameters for the retry strategy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxJitter is added at random to every backoff delay. Zero means BaseDelay/4.
	MaxJitter time.Duration
	// Retryable classifies a failure as transient. Defaults to models.IsTransient.
	Retryable func(error) bool
	Logger    *Logger
}

// NewRetryConfig returns a config with the default attempt budget and backoff.
func NewRetryConfig(logger *Logger) *RetryConfig {
	return &RetryConfig{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Logger:      logger,
	}
}

// Do executes fn with exponential back-off retry logic. Permanent failures
// are returned as-is on first sight. When every attempt fails with a
// transient error the result is a *models.ExhaustedError carrying the last cause.
func (r *RetryConfig) Do(ctx context.Context, operationName string, fn func() error) error {
	maxAttempts := r.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	retryable := r.Retryable
	if retryable == nil {
		retryable = models.IsTransient
	}
	jitter := r.MaxJitter
	if jitter <= 0 {
		jitter = max(r.BaseDelay/4, time.Millisecond)
	}

	var lastErr error
	attempts := 0

	err := retry.Do(
		func() error {
			attempts++
			lastErr = fn()
			return lastErr
		},
		retry.Context(ctx),
		retry.Attempts(uint(maxAttempts)),
		retry.Delay(r.BaseDelay),
		retry.MaxJitter(jitter),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if r.Logger == nil || int(n)+1 >= maxAttempts {
				return
			}
			r.Logger.Warn("[retry] %s failed (attempt %d/%d): %v",
				operationName, n+1, maxAttempts, err)
		}),
	)
	if err == nil {
		return nil
	}
	if lastErr == nil {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w (last error: %v)", operationName, ctxErr, lastErr)
	}
	if !retryable(lastErr) {
		return lastErr
	}
	return &models.ExhaustedError{Op: operationName, Attempts: attempts, Last: lastErr}
}
