// Package backoff retries transient failures of cache and database calls.
package backoff

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/example/freshcheck/internal/logging"
)

// Policy bounds the retry loop.
type Policy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// DefaultPolicy is used by the gateway cache and repository.
var DefaultPolicy = Policy{Attempts: 3, Initial: 50 * time.Millisecond, Max: time.Second}

// Do runs fn until it succeeds, fails with a non-transient error, or the attempts run
// out. Errors are returned as *logging.OperationError.
func Do(ctx context.Context, logger *zap.Logger, policy Policy, operation, requestID string, fn func() error) error {
	opLogger := logging.WithOperation(logger, operation, requestID)
	if policy.Attempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	b := retry.NewExponential(policy.Initial)
	if policy.Max > 0 {
		b = retry.WithCappedDuration(policy.Max, b)
	}
	b = retry.WithMaxRetries(uint64(policy.Attempts-1), b)

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := fn()
		if err == nil {
			if attempt > 1 {
				opLogger.Info("operation succeeded after retry", zap.Int("attempt", attempt))
			}
			return nil
		}
		if IsTransient(err) && attempt < policy.Attempts {
			opLogger.Warn("transient error", zap.Error(err), zap.Int("attempt", attempt))
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		opLogger.Error("operation failed", zap.Error(err), zap.Int("attempt", attempt))
		return logging.NewOperationError(operation, requestID, err)
	}
	return nil
}

// IsTransient reports whether err looks like a timeout or temporary failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
