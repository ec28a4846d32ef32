package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/asoud/payment-core/internal/config"
	"github.com/asoud/payment-core/internal/domain/gateway"
)

// ErrOutcomeUnresolved signals that the gateway could not give a final
// verdict yet. Retryable; never treated as a terminal outcome.
var ErrOutcomeUnresolved = errors.New("gateway outcome unresolved")

// RetryScheduler wraps outbound gateway calls with bounded retry.
// Exponential backoff with jitter, capped per attempt and by a total
// elapsed ceiling. Only transient failures are retried; terminal gateway
// verdicts surface immediately.
type RetryScheduler struct {
	cfg    config.RetryConfig
	logger *slog.Logger
}

// NewRetryScheduler creates a scheduler with the given policy
func NewRetryScheduler(logger *slog.Logger, cfg config.RetryConfig) *RetryScheduler {
	return &RetryScheduler{
		cfg:    cfg,
		logger: logger,
	}
}

// retryable reports whether the error may resolve on a later attempt
func retryable(err error) bool {
	return gateway.IsRetryable(err) || errors.Is(err, ErrOutcomeUnresolved)
}

// Do invokes fn until it succeeds, fails terminally, or the retry budget is
// spent. A canceled context stops before the next dispatch; it cannot
// un-send a call already in flight. Exhausted budgets are reported as
// gateway.ErrUnavailable.
func (s *RetryScheduler) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	deadline := time.Now().Add(s.cfg.MaxElapsed)

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		// Cancellation is honored before every dispatch, including the
		// first.
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%s canceled after %d attempts: %w", op, attempt-1, lastErr)
			}
			return fmt.Errorf("%s canceled before dispatch: %w", op, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}

		if attempt == s.cfg.MaxAttempts {
			break
		}

		wait := s.backoff(attempt)
		if time.Now().Add(wait).After(deadline) {
			s.logger.Warn("Retry budget elapsed",
				"operation", op,
				"attempts", attempt,
				"error", lastErr,
			)
			break
		}

		s.logger.Debug("Retrying gateway call",
			"operation", op,
			"attempt", attempt,
			"backoff", wait,
			"error", lastErr,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s canceled during backoff: %w", op, lastErr)
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w: %s retries exhausted: %v", gateway.ErrUnavailable, op, lastErr)
}

// backoff returns the wait before the next attempt: exponential growth
// capped at MaxBackoff, with equal jitter so synchronized retries spread
// out.
func (s *RetryScheduler) backoff(attempt int) time.Duration {
	d := s.cfg.InitialBackoff << (attempt - 1)
	if d > s.cfg.MaxBackoff || d <= 0 {
		d = s.cfg.MaxBackoff
	}

	half := int64(d / 2)
	if half <= 0 {
		return d
	}
	return time.Duration(half + rand.Int63n(half))
}
