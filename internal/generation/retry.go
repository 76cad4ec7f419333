package generation

import (
	"context"
	"time"

	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/hyperjump/vincentbot/pkg/utils"
	"go.uber.org/zap"
)

// MaxAttempts caps retries of one generation request.
const MaxAttempts = 3

// Retrying retries transient failures of another Generator with exponential backoff.
type Retrying struct {
	inner     Generator
	attempts  int
	baseDelay time.Duration
	logger    *zap.Logger
}

// WithRetry wraps g so transient failures are retried up to attempts times in total,
// waiting baseDelay, 2×baseDelay, ... between tries. Malformed responses and other
// non-transient failures are returned at once. attempts is clamped to [1, MaxAttempts].
func WithRetry(g Generator, attempts int, baseDelay time.Duration, logger *zap.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > MaxAttempts {
		attempts = MaxAttempts
	}
	return &Retrying{inner: g, attempts: attempts, baseDelay: baseDelay, logger: utils.OrNop(logger)}
}

// Generate calls the wrapped generator, retrying transient errors.
func (r *Retrying) Generate(ctx context.Context, p models.Prompt) (*models.Answer, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		answer, err := r.inner.Generate(ctx, p)
		if err == nil {
			if attempt > 1 {
				r.logger.Debug("generation succeeded after retry", zap.Int("attempt", attempt))
			}
			return answer, nil
		}
		lastErr = err
		if !models.IsTransient(err) || attempt == r.attempts {
			break
		}

		delay := r.baseDelay << (attempt - 1)
		r.logger.Debug("generation failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.attempts),
			zap.Duration("delay", delay),
			zap.Error(err))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, lastErr
		case <-timer.C:
		}
	}
	return nil, lastErr
}
