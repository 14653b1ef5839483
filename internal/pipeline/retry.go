package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chainline/chainline/internal/backoff"
	"github.com/chainline/chainline/internal/logging"
)

const DefaultMaxAttempts = 5

// RetryPolicy wraps a fallible external call with bounded retry and
// exponential backoff. Errors tagged permanent propagate on the first
// attempt; everything else is treated as transient and retried until the
// attempt ceiling, after which the last error propagates.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     backoff.Backoff
	// Sleep is injectable so tests can run the schedule synchronously.
	// Nil means time.Sleep.
	Sleep  func(time.Duration)
	Logger *logging.Logger
}

// NewRetryPolicy returns the default policy: five attempts with an
// exponential schedule starting at one second.
func NewRetryPolicy(logger *logging.Logger) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     &backoff.ExponentialBackoff{Interval: time.Second, Base: 2},
		Logger:      logger,
	}
}

// Do invokes fn under the policy. name identifies the wrapped call in log
// records; every attempt is reported with the attempt number and elapsed
// time.
func (p RetryPolicy) Do(ctx context.Context, name string, fn func() error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	start := time.Now()
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			p.Logger.Ctx(ctx).Info("call succeeded",
				zap.String("call", name),
				zap.Int("attempt", attempt+1),
				zap.Duration("elapsed", time.Since(start)))
			return nil
		}
		if IsPermanent(err) {
			p.Logger.Ctx(ctx).Error("call rejected, not retrying",
				zap.Error(err),
				zap.String("call", name),
				zap.Int("attempt", attempt+1),
				zap.Duration("elapsed", time.Since(start)))
			return err
		}
		if attempt+1 >= maxAttempts {
			p.Logger.Ctx(ctx).Error("retry attempts exhausted",
				zap.Error(err),
				zap.String("call", name),
				zap.Int("attempt", attempt+1),
				zap.Duration("elapsed", time.Since(start)))
			return err
		}
		delay := p.Backoff.Duration(attempt)
		p.Logger.Ctx(ctx).Warn("call failed, retrying",
			zap.Error(err),
			zap.String("call", name),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Duration("elapsed", time.Since(start)))
		sleep(delay)
		if ctx.Err() != nil {
			return err
		}
	}
}
