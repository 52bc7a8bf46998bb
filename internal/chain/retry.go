package chain

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy bounds how often a failed call is repeated. The delay doubles
// after every attempt.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// do runs fn until it succeeds, fails permanently, or the retries run out.
func (p RetryPolicy) do(ctx context.Context, logger *zap.Logger, what string, fn func(context.Context) error) error {
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := p.BaseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || isRevert(err) {
			return err
		}
		logger.Warn("contract call failed, retrying",
			zap.String("call", what),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
