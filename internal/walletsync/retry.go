package walletsync

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/cleared-dev/walletsync/internal/model"
)

// RetryPolicy bounds the exponential backoff around remote calls.
type RetryPolicy struct {
	MaxAttempts     int // total attempts for fetch and the existing-id query
	SubmitAttempts  int // total attempts per submitted transaction
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy matches the config defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		SubmitAttempts:  3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

func (p RetryPolicy) backOff(ctx context.Context, attempts int) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = 0
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// retry runs fn until it succeeds, fails permanently, or runs out of
// attempts. Only errors wrapping model.ErrTransient are retried.
func retry[T any](ctx context.Context, b backoff.BackOff, logger zerolog.Logger, what string, fn func() (T, error)) (T, error) {
	attempt := 0
	op := func() (T, error) {
		attempt++
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn().
			Err(err).
			Str("operation", what).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("Transient failure, retrying")
	}
	return backoff.RetryNotifyWithData(op, b, notify)
}

func retryable(err error) bool {
	if errors.Is(err, model.ErrAuth) {
		return false
	}
	return errors.Is(err, model.ErrTransient)
}
