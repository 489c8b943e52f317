package services

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 25 * time.Millisecond
)

// RetryPolicy bounds how often a conflicting write is re-attempted.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy is used when configuration leaves the policy unset.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: defaultRetryAttempts, Backoff: defaultRetryBackoff}
}

func (p RetryPolicy) normalised() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultRetryAttempts
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	return p
}

// retryOnConflict runs op until it succeeds, fails with anything other than
// ErrConcurrentModification, or the attempt budget is spent. A propagation
// failure has already spent its own budget and is returned as is.
func retryOnConflict(ctx context.Context, policy RetryPolicy, onRetry func(attempt int, err error), op func(context.Context) error) error {
	policy = policy.normalised()

	var b backoff.BackOff = backoff.NewConstantBackOff(policy.Backoff)
	b = backoff.WithMaxRetries(b, uint64(policy.MaxAttempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrConcurrentModification) && !errors.Is(err, ErrPaymentPropagation) {
			return err
		}
		return backoff.Permanent(err)
	}, b, func(err error, _ time.Duration) {
		if onRetry != nil {
			onRetry(attempt, err)
		}
	})
}
