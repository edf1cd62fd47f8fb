package media

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/personahub/agent-service/internal/model"
)

// RetryPolicy bounds how media generation retries after provider rate
// limits. MaxRetries counts retries after the first attempt, so a call makes
// at most MaxRetries+1 attempts.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultImagePolicy matches the image generation limits.
func DefaultImagePolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, InitialInterval: time.Second, MaxInterval: 8 * time.Second}
}

// DefaultVideoPolicy allows longer waits for the slower video API.
func DefaultVideoPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, InitialInterval: time.Second, MaxInterval: 30 * time.Second}
}

// withRetry runs op, retrying only rate-limit failures. Every other error,
// including content filtering, is terminal on the first occurrence.
func withRetry(ctx context.Context, policy RetryPolicy, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialInterval
	b.MaxInterval = policy.MaxInterval

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, model.ErrRateLimited) {
			return err
		}
		return backoff.Permanent(err)
	}
	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(b, uint64(policy.MaxRetries)), ctx))
}
