package transport

import (
	"context"
	"time"

	"github.com/goliatone/go-pylon/core"
)

// RetryPolicy bounds how classified failures are retried. MaxRetries counts
// retries, not attempts: a request is tried once plus at most MaxRetries
// times. Zero disables retrying entirely.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: core.DefaultMaxRetries,
		BaseDelay:  core.DefaultRetryBaseDelay,
		MaxDelay:   core.DefaultRetryMaxDelay,
	}
}

func RetryPolicyFromConfig(cfg core.Config) RetryPolicy {
	policy := RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
		MaxDelay:   cfg.RetryMaxDelay,
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return policy
}

// NextDelay returns the backoff before the given zero-based retry: the base
// delay doubled per retry, capped at MaxDelay. A zero base delay keeps every
// wait at zero, which is the deterministic mode tests rely on.
func (p RetryPolicy) NextDelay(retry int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		return 0
	}
	maximum := p.MaxDelay
	if maximum <= 0 {
		maximum = core.DefaultRetryMaxDelay
	}
	delay := base
	for i := 0; i < retry; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

// retryDelay combines the computed backoff with the provider's Retry-After
// hint; the larger of the two wins.
func (p RetryPolicy) retryDelay(err error, retry int) time.Duration {
	delay := p.NextDelay(retry)
	if hint, ok := core.RetryAfter(err); ok && hint > delay {
		delay = hint
	}
	return delay
}

// waitContext sleeps for the delay unless the context ends first.
func waitContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		if ctx != nil {
			return ctx.Err()
		}
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
