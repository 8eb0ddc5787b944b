package router

import (
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryPolicy bounds the exponential-backoff polling the router performs
// while waiting for the indexer to observe an execution.
type RetryPolicy struct {
	// InitialDelay is the wait before the second attempt; subsequent waits
	// double up to MaxDelay.
	InitialDelay time.Duration
	// MaxDelay caps the per-attempt wait.
	MaxDelay time.Duration
	// MaxAttempts bounds the total number of attempts.
	MaxAttempts uint
}

// DefaultRetryPolicy suits the typical indexing lag of a block or two.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		MaxAttempts:  10,
	}
}

func (p RetryPolicy) options() []retry.Option {
	return []retry.Option{
		retry.Attempts(p.MaxAttempts),
		retry.Delay(p.InitialDelay),
		retry.MaxDelay(p.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	}
}
