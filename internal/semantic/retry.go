package semantic

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ottosulin/claude-code-security-review/internal/config"
)

// RetryPolicy bounds how long the filter keeps asking for a verdict.
type RetryPolicy struct {
	// MaxAttempts counts the first call. Values below 1 mean one attempt.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Jitter is the randomization factor in [0,1).
	Jitter float64
	// FailOpen keeps unjudged findings (annotated) instead of excluding them.
	FailOpen bool
}

// DefaultRetryPolicy is used when no configuration is given.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    4,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
		Jitter:         0.2,
		FailOpen:       true,
	}
}

// RetryPolicyFromConfig derives the policy from the run configuration.
// max_retries counts retries, so attempts are one more.
func RetryPolicyFromConfig(cfg config.Config) RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxAttempts = cfg.MaxRetries + 1
	p.InitialBackoff = cfg.Semantic.InitialBackoff.Std()
	p.MaxBackoff = cfg.Semantic.MaxBackoff.Std()
	p.FailOpen = cfg.Semantic.FailOpen
	return p
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// backOff builds a fresh schedule for one batch. Elapsed time is not capped;
// the attempt count and ctx bound it.
func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if p.InitialBackoff > 0 {
		exp.InitialInterval = p.InitialBackoff
	}
	if p.MaxBackoff > 0 {
		exp.MaxInterval = p.MaxBackoff
	}
	if p.Multiplier >= 1 {
		exp.Multiplier = p.Multiplier
	}
	if p.Jitter >= 0 && p.Jitter < 1 {
		exp.RandomizationFactor = p.Jitter
	}
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.attempts()-1)), ctx)
}
