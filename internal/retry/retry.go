package retry

import (
	"context"
	"time"
)

// Operation is a function that performs an action and returns an error if it fails.
type Operation func(ctx context.Context) error

// Retryable is a predicate deciding whether an error qualifies for another attempt.
type Retryable func(err error) bool

// Policy is the single retry definition shared by the pipeline stages: bounded
// attempts with exponential backoff. Which errors qualify is the caller's
// predicate, so one policy serves gating reads, journal writes and the final
// submission call alike.
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // backoff cap
}

// Default mirrors the bounded retry settings used for transient failures.
var Default = Policy{
	MaxAttempts: 3,
	BaseDelay:   200 * time.Millisecond,
	MaxDelay:    2 * time.Second,
}

// Backoff returns the delay before the given retry (attempt starts at 1 for
// the first retry). The curve doubles per attempt and is capped at MaxDelay.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay << uint(attempt-1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do executes an operation under the policy. Non-retryable errors return
// immediately; retryable ones are re-attempted after backoff until the budget
// is exhausted or the context is cancelled. The last error is returned.
func (p Policy) Do(ctx context.Context, op Operation, retryable Retryable) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if attempt == attempts || retryable == nil || !retryable(err) {
			return err
		}
		select {
		case <-time.After(p.Backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
