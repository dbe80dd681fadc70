package pipeline

import (
	"context"
	"time"
)

// RetryPolicy retries an operation a fixed number of times with a fixed
// inter-attempt delay. It is passed into each pipeline stage explicitly so
// stages can be tested without invoking real backends.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 behave as 1.
	MaxAttempts int

	// Delay is the fixed wait between attempts.
	Delay time.Duration
}

// Do runs op until it succeeds, attempts are exhausted, or ctx is done.
// It returns the number of attempts made and the last error. The delay is
// interruptible; a context cancelled while waiting surfaces as ctx.Err().
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) (int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(ctx); err == nil {
			return attempt, nil
		}
		if attempt == attempts {
			return attempt, err
		}
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(p.Delay):
		}
	}
	return attempts, err
}
