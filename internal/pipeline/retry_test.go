package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicy_SucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}
	attempts, err := p.Do(context.Background(), func(context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetryPolicy_SucceedsOnLastAttempt(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}
	calls := 0
	attempts, err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if attempts != 3 || calls != 3 {
		t.Errorf("attempts = %d, calls = %d, want 3 each", attempts, calls)
	}
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("permanent")
	p := RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}
	attempts, err := p.Do(context.Background(), func(context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Do() error = %v, want %v", err, wantErr)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryPolicy_CancelledDuringDelay(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 3, Delay: time.Minute}

	attempts := 0
	done := make(chan error, 1)
	go func() {
		var err error
		attempts, err = p.Do(ctx, func(context.Context) error {
			return errors.New("transient")
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Do() error = %v, want context.Canceled", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do() did not return after cancellation")
	}
}

func TestRetryPolicy_ZeroAttemptsBehavesAsOne(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{}
	calls := 0
	attempts, _ := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("fail")
	})
	if attempts != 1 || calls != 1 {
		t.Errorf("attempts = %d, calls = %d, want 1 each", attempts, calls)
	}
}
