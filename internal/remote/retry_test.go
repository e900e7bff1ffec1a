package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func testRetrier(maxRetries int) *Retrier {
	return NewRetrier(maxRetries, time.Millisecond, 4*time.Millisecond, "orders/0")
}

func TestRetrierSucceedsAfterThrottles(t *testing.T) {
	r := testRetrier(5)
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls <= 2 {
			return ErrThrottled
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetrierStopsOnNonThrottle(t *testing.T) {
	r := testRetrier(5)
	calls := 0
	boom := fmt.Errorf("access denied")
	err := r.Do(context.Background(), func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the original error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetrierExhaustsCeiling(t *testing.T) {
	r := testRetrier(3)
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return ErrThrottled
	})
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("err = %v, want throttle", err)
	}
	// One initial attempt plus the retry ceiling.
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestRetrierRespectsCancellation(t *testing.T) {
	r := NewRetrier(10, 50*time.Millisecond, time.Second, "orders/1")
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	err := r.Do(ctx, func() error {
		calls++
		return ErrThrottled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("cancellation took %s, backoff should have been interrupted", elapsed)
	}
	if calls == 0 {
		t.Error("op should have run at least once before cancellation")
	}
}

func TestRetrierZeroCeilingRunsOnce(t *testing.T) {
	r := testRetrier(0)
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return ErrThrottled
	})
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
