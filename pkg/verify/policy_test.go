package verify

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicy_SucceedsImmediately(t *testing.T) {
	calls := 0
	p := RetryPolicy{MaxAttempts: 5, Backoff: time.Hour}

	start := time.Now()
	err := p.Do(context.Background(), "take screenshot", func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if time.Since(start) > time.Second {
		t.Error("successful first attempt should not sleep")
	}
}

func TestRetryPolicy_SucceedsOnLaterAttempt(t *testing.T) {
	calls := 0
	p := RetryPolicy{MaxAttempts: 10, Backoff: time.Millisecond}

	err := p.Do(context.Background(), "take screenshot", func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	calls := 0
	p := RetryPolicy{MaxAttempts: 4, Backoff: 5 * time.Millisecond}
	want := errors.New("still failing")

	start := time.Now()
	err := p.Do(context.Background(), "take screenshot", func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	// Three sleeps between four attempts
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("elapsed %v, want at least 15ms of backoff", elapsed)
	}
}

func TestRetryPolicy_PermanentStops(t *testing.T) {
	calls := 0
	p := RetryPolicy{MaxAttempts: 10, Backoff: time.Millisecond}

	err := p.Do(context.Background(), "get page source", func() error {
		calls++
		return Permanent(errors.New("bad payload"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryPolicy_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := RetryPolicy{}.Do(context.Background(), "x", func() error {
		calls++
		return errors.New("fail")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryPolicy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := RetryPolicy{MaxAttempts: 100, Backoff: 20 * time.Millisecond}

	err := p.Do(ctx, "take screenshot", func() error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("flaky")
	})
	if err == nil {
		t.Fatal("expected error after cancel")
	}
	if calls >= 100 {
		t.Errorf("cancel did not stop retries, calls = %d", calls)
	}
}
