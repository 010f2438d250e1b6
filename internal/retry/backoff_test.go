package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastBackoff() *Backoff {
	return &Backoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  5,
	}
}

func TestSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := fastBackoff().Do(context.Background(), func(attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls %d, want 3", calls)
	}
}

func TestMaxAttemptsExceeded(t *testing.T) {
	calls := 0
	err := fastBackoff().Do(context.Background(), func(int) error {
		calls++
		return errors.New("always")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 5 {
		t.Errorf("calls %d, want 5", calls)
	}
}

func TestPermanentStopsImmediately(t *testing.T) {
	sentinel := errors.New("bad credentials")
	calls := 0
	err := fastBackoff().Do(context.Background(), func(int) error {
		calls++
		return Permanent(sentinel)
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("got %v, want %v", err, sentinel)
	}
	if calls != 1 {
		t.Errorf("calls %d, want 1", calls)
	}
}

func TestPermanentNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) must be nil")
	}
	if IsPermanent(errors.New("plain")) {
		t.Error("plain error misclassified as permanent")
	}
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	b := &Backoff{InitialDelay: time.Hour, MaxAttempts: 0}
	done := make(chan error, 1)
	go func() {
		done <- b.Do(ctx, func(int) error { return errors.New("keep going") })
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do ignored context cancellation")
	}
}

func TestJitterBounds(t *testing.T) {
	d := 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		got := addJitter(d)
		if got < 75*time.Millisecond || got > 125*time.Millisecond {
			t.Fatalf("jittered %v outside ±25%% of %v", got, d)
		}
	}
}
