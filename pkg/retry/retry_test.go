package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(attempts int) Config {
	return Config{MaxAttempts: attempts, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 2}
}

func TestDo_RetriesRetryable(t *testing.T) {
	calls := 0
	var retried []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		retried = append(retried, attempt)
	}

	err := Do(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("temporary"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(retried) != 2 {
		t.Errorf("OnRetry called %d times, want 2", len(retried))
	}
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	perm := errors.New("not found")
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		return perm
	})
	if !errors.Is(err, perm) {
		t.Errorf("err = %v, want %v", err, perm)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	cause := errors.New("503")
	err := Do(context.Background(), fastConfig(4), func() error {
		calls++
		return Retryable(cause)
	})
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	if !IsRetryable(err) || !errors.Is(err, cause) {
		t.Errorf("err = %v, want the last retryable error", err)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, fastConfig(0), func() error {
		return Retryable(errors.New("down"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastConfig(3), func() (string, error) {
		calls++
		if calls == 1 {
			return "", Retryable(errors.New("reset"))
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestBackoff(t *testing.T) {
	cfg := Config{InitialWait: 100 * time.Millisecond, MaxWait: time.Second, Multiplier: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{5, time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(cfg, tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryableNil(t *testing.T) {
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) should be nil")
	}
}
