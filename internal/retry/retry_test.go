package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestPoliteScrapeConfigUsesAdditiveGrowth(t *testing.T) {
	cfg := PoliteScrapeConfig(4)
	if !cfg.AdditiveGrowth {
		t.Fatal("expected PoliteScrapeConfig to set AdditiveGrowth")
	}
	if cfg.InitialDelay != 5*time.Second || cfg.MaxDelay != 30*time.Second {
		t.Fatalf("unexpected delays: %+v", cfg)
	}
	if cfg.MaxAttempts != 4 {
		t.Fatalf("expected MaxAttempts 4, got %d", cfg.MaxAttempts)
	}
}

func TestPoliteScrapeConfigDefaultsMaxRetries(t *testing.T) {
	if got := PoliteScrapeConfig(0).MaxAttempts; got != 3 {
		t.Fatalf("expected default MaxAttempts 3, got %d", got)
	}
}

func TestWithBackoffAdditiveGrowthMatchesSpecFormula(t *testing.T) {
	// min(30s, (attempt+1)*5s), scaled down to milliseconds for a fast test.
	cfg := Config{
		MaxAttempts:    4,
		InitialDelay:   5 * time.Millisecond,
		MaxDelay:       30 * time.Millisecond,
		AdditiveGrowth: true,
	}

	var gaps []time.Duration
	last := time.Now()
	attempts := 0
	err := WithBackoff(context.Background(), cfg, func() error {
		now := time.Now()
		if attempts > 0 {
			gaps = append(gaps, now.Sub(last))
		}
		last = now
		attempts++
		return &HTTPError{StatusCode: http.StatusTooManyRequests}
	})

	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != cfg.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", cfg.MaxAttempts, attempts)
	}
	if len(gaps) != cfg.MaxAttempts-1 {
		t.Fatalf("expected %d gaps, got %d", cfg.MaxAttempts-1, len(gaps))
	}
	// Gaps should strictly increase (5ms, 10ms, 15ms) rather than stay
	// pinned at InitialDelay, which is what Multiplier: 1.0 used to do.
	for i := 1; i < len(gaps); i++ {
		if gaps[i] <= gaps[i-1] {
			t.Fatalf("expected gap %d (%v) to exceed gap %d (%v)", i, gaps[i], i-1, gaps[i-1])
		}
	}
}

func TestWithBackoffSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), DefaultConfig(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestWithBackoffStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	sentinel := errors.New("boom")
	err := WithBackoff(context.Background(), DefaultConfig(), func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call for a non-retryable error, got %d", calls)
	}
}

func TestIsRetryableHTTPStatuses(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusRequestTimeout, true},
		{http.StatusBadGateway, true},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
	}
	for _, c := range cases {
		err := &HTTPError{StatusCode: c.status}
		if got := IsRetryable(err); got != c.retryable {
			t.Errorf("status %d: expected retryable=%v, got %v", c.status, c.retryable, got)
		}
	}
}

func TestIsRetryableContextCancellation(t *testing.T) {
	if IsRetryable(context.Canceled) {
		t.Fatal("expected context.Canceled to be non-retryable")
	}
	if IsRetryable(context.DeadlineExceeded) {
		t.Fatal("expected context.DeadlineExceeded to be non-retryable")
	}
}
