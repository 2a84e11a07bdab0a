package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"thordata-sdk/pkg/thorerr"
)

func TestDelayExponential(t *testing.T) {
	cfg := Config{
		MaxRetries: 10,
		Backoff:    100 * time.Millisecond,
		MaxBackoff: 10 * time.Second,
	}

	for attempt := 0; attempt <= 10; attempt++ {
		want := cfg.Backoff << uint(attempt)
		if want > cfg.MaxBackoff {
			want = cfg.MaxBackoff
		}
		if got := cfg.Delay(attempt); got != want {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, want)
		}
	}

	if got := cfg.Delay(-1); got != cfg.Backoff {
		t.Errorf("Delay(-1) = %v, want %v", got, cfg.Backoff)
	}
}

func TestDelayJitterBounds(t *testing.T) {
	cfg := Config{
		Backoff:      time.Second,
		MaxBackoff:   30 * time.Second,
		Jitter:       true,
		JitterFactor: 0.25,
	}

	lo := time.Duration(float64(2*time.Second) * 0.75)
	hi := time.Duration(float64(2*time.Second) * 1.25)
	for i := 0; i < 100; i++ {
		d := cfg.Delay(1)
		if d < lo || d > hi {
			t.Fatalf("Delay(1) = %v, want within [%v, %v]", d, lo, hi)
		}
		if d <= 0 {
			t.Fatalf("Delay(1) = %v, want strictly positive", d)
		}
	}
}

func TestShouldRetry(t *testing.T) {
	cfg := Config{MaxRetries: 3, Backoff: time.Millisecond}
	netErr := &thorerr.NetworkError{Op: "dial"}

	tests := []struct {
		name       string
		err        error
		attempt    int
		statusCode int
		want       bool
	}{
		{"retryable status 429", nil, 0, 429, true},
		{"retryable status 500", nil, 0, 500, true},
		{"retryable status 502", nil, 0, 502, true},
		{"retryable status 503", nil, 0, 503, true},
		{"retryable status 504", nil, 0, 504, true},
		{"client error 400", errors.New("bad request"), 0, 400, false},
		{"auth 401", errors.New("unauthorized"), 0, 401, false},
		{"forbidden 403", errors.New("forbidden"), 0, 403, false},
		{"network error no status", netErr, 0, 0, true},
		{"attempts exhausted", netErr, 3, 500, false},
		{"attempts beyond budget", netErr, 5, 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := cfg.ShouldRetry(tc.err, tc.attempt, tc.statusCode); got != tc.want {
				t.Errorf("ShouldRetry(%v, %d, %d) = %v, want %v", tc.err, tc.attempt, tc.statusCode, got, tc.want)
			}
		})
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	cfg := Config{MaxRetries: 3, Backoff: time.Millisecond}

	calls := 0
	var observed []int
	got, err := Do(context.Background(), cfg, func() (string, error) {
		calls++
		if calls < 3 {
			return "", &thorerr.NetworkError{Op: "dial", Err: errors.New("refused")}
		}
		return "ok", nil
	}, func(attempt int, err error, delay time.Duration) {
		observed = append(observed, attempt)
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Do() = %q, want ok", got)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
	if len(observed) != 2 || observed[0] != 0 || observed[1] != 1 {
		t.Errorf("observer saw attempts %v, want [0 1]", observed)
	}
}

func TestDoExhaustsAndReturnsOriginalError(t *testing.T) {
	cfg := Config{MaxRetries: 2, Backoff: time.Millisecond}
	boom := &thorerr.TimeoutError{Op: "read"}

	calls := 0
	_, err := Do(context.Background(), cfg, func() (int, error) {
		calls++
		return 0, boom
	}, nil)
	if calls != 3 {
		t.Errorf("fn called %d times, want 3 (initial + 2 retries)", calls)
	}
	if !errors.Is(err, boom) {
		t.Errorf("Do() error = %v, want the last attempt's error", err)
	}
}

func TestDoNonRetryableFailsFast(t *testing.T) {
	cfg := Config{MaxRetries: 5, Backoff: time.Millisecond}

	calls := 0
	_, err := Do(context.Background(), cfg, func() (int, error) {
		calls++
		return 0, thorerr.FromStatusCode(401, "bad key")
	}, nil)
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
	var ae *thorerr.AuthError
	if !errors.As(err, &ae) {
		t.Errorf("Do() error = %T, want *thorerr.AuthError", err)
	}
}

func TestDoHonorsRetryAfterHint(t *testing.T) {
	cfg := Config{MaxRetries: 1, Backoff: time.Hour} // hint must win over this

	hinted := &thorerr.RateLimitError{
		APIError:   thorerr.APIError{Message: "slow down", StatusCode: 429},
		RetryAfter: 5 * time.Millisecond,
	}

	calls := 0
	var usedDelay time.Duration
	start := time.Now()
	got, err := Do(context.Background(), cfg, func() (int, error) {
		calls++
		if calls == 1 {
			return 0, hinted
		}
		return 42, nil
	}, func(attempt int, err error, delay time.Duration) {
		usedDelay = delay
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != 42 {
		t.Errorf("Do() = %d, want 42", got)
	}
	if usedDelay != 5*time.Millisecond {
		t.Errorf("observer delay = %v, want 5ms hint", usedDelay)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Do() slept %v, hint was not honored", elapsed)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	cfg := Config{MaxRetries: 5, Backoff: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	calls := 0
	_, err := Do(ctx, cfg, func() (int, error) {
		calls++
		return 0, &thorerr.NetworkError{Op: "dial"}
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestRequestLifecycle(t *testing.T) {
	cfg := Config{MaxRetries: 2, Backoff: time.Millisecond}
	req := NewRequest(cfg)
	netErr := &thorerr.NetworkError{Op: "dial"}

	if req.Attempt() != 0 {
		t.Errorf("Attempt() = %d, want 0", req.Attempt())
	}
	if !req.ShouldContinue(netErr) {
		t.Fatal("first failure should allow a retry")
	}
	if !req.ShouldContinue(netErr) {
		t.Fatal("second failure should allow a retry")
	}
	if req.ShouldContinue(netErr) {
		t.Fatal("third failure must exhaust the budget")
	}
	if req.Attempt() != 3 {
		t.Errorf("Attempt() = %d, want 3", req.Attempt())
	}
}

func TestRequestWaitUsesHint(t *testing.T) {
	cfg := Config{MaxRetries: 3, Backoff: time.Hour}
	req := NewRequest(cfg)

	hinted := &thorerr.RateLimitError{
		APIError:   thorerr.APIError{StatusCode: 429},
		RetryAfter: 2 * time.Millisecond,
	}
	if !req.ShouldContinue(hinted) {
		t.Fatal("rate limit should allow a retry")
	}

	delay, err := req.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if delay != 2*time.Millisecond {
		t.Errorf("Wait() delay = %v, want 2ms hint", delay)
	}
}

func TestRequestWaitCancellable(t *testing.T) {
	cfg := Config{MaxRetries: 3, Backoff: time.Hour}
	req := NewRequest(cfg)
	req.ShouldContinue(&thorerr.NetworkError{Op: "dial"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := req.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want context.DeadlineExceeded", err)
	}
}
