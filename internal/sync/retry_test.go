package sync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDelayForAttemptBackoff(t *testing.T) {
	cfg := RetryConfiguration{
		MaxAttempts:       5,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second}, // capped, would be 1.6s
		{6, time.Second},
	}

	for _, tt := range tests {
		got := DelayForAttempt(tt.attempt, cfg)
		if got != tt.want {
			t.Errorf("DelayForAttempt(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayForAttemptMonotonic(t *testing.T) {
	cfg := RetryConfiguration{
		MaxAttempts:       10,
		BaseDelay:         50 * time.Millisecond,
		MaxDelay:          2 * time.Second,
		BackoffMultiplier: 1.5,
	}

	prev := time.Duration(-1)
	for attempt := 1; attempt <= 10; attempt++ {
		d := DelayForAttempt(attempt, cfg)
		if d < prev {
			t.Fatalf("delay decreased: attempt %d gave %v after %v", attempt, d, prev)
		}
		if d > cfg.MaxDelay {
			t.Fatalf("delay %v exceeds max %v at attempt %d", d, cfg.MaxDelay, attempt)
		}
		prev = d
	}
}

func TestDelayForAttemptMultiplierDisablesBackoff(t *testing.T) {
	cfg := RetryConfiguration{
		MaxAttempts:       5,
		BaseDelay:         30 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 1.0,
	}

	for attempt := 1; attempt <= 5; attempt++ {
		if got := DelayForAttempt(attempt, cfg); got != cfg.BaseDelay {
			t.Errorf("attempt %d: got %v, want constant %v", attempt, got, cfg.BaseDelay)
		}
	}
}

func TestRunWithRetryAttemptBound(t *testing.T) {
	cfg := RetryConfiguration{
		MaxAttempts:       3,
		BaseDelay:         time.Millisecond,
		MaxDelay:          2 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	attempts := 0
	failure := errors.New("backend down")
	_, err := RunWithRetry(context.Background(), cfg, func(ctx context.Context) (int, error) {
		attempts++
		return 0, failure
	})

	if attempts != cfg.MaxAttempts {
		t.Errorf("expected exactly %d attempts, got %d", cfg.MaxAttempts, attempts)
	}
	if !errors.Is(err, failure) {
		t.Errorf("expected last attempt's error, got %v", err)
	}
}

func TestRunWithRetrySucceedsMidway(t *testing.T) {
	cfg := RetryConfiguration{
		MaxAttempts:       5,
		BaseDelay:         time.Millisecond,
		MaxDelay:          2 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	attempts := 0
	got, err := RunWithRetry(context.Background(), cfg, func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want %q", got, "ok")
	}
	if attempts != 3 {
		t.Errorf("expected success to stop retrying: got %d attempts, want 3", attempts)
	}
}

func TestRunWithRetryOperationTimeout(t *testing.T) {
	cfg := RetryConfiguration{
		MaxAttempts:       100,
		BaseDelay:         10 * time.Millisecond,
		MaxDelay:          10 * time.Millisecond,
		BackoffMultiplier: 1.0,
		OperationTimeout:  30 * time.Millisecond,
	}

	_, err := RunWithRetry(context.Background(), cfg, func(ctx context.Context) (int, error) {
		return 0, errors.New("always fails")
	})

	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if KindOf(err) != KindOperationTimeout {
		t.Errorf("expected operationTimeout kind, got %v", KindOf(err))
	}
	if !strings.Contains(err.Error(), "operationTimeout") {
		t.Errorf("error text %q should name the operationTimeout category", err.Error())
	}
}

func TestRunWithRetryInvalidConfiguration(t *testing.T) {
	cfg := RetryConfiguration{MaxAttempts: 0}

	called := false
	_, err := RunWithRetry(context.Background(), cfg, func(ctx context.Context) (int, error) {
		called = true
		return 0, nil
	})

	if err == nil {
		t.Fatal("expected error for zero max attempts")
	}
	if called {
		t.Error("operation must not run with an invalid configuration")
	}
}

func TestRetryConfigurationValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RetryConfiguration
		wantErr bool
	}{
		{"valid", RetryConfiguration{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute, BackoffMultiplier: 2.0}, false},
		{"single attempt", RetryConfiguration{MaxAttempts: 1, BackoffMultiplier: 1.0}, false},
		{"zero attempts", RetryConfiguration{MaxAttempts: 0}, true},
		{"negative base delay", RetryConfiguration{MaxAttempts: 1, BaseDelay: -time.Second}, true},
		{"max below base", RetryConfiguration{MaxAttempts: 1, BaseDelay: time.Minute, MaxDelay: time.Second}, true},
		{"negative multiplier", RetryConfiguration{MaxAttempts: 1, BackoffMultiplier: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
