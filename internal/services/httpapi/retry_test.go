package httpapi

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"narrator/internal/services"
)

func TestPolicyRetriesTemporaryStatus(t *testing.T) {
	var slept []time.Duration
	p := Policy{Attempts: 3, BaseDelay: time.Second, MaxDelay: 3 * time.Second, Sleeper: func(d time.Duration) { slept = append(slept, d) }}
	calls := 0
	err := p.Do(context.Background(), "test", func(int) error {
		calls++
		if calls < 3 {
			return &StatusError{Service: "test", StatusCode: http.StatusServiceUnavailable}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Fatalf("unexpected sleeps %v", slept)
	}
}

func TestPolicyHonorsRetryAfter(t *testing.T) {
	var slept []time.Duration
	p := Policy{Attempts: 2, BaseDelay: time.Second, MaxDelay: 5 * time.Second, Sleeper: func(d time.Duration) { slept = append(slept, d) }}
	calls := 0
	_ = p.Do(context.Background(), "test", func(int) error {
		calls++
		if calls == 1 {
			return &StatusError{StatusCode: http.StatusTooManyRequests, RetryAfter: 30 * time.Second}
		}
		return nil
	})
	if len(slept) != 1 || slept[0] != 5*time.Second {
		t.Fatalf("expected capped retry-after, got %v", slept)
	}
}

func TestPolicyStopsOnPermanentStatus(t *testing.T) {
	p := Policy{Attempts: 5, Sleeper: func(time.Duration) {}}
	calls := 0
	err := p.Do(context.Background(), "test", func(int) error {
		calls++
		return &StatusError{StatusCode: http.StatusUnauthorized}
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if services.Retryable(err) {
		t.Fatal("401 must not be marked transient")
	}
}

func TestPolicyExhaustedIsTransient(t *testing.T) {
	p := Policy{Attempts: 2, Sleeper: func(time.Duration) {}}
	err := p.Do(context.Background(), "test", func(int) error {
		return &StatusError{StatusCode: http.StatusBadGateway}
	})
	if !services.Retryable(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("status error not preserved: %v", err)
	}
}

func TestPolicyStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 5, BaseDelay: time.Hour}
	calls := 0
	err := p.Do(ctx, "test", func(int) error {
		calls++
		cancel()
		return &StatusError{StatusCode: http.StatusServiceUnavailable}
	})
	if calls != 1 || err == nil {
		t.Fatalf("calls=%d err=%v", calls, err)
	}
}

func TestBackoffCaps(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Fatalf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d, ok := ParseRetryAfter("7"); !ok || d != 7*time.Second {
		t.Fatalf("seconds form: %v %v", d, ok)
	}
	if _, ok := ParseRetryAfter("-1"); ok {
		t.Fatal("negative accepted")
	}
	if _, ok := ParseRetryAfter("soon"); ok {
		t.Fatal("garbage accepted")
	}
	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	if d, ok := ParseRetryAfter(future); !ok || d <= 0 {
		t.Fatalf("date form: %v %v", d, ok)
	}
}
