package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		err    error
		want   Class
	}{
		{http.StatusOK, nil, ClassNone},
		{http.StatusTooManyRequests, nil, ClassRateLimited},
		{http.StatusBadGateway, nil, ClassTransient},
		{http.StatusInternalServerError, nil, ClassTransient},
		{http.StatusForbidden, nil, ClassAuthRejected},
		{http.StatusUnauthorized, nil, ClassAuthRejected},
		{http.StatusNotFound, nil, ClassFatal},
		{0, timeoutErr{}, ClassTimeout},
		{0, context.DeadlineExceeded, ClassTimeout},
		{0, errors.New("connection refused"), ClassTransient},
	}
	for _, tt := range tests {
		got := Classify(tt.status, tt.err)
		if got != tt.want {
			t.Errorf("Classify(%d, %v) = %v, want %v", tt.status, tt.err, got, tt.want)
		}
	}
}

func TestDecideBackoffGrowsAndCaps(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second}, // capped
		{8, time.Second},
	}
	for _, tt := range tests {
		d := p.Decide(tt.attempt, ClassTransient)
		if !d.Retry {
			t.Fatalf("Decide(%d, transient).Retry = false, want true", tt.attempt)
		}
		if d.Delay != tt.want {
			t.Errorf("Decide(%d, transient).Delay = %v, want %v", tt.attempt, d.Delay, tt.want)
		}
	}
}

func TestDecideNonRetryableClasses(t *testing.T) {
	p := Default()
	for _, class := range []Class{ClassNone, ClassAuthRejected, ClassMalformed, ClassFatal} {
		if d := p.Decide(0, class); d.Retry {
			t.Errorf("Decide(0, %v).Retry = true, want false", class)
		}
	}
}

func TestDecideExhaustsBudget(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: time.Second}
	if d := p.Decide(1, ClassRateLimited); !d.Retry {
		t.Error("attempt 1 of 3 should retry")
	}
	if d := p.Decide(2, ClassRateLimited); d.Retry {
		t.Error("attempt 2 of 3 is the last, should not retry")
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	p := Default()
	first := p.Decide(2, ClassTransient)
	for i := 0; i < 5; i++ {
		if got := p.Decide(2, ClassTransient); got != first {
			t.Fatalf("Decide not deterministic: %v vs %v", got, first)
		}
	}
}

func TestDoStopsOnSuccess(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 10 * time.Millisecond}
	calls := 0
	err := Do(context.Background(), p, func(context.Context) (Class, error) {
		calls++
		if calls < 3 {
			return ClassTransient, errors.New("boom")
		}
		return ClassNone, nil
	})
	if err != nil {
		t.Fatalf("Do returned %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
}

func TestDoDoesNotRetryAuthRejected(t *testing.T) {
	p := Default()
	calls := 0
	err := Do(context.Background(), p, func(context.Context) (Class, error) {
		calls++
		return ClassAuthRejected, errors.New("403")
	})
	if err == nil {
		t.Fatal("Do returned nil, want error")
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}

func TestDoWrapsRateLimitExhaustion(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 2 * time.Millisecond}
	err := Do(context.Background(), p, func(context.Context) (Class, error) {
		return ClassRateLimited, errors.New("429")
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Do error = %v, want ErrRateLimited", err)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: time.Hour, Multiplier: 2, MaxDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, p, func(context.Context) (Class, error) {
			return ClassTransient, errors.New("boom")
		})
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Do error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}
