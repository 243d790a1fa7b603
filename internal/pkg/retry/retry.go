package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"
)

// ErrRateLimited is returned when the retry budget is exhausted on 429s.
var ErrRateLimited = errors.New("rate limit retry budget exhausted")

// Class buckets an operation outcome for the retry decision. Only transient
// network conditions are retried here; auth rejection belongs to session
// escalation and malformed payloads to adapter fallback.
type Class int

const (
	ClassNone Class = iota
	ClassRateLimited
	ClassTransient
	ClassTimeout
	ClassAuthRejected
	ClassMalformed
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassRateLimited:
		return "rate_limited"
	case ClassTransient:
		return "transient"
	case ClassTimeout:
		return "timeout"
	case ClassAuthRejected:
		return "auth_rejected"
	case ClassMalformed:
		return "malformed"
	default:
		return "fatal"
	}
}

// Retryable reports whether the class is eligible for another attempt.
func (c Class) Retryable() bool {
	switch c {
	case ClassRateLimited, ClassTransient, ClassTimeout:
		return true
	}
	return false
}

// Classify maps an HTTP status and/or transport error to a Class. A zero
// status means the request never produced a response.
func Classify(status int, err error) Class {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ClassTimeout
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ClassTimeout
		}
		return ClassTransient
	}
	switch {
	case status == http.StatusTooManyRequests:
		return ClassRateLimited
	case status >= 500:
		return ClassTransient
	case status == http.StatusForbidden, status == http.StatusUnauthorized:
		return ClassAuthRejected
	case status >= 200 && status < 300:
		return ClassNone
	}
	return ClassFatal
}

// Decision is the outcome of one retry deliberation.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Policy holds the backoff parameters. The zero value is unusable; use
// Default or build one from config.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// Default returns the policy used when no config section is given.
func Default() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
	}
}

// Decide is a pure function of (attempt, class). attempt is zero-based: the
// decision governs whether attempt+1 may happen. The returned delay is the
// deterministic backoff; jitter is added by Do so Decide stays testable.
func (p Policy) Decide(attempt int, class Class) Decision {
	if !class.Retryable() {
		return Decision{}
	}
	if attempt+1 >= p.MaxAttempts {
		return Decision{}
	}
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt)))
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	return Decision{Retry: true, Delay: delay}
}

// Do runs op under the policy. op reports the outcome class alongside its
// error; Do sleeps the decided delay plus random jitter in [0, delay) between
// attempts and honors context cancellation. When the budget runs out on 429s
// the returned error wraps ErrRateLimited.
func Do(ctx context.Context, p Policy, op func(context.Context) (Class, error)) error {
	var lastErr error
	var lastClass Class

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		class, err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr, lastClass = err, class

		d := p.Decide(attempt, class)
		if !d.Retry {
			break
		}
		delay := d.Delay
		if delay > 0 {
			delay += time.Duration(rand.Int63n(int64(delay)))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	if lastClass == ClassRateLimited {
		return fmt.Errorf("%w: %w", ErrRateLimited, lastErr)
	}
	return lastErr
}
