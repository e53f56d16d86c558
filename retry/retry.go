// Package retry provides bounded, delay-scheduled retries for outbound
// provider calls, driven by a retryability classifier.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Classifier decides whether a failed attempt may be replayed.
type Classifier func(error) bool

// SleepFunc suspends between attempts. Tests substitute a recording fake.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes one retry discipline: how many retries, the delay before
// each, and which errors qualify.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// Delays holds one delay per retry attempt. When attempts outrun the
	// schedule the last entry repeats.
	Delays []time.Duration

	// Classifier gates retries. A nil classifier retries nothing.
	Classifier Classifier

	// Sleep defaults to a context-aware timer wait.
	Sleep SleepFunc
}

// RetriesExhaustedError wraps the last retryable error once the schedule is
// consumed.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }

// afterHinter is implemented by errors carrying a provider-supplied
// "retry after" duration (HTTP 429 with Retry-After). The hint overrides the
// static schedule for that one wait.
type afterHinter interface {
	RetryAfter() (time.Duration, bool)
}

// AfterHint extracts a provider-supplied retry delay from err, if any.
func AfterHint(err error) (time.Duration, bool) {
	var h afterHinter
	if errors.As(err, &h) {
		return h.RetryAfter()
	}
	return 0, false
}

// statusCoder is implemented by provider errors exposing the HTTP status of
// the failed call.
type statusCoder interface {
	HTTPStatusCode() int
}

// RetryableStatus reports whether an HTTP status justifies a replay:
// 429 and all 5xx do, other 4xx never do.
func RetryableStatus(code int) bool {
	return code == 429 || code >= 500
}

// HTTPClassifier classifies errors that expose an HTTP status code. Errors
// without a status (transport failures, timeouts) are treated as retryable;
// context cancellation is not.
func HTTPClassifier(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return RetryableStatus(sc.HTTPStatusCode())
	}
	return true
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// policy's retry budget is spent. Each retry replays the same logical
// operation; the delay before retry i is Delays[min(i, len(Delays)-1)]
// unless the failing error carries a retry-after hint.
func Do[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	sleep := policy.Sleep
	if sleep == nil {
		sleep = defaultSleep
	}

	var zero T
	var lastErr error

	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if policy.Classifier == nil || !policy.Classifier(err) {
			return zero, err
		}
		if attempt >= policy.MaxRetries {
			return zero, &RetriesExhaustedError{Attempts: attempt + 1, Err: lastErr}
		}

		delay := delayFor(policy.Delays, attempt)
		if hint, ok := AfterHint(err); ok {
			delay = hint
		}
		if delay > 0 {
			if serr := sleep(ctx, delay); serr != nil {
				return zero, serr
			}
		}
	}
}

func delayFor(delays []time.Duration, attempt int) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	if attempt >= len(delays) {
		attempt = len(delays) - 1
	}
	return delays[attempt]
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
