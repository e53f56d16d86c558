package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statusError mimics a provider error exposing the failed call's HTTP status.
type statusError struct {
	code  int
	after time.Duration
}

func (e *statusError) Error() string       { return fmt.Sprintf("http %d", e.code) }
func (e *statusError) HTTPStatusCode() int { return e.code }

func (e *statusError) RetryAfter() (time.Duration, bool) {
	return e.after, e.after > 0
}

func recordingSleep(slept *[]time.Duration) SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), Policy{MaxRetries: 3, Classifier: HTTPClassifier}, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesServerErrorsPerSchedule(t *testing.T) {
	var slept []time.Duration
	schedule := []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, time.Second}
	calls := 0

	_, err := Do(context.Background(), Policy{
		MaxRetries: 3,
		Delays:     schedule,
		Classifier: HTTPClassifier,
		Sleep:      recordingSleep(&slept),
	}, func(context.Context) (string, error) {
		calls++
		return "", &statusError{code: 500}
	})

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, calls, "initial attempt plus three retries")
	assert.Equal(t, schedule, slept)
}

func TestDo_RateLimitRetried(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), Policy{MaxRetries: 2, Classifier: HTTPClassifier, Sleep: recordingSleep(new([]time.Duration))}, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &statusError{code: 429}
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, calls)
}

func TestDo_ClientErrorNotRetried(t *testing.T) {
	calls := 0
	badReq := &statusError{code: 400}
	_, err := Do(context.Background(), Policy{MaxRetries: 5, Classifier: HTTPClassifier}, func(context.Context) (string, error) {
		calls++
		return "", badReq
	})
	assert.Equal(t, 1, calls, "400 must fail on the single original attempt")
	assert.ErrorIs(t, err, badReq)
	var exhausted *RetriesExhaustedError
	assert.False(t, errors.As(err, &exhausted), "non-retryable errors are not wrapped")
}

func TestDo_ScheduleLastEntryRepeats(t *testing.T) {
	var slept []time.Duration
	_, err := Do(context.Background(), Policy{
		MaxRetries: 4,
		Delays:     []time.Duration{time.Millisecond, 2 * time.Millisecond},
		Classifier: HTTPClassifier,
		Sleep:      recordingSleep(&slept),
	}, func(context.Context) (string, error) {
		return "", &statusError{code: 503}
	})
	require.Error(t, err)
	assert.Equal(t, []time.Duration{
		time.Millisecond, 2 * time.Millisecond, 2 * time.Millisecond, 2 * time.Millisecond,
	}, slept)
}

func TestDo_RetryAfterHintOverridesSchedule(t *testing.T) {
	var slept []time.Duration
	calls := 0
	_, err := Do(context.Background(), Policy{
		MaxRetries: 1,
		Delays:     []time.Duration{time.Second},
		Classifier: HTTPClassifier,
		Sleep:      recordingSleep(&slept),
	}, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &statusError{code: 429, after: 7 * time.Second}
		}
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{7 * time.Second}, slept)
}

func TestDo_ZeroRetriesSingleAttempt(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{Classifier: HTTPClassifier}, func(context.Context) (string, error) {
		calls++
		return "", &statusError{code: 500}
	})
	assert.Equal(t, 1, calls)
	var exhausted *RetriesExhaustedError
	assert.ErrorAs(t, err, &exhausted)
}

func TestDo_ContextCancellationNotRetried(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{MaxRetries: 3, Classifier: HTTPClassifier}, func(context.Context) (string, error) {
		calls++
		return "", fmt.Errorf("call aborted: %w", context.Canceled)
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPClassifier_Boundaries(t *testing.T) {
	tests := []struct {
		code      int
		retryable bool
	}{
		{400, false}, {401, false}, {404, false}, {422, false},
		{429, true}, {500, true}, {502, true}, {503, true},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.retryable, HTTPClassifier(&statusError{code: tt.code}), "status %d", tt.code)
	}
	assert.False(t, HTTPClassifier(nil))
	assert.True(t, HTTPClassifier(errors.New("connection reset")), "bare transport errors are retryable")
}
