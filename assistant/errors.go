package assistant

import (
	"fmt"
	"time"
)

// ProviderError reports a transport or auth failure talking to the backing
// provider. It exposes the HTTP status of the failed call so the retry
// classifier can decide whether a replay is worthwhile.
type ProviderError struct {
	Op         string
	StatusCode int // zero when the failure never produced a response
	After      time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// HTTPStatusCode implements the retry package's status contract.
func (e *ProviderError) HTTPStatusCode() int { return e.StatusCode }

// RetryAfter exposes a provider-supplied wait, present on rate-limit
// responses that carried a Retry-After header.
func (e *ProviderError) RetryAfter() (time.Duration, bool) {
	return e.After, e.After > 0
}

// RunFailedError reports a run that reached a terminal non-success status.
type RunFailedError struct {
	RunID  string
	Status RunStatus
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("run %s ended with status %s", e.RunID, e.Status)
}

// RunTimeoutError reports that the local wait budget elapsed before the run
// reached a terminal status. The remote run is not cancelled; its eventual
// result is discarded.
type RunTimeoutError struct {
	RunID   string
	Timeout time.Duration
}

func (e *RunTimeoutError) Error() string {
	return fmt.Sprintf("run %s did not finish within %s", e.RunID, e.Timeout)
}
