package retry

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Transport is an http.RoundTripper that replays the exact original request
// on 429 and 5xx responses (and on transport errors) following a Policy's
// delay schedule. A Retry-After header on a rate-limit response overrides the
// schedule for that one wait.
//
// The request body is buffered up front so every attempt sends identical
// bytes.
type Transport struct {
	// Base is the underlying round tripper, http.DefaultTransport if nil.
	Base http.RoundTripper

	// Policy supplies the retry budget and delay schedule. Policy.Classifier
	// is ignored; retryability is decided from the response status.
	Policy Policy
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	sleep := t.Policy.Sleep
	if sleep == nil {
		sleep = defaultSleep
	}

	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		body = b
	}

	var resp *http.Response
	var err error

	for attempt := 0; ; attempt++ {
		attemptReq := req.Clone(req.Context())
		if body != nil {
			attemptReq.Body = io.NopCloser(bytes.NewReader(body))
			attemptReq.ContentLength = int64(len(body))
			attemptReq.GetBody = func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(body)), nil
			}
		}

		resp, err = base.RoundTrip(attemptReq)
		if err == nil && !RetryableStatus(resp.StatusCode) {
			return resp, nil
		}
		if attempt >= t.Policy.MaxRetries {
			return resp, err
		}

		delay := delayFor(t.Policy.Delays, attempt)
		if err == nil {
			if after, ok := retryAfterHeader(resp); ok && resp.StatusCode == http.StatusTooManyRequests {
				delay = after
			}
			// Drain so the connection can be reused for the replay.
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		if delay > 0 {
			if serr := sleep(req.Context(), delay); serr != nil {
				return nil, serr
			}
		}
	}
}

func retryAfterHeader(resp *http.Response) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
