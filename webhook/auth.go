// Package webhook authenticates inbound asynchronous provider callbacks and
// dispatches their events. Verification must succeed before any payload is
// parsed or handled.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Headers every provider callback must carry.
const (
	SignatureHeader = "x-webhook-signature"
	TimestampHeader = "x-webhook-timestamp"
)

// DefaultFreshnessWindow bounds replay-attack exposure.
const DefaultFreshnessWindow = 5 * time.Minute

// Authentication failures. All are fatal; none is ever retried.
var (
	ErrMissingSignature = errors.New("missing signature or timestamp header")
	ErrStaleTimestamp   = errors.New("timestamp outside freshness window")
	ErrUnknownSource    = errors.New("no secret configured for source")
	ErrInvalidSignature = errors.New("signature mismatch")
)

// KeyLookup resolves the shared secret for a webhook source.
type KeyLookup func(source string) (string, bool)

// Verifier checks callback signatures and timestamp freshness.
type Verifier struct {
	freshness time.Duration
	now       func() time.Time
}

// VerifierOption customizes a Verifier.
type VerifierOption func(*Verifier)

// WithFreshnessWindow overrides the replay window.
func WithFreshnessWindow(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.freshness = d }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a Verifier with the default 5 minute freshness window.
func NewVerifier(optFns ...VerifierOption) *Verifier {
	v := &Verifier{freshness: DefaultFreshnessWindow, now: time.Now}
	for _, fn := range optFns {
		fn(v)
	}
	return v
}

// Verify authenticates one callback. The expected signature is an HMAC-SHA256
// over "<timestamp>.<rawBody>" with the source's shared secret, compared in
// constant time.
func (v *Verifier) Verify(source string, header http.Header, rawBody []byte, lookup KeyLookup) error {
	signature := header.Get(SignatureHeader)
	timestamp := header.Get(TimestampHeader)
	if signature == "" || timestamp == "" {
		return ErrMissingSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("unparseable timestamp %q: %w", timestamp, ErrMissingSignature)
	}
	age := v.now().Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > v.freshness {
		return fmt.Errorf("timestamp is %s old: %w", age, ErrStaleTimestamp)
	}

	secret, ok := lookup(source)
	if !ok {
		return fmt.Errorf("source %q: %w", source, ErrUnknownSource)
	}

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("unparseable signature: %w", ErrInvalidSignature)
	}
	if !hmac.Equal(provided, computeSignature(secret, timestamp, rawBody)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign produces the hex signature a caller must present for a body at a
// timestamp. Exposed for tests and outbound webhook emission.
func Sign(secret, timestamp string, rawBody []byte) string {
	return hex.EncodeToString(computeSignature(secret, timestamp, rawBody))
}

func computeSignature(secret, timestamp string, rawBody []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	return mac.Sum(nil)
}
