package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Event type discriminators seen across the provider sources.
const (
	EventCallStarted       = "call.started"
	EventCallEnded         = "call.ended"
	EventCallTranscription = "call.transcription"
	EventEligibilityOK     = "eligibility.verified"
	EventClaimStatus       = "claim.status_update"
	EventCompletionDone    = "completion.finished"
	EventError             = "error"
	EventModerationFlagged = "moderation.flagged"
)

// Event is one authenticated provider callback. Payload is the raw body so
// source-specific handlers decode only the shape they understand.
type Event struct {
	Type    string
	Source  string
	Payload json.RawMessage
}

// ParseEvent extracts the discriminator from a verified body. Both
// "eventType" and "event_type" spellings occur across providers.
func ParseEvent(source string, rawBody []byte) (Event, error) {
	if !gjson.ValidBytes(rawBody) {
		return Event{}, fmt.Errorf("webhook body from %q is not valid JSON", source)
	}
	t := gjson.GetBytes(rawBody, "eventType")
	if !t.Exists() {
		t = gjson.GetBytes(rawBody, "event_type")
	}
	if t.String() == "" {
		return Event{}, fmt.Errorf("webhook body from %q has no event type", source)
	}
	return Event{Type: t.String(), Source: source, Payload: json.RawMessage(rawBody)}, nil
}

// Handler consumes authenticated events.
type Handler interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event) error

// HandleEvent implements Handler.
func (f HandlerFunc) HandleEvent(ctx context.Context, ev Event) error { return f(ctx, ev) }
