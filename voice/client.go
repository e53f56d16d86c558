// Package voice is a REST client for the telephony provider used for
// outbound patient calls. All requests ride a replaying retry transport, so
// 429 and 5xx responses are re-sent per the configured delay schedule.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clinicflow/clinicflow/logging"
	"github.com/clinicflow/clinicflow/retry"
)

// CallStatus is the provider-reported lifecycle state of a call.
type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusCancelled  CallStatus = "cancelled"
)

// Call is the provider's call resource.
type Call struct {
	ID        string     `json:"call_id"`
	Status    CallStatus `json:"status"`
	ToNumber  string     `json:"to_number"`
	Priority  string     `json:"priority,omitempty"`
	StartedAt time.Time  `json:"started_at,omitempty"`
	EndedAt   time.Time  `json:"ended_at,omitempty"`
}

// PlaceCallRequest starts an outbound call driven by an agent script.
type PlaceCallRequest struct {
	ToNumber string            `json:"to_number"`
	AgentID  string            `json:"agent_id"`
	Priority string            `json:"priority,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Transcription is the full transcript of a finished call.
type Transcription struct {
	CallID string `json:"call_id"`
	Turns  []Turn `json:"turns"`
}

// Turn is one speaker turn in a transcript.
type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Analysis is the provider's post-call summary.
type Analysis struct {
	CallID    string `json:"call_id"`
	Summary   string `json:"summary"`
	Sentiment string `json:"sentiment,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
}

// Recording points at the stored audio of a call.
type Recording struct {
	CallID string `json:"call_id"`
	URL    string `json:"url"`
	Format string `json:"format,omitempty"`
}

// APIError is a non-2xx provider response. It satisfies the retry
// classifier's status interface so callers can wrap individual operations
// with their own retry policy as well.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("voice %s: provider returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// HTTPStatusCode reports the provider status for retry classification.
func (e *APIError) HTTPStatusCode() int { return e.StatusCode }

// Client talks to the telephony provider's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logging.Logger
}

// ClientOptions configure a Client.
type ClientOptions struct {
	// HTTPClient overrides the default retrying client.
	HTTPClient *http.Client

	// Retry is the transport-level replay policy. Ignored when HTTPClient
	// is set.
	Retry retry.Policy

	Logger logging.Logger
}

// NewClient creates a voice provider client for the given base URL and key.
func NewClient(baseURL, apiKey string, optFns ...func(o *ClientOptions)) *Client {
	opts := ClientOptions{
		Retry: retry.Policy{
			MaxRetries: 3,
			Delays:     []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		},
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &retry.Transport{Policy: opts.Retry},
			Timeout:   60 * time.Second,
		}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     opts.Logger,
	}
}

// PlaceCall starts an outbound call. The provider answers synchronously with
// the queued call resource.
func (c *Client) PlaceCall(ctx context.Context, req PlaceCallRequest) (*Call, error) {
	var call Call
	if err := c.do(ctx, http.MethodPost, "/calls", req, &call); err != nil {
		return nil, err
	}
	c.logger.Info("call placed", "call_id", call.ID, "to", call.ToNumber)
	return &call, nil
}

// GetCall fetches the current call resource.
func (c *Client) GetCall(ctx context.Context, callID string) (*Call, error) {
	var call Call
	if err := c.do(ctx, http.MethodGet, "/calls/"+callID, nil, &call); err != nil {
		return nil, err
	}
	return &call, nil
}

// CancelCall asks the provider to hang up an in-flight call.
func (c *Client) CancelCall(ctx context.Context, callID string) error {
	return c.do(ctx, http.MethodPost, "/calls/"+callID+"/cancel", nil, nil)
}

// UpdatePriority changes the queue priority of a not-yet-started call.
func (c *Client) UpdatePriority(ctx context.Context, callID, priority string) (*Call, error) {
	var call Call
	body := map[string]string{"priority": priority}
	if err := c.do(ctx, http.MethodPatch, "/calls/"+callID, body, &call); err != nil {
		return nil, err
	}
	return &call, nil
}

// GetTranscription fetches the transcript of a finished call.
func (c *Client) GetTranscription(ctx context.Context, callID string) (*Transcription, error) {
	var tr Transcription
	if err := c.do(ctx, http.MethodGet, "/calls/"+callID+"/transcription", nil, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// GetAnalysis fetches the provider's post-call analysis.
func (c *Client) GetAnalysis(ctx context.Context, callID string) (*Analysis, error) {
	var an Analysis
	if err := c.do(ctx, http.MethodGet, "/calls/"+callID+"/analysis", nil, &an); err != nil {
		return nil, err
	}
	return &an, nil
}

// GetRecording fetches the stored-audio pointer for a finished call.
func (c *Client) GetRecording(ctx context.Context, callID string) (*Recording, error) {
	var rec Recording
	if err := c.do(ctx, http.MethodGet, "/calls/"+callID+"/recording", nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	op := method + " " + path

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("voice %s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("voice %s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("voice %s: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("voice %s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("voice %s: unmarshal response: %w", op, err)
	}
	return nil
}
