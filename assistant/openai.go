package assistant

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements Provider on the official SDK's Assistants API.
// SDK-internal retries are disabled so the retry wrapper owns replay policy.
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates a provider from request options (API key, base
// URL). Without options the SDK reads OPENAI_API_KEY from the environment.
func NewOpenAIProvider(optFns ...option.RequestOption) *OpenAIProvider {
	opts := append([]option.RequestOption{option.WithMaxRetries(0)}, optFns...)
	return &OpenAIProvider{client: openai.NewClient(opts...)}
}

// CreateThread implements Provider.
func (p *OpenAIProvider) CreateThread(ctx context.Context) (string, error) {
	thread, err := p.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", wrapProviderErr("create thread", err)
	}
	return thread.ID, nil
}

// CreateMessage implements Provider.
func (p *OpenAIProvider) CreateMessage(ctx context.Context, threadID string, role Role, content string) error {
	_, err := p.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRole(role),
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(content),
		},
	})
	if err != nil {
		return wrapProviderErr("create message", err)
	}
	return nil
}

// CreateRun implements Provider.
func (p *OpenAIProvider) CreateRun(ctx context.Context, threadID, assistantID, instructions string) (Run, error) {
	params := openai.BetaThreadRunNewParams{AssistantID: assistantID}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}
	run, err := p.client.Beta.Threads.Runs.New(ctx, threadID, params)
	if err != nil {
		return Run{}, wrapProviderErr("create run", err)
	}
	return Run{ID: run.ID, ThreadID: threadID, AssistantID: assistantID, Status: mapRunStatus(string(run.Status))}, nil
}

// GetRun implements Provider.
func (p *OpenAIProvider) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	run, err := p.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return Run{}, wrapProviderErr("get run", err)
	}
	return Run{ID: run.ID, ThreadID: threadID, AssistantID: run.AssistantID, Status: mapRunStatus(string(run.Status))}, nil
}

// ListMessages implements Provider. The SDK returns newest-first, which is
// the order the Provider contract promises.
func (p *OpenAIProvider) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	page, err := p.client.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{})
	if err != nil {
		return nil, wrapProviderErr("list messages", err)
	}

	messages := make([]Message, 0, len(page.Data))
	for _, m := range page.Data {
		var text strings.Builder
		for _, part := range m.Content {
			if part.Type == "text" {
				text.WriteString(part.Text.Value)
			}
		}
		messages = append(messages, Message{ID: m.ID, Role: Role(m.Role), Content: text.String()})
	}
	return messages, nil
}

// mapRunStatus normalizes provider statuses onto the bounded state machine.
// requires_action and cancelling are still in flight; incomplete is terminal
// and counts as failed.
func mapRunStatus(s string) RunStatus {
	switch s {
	case "queued":
		return StatusQueued
	case "completed":
		return StatusCompleted
	case "failed":
		return StatusFailed
	case "expired":
		return StatusExpired
	case "cancelled":
		return StatusCancelled
	case "incomplete":
		return StatusFailed
	default:
		return StatusInProgress
	}
}

func wrapProviderErr(op string, err error) error {
	pe := &ProviderError{Op: op, Err: err}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		pe.StatusCode = apierr.StatusCode
		if apierr.Response != nil {
			pe.After = retryAfterFrom(apierr.Response.Header)
		}
	}
	return pe
}

func retryAfterFrom(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
