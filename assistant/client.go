package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicflow/clinicflow/logging"
	"github.com/clinicflow/clinicflow/retry"
)

// RunClientOptions configure a RunClient.
type RunClientOptions struct {
	// PollInterval is the fixed delay between run status polls.
	PollInterval time.Duration

	// RunTimeout bounds AwaitCompletion when the caller passes no explicit
	// budget.
	RunTimeout time.Duration

	// Retry governs replays of individual provider calls.
	Retry retry.Policy

	// Logger defaults to NoOpLogger.
	Logger logging.Logger

	// Now and Sleep are injected so tests can drive the poll loop with a
	// fake clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// RunClient performs the create-thread / post-message / start-run /
// poll-until-terminal / fetch-messages protocol for one agent invocation.
type RunClient struct {
	provider Provider
	opts     RunClientOptions
}

// NewRunClient wraps a provider with polling and retry discipline.
func NewRunClient(provider Provider, optFns ...func(o *RunClientOptions)) *RunClient {
	opts := RunClientOptions{
		PollInterval: time.Second,
		RunTimeout:   2 * time.Minute,
		Retry: retry.Policy{
			MaxRetries: 3,
			Delays:     []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
			Classifier: retry.HTTPClassifier,
		},
		Logger: logging.NoOpLogger{},
		Now:    time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Sleep == nil {
		opts.Sleep = func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		}
	}
	return &RunClient{provider: provider, opts: opts}
}

// CreateThread opens a fresh provider-side conversation thread.
func (c *RunClient) CreateThread(ctx context.Context) (string, error) {
	return retry.Do(ctx, c.opts.Retry, func(ctx context.Context) (string, error) {
		return c.provider.CreateThread(ctx)
	})
}

// PostMessage appends content to the thread. It must be called before
// starting a run for that content to be visible to the assistant.
func (c *RunClient) PostMessage(ctx context.Context, threadID string, role Role, content string) error {
	_, err := retry.Do(ctx, c.opts.Retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.provider.CreateMessage(ctx, threadID, role, content)
	})
	return err
}

// StartRun begins executing an assistant against the thread.
func (c *RunClient) StartRun(ctx context.Context, threadID, assistantID, instructions string) (Run, error) {
	return retry.Do(ctx, c.opts.Retry, func(ctx context.Context) (Run, error) {
		return c.provider.CreateRun(ctx, threadID, assistantID, instructions)
	})
}

// AwaitCompletion polls the run on a fixed interval until it completes, fails
// or the wait budget elapses. A zero timeout uses the client default.
//
// Terminal failure statuses return a RunFailedError immediately. When the
// budget runs out first, a RunTimeoutError is returned without cancelling the
// remote run; it may still complete and its result is simply discarded.
func (c *RunClient) AwaitCompletion(ctx context.Context, threadID, runID string, timeout time.Duration) (Run, error) {
	if timeout <= 0 {
		timeout = c.opts.RunTimeout
	}
	start := c.opts.Now()

	for {
		run, err := retry.Do(ctx, c.opts.Retry, func(ctx context.Context) (Run, error) {
			return c.provider.GetRun(ctx, threadID, runID)
		})
		if err != nil {
			return Run{}, fmt.Errorf("poll run %s: %w", runID, err)
		}

		switch {
		case run.Status == StatusCompleted:
			return run, nil
		case run.Status.Terminal():
			return run, &RunFailedError{RunID: runID, Status: run.Status}
		}

		if err := c.opts.Sleep(ctx, c.opts.PollInterval); err != nil {
			return Run{}, err
		}
		if c.opts.Now().Sub(start) >= timeout {
			c.opts.Logger.Warn("run wait budget exhausted", "run_id", runID, "timeout", timeout)
			return run, &RunTimeoutError{RunID: runID, Timeout: timeout}
		}
	}
}

// ListMessages fetches the thread's messages, newest-first.
func (c *RunClient) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	return retry.Do(ctx, c.opts.Retry, func(ctx context.Context) ([]Message, error) {
		return c.provider.ListMessages(ctx, threadID)
	})
}

// Exchange posts content to the thread, runs the assistant and returns the
// newest assistant reply. It is the unit of work the orchestrator performs
// per agent turn.
func (c *RunClient) Exchange(ctx context.Context, threadID, assistantID, content, instructions string) (string, error) {
	if err := c.PostMessage(ctx, threadID, RoleUser, content); err != nil {
		return "", fmt.Errorf("post message: %w", err)
	}

	run, err := c.StartRun(ctx, threadID, assistantID, instructions)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}

	if _, err := c.AwaitCompletion(ctx, threadID, run.ID, 0); err != nil {
		return "", fmt.Errorf("await run: %w", err)
	}

	messages, err := c.ListMessages(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	reply, ok := LatestAssistantText(messages)
	if !ok {
		return "", fmt.Errorf("run %s completed without an assistant reply", run.ID)
	}
	return reply, nil
}
