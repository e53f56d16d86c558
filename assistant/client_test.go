package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/clinicflow/retry"
)

// scriptedProvider serves canned run statuses and records the call sequence.
type scriptedProvider struct {
	statuses []RunStatus
	polls    int
	calls    []string

	createThreadErr error
	createRunErr    error
	getRunErr       error
	messages        []Message
}

func (p *scriptedProvider) CreateThread(context.Context) (string, error) {
	p.calls = append(p.calls, "create_thread")
	if p.createThreadErr != nil {
		return "", p.createThreadErr
	}
	return "thread_1", nil
}

func (p *scriptedProvider) CreateMessage(_ context.Context, threadID string, role Role, content string) error {
	p.calls = append(p.calls, "create_message")
	return nil
}

func (p *scriptedProvider) CreateRun(_ context.Context, threadID, assistantID, _ string) (Run, error) {
	p.calls = append(p.calls, "create_run")
	if p.createRunErr != nil {
		return Run{}, p.createRunErr
	}
	return Run{ID: "run_1", ThreadID: threadID, AssistantID: assistantID, Status: StatusQueued}, nil
}

func (p *scriptedProvider) GetRun(_ context.Context, threadID, runID string) (Run, error) {
	p.calls = append(p.calls, "get_run")
	if p.getRunErr != nil {
		return Run{}, p.getRunErr
	}
	status := p.statuses[len(p.statuses)-1]
	if p.polls < len(p.statuses) {
		status = p.statuses[p.polls]
	}
	p.polls++
	return Run{ID: runID, ThreadID: threadID, Status: status}, nil
}

func (p *scriptedProvider) ListMessages(context.Context, string) ([]Message, error) {
	p.calls = append(p.calls, "list_messages")
	return p.messages, nil
}

// testClock advances only when the client sleeps, so poll budgets are
// deterministic.
type testClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newTestClient(p Provider, clock *testClock, optFns ...func(o *RunClientOptions)) *RunClient {
	base := func(o *RunClientOptions) {
		o.Now = func() time.Time { return clock.now }
		o.Sleep = func(_ context.Context, d time.Duration) error {
			clock.sleeps = append(clock.sleeps, d)
			clock.now = clock.now.Add(d)
			return nil
		}
		o.Retry = retry.Policy{Classifier: retry.HTTPClassifier}
	}
	return NewRunClient(p, append([]func(o *RunClientOptions){base}, optFns...)...)
}

func TestAwaitCompletion_TerminalDetection(t *testing.T) {
	p := &scriptedProvider{statuses: []RunStatus{StatusQueued, StatusQueued, StatusCompleted}}
	clock := &testClock{now: time.Unix(1700000000, 0)}
	c := newTestClient(p, clock)

	run, err := c.AwaitCompletion(context.Background(), "thread_1", "run_1", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 3, p.polls, "must stop polling once completed")
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.sleeps)
}

func TestAwaitCompletion_FailureStatusRaisesImmediately(t *testing.T) {
	p := &scriptedProvider{statuses: []RunStatus{StatusInProgress, StatusExpired}}
	clock := &testClock{now: time.Unix(1700000000, 0)}
	c := newTestClient(p, clock)

	_, err := c.AwaitCompletion(context.Background(), "thread_1", "run_1", time.Minute)
	var failed *RunFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, StatusExpired, failed.Status)
	assert.Equal(t, 2, p.polls)
}

func TestAwaitCompletion_Timeout(t *testing.T) {
	p := &scriptedProvider{statuses: []RunStatus{StatusInProgress}}
	clock := &testClock{now: time.Unix(1700000000, 0)}
	c := newTestClient(p, clock)

	_, err := c.AwaitCompletion(context.Background(), "thread_1", "run_1", 3*time.Second)
	var timeout *RunTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 3*time.Second, timeout.Timeout)
	assert.Equal(t, 3, p.polls, "budget of 3s at 1s interval allows ~3 polls")
}

func TestAwaitCompletion_RetriesTransientPollFailures(t *testing.T) {
	p := &scriptedProvider{statuses: []RunStatus{StatusCompleted}}
	flaky := &flakyProvider{inner: p, failFirst: 2}
	clock := &testClock{now: time.Unix(1700000000, 0)}
	c := newTestClient(flaky, clock, func(o *RunClientOptions) {
		o.Retry = retry.Policy{
			MaxRetries: 3,
			Classifier: retry.HTTPClassifier,
			Sleep:      func(context.Context, time.Duration) error { return nil },
		}
	})

	run, err := c.AwaitCompletion(context.Background(), "thread_1", "run_1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 3, flaky.seen, "two 503 polls replayed before the successful one")
}

func TestAwaitCompletion_NonRetryablePollFailure(t *testing.T) {
	p := &scriptedProvider{getRunErr: &ProviderError{Op: "get run", StatusCode: 401}}
	clock := &testClock{now: time.Unix(1700000000, 0)}
	c := newTestClient(p, clock, func(o *RunClientOptions) {
		o.Retry = retry.Policy{MaxRetries: 3, Classifier: retry.HTTPClassifier}
	})

	_, err := c.AwaitCompletion(context.Background(), "thread_1", "run_1", time.Minute)
	require.Error(t, err)
	assert.Equal(t, 1, len(p.calls), "auth failures must not be replayed")
}

func TestExchange_ProtocolOrder(t *testing.T) {
	p := &scriptedProvider{
		statuses: []RunStatus{StatusCompleted},
		messages: []Message{
			{ID: "msg_2", Role: RoleAssistant, Content: "the answer"},
			{ID: "msg_1", Role: RoleUser, Content: "the question"},
		},
	}
	clock := &testClock{now: time.Unix(1700000000, 0)}
	c := newTestClient(p, clock)

	reply, err := c.Exchange(context.Background(), "thread_1", "asst_1", "the question", "")
	require.NoError(t, err)
	assert.Equal(t, "the answer", reply)
	assert.Equal(t, []string{"create_message", "create_run", "get_run", "list_messages"}, p.calls,
		"the message must be posted before the run starts")
}

func TestLatestAssistantText_NewestFirst(t *testing.T) {
	msgs := []Message{
		{Role: RoleAssistant, Content: "newest"},
		{Role: RoleUser, Content: "question"},
		{Role: RoleAssistant, Content: "older"},
	}
	got, ok := LatestAssistantText(msgs)
	require.True(t, ok)
	assert.Equal(t, "newest", got)

	_, ok = LatestAssistantText([]Message{{Role: RoleUser, Content: "only user"}})
	assert.False(t, ok)
}

// flakyProvider fails the first N GetRun calls with a 503, then delegates.
type flakyProvider struct {
	inner     Provider
	failFirst int
	seen      int
}

func (f *flakyProvider) CreateThread(ctx context.Context) (string, error) {
	return f.inner.CreateThread(ctx)
}

func (f *flakyProvider) CreateMessage(ctx context.Context, threadID string, role Role, content string) error {
	return f.inner.CreateMessage(ctx, threadID, role, content)
}

func (f *flakyProvider) CreateRun(ctx context.Context, threadID, assistantID, instructions string) (Run, error) {
	return f.inner.CreateRun(ctx, threadID, assistantID, instructions)
}

func (f *flakyProvider) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	f.seen++
	if f.seen <= f.failFirst {
		return Run{}, &ProviderError{Op: "get run", StatusCode: 503}
	}
	return f.inner.GetRun(ctx, threadID, runID)
}

func (f *flakyProvider) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	return f.inner.ListMessages(ctx, threadID)
}
