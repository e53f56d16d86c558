// Package assistant implements the conversational-run protocol against a
// backing assistants provider: create a thread, post a message, start a run,
// poll it to a terminal state and fetch the thread's messages.
//
// The RunClient looks synchronous to callers even though every step is an
// independent network round trip; the suspension point is the poll loop in
// AwaitCompletion. Cancelling the caller's context cancels the wait, never
// the remote run.
package assistant

import "context"

// Role is the author role of a thread message.
type Role string

// Message roles understood by the provider.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleAgent     Role = "agent"
)

// RunStatus is the provider-reported state of one assistant run.
type RunStatus string

// Run lifecycle: queued -> in_progress -> completed on the success path;
// queued or in_progress may instead reach failed, expired or cancelled.
// No transition leaves a terminal state.
const (
	StatusQueued     RunStatus = "queued"
	StatusInProgress RunStatus = "in_progress"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
	StatusExpired    RunStatus = "expired"
	StatusCancelled  RunStatus = "cancelled"
)

// Terminal reports whether the status ends the run's state machine.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Message is one entry of a conversation thread.
type Message struct {
	ID       string
	Role     Role
	Content  string
	Metadata map[string]string
}

// Run is one execution attempt of an assistant against a thread.
type Run struct {
	ID          string
	ThreadID    string
	AssistantID string
	Status      RunStatus
}

// Provider is the raw boundary to the backing assistants service. Every call
// is a single network round trip with no retry discipline of its own; the
// RunClient layers retries on top.
type Provider interface {
	CreateThread(ctx context.Context) (string, error)
	CreateMessage(ctx context.Context, threadID string, role Role, content string) error
	CreateRun(ctx context.Context, threadID, assistantID, instructions string) (Run, error)
	GetRun(ctx context.Context, threadID, runID string) (Run, error)
	// ListMessages returns the thread's messages newest-first, per provider
	// convention. Callers needing chronological order must reverse.
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
}

// LatestAssistantText returns the content of the newest assistant message in
// a newest-first message list.
func LatestAssistantText(messages []Message) (string, bool) {
	for _, m := range messages {
		if m.Role == RoleAssistant {
			return m.Content, true
		}
	}
	return "", false
}
