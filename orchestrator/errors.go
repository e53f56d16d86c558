package orchestrator

import (
	"fmt"

	"github.com/clinicflow/clinicflow/registry"
)

// RateLimitError reports a local quota denial for an agent. It is never
// retried by the orchestrator; callers must back off explicitly.
type RateLimitError struct {
	Type registry.AgentType
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for agent %q", e.Type)
}
