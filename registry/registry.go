// Package registry maps agent types to their capability metadata and owns the
// per-agent token buckets used for quota checks.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/clinicflow/clinicflow/ratelimit"
)

// AgentType identifies a specialist agent. The set is closed: every type
// carries a fixed assistant configuration registered at process start.
type AgentType string

// The agent catalog.
const (
	AgentHeadBrain     AgentType = "head-brain" // coordinator, entry agent for unhinted queries
	AgentRevenue       AgentType = "revenue"
	AgentPatientCare   AgentType = "patient-care"
	AgentOperations    AgentType = "operations"
	AgentStaff         AgentType = "staff"
	AgentDataAnalysis  AgentType = "data-analysis"
	AgentDataRetrieval AgentType = "data-retrieval"
)

// AllAgentTypes returns the closed set of known agent types.
func AllAgentTypes() []AgentType {
	return []AgentType{
		AgentHeadBrain, AgentRevenue, AgentPatientCare, AgentOperations,
		AgentStaff, AgentDataAnalysis, AgentDataRetrieval,
	}
}

// ParseAgentType validates a wire identifier against the closed set.
func ParseAgentType(s string) (AgentType, error) {
	for _, t := range AllAgentTypes() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown agent type %q", s)
}

// RateLimit declares an agent's throughput quota: Capacity tokens at most,
// RefillPerWindow tokens added every Window.
type RateLimit struct {
	Capacity        int
	RefillPerWindow int
	Window          time.Duration
}

// Descriptor carries the immutable registration metadata for one agent type.
// Descriptors are created at process start and never mutated afterwards.
type Descriptor struct {
	Type         AgentType
	AssistantID  string
	Capabilities []string
	Version      string
	RateLimit    *RateLimit // nil means unlimited
}

// HasCapability reports whether the descriptor declares the capability.
func (d Descriptor) HasCapability(capability string) bool {
	for _, c := range d.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// NotFoundError indicates a lookup for an agent type that was never
// registered. This is a configuration bug, never retried.
type NotFoundError struct {
	Type AgentType
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("agent type %q is not registered", e.Type)
}

type entry struct {
	descriptor Descriptor
	bucket     *ratelimit.Bucket
}

// Registry is the process-lifetime store of agent descriptors. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[AgentType]entry

	clock func() time.Time
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock overrides the time source handed to each agent's bucket.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.clock = now }
}

// New creates an empty Registry.
func New(optFns ...Option) *Registry {
	r := &Registry{entries: make(map[AgentType]entry), clock: time.Now}
	for _, fn := range optFns {
		fn(r)
	}
	return r
}

// Register stores a descriptor, overwriting any previous registration for the
// same type. When the descriptor declares a rate limit a fresh bucket is
// constructed; re-registering resets the quota.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := entry{descriptor: d}
	if rl := d.RateLimit; rl != nil {
		e.bucket = ratelimit.NewBucket(rl.Capacity, rl.RefillPerWindow, rl.Window, ratelimit.WithClock(r.clock))
	}
	r.entries[d.Type] = e
}

// Resolve returns the descriptor for an agent type.
func (r *Registry) Resolve(t AgentType) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[t]
	if !ok {
		return Descriptor{}, &NotFoundError{Type: t}
	}
	return e.descriptor, nil
}

// CheckQuota consumes one token from the agent's bucket. Agents without a
// declared rate limit always pass. A denial is a normal outcome the caller
// must surface without retrying.
func (r *Registry) CheckQuota(t AgentType) (bool, error) {
	r.mu.RLock()
	e, ok := r.entries[t]
	r.mu.RUnlock()

	if !ok {
		return false, &NotFoundError{Type: t}
	}
	if e.bucket == nil {
		return true, nil
	}
	return e.bucket.TryConsume(1), nil
}

// FindByCapability returns the agent types declaring the capability, sorted
// for deterministic fan-out membership.
func (r *Registry) FindByCapability(capability string) []AgentType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var types []AgentType
	for t, e := range r.entries {
		if e.descriptor.HasCapability(capability) {
			types = append(types, t)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Types returns all registered agent types, sorted.
func (r *Registry) Types() []AgentType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]AgentType, 0, len(r.entries))
	for t := range r.entries {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
