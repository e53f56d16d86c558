// Package orchestrator routes a query to the entry agent, fans requested
// sub-queries out to specialized agents concurrently and synthesizes a final
// answer on the entry agent's original thread.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/clinicflow/logging"
	"github.com/clinicflow/clinicflow/registry"
)

// Runner is the slice of the conversation run client the orchestrator needs.
// *assistant.RunClient satisfies it.
type Runner interface {
	CreateThread(ctx context.Context) (string, error)
	Exchange(ctx context.Context, threadID, assistantID, content, instructions string) (string, error)
}

// Request is the per-call input: the raw query plus an optional entry-agent
// hint.
type Request struct {
	Query string
	Hint  registry.AgentType
}

// Annotation records a specialized-agent contribution that was lost to a
// failure. The orchestration result still carries whatever succeeded.
type Annotation struct {
	AgentType string
	SubQuery  string
	Reason    string
}

// Result aggregates one orchestration run.
type Result struct {
	Content        string
	AgentsInvolved []registry.AgentType
	Annotations    []Annotation
}

// Options configure an Orchestrator.
type Options struct {
	Logger logging.Logger
}

// Orchestrator coordinates entry-agent routing, quota checks and fan-out.
type Orchestrator struct {
	registry *registry.Registry
	runner   Runner
	logger   logging.Logger
}

// New creates an Orchestrator over a populated registry and a run client.
func New(reg *registry.Registry, runner Runner, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{registry: reg, runner: runner, logger: opts.Logger}
}

// Process answers one query. The entry agent (the hint, or the head-brain
// coordinator) runs first; when its structured reply declares delegations
// they are dispatched concurrently, and the settled results feed a synthesis
// turn on the entry agent's original thread. A specialized failure becomes an
// annotation; an entry-agent failure fails the whole call.
func (o *Orchestrator) Process(ctx context.Context, req Request) (Result, error) {
	orchestrationID := uuid.NewString()
	logger := o.logger

	entry := req.Hint
	if entry == "" {
		entry = registry.AgentHeadBrain
	}

	desc, err := o.registry.Resolve(entry)
	if err != nil {
		return Result{}, err
	}
	granted, err := o.registry.CheckQuota(entry)
	if err != nil {
		return Result{}, err
	}
	if !granted {
		return Result{}, &RateLimitError{Type: entry}
	}

	threadID, err := o.runner.CreateThread(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("entry agent %s: create thread: %w", entry, err)
	}

	started := time.Now()
	reply, err := o.runner.Exchange(ctx, threadID, desc.AssistantID, req.Query, "")
	logger.Debug("entry agent replied", "orchestration_id", orchestrationID, "agent_type", entry, "duration", time.Since(started))
	if err != nil {
		return Result{}, fmt.Errorf("entry agent %s: initial run: %w", entry, err)
	}

	delegations := ParseDelegations(reply)
	if len(delegations) == 0 {
		// Unstructured replies are final as-is.
		return Result{Content: reply, AgentsInvolved: []registry.AgentType{entry}}, nil
	}

	settled := o.fanOut(ctx, delegations)

	involved := []registry.AgentType{entry}
	var annotations []Annotation
	var aggregate strings.Builder
	for _, s := range settled {
		if s.err != nil {
			logger.Warn("specialized agent failed", "orchestration_id", orchestrationID, "agent_type", s.d.AgentType, "error", s.err)
			annotations = append(annotations, Annotation{
				AgentType: s.d.AgentType,
				SubQuery:  s.d.SubQuery,
				Reason:    s.err.Error(),
			})
			continue
		}
		involved = append(involved, s.agentType)
		fmt.Fprintf(&aggregate, "[%s] %s\n", s.d.AgentType, s.content)
	}

	synthesis := fmt.Sprintf("Results from the specialized agents:\n\n%s\nCompose the final answer to the original question using these results.", aggregate.String())
	for _, a := range annotations {
		synthesis += fmt.Sprintf("\nNote: agent %s did not respond.", a.AgentType)
	}

	final, err := o.runner.Exchange(ctx, threadID, desc.AssistantID, synthesis, "")
	if err != nil {
		return Result{}, fmt.Errorf("entry agent %s: synthesis run: %w", entry, err)
	}

	return Result{Content: final, AgentsInvolved: involved, Annotations: annotations}, nil
}

type settledResult struct {
	d         Delegation
	agentType registry.AgentType
	content   string
	err       error
}

// fanOut dispatches every delegation before awaiting any of them, then joins
// all outstanding invocations. A failure never cancels siblings; each entry
// settles with either content or its own error.
func (o *Orchestrator) fanOut(ctx context.Context, delegations []Delegation) []settledResult {
	settled := make([]settledResult, len(delegations))

	var wg sync.WaitGroup
	for i, d := range delegations {
		wg.Add(1)
		go func(i int, d Delegation) {
			defer wg.Done()
			agentType, content, err := o.invokeSpecialized(ctx, d)
			settled[i] = settledResult{d: d, agentType: agentType, content: content, err: err}
		}(i, d)
	}
	wg.Wait()

	return settled
}

// invokeSpecialized runs one delegated sub-query on its own fresh thread.
// Quota denials fail fast here and are never retried; they surface as
// annotations on the orchestration result.
func (o *Orchestrator) invokeSpecialized(ctx context.Context, d Delegation) (registry.AgentType, string, error) {
	agentType, err := registry.ParseAgentType(d.AgentType)
	if err != nil {
		return "", "", err
	}

	desc, err := o.registry.Resolve(agentType)
	if err != nil {
		return agentType, "", err
	}
	granted, err := o.registry.CheckQuota(agentType)
	if err != nil {
		return agentType, "", err
	}
	if !granted {
		return agentType, "", &RateLimitError{Type: agentType}
	}

	threadID, err := o.runner.CreateThread(ctx)
	if err != nil {
		return agentType, "", fmt.Errorf("create thread: %w", err)
	}
	content, err := o.runner.Exchange(ctx, threadID, desc.AssistantID, d.SubQuery, "")
	if err != nil {
		return agentType, "", err
	}
	return agentType, content, nil
}
