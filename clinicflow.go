// Package clinicflow provides a high-level façade over the orchestration
// core: the agent registry, the conversation run client and the fan-out
// orchestrator. Most applications interact with this package by:
//  1. Creating a ClinicFlow via New() (supplying a provider and agent catalog)
//  2. Optionally registering or re-registering agents
//  3. Answering queries with Process()
//
// Every dependency is injected through Options; there is no package-level
// state, so tests and embedders construct as many independent instances as
// they need. All defaults are safe for local development.
package clinicflow

import (
	"context"
	"time"

	"github.com/clinicflow/clinicflow/assistant"
	"github.com/clinicflow/clinicflow/logging"
	"github.com/clinicflow/clinicflow/orchestrator"
	"github.com/clinicflow/clinicflow/registry"
	"github.com/clinicflow/clinicflow/retry"
)

// Options configures a ClinicFlow instance.
type Options struct {
	// Provider is the conversation backend. Defaults to the OpenAI-backed
	// provider reading OPENAI_API_KEY from the environment.
	Provider assistant.Provider

	// Agents is the catalog registered at construction. Defaults to
	// DefaultAgentCatalog with no assistant IDs; production deployments
	// supply their own descriptors.
	Agents []registry.Descriptor

	// PollInterval and RunTimeout govern run polling.
	PollInterval time.Duration
	RunTimeout   time.Duration

	// Retry governs replays of individual provider calls.
	Retry retry.Policy

	// Logger defaults to NoOp.
	Logger logging.Logger
}

// ClinicFlow aggregates the registry, run client and orchestrator.
type ClinicFlow struct {
	registry *registry.Registry
	runner   *assistant.RunClient
	orch     *orchestrator.Orchestrator
	logger   logging.Logger
}

// New creates a ClinicFlow instance with optional overrides.
func New(optFns ...func(o *Options)) *ClinicFlow {
	opts := Options{
		Agents:       DefaultAgentCatalog(nil),
		PollInterval: time.Second,
		RunTimeout:   2 * time.Minute,
		Retry: retry.Policy{
			MaxRetries: 3,
			Delays:     []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
			Classifier: retry.HTTPClassifier,
		},
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Provider == nil {
		opts.Provider = assistant.NewOpenAIProvider()
	}

	reg := registry.New()
	for _, d := range opts.Agents {
		reg.Register(d)
	}

	runner := assistant.NewRunClient(opts.Provider, func(o *assistant.RunClientOptions) {
		o.PollInterval = opts.PollInterval
		o.RunTimeout = opts.RunTimeout
		o.Retry = opts.Retry
		o.Logger = opts.Logger
	})

	orch := orchestrator.New(reg, runner, func(o *orchestrator.Options) {
		o.Logger = opts.Logger
	})

	return &ClinicFlow{registry: reg, runner: runner, orch: orch, logger: opts.Logger}
}

// RegisterAgent adds or replaces an agent in the catalog. Re-registering an
// agent resets its quota bucket.
func (f *ClinicFlow) RegisterAgent(d registry.Descriptor) { f.registry.Register(d) }

// Registry exposes the agent catalog for capability queries.
func (f *ClinicFlow) Registry() *registry.Registry { return f.registry }

// Runner exposes the underlying conversation run client.
func (f *ClinicFlow) Runner() *assistant.RunClient { return f.runner }

// Process answers one query through the orchestrator. An empty hint routes to
// the head-brain coordinator.
func (f *ClinicFlow) Process(ctx context.Context, query string, hint registry.AgentType) (orchestrator.Result, error) {
	return f.orch.Process(ctx, orchestrator.Request{Query: query, Hint: hint})
}

// DefaultAgentCatalog returns descriptors for the full agent set with their
// standing capabilities. assistantIDs maps each type to its provider-side
// assistant; missing entries get an empty ID and must be re-registered before
// use. The coordinator is unlimited; specialists share a default quota of 30
// invocations per minute.
func DefaultAgentCatalog(assistantIDs map[registry.AgentType]string) []registry.Descriptor {
	specialistLimit := func() *registry.RateLimit {
		return &registry.RateLimit{Capacity: 30, RefillPerWindow: 30, Window: time.Minute}
	}

	capabilities := map[registry.AgentType][]string{
		registry.AgentHeadBrain:     {"routing", "synthesis"},
		registry.AgentRevenue:       {"billing", "claims", "eligibility"},
		registry.AgentPatientCare:   {"scheduling", "reminders", "triage"},
		registry.AgentOperations:    {"inventory", "facilities"},
		registry.AgentStaff:         {"scheduling", "payroll"},
		registry.AgentDataAnalysis:  {"reporting", "metrics"},
		registry.AgentDataRetrieval: {"records", "documents"},
	}

	catalog := make([]registry.Descriptor, 0, len(capabilities))
	for _, t := range registry.AllAgentTypes() {
		d := registry.Descriptor{
			Type:         t,
			AssistantID:  assistantIDs[t],
			Capabilities: capabilities[t],
			Version:      "1",
		}
		if t != registry.AgentHeadBrain {
			d.RateLimit = specialistLimit()
		}
		catalog = append(catalog, d)
	}
	return catalog
}
