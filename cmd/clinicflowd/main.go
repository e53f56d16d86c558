// Package main is the entry point for the clinicflow daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"

	"github.com/clinicflow/clinicflow"
	"github.com/clinicflow/clinicflow/assistant"
	"github.com/clinicflow/clinicflow/config"
	"github.com/clinicflow/clinicflow/logging"
	"github.com/clinicflow/clinicflow/orchestrator"
	"github.com/clinicflow/clinicflow/registry"
	"github.com/clinicflow/clinicflow/retry"
	"github.com/clinicflow/clinicflow/voice"
	"github.com/clinicflow/clinicflow/webhook"
)

var (
	configPath  = flag.String("config", "", "Path to config file")
	showVersion = flag.Bool("version", false, "Show version")
)

const version = "0.1.0"

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("clinicflowd version %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger := logging.NewSlogAdapter(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	logger.Info("starting clinicflowd", "version", version, "addr", cfg.Server.Addr)

	var providerOpts []option.RequestOption
	if cfg.Assistant.APIKey != "" {
		providerOpts = append(providerOpts, option.WithAPIKey(cfg.Assistant.APIKey))
	}
	if cfg.Assistant.BaseURL != "" {
		providerOpts = append(providerOpts, option.WithBaseURL(cfg.Assistant.BaseURL))
	}
	provider := assistant.NewOpenAIProvider(providerOpts...)

	agents, err := agentCatalog(cfg)
	if err != nil {
		return err
	}

	flow := clinicflow.New(func(o *clinicflow.Options) {
		o.Provider = provider
		o.Agents = agents
		o.PollInterval = cfg.Assistant.PollInterval
		o.RunTimeout = cfg.Assistant.RunTimeout
		o.Retry = retry.Policy{
			MaxRetries: cfg.Retry.MaxRetries,
			Delays:     cfg.Retry.Delays(),
			Classifier: retry.HTTPClassifier,
		}
		o.Logger = logger
	})

	var voiceClient *voice.Client
	if cfg.Voice.BaseURL != "" {
		voiceClient = voice.NewClient(cfg.Voice.BaseURL, cfg.Voice.APIKey, func(o *voice.ClientOptions) {
			o.Retry = retry.Policy{MaxRetries: cfg.Retry.MaxRetries, Delays: cfg.Retry.Delays()}
			o.Logger = logger
		})
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version})
	})

	api := router.Group("/api/v1")
	api.POST("/query", queryHandler(flow, logger))

	webhookServer := webhook.NewServer(
		func(source string) (string, bool) {
			secret, ok := cfg.Webhook.Secrets[source]
			return secret, ok
		},
		&eventHandler{voice: voiceClient, logger: logger},
		func(o *webhook.ServerOptions) { o.Logger = logger },
	)
	webhookServer.RegisterRoutes(router)

	server := &http.Server{Addr: cfg.Server.Addr, Handler: router}

	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listener failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("stopped")
	return nil
}

// agentCatalog builds registry descriptors from configuration, falling back
// to the default catalog when none are configured.
func agentCatalog(cfg *config.Config) ([]registry.Descriptor, error) {
	if len(cfg.Agents) == 0 {
		return clinicflow.DefaultAgentCatalog(nil), nil
	}

	descriptors := make([]registry.Descriptor, 0, len(cfg.Agents))
	for name, spec := range cfg.Agents {
		t, err := registry.ParseAgentType(name)
		if err != nil {
			return nil, fmt.Errorf("config: agent %q: %w", name, err)
		}
		d := registry.Descriptor{
			Type:         t,
			AssistantID:  spec.AssistantID,
			Capabilities: spec.Capabilities,
			Version:      spec.Version,
		}
		if spec.RateLimit.Capacity > 0 {
			d.RateLimit = &registry.RateLimit{
				Capacity:        spec.RateLimit.Capacity,
				RefillPerWindow: spec.RateLimit.RefillPerWindow,
				Window:          spec.RateLimit.Window,
			}
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

type queryRequest struct {
	Query     string `json:"query" binding:"required"`
	AgentHint string `json:"agent_hint"`
}

func queryHandler(flow *clinicflow.ClinicFlow, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req queryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var hint registry.AgentType
		if req.AgentHint != "" {
			t, err := registry.ParseAgentType(req.AgentHint)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			hint = t
		}

		result, err := flow.Process(c.Request.Context(), req.Query, hint)
		if err != nil {
			var rateErr *orchestrator.RateLimitError
			var notFound *registry.NotFoundError
			switch {
			case errors.As(err, &rateErr):
				c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
			case errors.As(err, &notFound):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				logger.Error("query failed", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "orchestration failed"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"content":         result.Content,
			"agents_involved": result.AgentsInvolved,
			"annotations":     result.Annotations,
		})
	}
}

// eventHandler reacts to authenticated provider callbacks. Call-ended events
// trigger a best-effort analysis fetch when the voice provider is configured.
type eventHandler struct {
	voice  *voice.Client
	logger logging.Logger
}

func (h *eventHandler) HandleEvent(ctx context.Context, ev webhook.Event) error {
	switch ev.Type {
	case webhook.EventCallEnded:
		if h.voice == nil {
			h.logger.Info("call ended", "source", ev.Source)
			return nil
		}
		callID := callIDFrom(ev.Payload)
		if callID == "" {
			return fmt.Errorf("call.ended event without call_id")
		}
		analysis, err := h.voice.GetAnalysis(ctx, callID)
		if err != nil {
			h.logger.Warn("analysis fetch failed", "call_id", callID, "error", err)
			return nil
		}
		h.logger.Info("call analyzed", "call_id", callID, "outcome", analysis.Outcome)
	default:
		h.logger.Info("event received", "source", ev.Source, "event_type", ev.Type)
	}
	return nil
}

func callIDFrom(payload []byte) string {
	if id := gjson.GetBytes(payload, "call_id"); id.Exists() {
		return id.String()
	}
	return gjson.GetBytes(payload, "callId").String()
}
