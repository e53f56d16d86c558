// Package config loads daemon configuration. Values come from an optional
// YAML file overlaid with CLINICFLOW_* environment variables; environment
// always wins.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	Server    ServerConfig         `yaml:"server"`
	Assistant AssistantConfig      `yaml:"assistant"`
	Voice     VoiceConfig          `yaml:"voice"`
	Retry     RetryConfig          `yaml:"retry"`
	Webhook   WebhookConfig        `yaml:"webhook"`
	Agents    map[string]AgentSpec `yaml:"agents"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// AssistantConfig defines the assistant provider connection and run polling.
type AssistantConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"` // empty means the provider default
	PollInterval time.Duration `yaml:"poll_interval"`
	RunTimeout   time.Duration `yaml:"run_timeout"`
}

// VoiceConfig defines the telephony provider connection.
type VoiceConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// RetryConfig defines the shared provider retry policy.
type RetryConfig struct {
	MaxRetries int   `yaml:"max_retries"`
	DelaysMs   []int `yaml:"delays_ms"`
}

// Delays converts the millisecond schedule to durations.
func (r RetryConfig) Delays() []time.Duration {
	out := make([]time.Duration, len(r.DelaysMs))
	for i, ms := range r.DelaysMs {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// WebhookConfig maps callback sources to their shared HMAC secrets.
type WebhookConfig struct {
	Secrets map[string]string `yaml:"secrets"`
}

// AgentSpec configures one registered agent. A zero RateLimit means
// unlimited.
type AgentSpec struct {
	AssistantID  string        `yaml:"assistant_id"`
	Capabilities []string      `yaml:"capabilities"`
	Version      string        `yaml:"version"`
	RateLimit    RateLimitSpec `yaml:"rate_limit"`
}

// RateLimitSpec is a token-bucket declaration.
type RateLimitSpec struct {
	Capacity        int           `yaml:"capacity"`
	RefillPerWindow int           `yaml:"refill_per_window"`
	Window          time.Duration `yaml:"window"`
}

// DefaultConfig returns a configuration with sensible defaults. Secrets and
// API keys are intentionally empty.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Assistant: AssistantConfig{
			PollInterval: time.Second,
			RunTimeout:   2 * time.Minute,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			DelaysMs:   []int{1000, 2000, 4000},
		},
		Webhook: WebhookConfig{
			Secrets: map[string]string{},
		},
		Agents: map[string]AgentSpec{},
	}
}

// Load builds the configuration from an optional YAML file plus environment
// overrides. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CLINICFLOW_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CLINICFLOW_ASSISTANT_API_KEY"); v != "" {
		c.Assistant.APIKey = v
	}
	if v := os.Getenv("CLINICFLOW_ASSISTANT_BASE_URL"); v != "" {
		c.Assistant.BaseURL = v
	}
	if v := os.Getenv("CLINICFLOW_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: CLINICFLOW_POLL_INTERVAL: %w", err)
		}
		c.Assistant.PollInterval = d
	}
	if v := os.Getenv("CLINICFLOW_RUN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: CLINICFLOW_RUN_TIMEOUT: %w", err)
		}
		c.Assistant.RunTimeout = d
	}
	if v := os.Getenv("CLINICFLOW_VOICE_API_KEY"); v != "" {
		c.Voice.APIKey = v
	}
	if v := os.Getenv("CLINICFLOW_VOICE_BASE_URL"); v != "" {
		c.Voice.BaseURL = v
	}
	if v := os.Getenv("CLINICFLOW_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: CLINICFLOW_MAX_RETRIES: %w", err)
		}
		c.Retry.MaxRetries = n
	}
	if v := os.Getenv("CLINICFLOW_RETRY_DELAYS_MS"); v != "" {
		delays, err := parseIntList(v)
		if err != nil {
			return fmt.Errorf("config: CLINICFLOW_RETRY_DELAYS_MS: %w", err)
		}
		c.Retry.DelaysMs = delays
	}

	// CLINICFLOW_WEBHOOK_SECRET_VOICE=... maps to Secrets["voice"].
	const secretPrefix = "CLINICFLOW_WEBHOOK_SECRET_"
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, secretPrefix) || value == "" {
			continue
		}
		source := strings.ToLower(strings.TrimPrefix(name, secretPrefix))
		if c.Webhook.Secrets == nil {
			c.Webhook.Secrets = map[string]string{}
		}
		c.Webhook.Secrets[source] = value
	}
	return nil
}

func parseIntList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
