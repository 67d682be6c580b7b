// Package config loads and validates proxy configuration.
//
// DESIGN: Configuration is an explicit value constructed once at startup and
// passed into the gateway constructor. Nothing reads ambient globals at
// request time, so behavior is reproducible per instantiation and testable.
//
// Sources, in order: built-in defaults, YAML config file (optional),
// environment expansion of ${VAR} references inside the YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full proxy configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Window     WindowConfig     `yaml:"window"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
	Reasoning  ReasoningConfig  `yaml:"reasoning"`
	Models     ModelsConfig     `yaml:"models"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// ServerConfig controls the inbound HTTP listener.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	Debug        bool          `yaml:"debug"`
}

// UpstreamConfig describes the NIM-compatible backend.
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// WindowConfig controls history trimming.
type WindowConfig struct {
	TokenBudget int `yaml:"token_budget"`
	// Estimator selects the token counter: "heuristic" (bytes/4) or
	// "tiktoken" (cl100k_base).
	Estimator string `yaml:"estimator"`
}

// NormalizerConfig controls lead-in phrase stripping.
type NormalizerConfig struct {
	Enabled bool `yaml:"enabled"`
	// MinAccumulate is the streamed-reply buffer size (in characters)
	// before the stripper runs once and the stream flips to passthrough.
	MinAccumulate int `yaml:"min_accumulate"`
	// Phrases overrides the default lead-in catalog when non-empty.
	Phrases []string `yaml:"phrases"`
}

// ReasoningConfig controls the upstream reasoning side channel.
type ReasoningConfig struct {
	// Expose forwards reasoning_content fields to the client when true;
	// otherwise they are stripped from every decoded event.
	Expose bool `yaml:"expose"`
	// DeepThinking injects chat_template_kwargs {"thinking": true} into
	// outbound requests for models that support it.
	DeepThinking bool `yaml:"deep_thinking"`
}

// ModelsConfig is the public-to-upstream model name table.
type ModelsConfig struct {
	Default string            `yaml:"default"`
	Aliases map[string]string `yaml:"aliases"`
}

// MonitoringConfig controls telemetry output.
type MonitoringConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	DBPath      string `yaml:"db_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
}

// Default returns a config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         DefaultServerPort,
			ReadTimeout:  DefaultServerReadTimeout,
			WriteTimeout: DefaultServerWriteTimeout,
			MaxBodyBytes: MaxRequestBodySize,
		},
		Upstream: UpstreamConfig{
			BaseURL: DefaultUpstreamBaseURL,
			APIKey:  os.Getenv("NIM_API_KEY"),
			Timeout: DefaultUpstreamTimeout,
		},
		Window: WindowConfig{
			TokenBudget: DefaultTokenBudget,
			Estimator:   "heuristic",
		},
		Normalizer: NormalizerConfig{
			Enabled:       true,
			MinAccumulate: DefaultMinAccumulate,
			Phrases:       append([]string(nil), DefaultLeadInPhrases...),
		},
		Reasoning: ReasoningConfig{
			Expose:       false,
			DeepThinking: false,
		},
		Models: ModelsConfig{
			Default: DefaultUpstreamModel,
			Aliases: cloneAliases(DefaultModelAliases),
		},
		Monitoring: MonitoringConfig{
			Enabled: false,
		},
	}
}

// Load reads the YAML file at path on top of defaults. An empty path returns
// defaults unchanged. ${VAR} references in the file are expanded from the
// environment before parsing, so credentials can stay out of the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

// applyDefaults backfills zero values left by a partial YAML file.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = MaxRequestBodySize
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultUpstreamBaseURL
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = DefaultUpstreamTimeout
	}
	if c.Window.TokenBudget == 0 {
		c.Window.TokenBudget = DefaultTokenBudget
	}
	if c.Window.Estimator == "" {
		c.Window.Estimator = "heuristic"
	}
	if c.Normalizer.MinAccumulate == 0 {
		c.Normalizer.MinAccumulate = DefaultMinAccumulate
	}
	if len(c.Normalizer.Phrases) == 0 {
		c.Normalizer.Phrases = append([]string(nil), DefaultLeadInPhrases...)
	}
	if c.Models.Default == "" {
		c.Models.Default = DefaultUpstreamModel
	}
	if c.Models.Aliases == nil {
		c.Models.Aliases = cloneAliases(DefaultModelAliases)
	}
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Upstream.BaseURL, "http://") && !strings.HasPrefix(c.Upstream.BaseURL, "https://") {
		return fmt.Errorf("upstream.base_url must be an http(s) URL, got %q", c.Upstream.BaseURL)
	}
	if c.Window.TokenBudget < 0 {
		return fmt.Errorf("window.token_budget must be >= 0, got %d", c.Window.TokenBudget)
	}
	switch c.Window.Estimator {
	case "heuristic", "tiktoken":
	default:
		return fmt.Errorf("window.estimator must be heuristic or tiktoken, got %q", c.Window.Estimator)
	}
	if c.Normalizer.MinAccumulate < 0 {
		return fmt.Errorf("normalizer.min_accumulate must be >= 0, got %d", c.Normalizer.MinAccumulate)
	}
	return nil
}

func cloneAliases(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
