// Package config handles loading and validating Busara configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Busara.
type Config struct {
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // Persistent data directory. Default: ~/.busara. Override: BUSARA_DATA_DIR env var.
	Provider      ProviderConfig       `json:"provider" yaml:"provider"`
	Agent         *AgentConfig         `json:"agent,omitempty" yaml:"agent,omitempty"`
	Orchestrator  *OrchestratorConfig  `json:"orchestrator,omitempty" yaml:"orchestrator,omitempty"`
	Memory        *MemoryConfig        `json:"memory,omitempty" yaml:"memory,omitempty"` // nil = memory disabled
	Tools         ToolsConfig          `json:"tools" yaml:"tools"`
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	HTTP          *HTTPConfig          `json:"http,omitempty" yaml:"http,omitempty"`                   // nil = HTTP gateway disabled
}

// ProviderConfig selects and configures the text-completion backend.
type ProviderConfig struct {
	Name       string `json:"name" yaml:"name"`                 // "ollama" (default) or "openai".
	Model      string `json:"model" yaml:"model"`               // Default: "llama3".
	EmbedModel string `json:"embed_model" yaml:"embed_model"`   // Default: same as Model.
	BaseURL    string `json:"base_url" yaml:"base_url"`         // Override the provider endpoint.
	APIKey     string `json:"api_key" yaml:"api_key"`           // Override: BUSARA_API_KEY env var.
	TimeoutS   int    `json:"timeout_seconds" yaml:"timeout_seconds"` // Default: 120.
}

// ProviderName returns the configured provider, defaulting to "ollama".
func (p *ProviderConfig) ProviderName() string {
	if p != nil && p.Name != "" {
		return p.Name
	}
	return "ollama"
}

// ModelName returns the configured model, defaulting to "llama3".
func (p *ProviderConfig) ModelName() string {
	if p != nil && p.Model != "" {
		return p.Model
	}
	return "llama3"
}

// Timeout returns the request timeout with a default of 2m.
func (p *ProviderConfig) Timeout() time.Duration {
	if p != nil && p.TimeoutS > 0 {
		return time.Duration(p.TimeoutS) * time.Second
	}
	return 2 * time.Minute
}

// AgentConfig holds the control-loop knobs.
type AgentConfig struct {
	MaxReplans           int      `json:"max_replans" yaml:"max_replans"`                         // Default: 2.
	MaxRepairAttempts    int      `json:"max_repair_attempts" yaml:"max_repair_attempts"`         // Default: 2.
	MaxSteps             int      `json:"max_steps" yaml:"max_steps"`                             // Default: 25.
	ObservationMaxChars  int      `json:"observation_max_chars" yaml:"observation_max_chars"`     // Default: 8000.
	MemoryRecallMarkers  []string `json:"memory_recall_markers" yaml:"memory_recall_markers"`     // Phrases that re-enable memory context after a failure.
}

// Replans returns the replan budget with a default of 2.
func (a *AgentConfig) Replans() int {
	if a != nil && a.MaxReplans > 0 {
		return a.MaxReplans
	}
	return 2
}

// RepairAttempts returns the plan-repair bound with a default of 2.
func (a *AgentConfig) RepairAttempts() int {
	if a != nil && a.MaxRepairAttempts > 0 {
		return a.MaxRepairAttempts
	}
	return 2
}

// Steps returns the plan step ceiling with a default of 25.
func (a *AgentConfig) Steps() int {
	if a != nil && a.MaxSteps > 0 {
		return a.MaxSteps
	}
	return 25
}

// ObservationChars returns the per-observation render cap with a default of 8000.
func (a *AgentConfig) ObservationChars() int {
	if a != nil && a.ObservationMaxChars > 0 {
		return a.ObservationMaxChars
	}
	return 8000
}

// RecallMarkers returns the configured recall phrases, or nil for the built-in set.
func (a *AgentConfig) RecallMarkers() []string {
	if a != nil {
		return a.MemoryRecallMarkers
	}
	return nil
}

// OrchestratorConfig configures the multi-role work-item engine.
type OrchestratorConfig struct {
	MaxWorkItems      int  `json:"max_work_items" yaml:"max_work_items"`           // Default: 10.
	MaxConcurrency    int  `json:"max_concurrency" yaml:"max_concurrency"`         // Default: 4.
	PerItemTimeoutS   int  `json:"per_item_timeout_s" yaml:"per_item_timeout_s"`   // Default: 15.
	DisableParallel   bool `json:"disable_parallel" yaml:"disable_parallel"`       // Force sequential waves.
}

// WorkItems returns the work-item ceiling with a default of 10.
func (o *OrchestratorConfig) WorkItems() int {
	if o != nil && o.MaxWorkItems > 0 {
		return o.MaxWorkItems
	}
	return 10
}

// Concurrency returns the wave concurrency bound with a default of 4.
func (o *OrchestratorConfig) Concurrency() int {
	if o != nil && o.MaxConcurrency > 0 {
		return o.MaxConcurrency
	}
	return 4
}

// PerItemTimeout returns the per-item timeout with a default of 15s.
func (o *OrchestratorConfig) PerItemTimeout() time.Duration {
	if o != nil && o.PerItemTimeoutS > 0 {
		return time.Duration(o.PerItemTimeoutS) * time.Second
	}
	return 15 * time.Second
}

// Parallel reports whether waves may run concurrently.
func (o *OrchestratorConfig) Parallel() bool {
	return o == nil || !o.DisableParallel
}

// MemoryConfig configures episodic and semantic memory.
type MemoryConfig struct {
	EpisodesFile string          `json:"episodes_file" yaml:"episodes_file"` // Default: <data_dir>/episodes.jsonl.
	MaxRecent    int             `json:"max_recent" yaml:"max_recent"`       // Default: 4.
	MaxRelevant  int             `json:"max_relevant" yaml:"max_relevant"`   // Default: 3.
	Semantic     *SemanticConfig `json:"semantic,omitempty" yaml:"semantic,omitempty"` // nil = semantic memory disabled.
}

// Recent returns the recent-episode count with a default of 4.
func (m *MemoryConfig) Recent() int {
	if m != nil && m.MaxRecent > 0 {
		return m.MaxRecent
	}
	return 4
}

// Relevant returns the relevant-episode count with a default of 3.
func (m *MemoryConfig) Relevant() int {
	if m != nil && m.MaxRelevant > 0 {
		return m.MaxRelevant
	}
	return 3
}

// SemanticConfig configures the vector memory store.
type SemanticConfig struct {
	Driver string `json:"driver" yaml:"driver"`     // "sqlite" (default) or "postgres".
	Path   string `json:"path" yaml:"path"`         // SQLite file path. Default: <data_dir>/semantic.db.
	DSN    string `json:"dsn" yaml:"dsn"`           // PostgreSQL DSN. Override: BUSARA_SEMANTIC_DSN env var.
	TopK   int    `json:"top_k" yaml:"top_k"`       // Default: 3.
}

// SemanticDriver returns the configured driver, defaulting to "sqlite".
func (s *SemanticConfig) SemanticDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// K returns the search size with a default of 3.
func (s *SemanticConfig) K() int {
	if s != nil && s.TopK > 0 {
		return s.TopK
	}
	return 3
}

// ToolsConfig configures builtin and external tools.
type ToolsConfig struct {
	Web *WebToolConfig    `json:"web,omitempty" yaml:"web,omitempty"` // nil = fetch_url disabled.
	MCP []MCPServerConfig `json:"mcp,omitempty" yaml:"mcp,omitempty"`
}

// WebToolConfig configures the fetch_url tool.
type WebToolConfig struct {
	AllowedDomains []string `json:"allowed_domains" yaml:"allowed_domains"` // Empty = any public domain.
	MaxBytes       int      `json:"max_bytes" yaml:"max_bytes"`             // Default: 1 MB.
	TimeoutS       int      `json:"timeout_s" yaml:"timeout_s"`             // Default: 20.
}

// Timeout returns the fetch timeout with a default of 20s.
func (w *WebToolConfig) Timeout() time.Duration {
	if w != nil && w.TimeoutS > 0 {
		return time.Duration(w.TimeoutS) * time.Second
	}
	return 20 * time.Second
}

// MCPServerConfig describes one external MCP server.
type MCPServerConfig struct {
	Name      string            `json:"name" yaml:"name"`
	Transport string            `json:"transport" yaml:"transport"` // "stdio", "sse", or "streamable_http".
	Command   string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args      []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	URL       string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// ObservabilityConfig configures metrics and tracing.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "busara"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// HTTPConfig configures the HTTP gateway.
type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr"` // Default: ":8080". Override: BUSARA_HTTP_ADDR env var.
}

// ListenAddr returns the bind address with a default of ":8080".
func (h *HTTPConfig) ListenAddr() string {
	if h != nil && h.Addr != "" {
		return h.Addr
	}
	return ":8080"
}

// Load reads configuration from a YAML or JSON file. An empty path returns
// defaults. Environment variables override file values after parsing.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing JSON config: %w", err)
			}
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing YAML config: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home dir: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".busara")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BUSARA_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("BUSARA_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("BUSARA_PROVIDER"); v != "" {
		cfg.Provider.Name = v
	}
	if v := os.Getenv("BUSARA_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("BUSARA_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("BUSARA_HTTP_ADDR"); v != "" {
		if cfg.HTTP == nil {
			cfg.HTTP = &HTTPConfig{}
		}
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("BUSARA_SEMANTIC_DSN"); v != "" {
		if cfg.Memory == nil {
			cfg.Memory = &MemoryConfig{}
		}
		if cfg.Memory.Semantic == nil {
			cfg.Memory.Semantic = &SemanticConfig{}
		}
		cfg.Memory.Semantic.DSN = v
		cfg.Memory.Semantic.Driver = "postgres"
	}
}

func (c *Config) validate() error {
	switch c.Provider.ProviderName() {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unknown provider %q (want ollama or openai)", c.Provider.Name)
	}
	if sem := semanticOf(c); sem != nil {
		switch sem.SemanticDriver() {
		case "sqlite":
		case "postgres":
			if sem.DSN == "" {
				return fmt.Errorf("semantic memory driver postgres requires a dsn")
			}
		default:
			return fmt.Errorf("unknown semantic driver %q (want sqlite or postgres)", sem.Driver)
		}
	}
	for i, srv := range c.Tools.MCP {
		if srv.Name == "" {
			return fmt.Errorf("mcp server %d: name is required", i)
		}
		switch srv.Transport {
		case "stdio":
			if srv.Command == "" {
				return fmt.Errorf("mcp server %q: stdio transport requires a command", srv.Name)
			}
		case "sse", "streamable_http":
			if srv.URL == "" {
				return fmt.Errorf("mcp server %q: %s transport requires a url", srv.Name, srv.Transport)
			}
		default:
			return fmt.Errorf("mcp server %q: unsupported transport %q", srv.Name, srv.Transport)
		}
	}
	return nil
}

func semanticOf(c *Config) *SemanticConfig {
	if c.Memory == nil {
		return nil
	}
	return c.Memory.Semantic
}

// EpisodesPath returns the episodic memory file path, derived from DataDir
// when not configured.
func (c *Config) EpisodesPath() string {
	if c.Memory != nil && c.Memory.EpisodesFile != "" {
		return c.Memory.EpisodesFile
	}
	return filepath.Join(c.DataDir, "episodes.jsonl")
}

// SemanticPath returns the SQLite semantic store path, derived from DataDir
// when not configured.
func (c *Config) SemanticPath() string {
	if c.Memory != nil && c.Memory.Semantic != nil && c.Memory.Semantic.Path != "" {
		return c.Memory.Semantic.Path
	}
	return filepath.Join(c.DataDir, "semantic.db")
}
