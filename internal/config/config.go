package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all saged tool configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration (question rewriting, keyword expansion)
	LLM LLMConfig `yaml:"llm"`

	// Embedding service configuration (descriptor resolution)
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Build orchestration
	Build BuildConfig `yaml:"build"`

	// Benchmark persistence
	Store StoreConfig `yaml:"store"`

	// Descriptor file watching
	Watcher WatcherConfig `yaml:"watcher"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the LLM client.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // zai, anthropic, openai, gemini, xai
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Timeout     string  `yaml:"timeout"`
	MaxRetries  int     `yaml:"max_retries"`
	RateLimitMs int     `yaml:"rate_limit_ms"` // Minimum gap between requests
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"` // genai, ollama
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"api_key"`    // genai only
	OllamaURL string        `yaml:"ollama_url"` // ollama only
	Timeout   string        `yaml:"timeout"`
	Breaker   BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker guarding embedding calls.
type BreakerConfig struct {
	Enabled      bool    `yaml:"enabled"`
	MaxRequests  int     `yaml:"max_requests"`  // Probes allowed in half-open state
	Interval     string  `yaml:"interval"`      // Counter reset interval in closed state
	Timeout      string  `yaml:"timeout"`       // Open -> half-open delay
	FailureRatio float64 `yaml:"failure_ratio"` // Trip when ratio exceeded
	MinRequests  int     `yaml:"min_requests"`  // Minimum samples before tripping
}

// BuildConfig configures concurrent benchmark builds.
type BuildConfig struct {
	Concurrency    int    `yaml:"concurrency"`     // Parallel concept builds, 0 = one per CPU
	ConceptTimeout string `yaml:"concept_timeout"` // Per-concept time budget
	EmbedRetries   int    `yaml:"embed_retries"`   // Retry budget per descriptor pair
	DescriptorDir  string `yaml:"descriptor_dir"`  // Where descriptor YAML files live
}

// StoreConfig configures benchmark persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	ExportDir    string `yaml:"export_dir"`
}

// WatcherConfig configures descriptor hot reload.
type WatcherConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMs int  `yaml:"debounce_ms"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "saged",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider:    "zai",
			Model:       "GLM-4.6",
			BaseURL:     "https://api.z.ai/api/paas/v4",
			Timeout:     "120s",
			MaxRetries:  3,
			RateLimitMs: 600,
			Temperature: 0.2,
			MaxTokens:   1024,
		},

		Embedding: EmbeddingConfig{
			Provider: "genai",
			Model:    "gemini-embedding-001",
			Timeout:  "30s",
			Breaker: BreakerConfig{
				Enabled:      true,
				MaxRequests:  3,
				Interval:     "60s",
				Timeout:      "30s",
				FailureRatio: 0.6,
				MinRequests:  5,
			},
		},

		Build: BuildConfig{
			Concurrency:    0,
			ConceptTimeout: "10m",
			EmbedRetries:   3,
			DescriptorDir:  "descriptors",
		},

		Store: StoreConfig{
			DatabasePath: "data/saged.db",
			ExportDir:    "exports",
		},

		Watcher: WatcherConfig{
			Enabled:    true,
			DebounceMs: 500,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "saged.log",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// LLM API key from environment (check in priority order)
	if key := os.Getenv("ZAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "zai"
		}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("XAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "xai"
	}

	// Embedding provider from environment
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Embedding.APIKey = key
		if c.Embedding.Provider == "" {
			c.Embedding.Provider = "genai"
		}
	}
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		c.Embedding.OllamaURL = url
	}

	// Database path from environment
	if path := os.Getenv("SAGED_DB"); path != "" {
		c.Store.DatabasePath = path
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetEmbeddingTimeout returns the embedding request timeout as a duration.
func (c *Config) GetEmbeddingTimeout() time.Duration {
	d, err := time.ParseDuration(c.Embedding.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetConceptTimeout returns the per-concept build budget as a duration.
func (c *Config) GetConceptTimeout() time.Duration {
	d, err := time.ParseDuration(c.Build.ConceptTimeout)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// GetBreakerInterval returns the breaker counting interval as a duration.
func (c *Config) GetBreakerInterval() time.Duration {
	d, err := time.ParseDuration(c.Embedding.Breaker.Interval)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetBreakerTimeout returns the breaker open duration.
func (c *Config) GetBreakerTimeout() time.Duration {
	d, err := time.ParseDuration(c.Embedding.Breaker.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetWatcherDebounce returns the descriptor watcher debounce window.
func (c *Config) GetWatcherDebounce() time.Duration {
	if c.Watcher.DebounceMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.Watcher.DebounceMs) * time.Millisecond
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"zai", "anthropic", "openai", "gemini", "xai"}

// ValidEmbeddingProviders lists all supported embedding providers.
var ValidEmbeddingProviders = []string{"genai", "ollama"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	validEmbedding := false
	for _, p := range ValidEmbeddingProviders {
		if c.Embedding.Provider == p {
			validEmbedding = true
			break
		}
	}
	if !validEmbedding {
		return fmt.Errorf("invalid embedding provider: %s (valid: %v)", c.Embedding.Provider, ValidEmbeddingProviders)
	}

	if c.Build.Concurrency < 0 {
		return fmt.Errorf("build concurrency must not be negative: %d", c.Build.Concurrency)
	}

	if c.Embedding.Breaker.Enabled {
		if c.Embedding.Breaker.FailureRatio <= 0 || c.Embedding.Breaker.FailureRatio > 1 {
			return fmt.Errorf("breaker failure_ratio must be in (0, 1]: %v", c.Embedding.Breaker.FailureRatio)
		}
	}

	return nil
}
