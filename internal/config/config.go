// Package config loads sqlpilot configuration from YAML with environment
// overrides for secrets. Validation runs before any pipeline stage; a bad
// config is fatal up front, never mid-request.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"sqlpilot/internal/types"
)

// Config holds all sqlpilot configuration.
type Config struct {
	// Database is the backing relational store.
	Database DatabaseConfig `yaml:"database"`

	// Index configures the semantic schema index.
	Index IndexConfig `yaml:"index"`

	// Embedding configures the embedding engine behind the index.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// LLM configures the capability clients (intent, generation,
	// verification).
	LLM LLMConfig `yaml:"llm"`

	// Generation bounds the generate/verify/retry loop.
	Generation GenerationConfig `yaml:"generation"`

	// Retry is the transient-failure policy for capability calls.
	Retry RetryConfig `yaml:"retry"`

	// Escalation configures human-in-the-loop prompts.
	Escalation EscalationConfig `yaml:"escalation"`

	// Cache configures capability-output memoization.
	Cache CacheConfig `yaml:"cache"`
}

// DatabaseConfig points at the SQLite database queries run against.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// IndexConfig configures the schema index store and candidate ranking.
type IndexConfig struct {
	Path            string  `yaml:"path"`
	TopK            int     `yaml:"top_k"`
	ConfidenceFloor float64 `yaml:"confidence_floor"`
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // genai, ollama

	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`
}

// LLMConfig configures the Gemini-backed capability clients. One model per
// capability so generation can run on a code model while intent stays on a
// cheap fast one.
type LLMConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	IntentModel    string `yaml:"intent_model"`
	GeneratorModel string `yaml:"generator_model"`
	VerifierModel  string `yaml:"verifier_model"`
	Timeout        string `yaml:"timeout"`
}

// GenerationConfig bounds the generation/verification loop.
type GenerationConfig struct {
	InitialTokenBudget int `yaml:"initial_token_budget"`
	BudgetIncrement    int `yaml:"budget_increment"`
	MaxRetries         int `yaml:"max_retries"`
}

// RetryConfig is the backoff policy for transient provider failures.
type RetryConfig struct {
	InitialDelay string  `yaml:"initial_delay"`
	MaxDelay     string  `yaml:"max_delay"`
	Multiplier   float64 `yaml:"multiplier"`
	Deadline     string  `yaml:"deadline"`
}

// EscalationConfig bounds how long the pipeline blocks on a human.
type EscalationConfig struct {
	Timeout string `yaml:"timeout"`
}

// CacheConfig configures memoization. Path empty means in-memory only.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "data/sqlpilot.db",
		},
		Index: IndexConfig{
			Path:            "data/schema_index.db",
			TopK:            5,
			ConfidenceFloor: 0.2,
		},
		Embedding: EmbeddingConfig{
			Provider:       "genai",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
		},
		LLM: LLMConfig{
			BaseURL:        "https://generativelanguage.googleapis.com/v1beta",
			IntentModel:    "gemini-2.0-flash",
			GeneratorModel: "gemini-2.0-flash",
			VerifierModel:  "gemini-2.0-flash",
			Timeout:        "120s",
		},
		Generation: GenerationConfig{
			InitialTokenBudget: 1000,
			BudgetIncrement:    500,
			MaxRetries:         2,
		},
		Retry: RetryConfig{
			InitialDelay: "60s",
			MaxDelay:     "600s",
			Multiplier:   2,
			Deadline:     "300s",
		},
		Escalation: EscalationConfig{
			Timeout: "5m",
		},
		Cache: CacheConfig{
			Path: "data/cache.db",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides applies environment variable overrides. Secrets are
// expected here rather than on disk.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("SQLPILOT_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("SQLPILOT_GENAI_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
	}
	if c.Embedding.GenAIAPIKey == "" {
		c.Embedding.GenAIAPIKey = c.LLM.APIKey
	}
	if path := os.Getenv("SQLPILOT_DB"); path != "" {
		c.Database.Path = path
	}
}

// Validate checks the configuration. Failures are fatal and surface as a
// ConfigurationError before the pipeline runs.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return &types.ConfigurationError{
			Field:  "llm.api_key",
			Reason: "not configured (set SQLPILOT_API_KEY or GEMINI_API_KEY)",
		}
	}
	switch c.Embedding.Provider {
	case "genai":
		if c.Embedding.GenAIAPIKey == "" {
			return &types.ConfigurationError{
				Field:  "embedding.genai_api_key",
				Reason: "required for the genai provider",
			}
		}
	case "ollama":
		if c.Embedding.OllamaEndpoint == "" {
			return &types.ConfigurationError{
				Field:  "embedding.ollama_endpoint",
				Reason: "required for the ollama provider",
			}
		}
	default:
		return &types.ConfigurationError{
			Field:  "embedding.provider",
			Reason: fmt.Sprintf("unsupported provider %q (use 'genai' or 'ollama')", c.Embedding.Provider),
		}
	}
	if c.Database.Path == "" {
		return &types.ConfigurationError{Field: "database.path", Reason: "required"}
	}
	if c.Generation.MaxRetries < 0 {
		return &types.ConfigurationError{Field: "generation.max_retries", Reason: "must be >= 0"}
	}
	if c.Generation.BudgetIncrement <= 0 {
		return &types.ConfigurationError{Field: "generation.budget_increment", Reason: "must be > 0"}
	}
	if c.Index.TopK <= 0 {
		return &types.ConfigurationError{Field: "index.top_k", Reason: "must be > 0"}
	}
	return nil
}

// duration parses a duration string, returning fallback on empty or
// malformed input.
func duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// LLMTimeout returns the per-call capability timeout.
func (c *Config) LLMTimeout() time.Duration {
	return duration(c.LLM.Timeout, 120*time.Second)
}

// EscalationTimeout returns how long the pipeline waits on a human before
// treating the escalation as cancelled.
func (c *Config) EscalationTimeout() time.Duration {
	return duration(c.Escalation.Timeout, 5*time.Minute)
}

// RetryInitialDelay returns the first backoff delay.
func (c *Config) RetryInitialDelay() time.Duration {
	return duration(c.Retry.InitialDelay, 60*time.Second)
}

// RetryMaxDelay returns the backoff cap.
func (c *Config) RetryMaxDelay() time.Duration {
	return duration(c.Retry.MaxDelay, 600*time.Second)
}

// RetryDeadline returns the overall retry deadline.
func (c *Config) RetryDeadline() time.Duration {
	return duration(c.Retry.Deadline, 300*time.Second)
}
