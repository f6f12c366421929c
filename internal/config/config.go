// Package config loads and validates the engine configuration.
//
// Resolution order: built-in defaults, then the YAML file (if present),
// then CLARUSRAG_* environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Provider  ProviderConfig  `yaml:"provider"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Composer  ComposerConfig  `yaml:"composer"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig configures tenant state layout and the stale-chunk policy.
type StorageConfig struct {
	// DataDir is the root directory holding one subdirectory per tenant.
	DataDir string `yaml:"data_dir"`

	// PruneOnUpdate removes a file's previous chunks when a changed
	// fingerprint re-ingests it, at the cost of a full index rebuild.
	// When false the original append-only behavior is kept and stale
	// chunks from old file versions accumulate.
	PruneOnUpdate bool `yaml:"prune_on_update"`
}

// ProviderConfig configures the embedding/chat provider client.
type ProviderConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	EmbedModel string `yaml:"embed_model"`
	ChatModel  string `yaml:"chat_model"`

	// RequestTimeout is the per-call timeout; timeouts count as transient.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ChatMinInterval is the global minimum spacing between chat calls.
	ChatMinInterval time.Duration `yaml:"chat_min_interval"`

	// EmbedRatePerSec paces embedding HTTP requests (token bucket).
	EmbedRatePerSec float64 `yaml:"embed_rate_per_sec"`

	// MaxConcurrency bounds the embedding-batch worker pool.
	MaxConcurrency int `yaml:"max_concurrency"`

	// MaxBatchItems bounds items per embedding request.
	MaxBatchItems int `yaml:"max_batch_items"`

	// MaxBatchTokens bounds the aggregate token estimate per request.
	MaxBatchTokens int `yaml:"max_batch_tokens"`

	// MaxItemTokens truncates any single item above this token estimate.
	MaxItemTokens int `yaml:"max_item_tokens"`

	// QueryCacheSize is the LRU size for repeated query embeddings.
	QueryCacheSize int `yaml:"query_cache_size"`
}

// RetrievalConfig configures hybrid retrieval.
type RetrievalConfig struct {
	TopKVector  int `yaml:"top_k_vector"`
	TopKLexical int `yaml:"top_k_lexical"`
	FanOut      int `yaml:"fan_out"`
	RRFConstant int `yaml:"rrf_constant"`
	MaxResults  int `yaml:"max_results"`
}

// ScannerConfig configures the progressive corpus scanner.
type ScannerConfig struct {
	BatchCharBudget     int     `yaml:"batch_char_budget"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	MaxBatches          int     `yaml:"max_batches"`
}

// ComposerConfig configures answer composition budgets.
type ComposerConfig struct {
	// ContextTokenBudget bounds the packed context window.
	ContextTokenBudget int `yaml:"context_token_budget"`

	// ShardTokenBudget bounds each map-reduce shard.
	ShardTokenBudget int `yaml:"shard_token_budget"`

	// ShardConcurrency bounds parallel shard summarization.
	ShardConcurrency int `yaml:"shard_concurrency"`
}

// LoggingConfig mirrors logging.Config for the YAML file.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:       defaultDataDir(),
			PruneOnUpdate: true,
		},
		Provider: ProviderConfig{
			BaseURL:         "https://api.openai.com/v1",
			EmbedModel:      "text-embedding-3-small",
			ChatModel:       "gpt-4o-mini",
			RequestTimeout:  60 * time.Second,
			ChatMinInterval: 1200 * time.Millisecond,
			EmbedRatePerSec: 5.0,
			MaxConcurrency:  4,
			MaxBatchItems:   64,
			MaxBatchTokens:  8000,
			MaxItemTokens:   2000,
			QueryCacheSize:  512,
		},
		Retrieval: RetrievalConfig{
			TopKVector:  8,
			TopKLexical: 8,
			FanOut:      4,
			RRFConstant: 60,
			MaxResults:  12,
		},
		Scanner: ScannerConfig{
			BatchCharBudget:     24000,
			ConfidenceThreshold: 0.75,
			MaxBatches:          8,
		},
		Composer: ComposerConfig{
			ContextTokenBudget: 6000,
			ShardTokenBudget:   2000,
			ShardConcurrency:   4,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the config file at path (missing file is not an error),
// applies env overrides, validates and returns the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults apply.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime behavior deep inside the engine.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	if c.Provider.MaxBatchItems <= 0 {
		return fmt.Errorf("provider.max_batch_items must be positive")
	}
	if c.Provider.MaxBatchTokens < c.Provider.MaxItemTokens {
		return fmt.Errorf("provider.max_batch_tokens (%d) must be >= max_item_tokens (%d)",
			c.Provider.MaxBatchTokens, c.Provider.MaxItemTokens)
	}
	if c.Provider.MaxConcurrency <= 0 {
		return fmt.Errorf("provider.max_concurrency must be positive")
	}
	if c.Retrieval.FanOut <= 0 {
		return fmt.Errorf("retrieval.fan_out must be positive")
	}
	if c.Scanner.ConfidenceThreshold < 0 || c.Scanner.ConfidenceThreshold > 1 {
		return fmt.Errorf("scanner.confidence_threshold must be in [0,1]")
	}
	if c.Scanner.BatchCharBudget <= 0 {
		return fmt.Errorf("scanner.batch_char_budget must be positive")
	}
	if c.Composer.ContextTokenBudget <= 0 || c.Composer.ShardTokenBudget <= 0 {
		return fmt.Errorf("composer token budgets must be positive")
	}
	return nil
}

// TenantDir returns the directory holding one tenant's state. The name
// must be a single path element so one tenant cannot reach into another
// tenant's state or outside DataDir.
func (c *Config) TenantDir(tenant string) (string, error) {
	if tenant == "" {
		return "", fmt.Errorf("tenant name must not be empty")
	}
	if tenant != filepath.Base(tenant) || tenant == ".." || tenant == "." ||
		strings.ContainsAny(tenant, `/\`) {
		return "", fmt.Errorf("invalid tenant name %q", tenant)
	}
	return filepath.Join(c.Storage.DataDir, tenant), nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLARUSRAG_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("CLARUSRAG_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("CLARUSRAG_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("CLARUSRAG_CHAT_MODEL"); v != "" {
		cfg.Provider.ChatModel = v
	}
	if v := os.Getenv("CLARUSRAG_EMBED_MODEL"); v != "" {
		cfg.Provider.EmbedModel = v
	}
	if v := os.Getenv("CLARUSRAG_FAN_OUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retrieval.FanOut = n
		}
	}
	if v := os.Getenv("CLARUSRAG_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".clarusrag"
	}
	return filepath.Join(home, ".clarusrag")
}
