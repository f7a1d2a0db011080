package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SourceConfig names one ingestable corpus and its filesystem root.
type SourceConfig struct {
	Name string `yaml:"name"`
	Root string `yaml:"root"`
}

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	Provider  string `yaml:"provider"` // openai, ollama, local; empty = auto-detect
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	CacheSize int    `yaml:"cache_size"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	TargetTokens  int `yaml:"target_tokens"`
	OverlapTokens int `yaml:"overlap_tokens"`
}

// QueueConfig configures batch fan-out and the worker pool.
type QueueConfig struct {
	BatchSize             int `yaml:"batch_size"`
	Concurrency           int `yaml:"concurrency"`
	MaxAttempts           int `yaml:"max_attempts"`
	VisibilityTimeoutSecs int `yaml:"visibility_timeout_secs"`
	PollIntervalMs        int `yaml:"poll_interval_ms"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SearcherConfig configures the query path.
type SearcherConfig struct {
	CacheSize int `yaml:"cache_size"`
}

// Config is the root configuration.
type Config struct {
	DatabasePath string         `yaml:"database_path"`
	Sources      []SourceConfig `yaml:"sources"`
	Embedder     EmbedderConfig `yaml:"embedder"`
	Chunker      ChunkerConfig  `yaml:"chunker"`
	Queue        QueueConfig    `yaml:"queue"`
	Server       ServerConfig   `yaml:"server"`
	Searcher     SearcherConfig `yaml:"searcher"`
}

// Load reads the config at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate rejects configurations the process cannot run with.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Sources))
	for _, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("source with empty name")
		}
		if src.Root == "" {
			return fmt.Errorf("source %s has no root", src.Name)
		}
		if seen[src.Name] {
			return fmt.Errorf("duplicate source %s", src.Name)
		}
		seen[src.Name] = true
	}
	return nil
}

// Source returns the named source config, if present.
func (c *Config) Source(name string) (SourceConfig, bool) {
	for _, src := range c.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return SourceConfig{}, false
}

func applyDefaults(cfg *Config) {
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "corpusd.db"
	}
	if cfg.Chunker.TargetTokens == 0 {
		cfg.Chunker.TargetTokens = 800
	}
	if cfg.Chunker.OverlapTokens == 0 {
		cfg.Chunker.OverlapTokens = 100
	}
	if cfg.Queue.BatchSize == 0 {
		cfg.Queue.BatchSize = 100
	}
	if cfg.Queue.Concurrency == 0 {
		cfg.Queue.Concurrency = 4
	}
	if cfg.Queue.MaxAttempts == 0 {
		cfg.Queue.MaxAttempts = 5
	}
	if cfg.Queue.VisibilityTimeoutSecs == 0 {
		cfg.Queue.VisibilityTimeoutSecs = 120
	}
	if cfg.Queue.PollIntervalMs == 0 {
		cfg.Queue.PollIntervalMs = 250
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Searcher.CacheSize == 0 {
		cfg.Searcher.CacheSize = 100
	}
	if cfg.Embedder.CacheSize == 0 {
		cfg.Embedder.CacheSize = 1000
	}
}
