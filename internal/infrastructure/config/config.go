// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigDir is the directory name for relgraph configuration.
	DefaultConfigDir = ".relgraph"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.yaml"
	// DefaultDatabaseFile is the default SQLite file name inside the config dir.
	DefaultDatabaseFile = "relgraph.db"
)

// Scoring providers.
const (
	ScoringNone      = "none"
	ScoringHeuristic = "heuristic"
	ScoringOpenAI    = "openai"
)

var (
	// reNonAlphanumeric matches characters that aren't alphanumeric or underscore.
	reNonAlphanumeric = regexp.MustCompile(`[^a-z0-9_]`)
	// reMultipleUnderscores matches consecutive underscores.
	reMultipleUnderscores = regexp.MustCompile(`_+`)
)

// Config holds static configuration (read-only after load).
type Config struct {
	SQLite     SQLiteConfig        `yaml:"sqlite,omitempty"`
	Validation ValidationConfig    `yaml:"validation,omitempty"`
	Traversal  TraversalConfig     `yaml:"traversal,omitempty"`
	Query      QueryConfig         `yaml:"query,omitempty"`
	Bulk       BulkConfig          `yaml:"bulk,omitempty"`
	Scoring    ScoringConfig       `yaml:"scoring,omitempty"`
	Tiers      entities.TierPolicy `yaml:"tiers,omitempty"`
	Index      IndexConfig         `yaml:"index,omitempty"`
	Qdrant     QdrantConfig        `yaml:"qdrant,omitempty"`
	Embedder   EmbedderConfig      `yaml:"embedder,omitempty"`
	LLM        LLMConfig           `yaml:"llm,omitempty"`
	Log        LogConfig           `yaml:"log,omitempty"`
	HTTP       HTTPConfig          `yaml:"http,omitempty"`
}

// SQLiteConfig holds configuration for the SQLite relationship store.
type SQLiteConfig struct {
	// Path is the database file, or ":memory:".
	// Relative paths are resolved against the project directory by Load.
	Path          string `yaml:"path,omitempty"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms,omitempty"`
}

// ValidationConfig holds write-time validation defaults.
type ValidationConfig struct {
	// DefaultMaxDepth bounds cycle searches when neither the record nor its
	// type sets max_depth.
	DefaultMaxDepth int `yaml:"default_max_depth,omitempty"`
}

// TraversalConfig bounds graph walks.
type TraversalConfig struct {
	DefaultMaxDepth int `yaml:"default_max_depth,omitempty"`
	HardMaxDepth    int `yaml:"hard_max_depth,omitempty"`
	MaxNodes        int `yaml:"max_nodes,omitempty"`
	MaxPaths        int `yaml:"max_paths,omitempty"`
}

// QueryConfig bounds query pages.
type QueryConfig struct {
	DefaultLimit int `yaml:"default_limit,omitempty"`
	MaxLimit     int `yaml:"max_limit,omitempty"`
}

// BulkConfig bounds bulk operations.
type BulkConfig struct {
	MaxBatch int `yaml:"max_batch,omitempty"`
}

// ScoringConfig selects the scoring hook.
type ScoringConfig struct {
	Provider string        `yaml:"provider,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// IndexConfig toggles the semantic index.
type IndexConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
}

// LLMConfig holds configuration for the LLM provider used by the openai scorer.
type LLMConfig struct {
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	// BaseURL points at an OpenAI-compatible endpoint instead of api.openai.com.
	BaseURL string `yaml:"base_url,omitempty"`
}

// EmbedderConfig holds configuration for the embedding provider.
type EmbedderConfig struct {
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
}

// QdrantConfig holds configuration for the Qdrant vector database.
type QdrantConfig struct {
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
	// File adds a rotated JSON log file next to the console output.
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr         string        `yaml:"addr,omitempty"`
	ReadTimeout  time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		SQLite: SQLiteConfig{
			BusyTimeoutMS: 5000,
		},
		Validation: ValidationConfig{
			DefaultMaxDepth: 10,
		},
		Traversal: TraversalConfig{
			DefaultMaxDepth: 5,
			HardMaxDepth:    25,
			MaxNodes:        10000,
			MaxPaths:        16,
		},
		Query: QueryConfig{
			DefaultLimit: 50,
			MaxLimit:     500,
		},
		Bulk: BulkConfig{
			MaxBatch: 1000,
		},
		Scoring: ScoringConfig{
			Provider: ScoringNone,
			Timeout:  2 * time.Second,
		},
		Tiers: entities.DefaultTierPolicy(),
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "relgraph_relationships",
		},
		Embedder: EmbedderConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Load loads configuration from the .relgraph directory in the given path.
func Load(basePath string) (*Config, error) {
	configFile := ConfigFilePath(basePath)

	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s (run 'relgraph init' first)", configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = filepath.Join(ConfigDir(basePath), DefaultDatabaseFile)
	} else if cfg.SQLite.Path != ":memory:" && !filepath.IsAbs(cfg.SQLite.Path) {
		cfg.SQLite.Path = filepath.Join(basePath, cfg.SQLite.Path)
	}

	return cfg, nil
}

// Parse decodes YAML over the defaults, applies environment overrides and
// validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = key
		}
		if c.Embedder.APIKey == "" {
			c.Embedder.APIKey = key
		}
	}
	if key := os.Getenv("QDRANT_API_KEY"); key != "" {
		if c.Qdrant.APIKey == "" {
			c.Qdrant.APIKey = key
		}
	}
	if path := os.Getenv("RELGRAPH_DB_PATH"); path != "" {
		c.SQLite.Path = path
	}
	if level := os.Getenv("RELGRAPH_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// Validate checks limits and tier ordering.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Tiers.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tiers: %w", err))
	}
	positive := []struct {
		name  string
		value int
	}{
		{"validation.default_max_depth", c.Validation.DefaultMaxDepth},
		{"traversal.default_max_depth", c.Traversal.DefaultMaxDepth},
		{"traversal.hard_max_depth", c.Traversal.HardMaxDepth},
		{"traversal.max_nodes", c.Traversal.MaxNodes},
		{"traversal.max_paths", c.Traversal.MaxPaths},
		{"query.default_limit", c.Query.DefaultLimit},
		{"query.max_limit", c.Query.MaxLimit},
		{"bulk.max_batch", c.Bulk.MaxBatch},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", p.name, p.value))
		}
	}
	if c.Traversal.DefaultMaxDepth > c.Traversal.HardMaxDepth {
		errs = append(errs, fmt.Errorf("traversal.default_max_depth %d exceeds hard_max_depth %d",
			c.Traversal.DefaultMaxDepth, c.Traversal.HardMaxDepth))
	}
	if c.Query.DefaultLimit > c.Query.MaxLimit {
		errs = append(errs, fmt.Errorf("query.default_limit %d exceeds max_limit %d", c.Query.DefaultLimit, c.Query.MaxLimit))
	}
	switch c.Scoring.Provider {
	case ScoringNone, ScoringHeuristic, ScoringOpenAI:
	default:
		errs = append(errs, fmt.Errorf("scoring.provider %q is not one of none, heuristic, openai", c.Scoring.Provider))
	}
	if c.Scoring.Timeout <= 0 {
		errs = append(errs, errors.New("scoring.timeout must be positive"))
	}
	return errors.Join(errs...)
}

// ConfigDir returns the path to the .relgraph config directory.
func ConfigDir(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir)
}

// ConfigFilePath returns the path to the config file.
func ConfigFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
}

// SanitizeName converts a free-form name to a valid collection suffix.
func SanitizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	name = reNonAlphanumeric.ReplaceAllString(name, "")
	name = reMultipleUnderscores.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")

	if name == "" {
		return "default"
	}
	return name
}

// CollectionName returns the sanitized Qdrant collection name.
func (c QdrantConfig) CollectionName() string {
	if c.Collection == "" {
		return "relgraph_default"
	}
	return SanitizeName(c.Collection)
}
