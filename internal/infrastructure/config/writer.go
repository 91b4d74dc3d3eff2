package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigYAML is the default configuration content.
const DefaultConfigYAML = `# relgraph configuration

sqlite:
  # path defaults to .relgraph/relgraph.db (or set RELGRAPH_DB_PATH)
  busy_timeout_ms: 5000

validation:
  default_max_depth: 10

traversal:
  default_max_depth: 5
  hard_max_depth: 25
  max_nodes: 10000
  max_paths: 16

query:
  default_limit: 50
  max_limit: 500

bulk:
  max_batch: 1000

scoring:
  provider: none # none, heuristic or openai
  timeout: 2s

tiers:
  medium: 0.34
  strong: 0.67
  critical: 0.9

index:
  enabled: false

qdrant:
  host: localhost
  port: 6334
  collection: relgraph_relationships
  # api_key: your-api-key (for Qdrant Cloud)

embedder:
  provider: openai
  model: text-embedding-3-small
  # api_key: your-api-key (or set OPENAI_API_KEY env var)

llm:
  provider: openai
  model: gpt-4o-mini
  # api_key: your-api-key (or set OPENAI_API_KEY env var)

log:
  level: info # or set RELGRAPH_LOG_LEVEL
  format: console # or json
  # file: .relgraph/relgraph.log

http:
  addr: ":8080"
`

// WriteDefault creates the .relgraph directory and writes a default config file.
func WriteDefault(basePath string) error {
	configDir := ConfigDir(basePath)
	configFile := ConfigFilePath(basePath)

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists: %s", configFile)
	}

	if err := os.WriteFile(configFile, []byte(DefaultConfigYAML), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Write writes the given config to the config file.
func Write(basePath string, cfg *Config) error {
	configDir := ConfigDir(basePath)

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(configDir, DefaultConfigFile), data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Exists checks if a relgraph config exists in the given path.
func Exists(basePath string) bool {
	_, err := os.Stat(ConfigFilePath(basePath))
	return err == nil
}
