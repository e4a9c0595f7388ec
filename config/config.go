// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the application configuration of kbindex from YAML
// and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/kbindex/ai"
	"github.com/poiesic/kbindex/ai/ollama"
	"github.com/poiesic/kbindex/ai/openai"
	"github.com/poiesic/kbindex/cache"
	"gopkg.in/yaml.v3"
)

// Provider kinds accepted in the providers list.
const (
	KindOpenAI = "openai"
	KindOllama = "ollama"
)

// CacheConfig selects the search result cache.
type CacheConfig struct {
	Backend string        `yaml:"backend"` // memory, badger or none
	TTL     time.Duration `yaml:"ttl"`
}

// ChunkerConfig sets the default chunking window.
type ChunkerConfig struct {
	MaxChars int `yaml:"max_chars"`
	Overlap  *int `yaml:"overlap,omitempty"` // nil keeps the chunker default
}

// IngestionConfig sizes the ingestion workers.
type IngestionConfig struct {
	Workers          int `yaml:"workers"`
	EmbedConcurrency int `yaml:"embed_concurrency"`
}

// SearchConfig tunes similarity queries.
type SearchConfig struct {
	MaxCandidates int `yaml:"max_candidates"`
}

// ProviderConfig describes one embedding provider. The API key is never
// stored in the file; APIKeyEnv names the environment variable holding it.
type ProviderConfig struct {
	Name      string        `yaml:"name"`
	Kind      string        `yaml:"kind"`
	Host      string        `yaml:"host"`
	Model     string        `yaml:"model"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`
}

// MarshalYAML writes the TTL as a duration string, the form Parse reads.
func (c CacheConfig) MarshalYAML() (any, error) {
	return struct {
		Backend string `yaml:"backend"`
		TTL     string `yaml:"ttl"`
	}{c.Backend, c.TTL.String()}, nil
}

// MarshalYAML writes the timeout as a duration string, the form Parse reads.
func (p ProviderConfig) MarshalYAML() (any, error) {
	return struct {
		Name      string `yaml:"name"`
		Kind      string `yaml:"kind"`
		Host      string `yaml:"host,omitempty"`
		Model     string `yaml:"model,omitempty"`
		APIKeyEnv string `yaml:"api_key_env,omitempty"`
		Timeout   string `yaml:"timeout"`
	}{p.Name, p.Kind, p.Host, p.Model, p.APIKeyEnv, p.Timeout.String()}, nil
}

// Config is the root application configuration.
type Config struct {
	DataDir   string           `yaml:"data_dir"`
	Cache     CacheConfig      `yaml:"cache"`
	Chunker   ChunkerConfig    `yaml:"chunker"`
	Ingestion IngestionConfig  `yaml:"ingestion"`
	Search    SearchConfig     `yaml:"search"`
	Providers []ProviderConfig `yaml:"providers"`
}

// Default returns the configuration used when no file exists: a local
// Ollama provider, an in-memory cache and the library defaults.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a config from path. A missing file yields Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
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

// LoadEnv loads KEY=value pairs from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = cache.BackendMemory
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 60 * time.Second
	}
	if len(cfg.Providers) == 0 {
		cfg.Providers = []ProviderConfig{{Kind: KindOllama}}
	}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.Name == "" {
			p.Name = p.Kind
		}
		if p.Timeout == 0 {
			p.Timeout = 30 * time.Second
		}
		switch p.Kind {
		case KindOpenAI:
			if p.Host == "" {
				p.Host = "https://api.openai.com/v1"
			}
			if p.Model == "" {
				p.Model = "text-embedding-3-small"
			}
			if p.APIKeyEnv == "" {
				p.APIKeyEnv = "OPENAI_API_KEY"
			}
		case KindOllama:
			if p.Host == "" {
				p.Host = ollama.DefaultHost
			}
			if p.Model == "" {
				p.Model = "embeddinggemma"
			}
		}
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kbindex"
	}
	return filepath.Join(home, ".local", "share", "kbindex")
}

// Validate checks the values defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case cache.BackendMemory, cache.BackendBadger, cache.BackendNone:
	default:
		return fmt.Errorf("%w: %q", cache.ErrUnknownBackend, c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		return errors.New("config: cache ttl cannot be negative")
	}
	if c.Chunker.MaxChars < 0 || (c.Chunker.Overlap != nil && *c.Chunker.Overlap < 0) {
		return errors.New("config: chunker sizes cannot be negative")
	}
	if c.Ingestion.Workers < 0 || c.Ingestion.EmbedConcurrency < 0 {
		return errors.New("config: ingestion sizes cannot be negative")
	}
	if c.Search.MaxCandidates < 0 {
		return errors.New("config: max_candidates cannot be negative")
	}

	names := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Kind != KindOpenAI && p.Kind != KindOllama {
			return fmt.Errorf("config: provider %q has unknown kind %q", p.Name, p.Kind)
		}
		if names[p.Name] {
			return fmt.Errorf("config: provider %q is listed twice", p.Name)
		}
		names[p.Name] = true
	}
	return nil
}

// AIConfig converts the entry into a provider config, reading the API key
// from the environment.
func (p ProviderConfig) AIConfig() *ai.Config {
	opts := []ai.ConfigOption{
		ai.WithName(p.Name),
		ai.WithHost(p.Host),
		ai.WithModel(p.Model),
		ai.WithTimeout(p.Timeout),
	}
	if p.APIKeyEnv != "" {
		opts = append(opts, ai.WithAPIKey(os.Getenv(p.APIKeyEnv)))
	}
	return ai.NewConfig(opts...)
}

// Build creates the provider the entry describes.
func (p ProviderConfig) Build() (ai.Provider, error) {
	switch p.Kind {
	case KindOpenAI:
		return openai.NewProvider(p.AIConfig())
	case KindOllama:
		return ollama.NewProvider(p.AIConfig())
	default:
		return nil, fmt.Errorf("config: provider %q has unknown kind %q", p.Name, p.Kind)
	}
}

// BuildProviders creates every configured provider in order. Providers
// built before a failure are closed.
func (c *Config) BuildProviders() ([]ai.Provider, error) {
	providers := make([]ai.Provider, 0, len(c.Providers))
	for _, pc := range c.Providers {
		p, err := pc.Build()
		if err != nil {
			for _, built := range providers {
				built.Close()
			}
			return nil, fmt.Errorf("building provider %s: %w", pc.Name, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}
