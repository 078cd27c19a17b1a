package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"imgsearch/internal/domain"
)

// Config holds all configuration for the image search tool.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StoreConfig selects and sizes the vector store.
type StoreConfig struct {
	Backend   string `yaml:"backend"`   // "bolt" or "sqlite"
	Path      string `yaml:"path"`      // empty means .imgsearch/index.<ext> under the root dir
	Dimension int    `yaml:"dimension"` // fixed at provisioning
}

// IngestConfig holds batch ingestion configuration.
type IngestConfig struct {
	Root      string   `yaml:"root"`
	Includes  []string `yaml:"includes"`
	Excludes  []string `yaml:"excludes"`
	MaxItems  int      `yaml:"max_items"`  // 0 = no cap
	BatchSize int      `yaml:"batch_size"` // 0 = derived from GOMAXPROCS
	MinWidth  int      `yaml:"min_width"`
	MinHeight int      `yaml:"min_height"`
}

// EmbeddingConfig holds embedding model configuration.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"` // "local" or "http"
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	Device            string        `yaml:"device"` // "auto", "accelerated", "generic"
	ImageSize         int           `yaml:"image_size"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 = unlimited
}

// SearchConfig holds retrieval configuration.
type SearchConfig struct {
	TopK      int           `yaml:"top_k"`
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:   "bolt",
			Dimension: 512,
		},
		Ingest: IngestConfig{
			Includes: []string{"**/*.jpg", "**/*.jpeg", "**/*.png", "**/*.webp"},
			Excludes: []string{"**/.git/**", "**/.imgsearch/**", "**/node_modules/**"},
			MaxItems: 50,
		},
		Embedding: EmbeddingConfig{
			Provider:  "local",
			Model:     "clip-ViT-B-32",
			BaseURL:   "http://localhost:51000/v1",
			Device:    "auto",
			ImageSize: 224,
			Timeout:   60 * time.Second,
		},
		Search: SearchConfig{
			TopK:      5,
			CacheSize: 128,
			CacheTTL:  10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate rejects configuration that would fail later in the pipeline.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "bolt", "sqlite":
	default:
		return fmt.Errorf("%w: unknown store backend %q", domain.ErrInvalidConfig, c.Store.Backend)
	}
	if c.Store.Dimension <= 0 {
		return fmt.Errorf("%w: store dimension must be positive, got %d", domain.ErrInvalidConfig, c.Store.Dimension)
	}
	if c.Ingest.MaxItems < 0 {
		return fmt.Errorf("%w: max_items must not be negative, got %d", domain.ErrInvalidConfig, c.Ingest.MaxItems)
	}
	if c.Ingest.BatchSize < 0 {
		return fmt.Errorf("%w: batch_size must not be negative, got %d", domain.ErrInvalidConfig, c.Ingest.BatchSize)
	}
	if c.Ingest.MinWidth < 0 || c.Ingest.MinHeight < 0 {
		return fmt.Errorf("%w: minimum image size must not be negative", domain.ErrInvalidConfig)
	}
	switch c.Embedding.Provider {
	case "local", "http":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", domain.ErrInvalidConfig, c.Embedding.Provider)
	}
	switch c.Embedding.Device {
	case "auto", "accelerated", "generic":
	default:
		return fmt.Errorf("%w: unknown device %q", domain.ErrInvalidConfig, c.Embedding.Device)
	}
	if c.Search.TopK < 0 {
		return fmt.Errorf("%w: top_k must not be negative, got %d", domain.ErrInvalidConfig, c.Search.TopK)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", domain.ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for imgsearch.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "imgsearch.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".imgsearch", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// StorePath returns the configured store path, or the default location
// inside dir for the configured backend.
func (c *Config) StorePath(dir string) string {
	if c.Store.Path != "" {
		if filepath.IsAbs(c.Store.Path) {
			return c.Store.Path
		}
		return filepath.Join(dir, c.Store.Path)
	}
	return IndexDBPath(dir, c.Store.Backend)
}

// IndexDBPath returns the default path to the index database.
func IndexDBPath(dir, backend string) string {
	name := "index.db"
	if backend == "sqlite" {
		name = "index.sqlite"
	}
	return filepath.Join(dir, ".imgsearch", name)
}

// EnsureDataDir ensures the .imgsearch directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".imgsearch"), 0755)
}
