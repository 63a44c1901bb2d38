// Package config provides configuration loading and management for dpmcheck.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dpmcheck/internal/resolve"
)

// Config represents the complete dpmcheck configuration
type Config struct {
	Catalog CatalogConfig `yaml:"catalog"`
	Store   StoreConfig   `yaml:"store"`
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
	Report  ReportConfig  `yaml:"report"`
}

// CatalogConfig selects the rule catalog
type CatalogConfig struct {
	// Dir is a CUE catalog directory (empty = embedded default catalog)
	Dir string `yaml:"dir"`
}

// StoreConfig configures the SQLite store
type StoreConfig struct {
	// Path is the database file (default: dpmcheck.db)
	Path string `yaml:"path"`
}

// EngineConfig configures the validator
type EngineConfig struct {
	// Workers is the worker pool size (0 = GOMAXPROCS)
	Workers int `yaml:"workers"`
	// ChunkSize is the number of rows per work unit (default: 256)
	ChunkSize int `yaml:"chunk_size"`
	// CodeMatch selects code-list comparison: "exact" or "fold"
	CodeMatch string `yaml:"code_match"`
	// MatchNull is what match does with a null cell: "fail" or "skip"
	// (default: fail)
	MatchNull string `yaml:"match_null"`
	// AllTables validates every stored table, not only tB_ sheets
	AllTables bool `yaml:"all_tables"`
}

// LoggingConfig configures slog output
type LoggingConfig struct {
	// Level is one of debug, info, warn, error (default: warn)
	Level string `yaml:"level"`
	// Format is text or json (default: text)
	Format string `yaml:"format"`
}

// ReportConfig configures report rendering
type ReportConfig struct {
	// MaxFindings caps the findings listed per table in text output
	// (0 = no cap, default: 20)
	MaxFindings int `yaml:"max_findings"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			Dir: "", // Embedded catalog
		},
		Store: StoreConfig{
			Path: "dpmcheck.db",
		},
		Engine: EngineConfig{
			Workers:   runtime.GOMAXPROCS(0),
			ChunkSize: 256,
			CodeMatch: "exact",
			MatchNull: "fail",
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Report: ReportConfig{
			MaxFindings: 20,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers must not be negative")
	}
	if c.Engine.ChunkSize < 1 {
		return fmt.Errorf("engine.chunk_size must be at least 1")
	}
	if _, ok := resolve.MatcherByName(c.Engine.CodeMatch); !ok {
		return fmt.Errorf("engine.code_match must be exact or fold")
	}
	switch c.Engine.MatchNull {
	case "fail", "skip":
	default:
		return fmt.Errorf("engine.match_null must be fail or skip")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}
	if c.Report.MaxFindings < 0 {
		return fmt.Errorf("report.max_findings must not be negative")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file. Keys the file does
// not set keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := decodeFile(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

// loadLayer reads a file into a zero Config, so that Merge only applies
// the keys the file actually sets.
func loadLayer(path string) (*Config, error) {
	config := &Config{}
	if err := decodeFile(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

func decodeFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values). AllTables can only be switched on by a later layer.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Catalog.Dir != "" {
		c.Catalog.Dir = other.Catalog.Dir
	}

	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}

	if other.Engine.Workers != 0 {
		c.Engine.Workers = other.Engine.Workers
	}
	if other.Engine.ChunkSize != 0 {
		c.Engine.ChunkSize = other.Engine.ChunkSize
	}
	if other.Engine.CodeMatch != "" {
		c.Engine.CodeMatch = other.Engine.CodeMatch
	}
	if other.Engine.MatchNull != "" {
		c.Engine.MatchNull = other.Engine.MatchNull
	}
	if other.Engine.AllTables {
		c.Engine.AllTables = true
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.Format != "" {
		c.Logging.Format = other.Logging.Format
	}

	if other.Report.MaxFindings != 0 {
		c.Report.MaxFindings = other.Report.MaxFindings
	}
}
