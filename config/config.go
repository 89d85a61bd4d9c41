// Package config loads process configuration from an optional YAML
// file with environment-variable overrides.
//
// The environment variable names are the service's historical surface:
// ES_DISABLED, ELASTICSEARCH_URL, ELASTICSEARCH_INDEX, DB_DSN, and
// MAX_NOTES_PER_COURSE.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration. It is loaded once at
// startup and passed explicitly into the engine; nothing reads it
// ambiently at runtime.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Search   SearchConfig   `yaml:"search"`
	Limits   LimitsConfig   `yaml:"limits"`
}

// DatabaseConfig configures the canonical record store.
type DatabaseConfig struct {
	// DSN is the SQLite data source name.
	DSN string `yaml:"dsn"`
}

// SearchConfig configures the index mirror.
type SearchConfig struct {
	// Disabled bypasses the index mirror entirely: no index calls are
	// made for any write or search. Used by operators during index
	// rebuilds.
	Disabled bool `yaml:"disabled"`
	// URL is the search engine endpoint.
	URL string `yaml:"url"`
	// Index is the index name.
	Index string `yaml:"index"`
	// Timeout bounds each index call.
	Timeout time.Duration `yaml:"timeout"`
}

// LimitsConfig holds service limits.
type LimitsConfig struct {
	// MaxNotesPerCourse caps how many notes a user may have in one
	// course. Zero means no cap.
	MaxNotesPerCourse int `yaml:"max_notes_per_course"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			DSN: "notes.db",
		},
		Search: SearchConfig{
			URL:     "http://localhost:9200",
			Index:   "notes_index",
			Timeout: 2 * time.Second,
		},
		Limits: LimitsConfig{
			MaxNotesPerCourse: 500,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (if path is non-empty), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("DB_DSN"); ok {
		c.Database.DSN = v
	}
	if v, ok := os.LookupEnv("ES_DISABLED"); ok {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse ES_DISABLED: %w", err)
		}
		c.Search.Disabled = disabled
	}
	if v, ok := os.LookupEnv("ELASTICSEARCH_URL"); ok {
		c.Search.URL = v
	}
	if v, ok := os.LookupEnv("ELASTICSEARCH_INDEX"); ok {
		c.Search.Index = v
	}
	if v, ok := os.LookupEnv("MAX_NOTES_PER_COURSE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse MAX_NOTES_PER_COURSE: %w", err)
		}
		c.Limits.MaxNotesPerCourse = n
	}

	return nil
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn must not be empty")
	}
	if !c.Search.Disabled {
		if c.Search.URL == "" {
			return fmt.Errorf("search.url must not be empty when search is enabled")
		}
		if c.Search.Index == "" {
			return fmt.Errorf("search.index must not be empty when search is enabled")
		}
	}
	if c.Search.Timeout < 0 {
		return fmt.Errorf("search.timeout must not be negative")
	}
	if c.Limits.MaxNotesPerCourse < 0 {
		return fmt.Errorf("limits.max_notes_per_course must not be negative")
	}

	return nil
}
