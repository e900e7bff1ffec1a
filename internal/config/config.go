// Package config provides unified configuration for the Quarry engine.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quarrydb/quarry/pkg/types"
	"gopkg.in/yaml.v3"
)

// Config holds the engine configuration shared by every table handle.
type Config struct {
	// DataDir is the base directory for local state: write journals
	// and the table description cache.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Remote configuration
	Remote RemoteConfig `json:"remote" yaml:"remote"`

	// Scan configuration
	Scan ScanConfig `json:"scan" yaml:"scan"`

	// Retry configuration
	Retry RetryConfig `json:"retry" yaml:"retry"`

	// Write buffering configuration
	Write WriteConfig `json:"write" yaml:"write"`

	// Catalog (description cache) configuration
	Catalog CatalogConfig `json:"catalog" yaml:"catalog"`

	// Tables holds per-table overrides keyed by host table name
	Tables map[string]TableConfig `json:"tables" yaml:"tables"`
}

// RemoteConfig holds connection settings for the remote store.
type RemoteConfig struct {
	// Region is the remote store region
	Region string `json:"region" yaml:"region"`

	// Endpoint overrides the remote endpoint (for local emulators)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Profile is the shared credentials profile to use, empty for the default chain
	Profile string `json:"profile" yaml:"profile"`
}

// ScanConfig holds full-scan execution settings.
type ScanConfig struct {
	// SegmentCount is the number of parallel scan segments (1–1000, default 8)
	SegmentCount int `json:"segment_count" yaml:"segment_count"`

	// QueueDepth is the number of result pages buffered between
	// fetch workers and the reader. Zero derives it from the
	// segment count.
	QueueDepth int `json:"queue_depth" yaml:"queue_depth"`

	// PageSize caps items per remote page, zero for the remote default
	PageSize int `json:"page_size" yaml:"page_size"`
}

// RetryConfig holds throttling retry settings.
type RetryConfig struct {
	// MaxRetries is the retry ceiling per remote call before the
	// error is reported as remote unavailability
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// BaseDelay is the first backoff delay; each retry doubles it
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`

	// MaxDelay caps a single backoff delay
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay"`
}

// WriteConfig holds write buffering settings.
type WriteConfig struct {
	// JournalDir is the directory for spilled write journals
	JournalDir string `json:"journal_dir" yaml:"journal_dir"`

	// SpillThreshold is the number of buffered writes held in memory
	// before a transaction spills to its journal
	SpillThreshold int `json:"spill_threshold" yaml:"spill_threshold"`
}

// CatalogConfig holds the table description cache settings.
type CatalogConfig struct {
	// Path is the cache database file, empty to place it under DataDir
	Path string `json:"path" yaml:"path"`

	// DescribeTTL is how long a cached table description stays fresh
	DescribeTTL time.Duration `json:"describe_ttl" yaml:"describe_ttl"`

	// PruneInterval is how often background maintenance removes expired
	// descriptions and decayed access statistics, zero to disable
	PruneInterval time.Duration `json:"prune_interval" yaml:"prune_interval"`
}

// TableConfig holds per-table overrides.
type TableConfig struct {
	// RemoteTable is the remote table name, defaults to the host name
	RemoteTable string `json:"remote_table" yaml:"remote_table"`

	// SegmentCount overrides the scan segment count for this table
	SegmentCount int `json:"segment_count" yaml:"segment_count"`

	// ForbidScan rejects plans that would fall back to a full scan
	ForbidScan bool `json:"forbid_scan" yaml:"forbid_scan"`

	// IntrospectSchema derives the key layout from the remote store at
	// open time. Implied when PartitionAttr is empty.
	IntrospectSchema bool `json:"introspect_schema" yaml:"introspect_schema"`

	// PartitionAttr is the remote partition key attribute
	PartitionAttr string `json:"partition_attr" yaml:"partition_attr"`

	// SortAttr is the remote sort key attribute, empty for none
	SortAttr string `json:"sort_attr" yaml:"sort_attr"`

	// Indexes declares the secondary indexes the planner may use
	Indexes []types.IndexDef `json:"indexes" yaml:"indexes"`

	// RowIDColumn renames the synthetic row identifier column
	RowIDColumn string `json:"row_id_column" yaml:"row_id_column"`

	// DocumentColumn renames the synthetic document column
	DocumentColumn string `json:"document_column" yaml:"document_column"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/quarry",
		Remote: RemoteConfig{
			Region: "us-east-1",
		},
		Scan: ScanConfig{
			SegmentCount: 8,
			QueueDepth:   0,
			PageSize:     0,
		},
		Retry: RetryConfig{
			MaxRetries: 5,
			BaseDelay:  100 * time.Millisecond,
			MaxDelay:   5 * time.Second,
		},
		Write: WriteConfig{
			JournalDir:     "",
			SpillThreshold: 10000,
		},
		Catalog: CatalogConfig{
			Path:          "",
			DescribeTTL:   5 * time.Minute,
			PruneInterval: 5 * time.Minute,
		},
		Tables: map[string]TableConfig{},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/quarry"
	}

	if c.Write.JournalDir == "" {
		c.Write.JournalDir = filepath.Join(c.DataDir, "journals")
	}

	if c.Catalog.Path == "" {
		c.Catalog.Path = filepath.Join(c.DataDir, "catalog.db")
	}
}

// TableFor returns the effective settings for a host table, applying
// engine-wide defaults to anything the table does not override.
func (c *Config) TableFor(name string) TableConfig {
	tc := c.Tables[name]
	if tc.RemoteTable == "" {
		tc.RemoteTable = name
	}
	if tc.SegmentCount == 0 {
		tc.SegmentCount = c.Scan.SegmentCount
	}
	if tc.RowIDColumn == "" {
		tc.RowIDColumn = types.RowIDColumn
	}
	if tc.DocumentColumn == "" {
		tc.DocumentColumn = types.DocumentColumn
	}
	return tc
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Scan.SegmentCount < 1 || c.Scan.SegmentCount > 1000 {
		return fmt.Errorf("scan.segment_count must be between 1 and 1000, got %d", c.Scan.SegmentCount)
	}

	if c.Scan.QueueDepth < 0 {
		return fmt.Errorf("scan.queue_depth must not be negative, got %d", c.Scan.QueueDepth)
	}

	if c.Scan.PageSize < 0 {
		return fmt.Errorf("scan.page_size must not be negative, got %d", c.Scan.PageSize)
	}

	if c.Retry.MaxRetries < 0 || c.Retry.MaxRetries > 20 {
		return fmt.Errorf("retry.max_retries must be between 0 and 20, got %d", c.Retry.MaxRetries)
	}

	if c.Retry.BaseDelay <= 0 {
		return fmt.Errorf("retry.base_delay must be positive, got %s", c.Retry.BaseDelay)
	}

	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay must not be below retry.base_delay")
	}

	if c.Write.SpillThreshold < 1 {
		return fmt.Errorf("write.spill_threshold must be positive, got %d", c.Write.SpillThreshold)
	}

	if c.Catalog.DescribeTTL < 0 {
		return fmt.Errorf("catalog.describe_ttl must not be negative, got %s", c.Catalog.DescribeTTL)
	}

	if c.Catalog.PruneInterval < 0 {
		return fmt.Errorf("catalog.prune_interval must not be negative, got %s", c.Catalog.PruneInterval)
	}

	for name, tc := range c.Tables {
		if tc.SegmentCount < 0 || tc.SegmentCount > 1000 {
			return fmt.Errorf("tables.%s.segment_count must be between 0 and 1000, got %d", name, tc.SegmentCount)
		}
		if tc.PartitionAttr == "" {
			if tc.SortAttr != "" {
				return fmt.Errorf("tables.%s.sort_attr requires partition_attr", name)
			}
			if len(tc.Indexes) > 0 {
				return fmt.Errorf("tables.%s.indexes require partition_attr", name)
			}
		}
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the QUARRY_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("QUARRY_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Remote configuration
	if v := os.Getenv("QUARRY_REMOTE_REGION"); v != "" {
		cfg.Remote.Region = v
	}
	if v := os.Getenv("QUARRY_REMOTE_ENDPOINT"); v != "" {
		cfg.Remote.Endpoint = v
	}
	if v := os.Getenv("QUARRY_REMOTE_PROFILE"); v != "" {
		cfg.Remote.Profile = v
	}

	// Scan configuration
	if v := os.Getenv("QUARRY_SCAN_SEGMENT_COUNT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Scan.SegmentCount)
	}
	if v := os.Getenv("QUARRY_SCAN_QUEUE_DEPTH"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Scan.QueueDepth)
	}
	if v := os.Getenv("QUARRY_SCAN_PAGE_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Scan.PageSize)
	}

	// Retry configuration
	if v := os.Getenv("QUARRY_RETRY_MAX_RETRIES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Retry.MaxRetries)
	}
	if v := os.Getenv("QUARRY_RETRY_BASE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retry.BaseDelay = d
		}
	}
	if v := os.Getenv("QUARRY_RETRY_MAX_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retry.MaxDelay = d
		}
	}

	// Write configuration
	if v := os.Getenv("QUARRY_WRITE_JOURNAL_DIR"); v != "" {
		cfg.Write.JournalDir = v
	}
	if v := os.Getenv("QUARRY_WRITE_SPILL_THRESHOLD"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Write.SpillThreshold)
	}

	// Catalog configuration
	if v := os.Getenv("QUARRY_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("QUARRY_CATALOG_DESCRIBE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Catalog.DescribeTTL = d
		}
	}
	if v := os.Getenv("QUARRY_CATALOG_PRUNE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Catalog.PruneInterval = d
		}
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Write.JournalDir,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
