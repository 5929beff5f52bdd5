// Package config loads graph engine configuration from file and environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the thin HTTP adapter (cmd/graphserver).
type ServerConfig struct {
	Host string `json:"host" env:"SERVER_HOST"`
	Port int    `json:"port" env:"SERVER_PORT"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	// Backend is one of "memory", "disk", "buffered", "hybrid", "async".
	Backend string `json:"backend" env:"STORAGE_BACKEND"`
	// DataDir is the bbolt database directory for disk-backed engines.
	DataDir string `json:"data_dir" env:"STORAGE_DATA_DIR"`
}

// CacheConfig controls the hybrid backend's Tier-1 LRU caches.
type CacheConfig struct {
	TotalFraction    float64 `json:"cache_total_fraction" env:"CACHE_TOTAL_FRACTION"`
	NodeFraction     float64 `json:"cache_node_fraction" env:"CACHE_NODE_FRACTION"`
	AdjacencyFraction float64 `json:"cache_adjacency_fraction" env:"CACHE_ADJACENCY_FRACTION"`
	QueryFraction    float64 `json:"cache_query_fraction" env:"CACHE_QUERY_FRACTION"`
	IndexFraction    float64 `json:"cache_index_fraction" env:"CACHE_INDEX_FRACTION"`

	NodeEntries      int `json:"cache_node_entries" env:"CACHE_NODE_ENTRIES"`
	AdjacencyEntries int `json:"cache_adjacency_entries" env:"CACHE_ADJACENCY_ENTRIES"`
	RelEntries       int `json:"cache_rel_entries" env:"CACHE_REL_ENTRIES"`

	NodeTTLSeconds      int `json:"cache_node_ttl" env:"CACHE_NODE_TTL"`
	AdjacencyTTLSeconds int `json:"cache_adjacency_ttl" env:"CACHE_ADJACENCY_TTL"`
	QueryTTLSeconds     int `json:"cache_query_ttl" env:"CACHE_QUERY_TTL"`
	IndexTTLSeconds     int `json:"cache_index_ttl" env:"CACHE_INDEX_TTL"`
}

// BufferConfig controls the write-coalescing buffered store.
type BufferConfig struct {
	MaxSize           int  `json:"buffer_max_size" env:"BUFFER_MAX_SIZE"`
	FlushIntervalMS   int  `json:"buffer_flush_interval_ms" env:"BUFFER_FLUSH_INTERVAL_MS"`
	FlushThreshold    int  `json:"buffer_flush_threshold" env:"BUFFER_FLUSH_THRESHOLD"`
	AsyncFlush        bool `json:"buffer_async_flush" env:"BUFFER_ASYNC_FLUSH"`
}

// TransactionConfig controls the transaction manager.
type TransactionConfig struct {
	DefaultTimeoutSeconds int    `json:"transaction_default_timeout" env:"TX_DEFAULT_TIMEOUT"`
	MaxSnapshots          int    `json:"max_snapshots" env:"TX_MAX_SNAPSHOTS"`
	IsolationDefaultLevel string `json:"isolation_default_level" env:"TX_ISOLATION_DEFAULT_LEVEL"`
	SweepIntervalSeconds  int    `json:"sweep_interval_seconds" env:"TX_SWEEP_INTERVAL"`
}

// StreamConfig controls the backpressured streaming layer.
type StreamConfig struct {
	ChannelBuffer   int     `json:"stream_channel_buffer" env:"STREAM_CHANNEL_BUFFER"`
	ConcurrencyLimit int    `json:"stream_concurrency_limit" env:"STREAM_CONCURRENCY_LIMIT"`
	BatchSize       int     `json:"stream_batch_size" env:"STREAM_BATCH_SIZE"`
	RateLimitPerSec float64 `json:"stream_rate_limit_per_sec" env:"STREAM_RATE_LIMIT_PER_SEC"`
}

// IndexedProperty declares one schema-registered index.
type IndexedProperty struct {
	Label      string   `json:"label" yaml:"label"`
	Property   string   `json:"property" yaml:"property"`
	Kind       string   `json:"kind" yaml:"kind"` // exact, range, fulltext, composite
	Name       string   `json:"name,omitempty" yaml:"name,omitempty"`
	Properties []string `json:"properties,omitempty" yaml:"properties,omitempty"` // composite only
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" env:"LOG_FORMAT"`
	Output     string `json:"output" env:"LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server      ServerConfig        `json:"server"`
	Storage     StorageConfig       `json:"storage"`
	Cache       CacheConfig         `json:"cache"`
	Buffer      BufferConfig        `json:"buffer"`
	Transaction TransactionConfig   `json:"transaction"`
	Stream      StreamConfig        `json:"stream"`
	Logging     LoggingConfig       `json:"logging"`
	Indexed     []IndexedProperty   `json:"indexed_properties" yaml:"indexed_properties"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Backend: "memory",
			DataDir: "data/graphdb",
		},
		Cache: CacheConfig{
			TotalFraction:     0.25,
			NodeFraction:      0.4,
			AdjacencyFraction: 0.4,
			QueryFraction:     0.1,
			IndexFraction:     0.1,
			NodeEntries:       100_000,
			AdjacencyEntries:  100_000,
			RelEntries:        100_000,
			NodeTTLSeconds:     300,
			AdjacencyTTLSeconds: 300,
			QueryTTLSeconds:     30,
			IndexTTLSeconds:     60,
		},
		Buffer: BufferConfig{
			MaxSize:         1000,
			FlushIntervalMS: 2000,
			FlushThreshold:  500,
			AsyncFlush:      false,
		},
		Transaction: TransactionConfig{
			DefaultTimeoutSeconds: 30,
			MaxSnapshots:          16,
			IsolationDefaultLevel: "read_committed",
			SweepIntervalSeconds:  5,
		},
		Stream: StreamConfig{
			ChannelBuffer:    256,
			ConcurrencyLimit: 4,
			BatchSize:        100,
			RateLimitPerSec:  0, // 0 disables rate limiting
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "graphdb",
		},
	}
}

// Load loads configuration from file (if present) and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode returns an error when no tagged fields are present in the
		// environment; treat that case as "no overrides" so local runs work
		// without exporting vars.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

// LoadFile reads configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// LoadConfig is a helper used by tests to load JSON config snippets.
func LoadConfig(path string) (*Config, error) {
	cfg := New()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
