package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zpam/categorizer/pkg/algorithm"
	"github.com/zpam/categorizer/pkg/datastore"
)

// Config represents categorizer configuration
type Config struct {
	// Classification settings
	Classifier ClassifierConfig `yaml:"classifier"`

	// Remote model store settings
	Redis RedisConfig `yaml:"redis"`

	// Startup retry of transient store errors
	InitRetry RetryConfig `yaml:"init_retry"`

	// Performance settings
	Performance PerformanceConfig `yaml:"performance"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`

	// Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics"`

	// Milter server settings
	Milter MilterConfig `yaml:"milter"`
}

// ClassifierConfig selects the model store, the scoring algorithm and
// the feature window
type ClassifierConfig struct {
	DataSource      string  `yaml:"data_source"`      // local, remote
	ClassifierType  string  `yaml:"classifier_type"`  // bayes, cbayes
	BasePath        string  `yaml:"base_path"`        // model file for local, Redis URL for remote
	DefaultCategory string  `yaml:"default_category"` // returned when nothing is known about a document
	GramSize        int     `yaml:"gram_size"`
	Alpha           float64 `yaml:"alpha"` // additive smoothing
}

// RedisConfig contains remote model store settings
type RedisConfig struct {
	KeyPrefix       string `yaml:"key_prefix"`
	DatabaseNum     int    `yaml:"database_num"` // overrides the URL database when non-zero
	DialTimeoutMs   int    `yaml:"dial_timeout_ms"`
	LocalCache      bool   `yaml:"local_cache"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	CacheMaxMB      int    `yaml:"cache_max_mb"`
}

// RetryConfig bounds the exponential backoff used while connecting to
// and initializing from the model store
type RetryConfig struct {
	MaxTries          int `yaml:"max_tries"`
	InitialIntervalMs int `yaml:"initial_interval_ms"`
	MaxIntervalMs     int `yaml:"max_interval_ms"`
	MaxElapsedMs      int `yaml:"max_elapsed_ms"`
}

// PerformanceConfig contains performance tuning
type PerformanceConfig struct {
	Workers   int `yaml:"workers"`    // evaluation workers, each with its own classifier
	BatchSize int `yaml:"batch_size"` // records handed to a worker at a time
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	File       string `yaml:"file"`   // log file path, empty = stderr
	Format     string `yaml:"format"` // json, text
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig contains the Prometheus listener settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// MilterConfig contains milter server settings
type MilterConfig struct {
	// Enable milter server
	Enabled bool `yaml:"enabled"`

	// Network and address for milter socket
	Network string `yaml:"network"` // "tcp" or "unix"
	Address string `yaml:"address"` // "127.0.0.1:7358" or "/tmp/zpam-cat.sock"

	// Connection settings
	ReadTimeoutMs  int `yaml:"read_timeout_ms"`
	WriteTimeoutMs int `yaml:"write_timeout_ms"`

	// Protocol options (what events to skip)
	SkipConnect bool `yaml:"skip_connect"`
	SkipHelo    bool `yaml:"skip_helo"`
	SkipMail    bool `yaml:"skip_mail"`
	SkipRcpt    bool `yaml:"skip_rcpt"`
	SkipHeaders bool `yaml:"skip_headers"`

	// Bytes of body text classified per message, 0 = unlimited
	MaxBodyBytes int `yaml:"max_body_bytes"`

	// Answer with a temporary failure when the model store is unreachable
	TempFailOnError bool `yaml:"tempfail_on_error"`

	GracefulShutdownTimeout int `yaml:"graceful_shutdown_timeout_ms"`

	// Header modifications
	HeaderPrefix string `yaml:"header_prefix"` // default: "X-ZPAM-"
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Classifier: ClassifierConfig{
			DataSource:      string(datastore.Local),
			ClassifierType:  string(algorithm.Bayes),
			BasePath:        "model.json",
			DefaultCategory: "unknown",
			GramSize:        1,
			Alpha:           1.0,
		},
		Redis: RedisConfig{
			KeyPrefix:       "zpam:model",
			DatabaseNum:     0,
			DialTimeoutMs:   5000,
			LocalCache:      true,
			CacheTTLSeconds: 600,
			CacheMaxMB:      64,
		},
		InitRetry: RetryConfig{
			MaxTries:          5,
			InitialIntervalMs: 200,
			MaxIntervalMs:     5000,
			MaxElapsedMs:      30000,
		},
		Performance: PerformanceConfig{
			Workers:   4,
			BatchSize: 256,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   false,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9108",
			Path:    "/metrics",
		},
		Milter: MilterConfig{
			Enabled:                 false,
			Network:                 "tcp",
			Address:                 "127.0.0.1:7358",
			ReadTimeoutMs:           10000,
			WriteTimeoutMs:          10000,
			SkipConnect:             true,
			SkipHelo:                true,
			SkipMail:                true,
			SkipRcpt:                true,
			SkipHeaders:             false,
			MaxBodyBytes:            1 << 20,
			TempFailOnError:         true,
			GracefulShutdownTimeout: 30000,
			HeaderPrefix:            "X-ZPAM-",
		},
	}
}

// LoadConfig loads configuration from file and validates it
func LoadConfig(configPath string) (*Config, error) {
	config, err := ReadConfig(configPath)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// ReadConfig parses configuration from file over the defaults without
// validating it, so that overrides can be applied first
func ReadConfig(configPath string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// If no config file specified, return defaults
	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	return config, nil
}

// SaveConfig saves configuration to file
func (c *Config) SaveConfig(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %v", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %v", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %v", err)
	}

	return nil
}

// Validate validates the configuration. Every failure is an *Error.
func (c *Config) Validate() error {
	cl := c.Classifier

	if _, err := datastore.ParseKind(cl.DataSource); err != nil {
		return &Error{Key: "data_source", Err: err}
	}
	if _, err := algorithm.ParseKind(cl.ClassifierType); err != nil {
		return &Error{Key: "classifier_type", Err: err}
	}
	if cl.BasePath == "" {
		return missing("base_path")
	}
	if cl.DefaultCategory == "" {
		return missing("default_category")
	}
	if cl.GramSize < 1 {
		return invalid("gram_size", "must be >= 1, got %d", cl.GramSize)
	}
	if cl.Alpha <= 0 {
		return invalid("alpha", "must be > 0, got %g", cl.Alpha)
	}

	if c.Redis.KeyPrefix == "" {
		return missing("redis.key_prefix")
	}
	if c.Redis.DatabaseNum < 0 {
		return invalid("redis.database_num", "must be >= 0")
	}
	if c.Redis.LocalCache {
		if c.Redis.CacheMaxMB < 1 {
			return invalid("redis.cache_max_mb", "must be >= 1 when local_cache is enabled")
		}
		if c.Redis.CacheTTLSeconds < 1 {
			return invalid("redis.cache_ttl_seconds", "must be >= 1 when local_cache is enabled")
		}
	}

	if c.InitRetry.MaxTries < 1 {
		return invalid("init_retry.max_tries", "must be >= 1")
	}

	if c.Performance.Workers < 1 {
		return invalid("performance.workers", "must be >= 1")
	}
	if c.Performance.BatchSize < 1 {
		return invalid("performance.batch_size", "must be >= 1")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	validLevel := false
	for _, level := range validLevels {
		if c.Logging.Level == level {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return invalid("logging.level", "invalid logging level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return invalid("logging.format", "must be 'json' or 'text'")
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return missing("metrics.address")
	}

	if c.Milter.Enabled {
		if c.Milter.Network != "tcp" && c.Milter.Network != "unix" {
			return invalid("milter.network", "must be 'tcp' or 'unix'")
		}
		if c.Milter.Address == "" {
			return missing("milter.address")
		}
		if c.Milter.ReadTimeoutMs < 1000 {
			return invalid("milter.read_timeout_ms", "must be >= 1000")
		}
		if c.Milter.WriteTimeoutMs < 1000 {
			return invalid("milter.write_timeout_ms", "must be >= 1000")
		}
		if c.Milter.MaxBodyBytes < 0 {
			return invalid("milter.max_body_bytes", "must be >= 0")
		}
	}

	return nil
}

// StoreConfig converts the redis section for the datastore package
func (r RedisConfig) StoreConfig() *datastore.RedisConfig {
	return &datastore.RedisConfig{
		KeyPrefix:   r.KeyPrefix,
		DatabaseNum: r.DatabaseNum,
		DialTimeout: time.Duration(r.DialTimeoutMs) * time.Millisecond,
		LocalCache:  r.LocalCache,
		CacheTTL:    time.Duration(r.CacheTTLSeconds) * time.Second,
		CacheMaxMB:  r.CacheMaxMB,
	}
}
