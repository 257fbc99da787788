package models

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Global  GlobalConfig  `yaml:"global" json:"global"`
	Browser BrowserConfig `yaml:"browser" json:"browser"`
	Scan    ScanConfig    `yaml:"scan" json:"scan"`
	Removal RemovalConfig `yaml:"removal" json:"removal"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Brokers BrokersConfig `yaml:"brokers" json:"brokers"`
}

type GlobalConfig struct {
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`
	LogFile   string `yaml:"log_file" json:"log_file"`
	DataDir   string `yaml:"data_dir" json:"data_dir"`
}

type BrowserConfig struct {
	Headless        bool          `yaml:"headless" json:"headless"`
	NavigateTimeout time.Duration `yaml:"navigate_timeout" json:"navigate_timeout"`
	// MinDomainDelay is the minimum spacing between requests to the same
	// registrable domain. Navigations under the spacing fail, they do not queue.
	MinDomainDelay time.Duration `yaml:"min_domain_delay" json:"min_domain_delay"`
}

type ScanConfig struct {
	// MaxConcurrentFetches bounds in-flight broker fetches within one job.
	MaxConcurrentFetches int `yaml:"max_concurrent_fetches" json:"max_concurrent_fetches"`
}

type RemovalConfig struct {
	// MaxConcurrentSubmissions bounds the removal worker pool globally.
	// Independent from the scan fetch bound.
	MaxConcurrentSubmissions int `yaml:"max_concurrent_submissions" json:"max_concurrent_submissions"`
	MaxAttempts              int `yaml:"max_attempts" json:"max_attempts"`
	// StaleProcessingAfter controls startup reconciliation of attempts
	// orphaned mid-Processing by a crash.
	StaleProcessingAfter time.Duration `yaml:"stale_processing_after" json:"stale_processing_after"`
}

type StorageConfig struct {
	DatabasePath string `yaml:"database_path" json:"database_path"`
}

type BrokersConfig struct {
	DefinitionsDir string `yaml:"definitions_dir" json:"definitions_dir"`
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() Config {
	return Config{
		Global: GlobalConfig{
			LogLevel:  "info",
			LogFormat: "json",
			DataDir:   "./data",
		},
		Browser: BrowserConfig{
			Headless:        true,
			NavigateTimeout: 30 * time.Second,
			MinDomainDelay:  5 * time.Second,
		},
		Scan: ScanConfig{
			MaxConcurrentFetches: 5,
		},
		Removal: RemovalConfig{
			MaxConcurrentSubmissions: 3,
			MaxAttempts:              3,
			StaleProcessingAfter:     30 * time.Minute,
		},
		Storage: StorageConfig{
			DatabasePath: "./data/delist.db",
		},
		Brokers: BrokersConfig{
			DefinitionsDir: "./brokers",
		},
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Scan.MaxConcurrentFetches <= 0 {
		return fmt.Errorf("scan.max_concurrent_fetches must be positive, got %d", c.Scan.MaxConcurrentFetches)
	}
	if c.Removal.MaxConcurrentSubmissions <= 0 {
		return fmt.Errorf("removal.max_concurrent_submissions must be positive, got %d", c.Removal.MaxConcurrentSubmissions)
	}
	if c.Removal.MaxAttempts <= 0 {
		return fmt.Errorf("removal.max_attempts must be positive, got %d", c.Removal.MaxAttempts)
	}
	if c.Browser.MinDomainDelay < 0 {
		return fmt.Errorf("browser.min_domain_delay must not be negative")
	}
	return nil
}
