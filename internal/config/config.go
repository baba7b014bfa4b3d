package config

import "time"

// Config holds runtime settings for the photoflow CLI.
type Config struct {
	// DatabaseDSN is the SQLite connection string for the local state
	// database (accounts and upload history).
	DatabaseDSN string

	MaxConcurrency    int
	ForceUpload       bool
	DeleteAfterUpload bool
	StorageSaver      bool
	UseQuota          bool
	RecursiveScan     bool

	WatchDebounce  time.Duration
	HTTPRetryMax   int
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabaseDSN = "photoflow.db"
	c.MaxConcurrency = 3
	c.RecursiveScan = true
	c.WatchDebounce = time.Second
	c.HTTPRetryMax = 0
	c.RequestTimeout = 5 * time.Minute
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
