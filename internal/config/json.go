package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/photoflow/internal/flagx"
	"github.com/dmitrijs2005/photoflow/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "1s" or as integer nanoseconds. After parsing, values
// are copied into the runtime Config (which uses time.Duration).
type JsonConfig struct {
	DatabaseDSN       string         `json:"database_dsn"`
	MaxConcurrency    int            `json:"max_concurrency"`
	ForceUpload       bool           `json:"force_upload"`
	DeleteAfterUpload bool           `json:"delete_after_upload"`
	StorageSaver      bool           `json:"storage_saver"`
	UseQuota          bool           `json:"use_quota"`
	RecursiveScan     *bool          `json:"recursive_scan"`
	WatchDebounce     timex.Duration `json:"watch_debounce"`
	HTTPRetryMax      int            `json:"http_retry_max"`
	RequestTimeout    timex.Duration `json:"request_timeout"`
}

// parseJson overlays Config with values loaded from a JSON file selected via
// the -c or -config flags (flagx.JsonConfigFlags). Missing file path means
// no JSON is loaded. Read or unmarshal errors panic; intended usage is
// defaults -> parseJson -> parseFlags, where later stages override earlier
// ones.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.MaxConcurrency > 0 {
		cfg.MaxConcurrency = jc.MaxConcurrency
	}
	cfg.ForceUpload = jc.ForceUpload
	cfg.DeleteAfterUpload = jc.DeleteAfterUpload
	cfg.StorageSaver = jc.StorageSaver
	cfg.UseQuota = jc.UseQuota
	if jc.RecursiveScan != nil {
		cfg.RecursiveScan = *jc.RecursiveScan
	}
	if jc.WatchDebounce.Duration > 0 {
		cfg.WatchDebounce = time.Duration(jc.WatchDebounce.Duration)
	}
	if jc.HTTPRetryMax > 0 {
		cfg.HTTPRetryMax = jc.HTTPRetryMax
	}
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = time.Duration(jc.RequestTimeout.Duration)
	}
}
