// Package config loads the engine's runtime configuration: admission
// limits, adaptive-execution thresholds, cache policy and the optimizer's
// active rule set, per spec.md §6.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config is the engine's full runtime configuration.
type Config struct {
	Admission AdmissionConfig `json:"admission"`
	Adaptive  AdaptiveConfig  `json:"adaptive"`
	Cache     CacheConfig     `json:"cache"`
	Optimizer OptimizerConfig `json:"optimizer"`
	Audit     AuditConfig     `json:"audit"`
	Log       LogConfig       `json:"log"`
}

// AdmissionConfig bounds per-query execution resources (§4.9, §6).
type AdmissionConfig struct {
	MaxConcurrentQueries int           `json:"max_concurrent_queries"`
	PerQueryMemoryBytes  int64         `json:"per_query_memory_bytes"`
	PerQueryCPUShare     float64       `json:"per_query_cpu_share"`
	AdmissionQueueSize   int           `json:"admission_queue_size"`
	DefaultQueryTimeout  time.Duration `json:"default_query_timeout"`
	CancellationInterval time.Duration `json:"cancellation_interval"`
}

// AdaptiveConfig controls the execution engine's adaptive re-planning
// (§4.7).
type AdaptiveConfig struct {
	Enabled           bool    `json:"enabled"`
	SampleRows        int64   `json:"sample_rows"`
	DeviationThreshold float64 `json:"deviation_threshold"`
}

// CacheConfig controls the result cache (§4.8).
type CacheConfig struct {
	MaxEntries   int           `json:"max_entries"`
	MaxEntryBytes int64        `json:"max_entry_bytes"`
	DefaultTTL   time.Duration `json:"default_ttl"`
	Strategy     string        `json:"strategy"` // heuristic | ml | adaptive
}

// OptimizerConfig selects the active rule set and fallback cardinality
// estimate (§4.3).
type OptimizerConfig struct {
	RuleSet              string  `json:"rule_set"`
	DefaultCardinality   int64   `json:"default_cardinality"`
	ConfidenceDowngrade  float64 `json:"confidence_downgrade"`
}

// AuditConfig toggles the security enforcer's audit event emission (§4.10).
type AuditConfig struct {
	Enabled bool `json:"enabled"`
}

// LogConfig controls the ambient structured-logging sink (§4.11).
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // json or console
}

// Default returns the engine's default configuration.
func Default() *Config {
	return &Config{
		Admission: AdmissionConfig{
			MaxConcurrentQueries: 64,
			PerQueryMemoryBytes:  512 * 1024 * 1024,
			PerQueryCPUShare:     1.0,
			AdmissionQueueSize:   256,
			DefaultQueryTimeout:  30 * time.Second,
			CancellationInterval: 2 * time.Second,
		},
		Adaptive: AdaptiveConfig{
			Enabled:            true,
			SampleRows:         1000,
			DeviationThreshold: 0.5,
		},
		Cache: CacheConfig{
			MaxEntries:    1000,
			MaxEntryBytes: 64 * 1024 * 1024,
			DefaultTTL:    5 * time.Minute,
			Strategy:      "heuristic",
		},
		Optimizer: OptimizerConfig{
			RuleSet:             "default",
			DefaultCardinality:  1000,
			ConfidenceDowngrade: 0.5,
		},
		Audit: AuditConfig{Enabled: true},
		Log:   LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads a JSON configuration file, falling back to Default() when
// path is empty. Values present in the file override the default; absent
// fields keep their default values since Load unmarshals onto a
// Default()-initialized struct.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads from LAKEQUERY_CONFIG if set, else returns defaults.
// Unlike the teacher's LoadConfigOrDefault, it never silently scans a list
// of guessed filesystem paths — the engine has no installed-package
// location to guess, so only the explicit env var is honored.
func LoadOrDefault() *Config {
	if envPath := os.Getenv("LAKEQUERY_CONFIG"); envPath != "" {
		if cfg, err := Load(envPath); err == nil {
			return cfg
		}
	}
	return Default()
}

func validate(cfg *Config) error {
	if cfg.Admission.MaxConcurrentQueries <= 0 {
		return fmt.Errorf("config: admission.max_concurrent_queries must be positive")
	}
	if cfg.Admission.PerQueryMemoryBytes <= 0 {
		return fmt.Errorf("config: admission.per_query_memory_bytes must be positive")
	}
	if cfg.Adaptive.DeviationThreshold <= 0 {
		return fmt.Errorf("config: adaptive.deviation_threshold must be positive")
	}
	switch cfg.Cache.Strategy {
	case "heuristic", "ml", "adaptive":
	default:
		return fmt.Errorf("config: cache.strategy %q is not one of heuristic|ml|adaptive", cfg.Cache.Strategy)
	}
	return nil
}
