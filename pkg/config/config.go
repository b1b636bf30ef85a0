// Package config loads and validates docalign's configuration from an
// optional YAML file, with environment-variable and CLI-flag overrides
// layered on top. It follows the same Load/defaultConfig/applyEnvOverrides
// shape the teacher platform used for its service configs, adapted to the
// sections a document-alignment run actually needs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is docalign's top-level configuration. CLI flags always win over
// these values, which always win over the built-in defaults below.
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Cache    CacheConfig    `yaml:"cache"`
	History  HistoryConfig  `yaml:"history"`
	RPC      RPCConfig      `yaml:"rpc"`
}

// PipelineConfig mirrors the spec.md §6 CLI flags so a config file can
// supply defaults for a run without repeating every flag on the command
// line.
type PipelineConfig struct {
	NgramSize int     `yaml:"ngramSize"`
	NgramUnit string  `yaml:"ngramUnit"`
	BatchSize int     `yaml:"batchSize"`
	Jobs      int     `yaml:"jobs"`
	Threshold float64 `yaml:"threshold"`
	MinCount  int     `yaml:"minCount"`
	MaxCount  int     `yaml:"maxCount"`
	All       bool    `yaml:"all"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the optional Prometheus /metrics server.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// CacheConfig controls the optional Redis-backed DF memoization layer
// (pkg/dfcache). Addr empty means the cache is disabled and the pipeline
// behaves exactly as specified, with no external dependency.
type CacheConfig struct {
	Addr string        `yaml:"addr"`
	TTL  time.Duration `yaml:"ttl"`
}

// HistoryConfig controls the optional Postgres run-history recorder
// (pkg/history). DSN empty means history recording is disabled.
type HistoryConfig struct {
	DSN string `yaml:"dsn"`
}

// RPCConfig controls the `docalign serve` score-serving subcommand.
type RPCConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads a YAML config file (if path is non-empty) layered over
// built-in defaults, then applies DOCALIGN_* environment overrides. CLI
// flags are applied by the caller afterward, since flag parsing happens in
// cmd/docalign and must win over everything Load returns.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			NgramSize: 2,
			NgramUnit: "byte",
			BatchSize: 50_000_000,
			Jobs:      0, // 0 means runtime.NumCPU() at the call site
			Threshold: 0.1,
			MinCount:  2,
			MaxCount:  1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
	}
}

// applyEnvOverrides reads DOCALIGN_* environment variables and overrides
// the corresponding config fields, mirroring the teacher's SP_* precedence
// layer (env wins over file, loses to CLI flags).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCALIGN_NGRAM_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.NgramSize = n
		}
	}
	if v := os.Getenv("DOCALIGN_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.Jobs = n
		}
	}
	if v := os.Getenv("DOCALIGN_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pipeline.Threshold = f
		}
	}
	if v := os.Getenv("DOCALIGN_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DOCALIGN_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DOCALIGN_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("DOCALIGN_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("DOCALIGN_HISTORY_DSN"); v != "" {
		cfg.History.DSN = v
	}
	if v := os.Getenv("DOCALIGN_RPC_ADDR"); v != "" {
		cfg.RPC.Addr = v
	}
}
