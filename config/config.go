// Package config enables config file parsing.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"

	"github.com/chainledger/wallet-indexer/log"
)

// DefaultSS58Prefix is the generic Substrate address format.
const DefaultSS58Prefix = 42

// Config contains the CLI configuration.
type Config struct {
	Analysis *AnalysisConfig `koanf:"analysis"`
	Log      *LogConfig      `koanf:"log"`
	Metrics  *MetricsConfig  `koanf:"metrics"`
}

// Validate performs config validation.
func (cfg *Config) Validate() error {
	if cfg.Analysis != nil {
		if err := cfg.Analysis.Validate(); err != nil {
			return fmt.Errorf("analysis: %w", err)
		}
	}
	if cfg.Log != nil {
		if err := cfg.Log.Validate(); err != nil {
			return fmt.Errorf("log: %w", err)
		}
	}
	if cfg.Metrics != nil {
		if err := cfg.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	return nil
}

// AnalysisConfig is the configuration for chain analyzers.
type AnalysisConfig struct {
	// Source is the configuration for fetching blocks.
	Source SourceConfig `koanf:"source"`

	// Analyzers is the analyzer configs.
	Analyzers AnalyzersList `koanf:"analyzers"`

	// Ledger holds chain parameters needed to interpret balance changes.
	Ledger LedgerConfig `koanf:"ledger"`

	Storage *StorageConfig `koanf:"storage"`

	// Notify configures the change feed of appended wallet transactions.
	// Optional.
	Notify *NotifyConfig `koanf:"notify"`
}

// Validate validates the analysis configuration.
func (cfg *AnalysisConfig) Validate() error {
	if err := cfg.Source.Validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if cfg.Analyzers.Wallets != nil {
		if err := cfg.Analyzers.Wallets.Validate(); err != nil {
			return err
		}
	}
	if err := cfg.Ledger.Validate(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if cfg.Notify != nil {
		if err := cfg.Notify.Validate(); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
	}
	if cfg.Storage == nil {
		return fmt.Errorf("storage not configured")
	}
	return cfg.Storage.Validate(true /* requireMigrations */)
}

type AnalyzersList struct {
	Wallets *BlockBasedAnalyzerConfig `koanf:"wallets"`
}

// SourceConfig describes where blocks are fetched from. Exactly one of
// HTTP and Dir must be set.
type SourceConfig struct {
	// Cache holds the configuration for a file-based caching backend.
	Cache *CacheConfig `koanf:"cache"`

	// HTTP is an extractor service serving blocks as JSON.
	HTTP *HTTPSourceConfig `koanf:"http"`

	// Dir is a directory of `<height>.json` block files.
	Dir string `koanf:"dir"`
}

// Validate validates the source configuration.
func (cfg *SourceConfig) Validate() error {
	switch {
	case cfg.HTTP == nil && cfg.Dir == "":
		return fmt.Errorf("source not configured, specify either source.http or source.dir")
	case cfg.HTTP != nil && cfg.Dir != "":
		return fmt.Errorf("source.http and source.dir specified, can only use one")
	}
	if cfg.HTTP != nil {
		if err := cfg.HTTP.Validate(); err != nil {
			return err
		}
	}
	if cfg.Cache != nil {
		return cfg.Cache.Validate()
	}
	return nil
}

type HTTPSourceConfig struct {
	// URL is the base URL of the extractor, e.g. http://extractor:8080.
	URL string `koanf:"url"`

	// Timeout bounds each request. Defaults to 30s.
	Timeout time.Duration `koanf:"timeout"`
}

func (cfg *HTTPSourceConfig) Validate() error {
	if cfg.URL == "" {
		return fmt.Errorf("malformed source url '%s'", cfg.URL)
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf("negative source timeout %v", cfg.Timeout)
	}
	return nil
}

type CacheConfig struct {
	// CacheDir is the directory where the cache data is stored
	CacheDir string `koanf:"cache_dir"`
}

func (cfg *CacheConfig) Validate() error {
	if cfg.CacheDir == "" {
		return fmt.Errorf("invalid cache filepath")
	}
	return nil
}

type BlockBasedAnalyzerConfig struct {
	// From is the (inclusive) starting block for this analyzer.
	From uint64 `koanf:"from"`

	// To is the (inclusive) ending block for this analyzer.
	// Omitting this parameter means this analyzer will
	// keep following the chain tip.
	To uint64 `koanf:"to"`
}

// Validate validates the range configuration.
func (cfg *BlockBasedAnalyzerConfig) Validate() error {
	if cfg.To != 0 && cfg.From > cfg.To {
		return fmt.Errorf("malformed analysis range from %d to %d", cfg.From, cfg.To)
	}
	return nil
}

// LedgerConfig contains chain parameters used by the wallet analyzer.
type LedgerConfig struct {
	// TreasuryAddress is the native account that receives transaction fees.
	// Fees are measured by observing deposits into it.
	TreasuryAddress string `koanf:"treasury_address"`

	// SS58Prefix is the network prefix used when deriving native
	// addresses from EVM addresses. Defaults to 42.
	SS58Prefix *uint16 `koanf:"ss58_prefix"`
}

// Validate validates the ledger configuration.
func (cfg *LedgerConfig) Validate() error {
	if cfg.TreasuryAddress == "" {
		return fmt.Errorf("treasury_address not configured")
	}
	if cfg.SS58Prefix != nil && *cfg.SS58Prefix >= 1<<14 {
		return fmt.Errorf("ss58_prefix %d out of range", *cfg.SS58Prefix)
	}
	return nil
}

// Prefix returns the configured SS58 prefix, or the default.
func (cfg *LedgerConfig) Prefix() uint16 {
	if cfg.SS58Prefix == nil {
		return DefaultSS58Prefix
	}
	return *cfg.SS58Prefix
}

// NotifyConfig contains the change feed configuration.
type NotifyConfig struct {
	Kafka *KafkaConfig `koanf:"kafka"`
}

// Validate validates the change feed configuration.
func (cfg *NotifyConfig) Validate() error {
	if cfg.Kafka != nil {
		return cfg.Kafka.Validate()
	}
	return nil
}

type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

func (cfg *KafkaConfig) Validate() error {
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	if cfg.Topic == "" {
		return fmt.Errorf("no kafka topic configured")
	}
	return nil
}

// StorageBackend is a storage backend.
type StorageBackend uint

const (
	// BackendPostgres is the PostgreSQL storage backend.
	BackendPostgres StorageBackend = iota
	// BackendInMemory is the in-memory storage backend.
	BackendInMemory
)

// String returns the string representation of a StorageBackend.
func (sb *StorageBackend) String() string {
	switch *sb {
	case BackendPostgres:
		return "postgres"
	case BackendInMemory:
		return "inmemory"
	default:
		panic("config: unsupported storage backend")
	}
}

// Set sets the StorageBackend to the value specified by the provided string.
func (sb *StorageBackend) Set(s string) error {
	switch strings.ToLower(s) {
	case "postgres":
		*sb = BackendPostgres
	case "inmemory":
		*sb = BackendInMemory
	default:
		return fmt.Errorf("config: invalid storage backend: '%s'", s)
	}

	return nil
}

// Type returns the list of supported StorageBackends.
func (sb *StorageBackend) Type() string {
	return "[postgres,inmemory]"
}

// StorageConfig contains the storage layer configuration.
type StorageConfig struct {
	// Endpoint is the storage endpoint from which to read/write indexed data.
	Endpoint string `koanf:"endpoint"`

	// Backend is the storage backend to select.
	Backend string `koanf:"backend"`

	// Migrations is the directory containing schema migrations.
	Migrations string `koanf:"migrations"`

	// If true, we'll first delete all tables in the DB to
	// force a full re-index of the chain.
	WipeStorage bool `koanf:"DANGER__WIPE_STORAGE_ON_STARTUP"`
}

// Validate validates the storage configuration.
func (cfg *StorageConfig) Validate(requireMigrations bool) error {
	var sb StorageBackend
	if err := sb.Set(cfg.Backend); err != nil {
		return err
	}
	if sb == BackendInMemory {
		return nil
	}
	if cfg.Endpoint == "" {
		return fmt.Errorf("malformed storage endpoint '%s'", cfg.Endpoint)
	}
	if cfg.Migrations == "" && requireMigrations {
		return fmt.Errorf("invalid path to migrations '%s'", cfg.Migrations)
	}
	return nil
}

// LogConfig contains the logging configuration.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
	File   string `koanf:"file"`
}

// Validate validates the logging configuration.
func (cfg *LogConfig) Validate() error {
	var format log.Format
	if err := format.Set(cfg.Format); err != nil {
		return err
	}
	var level log.Level
	return level.Set(cfg.Level)
}

// MetricsConfig contains the metrics configuration.
type MetricsConfig struct {
	PullEndpoint string `koanf:"pull_endpoint"`

	// PprofEndpoint, if set, serves the Go profiler at /debug/pprof/.
	PprofEndpoint string `koanf:"pprof_endpoint"`
}

// Validate validates the metrics configuration.
func (cfg *MetricsConfig) Validate() error {
	if cfg.PullEndpoint == "" {
		return fmt.Errorf("malformed Prometheus pull endpoint '%s'", cfg.PullEndpoint)
	}
	return nil
}

// InitConfig initializes configuration from file.
func InitConfig(f string) (*Config, error) {
	return initConfig(file.Provider(f))
}

func initConfig(p koanf.Provider) (*Config, error) {
	var config Config
	k := koanf.New(".")

	// Load configuration from the yaml config.
	if err := k.Load(p, yaml.Parser()); err != nil {
		return nil, err
	}

	// Load environment variables and merge into the loaded config.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		// `__` is used as a hierarchy delimiter.
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	// Unmarshal into config.
	if err := k.Unmarshal("", &config); err != nil {
		return nil, err
	}

	// Validate config.
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
