package config

import (
	"fmt"
	"time"

	"github.com/octopus-project/ipcm-indexer/internal/common"
)

// Config represents the complete configuration for the IPCM indexer.
type Config struct {
	// Source contains the chain event source configuration
	Source SourceConfig `yaml:"source" json:"source" toml:"source"`

	// Ingest contains the ingestion pipeline configuration
	Ingest IngestConfig `yaml:"ingest" json:"ingest" toml:"ingest"`

	// Storage contains the database configuration shared by the history
	// store, checkpoint store and reorg window
	Storage DatabaseConfig `yaml:"storage" json:"storage" toml:"storage"`

	// API contains the query API server configuration
	API *APIConfig `yaml:"api,omitempty" json:"api,omitempty" toml:"api,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`
}

// ApplyDefaults sets default values for all optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.Source.ApplyDefaults()
	c.Ingest.ApplyDefaults()
	c.Storage.ApplyDefaults()

	if c.API != nil {
		c.API.ApplyDefaults()
	}
	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}
}

// Validate checks the configuration for invalid or missing values.
func (c *Config) Validate() error {
	if c.Source.RPCURL == "" {
		return fmt.Errorf("source.rpc_url is required")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Ingest.StartLedger == 0 {
		return fmt.Errorf("ingest.start_ledger must be >= 1")
	}
	if c.Ingest.PrefetchDepth < 1 {
		return fmt.Errorf("ingest.prefetch_depth must be >= 1")
	}
	if c.API != nil && c.API.Enabled && c.API.ListenAddress == "" {
		return fmt.Errorf("api.listen_address is required when the API is enabled")
	}
	if c.Metrics != nil && c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		return fmt.Errorf("metrics.listen_address is required when metrics are enabled")
	}
	return nil
}

// SourceConfig represents the configuration for the chain event source.
type SourceConfig struct {
	// RPCURL is the chain RPC endpoint URL
	RPCURL string `yaml:"rpc_url" json:"rpc_url" toml:"rpc_url"`

	// ContractIDs are the contract addresses whose events are ingested
	// (the IPCM mapping contract and, optionally, the NFT contract)
	ContractIDs []string `yaml:"contract_ids" json:"contract_ids" toml:"contract_ids"`

	// RequestTimeout bounds a single RPC call
	RequestTimeout common.Duration `yaml:"request_timeout" json:"request_timeout" toml:"request_timeout"`

	// PageLimit is the maximum number of ledgers requested per RPC page
	PageLimit uint64 `yaml:"page_limit" json:"page_limit" toml:"page_limit"`

	// PollInterval is how long to wait for new ledgers once caught up to the tip
	PollInterval common.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	// Retry contains RPC retry configuration with exponential backoff
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`
}

// ApplyDefaults sets default values for optional source configuration fields.
func (s *SourceConfig) ApplyDefaults() {
	if s.RequestTimeout.Duration == 0 {
		s.RequestTimeout = common.NewDuration(15 * time.Second) //nolint:mnd
	}
	if s.PageLimit == 0 {
		s.PageLimit = 100
	}
	if s.PollInterval.Duration == 0 {
		s.PollInterval = common.NewDuration(5 * time.Second) //nolint:mnd
	}
	if s.Retry == nil {
		s.Retry = &RetryConfig{}
	}
	s.Retry.ApplyDefaults()
}

// RetryConfig represents retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts for a single call
	// (including the initial request). Zero means retry forever, which
	// is how the ingestion pipeline uses it while recovering.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before the first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// IngestConfig represents the configuration for the ingestion pipeline.
type IngestConfig struct {
	// StartLedger is the ledger sequence ingestion starts from on a
	// fresh database (the checkpoint takes precedence on restart)
	StartLedger uint64 `yaml:"start_ledger" json:"start_ledger" toml:"start_ledger"`

	// FinalityWindow is the number of trailing ledgers treated as
	// provisional and subject to reorg retraction
	FinalityWindow uint64 `yaml:"finality_window" json:"finality_window" toml:"finality_window"`

	// CatchupThreshold is the lag (in ledgers) behind the chain tip above
	// which the pipeline runs in catch-up mode
	CatchupThreshold uint64 `yaml:"catchup_threshold" json:"catchup_threshold" toml:"catchup_threshold"`

	// CatchupCheckpointEvery is how many ledgers are committed per
	// checkpoint advance while catching up (amortizes fsync cost)
	CatchupCheckpointEvery uint64 `yaml:"catchup_checkpoint_every" json:"catchup_checkpoint_every" toml:"catchup_checkpoint_every"`

	// PrefetchDepth bounds the number of fetched-but-uncommitted ledger
	// batches held in memory (backpressure on the source)
	PrefetchDepth int `yaml:"prefetch_depth" json:"prefetch_depth" toml:"prefetch_depth"`

	// RecoveryBackoff governs reconnect/rewrite retries on transient faults.
	// Retries never stop on their own; MaxBackoff caps the interval.
	RecoveryBackoff *RetryConfig `yaml:"recovery_backoff,omitempty" json:"recovery_backoff,omitempty" toml:"recovery_backoff,omitempty"`
}

// ApplyDefaults sets default values for optional ingest configuration fields.
func (i *IngestConfig) ApplyDefaults() {
	if i.StartLedger == 0 {
		i.StartLedger = 1
	}
	if i.FinalityWindow == 0 {
		i.FinalityWindow = 8
	}
	if i.CatchupThreshold == 0 {
		i.CatchupThreshold = 64
	}
	if i.CatchupCheckpointEvery == 0 {
		i.CatchupCheckpointEvery = 10
	}
	if i.PrefetchDepth == 0 {
		i.PrefetchDepth = 4
	}
	if i.RecoveryBackoff == nil {
		i.RecoveryBackoff = &RetryConfig{}
	}
	i.RecoveryBackoff.ApplyDefaults()
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	// WAL mode is recommended so readers never block the single writer
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
}

// APIConfig represents the query API server configuration.
type APIConfig struct {
	// Enabled controls whether the API server runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address the HTTP server binds to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// ReadTimeout/WriteTimeout/IdleTimeout are standard HTTP server timeouts
	ReadTimeout  common.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`
	WriteTimeout common.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`
	IdleTimeout  common.Duration `yaml:"idle_timeout" json:"idle_timeout" toml:"idle_timeout"`

	// QueryTimeout bounds a single query against the history store
	QueryTimeout common.Duration `yaml:"query_timeout" json:"query_timeout" toml:"query_timeout"`

	// DefaultPageSize and MaxPageSize bound history pagination
	DefaultPageSize int `yaml:"default_page_size" json:"default_page_size" toml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size" json:"max_page_size" toml:"max_page_size"`

	// CORS contains cross-origin resource sharing settings
	CORS CORSConfig `yaml:"cors" json:"cors" toml:"cors"`
}

// ApplyDefaults sets default values for optional API configuration fields.
func (a *APIConfig) ApplyDefaults() {
	if a.ListenAddress == "" {
		a.ListenAddress = ":8080"
	}
	if a.ReadTimeout.Duration == 0 {
		a.ReadTimeout = common.NewDuration(10 * time.Second) //nolint:mnd
	}
	if a.WriteTimeout.Duration == 0 {
		a.WriteTimeout = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if a.IdleTimeout.Duration == 0 {
		a.IdleTimeout = common.NewDuration(60 * time.Second) //nolint:mnd
	}
	if a.QueryTimeout.Duration == 0 {
		a.QueryTimeout = common.NewDuration(10 * time.Second) //nolint:mnd
	}
	if a.DefaultPageSize == 0 {
		a.DefaultPageSize = 100
	}
	if a.MaxPageSize == 0 {
		a.MaxPageSize = 1000
	}
}

// CORSConfig represents CORS settings for the API server.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled" toml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" toml:"allowed_origins"`
}

// MetricsConfig represents Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether the metrics server runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address the metrics HTTP server binds to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path the metrics are served on
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	// Level is the minimum level to log: "debug", "info", "warn", "error"
	Level string `yaml:"level" json:"level" toml:"level"`

	// Development enables console encoding and stack traces
	Development bool `yaml:"development" json:"development" toml:"development"`
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.Level == "" {
		l.Level = "info"
	}
}
