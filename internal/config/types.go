package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Solana         SolanaConfig         `yaml:"solana"`
	Stake          StakeConfig          `yaml:"stake"`
	Webhook        WebhookConfig        `yaml:"webhook"`
	Airdrop        AirdropConfig        `yaml:"airdrop"`
	Search         SearchConfig         `yaml:"search"`
	Storage        StorageConfig        `yaml:"storage"`
	Callbacks      CallbacksConfig      `yaml:"callbacks"`
	Monitoring     MonitoringConfig     `yaml:"monitoring"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address              string   `yaml:"address"`
	ReadTimeout          Duration `yaml:"read_timeout"`
	WriteTimeout         Duration `yaml:"write_timeout"`
	IdleTimeout          Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins   []string `yaml:"cors_allowed_origins"`
	CORSAllowCredentials bool     `yaml:"cors_allow_credentials"`
	AdminMetricsAPIKey   string   `yaml:"-"` // Loaded from env (XOLANA_ADMIN_METRICS_KEY); empty leaves /metrics open
}

// SolanaConfig holds cluster connectivity configuration.
type SolanaConfig struct {
	RPCURL        string `yaml:"rpc_url"`
	WSURL         string `yaml:"ws_url"`
	Network       string `yaml:"network"`    // devnet | testnet | mainnet-beta
	Commitment    string `yaml:"commitment"` // processed | confirmed | finalized
	SkipPreflight bool   `yaml:"skip_preflight"`
}

// StakeConfig holds the liquid staking configuration: the pool that receives
// SOL deposits and the Token-2022 mint that is credited back to stakers.
type StakeConfig struct {
	PoolAddress      string `yaml:"pool_address"`
	RewardMint       string `yaml:"reward_mint"`
	RewardDecimals   uint8  `yaml:"reward_decimals"`
	ServiceWalletKey string `yaml:"-"` // Loaded from env (XOLANA_SERVICE_WALLET); holds mint authority
}

// WebhookConfig holds inbound transaction-notification settings.
type WebhookConfig struct {
	AuthToken string `yaml:"-"` // Loaded from env (XOLANA_WEBHOOK_AUTH_TOKEN); empty disables auth
}

// AirdropConfig holds the devnet faucet proxy configuration.
type AirdropConfig struct {
	FaucetURL  string   `yaml:"faucet_url"`
	Lamports   uint64   `yaml:"lamports"`    // Amount requested per airdrop
	RateLimit  int      `yaml:"rate_limit"`  // Requests allowed per IP per window
	RateWindow Duration `yaml:"rate_window"` // Window for the airdrop limiter
}

// SearchConfig holds the token search relay configuration.
type SearchConfig struct {
	UpstreamURL string   `yaml:"upstream_url"`
	CacheTTL    Duration `yaml:"cache_ttl"` // How long search responses are cached (0 = no cache)
}

// StorageConfig holds the processed-stake store configuration.
type StorageConfig struct {
	Backend           string   `yaml:"backend"` // "memory", "postgres", "mongodb", or "file"
	PostgresURL       string   `yaml:"postgres_url"`
	PostgresTableName string   `yaml:"postgres_table_name"`
	MongoDBURL        string   `yaml:"mongodb_url"`
	MongoDBDatabase   string   `yaml:"mongodb_database"`
	MongoDBCollection string   `yaml:"mongodb_collection"`
	FilePath          string   `yaml:"file_path"`
	RetentionPeriod   Duration `yaml:"retention_period"` // How long processed signatures are kept
	CleanupInterval   Duration `yaml:"cleanup_interval"`
}

// CallbacksConfig holds outbound mint-success notification configuration.
type CallbacksConfig struct {
	MintSuccessURL string            `yaml:"mint_success_url"`
	Headers        map[string]string `yaml:"headers"`
	Timeout        Duration          `yaml:"timeout"`
	Retry          RetryConfig       `yaml:"retry"`
	DLQEnabled     bool              `yaml:"dlq_enabled"`
	DLQPath        string            `yaml:"dlq_path"`
}

// RetryConfig holds callback retry configuration.
type RetryConfig struct {
	Enabled         bool     `yaml:"enabled"`
	MaxAttempts     int      `yaml:"max_attempts"`
	InitialInterval Duration `yaml:"initial_interval"`
	MaxInterval     Duration `yaml:"max_interval"`
	Multiplier      float64  `yaml:"multiplier"`
}

// MonitoringConfig holds service wallet balance monitoring configuration.
type MonitoringConfig struct {
	LowBalanceAlertURL  string            `yaml:"low_balance_alert_url"`
	LowBalanceThreshold float64           `yaml:"low_balance_threshold"` // SOL threshold to trigger alert
	CheckInterval       Duration          `yaml:"check_interval"`
	Headers             map[string]string `yaml:"headers"`
	Timeout             Duration          `yaml:"timeout"`
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Format      string `yaml:"format"`      // json, console (default: json)
	Environment string `yaml:"environment"` // production, staging, development
}

// RateLimitConfig holds rate limiting configuration for the whole API surface.
// The airdrop route additionally has its own strict fixed-window limiter (AirdropConfig).
type RateLimitConfig struct {
	GlobalEnabled bool     `yaml:"global_enabled"`
	GlobalLimit   int      `yaml:"global_limit"`
	GlobalWindow  Duration `yaml:"global_window"`

	PerWalletEnabled bool     `yaml:"per_wallet_enabled"`
	PerWalletLimit   int      `yaml:"per_wallet_limit"`
	PerWalletWindow  Duration `yaml:"per_wallet_window"`

	PerIPEnabled bool     `yaml:"per_ip_enabled"`
	PerIPLimit   int      `yaml:"per_ip_limit"`
	PerIPWindow  Duration `yaml:"per_ip_window"`
}

// CircuitBreakerConfig holds circuit breaker configuration for external services.
type CircuitBreakerConfig struct {
	Enabled   bool                 `yaml:"enabled"`
	SolanaRPC BreakerServiceConfig `yaml:"solana_rpc"`
	Faucet    BreakerServiceConfig `yaml:"faucet"`
	Search    BreakerServiceConfig `yaml:"search"`
}

// BreakerServiceConfig configures a circuit breaker for a specific external service.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`
	Interval            Duration `yaml:"interval"`
	Timeout             Duration `yaml:"timeout"`
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"`
	FailureRatio        float64  `yaml:"failure_ratio"`
	MinRequests         uint32   `yaml:"min_requests"`
}
