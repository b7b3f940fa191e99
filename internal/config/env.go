package config

import (
	"fmt"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration.
// All env vars use XOLANA_ prefix for namespace isolation; a handful of
// legacy names from the original Node deployment are honored as fallbacks.
func (c *Config) applyEnvOverrides() {
	// Server config
	setIfEnv(&c.Server.Address, "XOLANA_SERVER_ADDRESS")
	setIfEnv(&c.Server.AdminMetricsAPIKey, "XOLANA_ADMIN_METRICS_KEY")
	if v := os.Getenv("XOLANA_CORS_ALLOWED_ORIGINS"); v != "" {
		c.Server.CORSAllowedOrigins = splitAndTrim(v)
	} else if v := os.Getenv("VITE_FRONTEND_URL"); v != "" {
		// Legacy deployment variable naming the frontend origin
		c.Server.CORSAllowedOrigins = []string{strings.TrimSpace(v)}
	}

	// Solana config
	setIfEnv(&c.Solana.RPCURL, "XOLANA_SOLANA_RPC_URL")
	setIfEnv(&c.Solana.WSURL, "XOLANA_SOLANA_WS_URL")
	setIfEnv(&c.Solana.Network, "XOLANA_SOLANA_NETWORK")
	setIfEnv(&c.Solana.Commitment, "XOLANA_SOLANA_COMMITMENT")
	setBoolIfEnv(&c.Solana.SkipPreflight, "XOLANA_SOLANA_SKIP_PREFLIGHT")

	// Stake config (service wallet secret comes from env only, never YAML)
	setIfEnv(&c.Stake.PoolAddress, "XOLANA_STAKE_POOL_ADDRESS")
	setIfEnv(&c.Stake.RewardMint, "XOLANA_STAKE_REWARD_MINT")
	setIfEnv(&c.Stake.ServiceWalletKey, "XOLANA_SERVICE_WALLET")
	if v := os.Getenv("XOLANA_STAKE_REWARD_DECIMALS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil {
			c.Stake.RewardDecimals = uint8(n)
		}
	}

	// Webhook config
	setIfEnv(&c.Webhook.AuthToken, "XOLANA_WEBHOOK_AUTH_TOKEN")

	// Airdrop config
	setIfEnv(&c.Airdrop.FaucetURL, "XOLANA_AIRDROP_FAUCET_URL")
	if c.Airdrop.FaucetURL == "" {
		// Legacy deployment variable pointing at the devnet RPC endpoint
		setIfEnv(&c.Airdrop.FaucetURL, "VITE_API_URL")
	}
	if v := os.Getenv("XOLANA_AIRDROP_LAMPORTS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Airdrop.Lamports = n
		}
	}
	if v := os.Getenv("XOLANA_AIRDROP_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Airdrop.RateLimit = n
		}
	}
	setDurationIfEnv(&c.Airdrop.RateWindow, "XOLANA_AIRDROP_RATE_WINDOW")

	// Search config
	setIfEnv(&c.Search.UpstreamURL, "XOLANA_SEARCH_UPSTREAM_URL")
	setDurationIfEnv(&c.Search.CacheTTL, "XOLANA_SEARCH_CACHE_TTL")

	// Storage config
	setIfEnv(&c.Storage.Backend, "XOLANA_STORAGE_BACKEND")
	setIfEnv(&c.Storage.PostgresURL, "XOLANA_STORAGE_POSTGRES_URL")
	setIfEnv(&c.Storage.PostgresTableName, "XOLANA_STORAGE_POSTGRES_TABLE")
	setIfEnv(&c.Storage.MongoDBURL, "XOLANA_STORAGE_MONGODB_URL")
	setIfEnv(&c.Storage.MongoDBDatabase, "XOLANA_STORAGE_MONGODB_DATABASE")
	setIfEnv(&c.Storage.MongoDBCollection, "XOLANA_STORAGE_MONGODB_COLLECTION")
	setIfEnv(&c.Storage.FilePath, "XOLANA_STORAGE_FILE_PATH")
	setDurationIfEnv(&c.Storage.RetentionPeriod, "XOLANA_STORAGE_RETENTION_PERIOD")
	setDurationIfEnv(&c.Storage.CleanupInterval, "XOLANA_STORAGE_CLEANUP_INTERVAL")

	// Callbacks config
	setIfEnv(&c.Callbacks.MintSuccessURL, "XOLANA_CALLBACK_MINT_SUCCESS_URL")
	setDurationIfEnv(&c.Callbacks.Timeout, "XOLANA_CALLBACK_TIMEOUT")
	loadHeaderEnv(&c.Callbacks.Headers, "XOLANA_CALLBACK_HEADER_")

	// Monitoring config
	setIfEnv(&c.Monitoring.LowBalanceAlertURL, "XOLANA_MONITORING_LOW_BALANCE_ALERT_URL")
	if v := os.Getenv("XOLANA_MONITORING_LOW_BALANCE_THRESHOLD"); v != "" {
		var threshold float64
		if _, err := fmt.Sscanf(v, "%f", &threshold); err == nil {
			c.Monitoring.LowBalanceThreshold = threshold
		}
	}
	setDurationIfEnv(&c.Monitoring.CheckInterval, "XOLANA_MONITORING_CHECK_INTERVAL")
	setDurationIfEnv(&c.Monitoring.Timeout, "XOLANA_MONITORING_TIMEOUT")
	loadHeaderEnv(&c.Monitoring.Headers, "XOLANA_MONITORING_HEADER_")

	// Logging config
	setIfEnv(&c.Logging.Level, "XOLANA_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "XOLANA_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "XOLANA_ENVIRONMENT")
}

// setIfEnv sets a string pointer to the environment variable value if it exists.
func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv sets a boolean pointer from an environment variable.
// Accepts "1", "true", "TRUE", "True" as true values.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

// setDurationIfEnv sets a Duration pointer from an environment variable.
// Uses time.ParseDuration to parse values like "5m", "120s", "1h30m".
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

// loadHeaderEnv collects HTTP headers from environment variables with the
// given prefix. XOLANA_CALLBACK_HEADER_X_API_KEY=secret -> "X-Api-Key: secret".
func loadHeaderEnv(target *map[string]string, prefix string) {
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimPrefix(parts[0], prefix)
		if name == "" {
			continue
		}
		if *target == nil {
			*target = make(map[string]string)
		}
		headerName := textproto.CanonicalMIMEHeaderKey(strings.ReplaceAll(name, "_", "-"))
		(*target)[headerName] = parts[1]
	}
}

// splitAndTrim splits a comma-separated list and trims whitespace from each entry.
func splitAndTrim(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
