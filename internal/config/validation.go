package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	// Apply defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Solana.Commitment == "" {
		c.Solana.Commitment = string(rpc.CommitmentConfirmed)
	}
	switch strings.ToLower(c.Solana.Commitment) {
	case "processed", "confirmed", "finalized", "finalised":
	default:
		c.Solana.Commitment = string(rpc.CommitmentConfirmed)
	}

	// The faucet proxy targets the same cluster as everything else unless
	// pointed elsewhere explicitly.
	if c.Airdrop.FaucetURL == "" {
		c.Airdrop.FaucetURL = c.Solana.RPCURL
	}
	if c.Airdrop.Lamports == 0 {
		c.Airdrop.Lamports = 5_000_000_000
	}
	if c.Airdrop.RateLimit <= 0 {
		c.Airdrop.RateLimit = 1
	}
	if c.Airdrop.RateWindow.Duration <= 0 {
		c.Airdrop.RateWindow = Duration{Duration: 1 * time.Minute}
	}

	if c.Search.UpstreamURL == "" {
		c.Search.UpstreamURL = "https://search1.jup.ag/multi_search"
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Storage.RetentionPeriod.Duration <= 0 {
		c.Storage.RetentionPeriod = Duration{Duration: 30 * 24 * time.Hour}
	}
	if c.Storage.CleanupInterval.Duration <= 0 {
		c.Storage.CleanupInterval = Duration{Duration: 1 * time.Hour}
	}

	if c.Callbacks.Timeout.Duration == 0 {
		c.Callbacks.Timeout = Duration{Duration: 3 * time.Second}
	}
	if c.Callbacks.Headers == nil {
		c.Callbacks.Headers = make(map[string]string)
	}
	if c.Monitoring.LowBalanceThreshold <= 0 {
		c.Monitoring.LowBalanceThreshold = 0.05
	}
	if c.Monitoring.CheckInterval.Duration <= 0 {
		c.Monitoring.CheckInterval = Duration{Duration: 15 * time.Minute}
	}
	if c.Monitoring.Timeout.Duration <= 0 {
		c.Monitoring.Timeout = Duration{Duration: 5 * time.Second}
	}
	if c.Monitoring.Headers == nil {
		c.Monitoring.Headers = make(map[string]string)
	}

	return c.validate()
}

// validate checks that required configuration fields are set correctly.
func (c *Config) validate() error {
	var errs []string

	// Solana validation
	if c.Solana.RPCURL == "" {
		errs = append(errs, "solana.rpc_url is required")
	}

	// Auto-derive WebSocket URL if not set
	if c.Solana.WSURL == "" && c.Solana.RPCURL != "" {
		wsURL, err := deriveWebsocketURL(c.Solana.RPCURL)
		if err != nil {
			errs = append(errs, fmt.Sprintf("derive websocket url: %v", err))
		} else {
			c.Solana.WSURL = wsURL
		}
	}

	// Stake validation
	if c.Stake.PoolAddress == "" {
		errs = append(errs, "stake.pool_address is required")
	} else if _, err := solana.PublicKeyFromBase58(c.Stake.PoolAddress); err != nil {
		errs = append(errs, fmt.Sprintf("stake.pool_address is not a valid base58 public key: %v", err))
	}
	if c.Stake.RewardMint == "" {
		errs = append(errs, "stake.reward_mint is required")
	} else if _, err := solana.PublicKeyFromBase58(c.Stake.RewardMint); err != nil {
		errs = append(errs, fmt.Sprintf("stake.reward_mint is not a valid base58 public key: %v", err))
	}
	if c.Stake.ServiceWalletKey == "" {
		errs = append(errs, "stake service wallet (XOLANA_SERVICE_WALLET) is required")
	}

	// Storage validation
	switch c.Storage.Backend {
	case "memory", "file":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			errs = append(errs, "storage.postgres_url is required when storage.backend is 'postgres'")
		}
	case "mongodb":
		if c.Storage.MongoDBURL == "" {
			errs = append(errs, "storage.mongodb_url is required when storage.backend is 'mongodb'")
		}
		if c.Storage.MongoDBDatabase == "" {
			errs = append(errs, "storage.mongodb_database is required when storage.backend is 'mongodb'")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.backend %q is not supported (use memory, file, postgres, or mongodb)", c.Storage.Backend))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// deriveWebsocketURL converts an HTTP(S) RPC URL to WS(S) format.
func deriveWebsocketURL(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("rpc url empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
		return raw, nil
	case "":
		return "", errors.New("rpc url missing scheme")
	default:
		return "", fmt.Errorf("unsupported rpc url scheme %q", u.Scheme)
	}
	return u.String(), nil
}
