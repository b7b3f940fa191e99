package config

import (
	"os"
	"testing"
	"time"
)

func TestEnvOverrides_ServerConfig(t *testing.T) {
	defer os.Clearenv()

	tests := []struct {
		name      string
		envVars   map[string]string
		checkFunc func(*testing.T, *Config)
	}{
		{
			name: "XOLANA_SERVER_ADDRESS overrides default",
			envVars: map[string]string{
				"XOLANA_SERVER_ADDRESS": ":3000",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Server.Address != ":3000" {
					t.Errorf("Expected :3000, got %s", cfg.Server.Address)
				}
			},
		},
		{
			name: "XOLANA_CORS_ALLOWED_ORIGINS splits comma list",
			envVars: map[string]string{
				"XOLANA_CORS_ALLOWED_ORIGINS": "https://app.xolana.io, http://localhost:5173",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if len(cfg.Server.CORSAllowedOrigins) != 2 {
					t.Fatalf("Expected 2 origins, got %v", cfg.Server.CORSAllowedOrigins)
				}
				if cfg.Server.CORSAllowedOrigins[1] != "http://localhost:5173" {
					t.Errorf("Expected trimmed origin, got %q", cfg.Server.CORSAllowedOrigins[1])
				}
			},
		},
		{
			name: "VITE_FRONTEND_URL fallback sets single origin",
			envVars: map[string]string{
				"VITE_FRONTEND_URL": "https://xolana.vercel.app",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if len(cfg.Server.CORSAllowedOrigins) != 1 || cfg.Server.CORSAllowedOrigins[0] != "https://xolana.vercel.app" {
					t.Errorf("Expected legacy origin, got %v", cfg.Server.CORSAllowedOrigins)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg := defaultConfig()
			cfg.applyEnvOverrides()
			tt.checkFunc(t, cfg)
		})
	}
}

func TestEnvOverrides_SolanaConfig(t *testing.T) {
	defer os.Clearenv()

	tests := []struct {
		name      string
		envVars   map[string]string
		checkFunc func(*testing.T, *Config)
	}{
		{
			name: "XOLANA_SOLANA_RPC_URL override",
			envVars: map[string]string{
				"XOLANA_SOLANA_RPC_URL": "https://custom-rpc.solana.com",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Solana.RPCURL != "https://custom-rpc.solana.com" {
					t.Errorf("Expected custom RPC URL, got %s", cfg.Solana.RPCURL)
				}
			},
		},
		{
			name: "XOLANA_SOLANA_SKIP_PREFLIGHT boolean (true)",
			envVars: map[string]string{
				"XOLANA_SOLANA_SKIP_PREFLIGHT": "true",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if !cfg.Solana.SkipPreflight {
					t.Error("Expected SkipPreflight to be true")
				}
			},
		},
		{
			name: "XOLANA_SOLANA_SKIP_PREFLIGHT boolean (1)",
			envVars: map[string]string{
				"XOLANA_SOLANA_SKIP_PREFLIGHT": "1",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if !cfg.Solana.SkipPreflight {
					t.Error("Expected SkipPreflight to be true with '1'")
				}
			},
		},
		{
			name: "XOLANA_SERVICE_WALLET never read from yaml tag",
			envVars: map[string]string{
				"XOLANA_SERVICE_WALLET": "base58secret",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Stake.ServiceWalletKey != "base58secret" {
					t.Errorf("Expected wallet secret from env, got %q", cfg.Stake.ServiceWalletKey)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg := defaultConfig()
			cfg.applyEnvOverrides()
			tt.checkFunc(t, cfg)
		})
	}
}

func TestEnvOverrides_AirdropConfig(t *testing.T) {
	defer os.Clearenv()

	tests := []struct {
		name      string
		envVars   map[string]string
		checkFunc func(*testing.T, *Config)
	}{
		{
			name: "XOLANA_AIRDROP_RATE_WINDOW duration override",
			envVars: map[string]string{
				"XOLANA_AIRDROP_RATE_WINDOW": "120s",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Airdrop.RateWindow.Duration != 120*time.Second {
					t.Errorf("Expected 120s, got %v", cfg.Airdrop.RateWindow.Duration)
				}
			},
		},
		{
			name: "XOLANA_AIRDROP_LAMPORTS override",
			envVars: map[string]string{
				"XOLANA_AIRDROP_LAMPORTS": "2000000000",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Airdrop.Lamports != 2_000_000_000 {
					t.Errorf("Expected 2 SOL, got %d lamports", cfg.Airdrop.Lamports)
				}
			},
		},
		{
			name: "XOLANA_AIRDROP_FAUCET_URL takes precedence over VITE_API_URL",
			envVars: map[string]string{
				"XOLANA_AIRDROP_FAUCET_URL": "https://faucet.example.com",
				"VITE_API_URL":              "https://legacy.example.com",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Airdrop.FaucetURL != "https://faucet.example.com" {
					t.Errorf("Expected XOLANA_ var to win, got %s", cfg.Airdrop.FaucetURL)
				}
			},
		},
		{
			name: "VITE_API_URL fallback when no XOLANA_ var set",
			envVars: map[string]string{
				"VITE_API_URL": "https://legacy.example.com",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Airdrop.FaucetURL != "https://legacy.example.com" {
					t.Errorf("Expected legacy fallback, got %s", cfg.Airdrop.FaucetURL)
				}
			},
		},
		{
			name: "invalid lamports value is ignored",
			envVars: map[string]string{
				"XOLANA_AIRDROP_LAMPORTS": "not-a-number",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Airdrop.Lamports != 5_000_000_000 {
					t.Errorf("Expected default to survive bad env value, got %d", cfg.Airdrop.Lamports)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg := defaultConfig()
			cfg.applyEnvOverrides()
			tt.checkFunc(t, cfg)
		})
	}
}

func TestEnvOverrides_CallbackHeaders(t *testing.T) {
	defer os.Clearenv()

	os.Setenv("XOLANA_CALLBACK_HEADER_AUTHORIZATION", "Bearer token123")
	os.Setenv("XOLANA_CALLBACK_HEADER_X_API_KEY", "api-key-456")

	cfg := defaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Callbacks.Headers["Authorization"] != "Bearer token123" {
		t.Errorf("Expected Authorization header to be set, got %v", cfg.Callbacks.Headers)
	}

	if cfg.Callbacks.Headers["X-Api-Key"] != "api-key-456" {
		t.Errorf("Expected X-Api-Key header to be set, got %v", cfg.Callbacks.Headers)
	}
}

func TestEnvOverrides_StorageConfig(t *testing.T) {
	defer os.Clearenv()

	os.Setenv("XOLANA_STORAGE_BACKEND", "mongodb")
	os.Setenv("XOLANA_STORAGE_MONGODB_URL", "mongodb://localhost:27017")
	os.Setenv("XOLANA_STORAGE_MONGODB_DATABASE", "xolana")
	os.Setenv("XOLANA_STORAGE_RETENTION_PERIOD", "72h")

	cfg := defaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Storage.Backend != "mongodb" {
		t.Errorf("Expected mongodb backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Storage.MongoDBURL != "mongodb://localhost:27017" {
		t.Errorf("Expected mongodb URL, got %s", cfg.Storage.MongoDBURL)
	}
	if cfg.Storage.RetentionPeriod.Duration != 72*time.Hour {
		t.Errorf("Expected 72h retention, got %v", cfg.Storage.RetentionPeriod.Duration)
	}
}
