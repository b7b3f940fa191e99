package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/coderomm/Xolana/internal/config"
	"github.com/coderomm/Xolana/internal/metrics"
)

// Config holds rate limiting configuration.
type Config struct {
	// Global rate limiting (across all users)
	GlobalEnabled bool
	GlobalLimit   int           // requests per window
	GlobalWindow  time.Duration // time window

	// Per-wallet rate limiting (identified by wallet address)
	PerWalletEnabled bool
	PerWalletLimit   int
	PerWalletWindow  time.Duration

	// Per-IP rate limiting (fallback when wallet not identified)
	PerIPEnabled bool
	PerIPLimit   int
	PerIPWindow  time.Duration

	// Metrics collector (optional)
	Metrics *metrics.Metrics
}

// rateLimitResponse represents the JSON error response for rate limit exceeded.
type rateLimitResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// DefaultConfig returns sensible default rate limits. These stop obvious
// spam without restricting legitimate dApp use.
func DefaultConfig() Config {
	return Config{
		GlobalEnabled: true,
		GlobalLimit:   1000,
		GlobalWindow:  1 * time.Minute,

		PerWalletEnabled: true,
		PerWalletLimit:   60,
		PerWalletWindow:  1 * time.Minute,

		PerIPEnabled: true,
		PerIPLimit:   120,
		PerIPWindow:  1 * time.Minute,
	}
}

// FromConfig maps file configuration onto limiter settings, keeping defaults
// for anything unset.
func FromConfig(cfg config.RateLimitConfig, metricsCollector *metrics.Metrics) Config {
	c := DefaultConfig()
	c.GlobalEnabled = cfg.GlobalEnabled
	c.PerWalletEnabled = cfg.PerWalletEnabled
	c.PerIPEnabled = cfg.PerIPEnabled
	if cfg.GlobalLimit > 0 {
		c.GlobalLimit = cfg.GlobalLimit
	}
	if cfg.GlobalWindow.Duration > 0 {
		c.GlobalWindow = cfg.GlobalWindow.Duration
	}
	if cfg.PerWalletLimit > 0 {
		c.PerWalletLimit = cfg.PerWalletLimit
	}
	if cfg.PerWalletWindow.Duration > 0 {
		c.PerWalletWindow = cfg.PerWalletWindow.Duration
	}
	if cfg.PerIPLimit > 0 {
		c.PerIPLimit = cfg.PerIPLimit
	}
	if cfg.PerIPWindow.Duration > 0 {
		c.PerIPWindow = cfg.PerIPWindow.Duration
	}
	c.Metrics = metricsCollector
	return c
}

// createRateLimitHandler creates a standardized rate limit handler function
// shared by the global, per-wallet, per-IP, and airdrop limiters.
func createRateLimitHandler(
	limitType string,
	windowSeconds int,
	extractIdentifier func(*http.Request) string,
	metricsCollector *metrics.Metrics,
) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		identifier := "all"
		if extractIdentifier != nil {
			if id := extractIdentifier(r); id != "" {
				identifier = id
			}
		}

		if metricsCollector != nil {
			metricsCollector.ObserveRateLimit(limitType, identifier)
		}

		var message string
		switch limitType {
		case "global":
			message = "Global rate limit exceeded. Please try again later."
		case "per_wallet":
			message = "Rate limit exceeded for this wallet. Please try again later."
		case "per_ip":
			message = "IP rate limit exceeded. Please try again later."
		case "airdrop_ip":
			message = "Airdrop limit reached for this IP. Please try again later."
		default:
			message = "Rate limit exceeded. Please try again later."
		}

		response := rateLimitResponse{
			Error:             "rate_limit_exceeded",
			Message:           message,
			RetryAfterSeconds: windowSeconds,
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", fmt.Sprintf("%d", windowSeconds))
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(response)
	}
}

// GlobalLimiter creates a global rate limiter middleware.
func GlobalLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.GlobalEnabled {
		return passthrough
	}

	return httprate.Limit(
		cfg.GlobalLimit,
		cfg.GlobalWindow,
		httprate.WithLimitHandler(
			createRateLimitHandler("global", int(cfg.GlobalWindow.Seconds()), nil, cfg.Metrics),
		),
	)
}

// WalletLimiter creates a per-wallet rate limiter middleware. Requests that
// carry no wallet identity fall back to IP keying.
func WalletLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.PerWalletEnabled {
		return passthrough
	}

	return httprate.Limit(
		cfg.PerWalletLimit,
		cfg.PerWalletWindow,
		httprate.WithKeyFuncs(walletKeyExtractor),
		httprate.WithLimitHandler(
			createRateLimitHandler("per_wallet", int(cfg.PerWalletWindow.Seconds()), extractWalletFromRequest, cfg.Metrics),
		),
	)
}

// IPLimiter creates a per-IP rate limiter middleware (fallback).
func IPLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.PerIPEnabled {
		return passthrough
	}

	return httprate.Limit(
		cfg.PerIPLimit,
		cfg.PerIPWindow,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(
			createRateLimitHandler("per_ip", int(cfg.PerIPWindow.Seconds()), func(r *http.Request) string { return r.RemoteAddr }, cfg.Metrics),
		),
	)
}

// AirdropLimiter creates the strict per-IP limiter for the faucet proxy
// route. Defaults to one request per minute per IP.
func AirdropLimiter(cfg config.AirdropConfig, metricsCollector *metrics.Metrics) func(http.Handler) http.Handler {
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 1
	}
	window := cfg.RateWindow.Duration
	if window <= 0 {
		window = 1 * time.Minute
	}

	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(
			createRateLimitHandler("airdrop_ip", int(window.Seconds()), func(r *http.Request) string { return r.RemoteAddr }, metricsCollector),
		),
	)
}

func passthrough(next http.Handler) http.Handler {
	return next
}

// walletKeyExtractor is a httprate.KeyFunc that extracts the wallet address
// from the request, falling back to the client IP.
func walletKeyExtractor(r *http.Request) (string, error) {
	wallet := extractWalletFromRequest(r)
	if wallet == "" {
		return httprate.KeyByIP(r)
	}
	return "wallet:" + wallet, nil
}

// extractWalletFromRequest attempts to extract a wallet address from cheap
// request sources. Body parsing is deliberately avoided on the rate limit
// path.
func extractWalletFromRequest(r *http.Request) string {
	if wallet := r.Header.Get("X-Wallet"); wallet != "" {
		return wallet
	}
	if wallet := r.URL.Query().Get("wallet"); wallet != "" {
		return wallet
	}
	return ""
}
