package solana

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"github.com/coderomm/Xolana/internal/cacheutil"
	"github.com/coderomm/Xolana/internal/circuitbreaker"
	"github.com/coderomm/Xolana/internal/config"
	"github.com/coderomm/Xolana/internal/metrics"
	"github.com/coderomm/Xolana/internal/rpcutil"
)

const (
	// Blockhashes stay valid for ~150 slots; a short cache keeps bursts of
	// transaction builds from hammering the RPC without risking staleness.
	blockhashCacheTTL = 1 * time.Second

	// Solana blockhashes expire after ~150 slots (~60s). Polling past that
	// point cannot succeed for a transaction that was never seen.
	blockhashValidityWindow = 60 * time.Second

	rpcPollInterval = 2 * time.Second
)

// Client wraps the Solana RPC and WebSocket clients with retry, circuit
// breaker, and metrics instrumentation, plus a short-lived blockhash cache.
type Client struct {
	rpcClient     *rpc.Client
	wsClient      *ws.Client
	network       string
	commitment    rpc.CommitmentType
	skipPreflight bool

	breakers *circuitbreaker.Manager
	metrics  *metrics.Metrics

	mu              sync.RWMutex
	cachedBlockhash cacheutil.CachedValue[solana.Hash]
}

// ClientOption customizes the client.
type ClientOption func(*Client)

// WithBreakers sets the circuit breaker manager for RPC calls.
func WithBreakers(m *circuitbreaker.Manager) ClientOption {
	return func(c *Client) {
		c.breakers = m
	}
}

// WithMetrics sets the metrics collector for RPC instrumentation.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient connects to the configured cluster. The WebSocket connection is
// established eagerly so confirmation subscriptions are ready before the
// first mint.
func NewClient(ctx context.Context, cfg config.SolanaConfig, opts ...ClientOption) (*Client, error) {
	wsClient, err := ws.Connect(ctx, cfg.WSURL)
	if err != nil {
		return nil, fmt.Errorf("connect websocket %s: %w", cfg.WSURL, err)
	}

	c := &Client{
		rpcClient:     rpc.New(cfg.RPCURL),
		wsClient:      wsClient,
		network:       cfg.Network,
		commitment:    commitmentFromString(cfg.Commitment),
		skipPreflight: cfg.SkipPreflight,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close shuts down the WebSocket connection.
func (c *Client) Close() error {
	if c.wsClient != nil {
		c.wsClient.Close()
	}
	return nil
}

// Network returns the configured cluster name.
func (c *Client) Network() string {
	return c.network
}

// Commitment returns the configured commitment level.
func (c *Client) Commitment() rpc.CommitmentType {
	return c.commitment
}

// LatestBlockhash returns a recent blockhash, served from a short-lived cache.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	return cacheutil.ReadThrough(
		&c.mu,
		func(now time.Time) (solana.Hash, bool) {
			if !c.cachedBlockhash.FetchedAt.IsZero() && now.Sub(c.cachedBlockhash.FetchedAt) < blockhashCacheTTL {
				return c.cachedBlockhash.Value, true
			}
			return solana.Hash{}, false
		},
		func(now time.Time) (solana.Hash, error) {
			result, err := c.observeRPC(ctx, "GetLatestBlockhash", func() (interface{}, error) {
				return rpcutil.WithRetry(ctx, func() (*rpc.GetLatestBlockhashResult, error) {
					return c.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
				})
			})
			if err != nil {
				return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
			}
			hash := result.(*rpc.GetLatestBlockhashResult).Value.Blockhash
			c.cachedBlockhash = cacheutil.CachedValue[solana.Hash]{Value: hash, FetchedAt: now}
			return hash, nil
		},
	)
}

// AccountExists reports whether the given account is present on-chain.
func (c *Client) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	result, err := c.observeRPC(ctx, "GetAccountInfo", func() (interface{}, error) {
		out, err := rpcutil.WithRetry(ctx, func() (*rpc.GetAccountInfoResult, error) {
			return c.rpcClient.GetAccountInfo(ctx, account)
		})
		if err != nil {
			// Absence is a valid answer, not an RPC failure; keep it out of
			// the circuit breaker's failure counts.
			if errors.Is(err, rpc.ErrNotFound) {
				return false, nil
			}
			return nil, err
		}
		return out != nil && out.Value != nil, nil
	})
	if err != nil {
		return false, fmt.Errorf("get account info: %w", err)
	}
	return result.(bool), nil
}

// Balance returns the lamport balance of the given account.
func (c *Client) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	result, err := c.observeRPC(ctx, "GetBalance", func() (interface{}, error) {
		return rpcutil.WithRetry(ctx, func() (*rpc.GetBalanceResult, error) {
			return c.rpcClient.GetBalance(ctx, account, c.commitment)
		})
	})
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return result.(*rpc.GetBalanceResult).Value, nil
}

// SendAndConfirm submits a signed transaction and waits for it to reach the
// configured commitment level.
func (c *Client) SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	result, err := c.observeRPC(ctx, "SendTransaction", func() (interface{}, error) {
		return c.rpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       c.skipPreflight,
			PreflightCommitment: c.commitment,
		})
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	sig := result.(solana.Signature)

	if err := c.awaitConfirmation(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

// awaitConfirmation waits for transaction confirmation using WebSocket (fast)
// or RPC polling (fallback).
func (c *Client) awaitConfirmation(ctx context.Context, signature solana.Signature) error {
	err := c.awaitConfirmationViaWebSocket(ctx, signature)
	if err == nil {
		return nil
	}

	// WebSocket failed - fall back to RPC polling to check whether the
	// transaction actually landed. A broken WS connection must not make us
	// report a successful mint as failed.
	return c.awaitConfirmationViaRPC(ctx, signature)
}

// awaitConfirmationViaWebSocket uses WebSocket subscription for fast confirmation.
func (c *Client) awaitConfirmationViaWebSocket(ctx context.Context, signature solana.Signature) error {
	sub, err := c.wsClient.SignatureSubscribe(signature, c.commitment)
	if err != nil {
		return fmt.Errorf("subscribe signature: %w", err)
	}
	defer sub.Unsubscribe()

	res, err := sub.Recv(ctx)
	if err != nil {
		return fmt.Errorf("wait confirmation: %w", err)
	}
	if res == nil {
		return errors.New("empty confirmation result")
	}
	if res.Value.Err != nil {
		return fmt.Errorf("transaction error: %v", res.Value.Err)
	}
	return nil
}

// awaitConfirmationViaRPC polls the RPC to check transaction status.
func (c *Client) awaitConfirmationViaRPC(ctx context.Context, signature solana.Signature) error {
	ticker := time.NewTicker(rpcPollInterval)
	defer ticker.Stop()

	maxValidTime := time.Now().Add(blockhashValidityWindow)

	for {
		select {
		case <-ctx.Done():
			// Context timeout - but still check one last time
			return c.checkTransactionStatus(ctx, signature)
		case <-ticker.C:
			if time.Now().After(maxValidTime) {
				err := c.checkTransactionStatus(ctx, signature)
				if err == nil {
					return nil
				}
				return errors.New("transaction not found within blockhash validity period (likely dropped)")
			}

			err := c.checkTransactionStatus(ctx, signature)
			if err == nil {
				return nil
			}

			if isTransactionPendingError(err) {
				continue
			}

			return err
		}
	}
}

// checkTransactionStatus checks if a transaction is confirmed via RPC.
func (c *Client) checkTransactionStatus(ctx context.Context, signature solana.Signature) error {
	result, err := c.observeRPC(ctx, "GetSignatureStatuses", func() (interface{}, error) {
		return c.rpcClient.GetSignatureStatuses(ctx, true, signature)
	})
	if err != nil {
		return fmt.Errorf("get signature status: %w", err)
	}

	statuses := result.(*rpc.GetSignatureStatusesResult)
	if statuses == nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
		return errors.New("transaction not found")
	}

	status := statuses.Value[0]
	confirmedStatus := status.ConfirmationStatus
	if confirmedStatus == "" {
		return errors.New("transaction not confirmed yet")
	}

	switch c.commitment {
	case rpc.CommitmentFinalized:
		if confirmedStatus != rpc.ConfirmationStatusFinalized {
			return errors.New("transaction not finalized yet")
		}
	case rpc.CommitmentConfirmed:
		if confirmedStatus != rpc.ConfirmationStatusConfirmed && confirmedStatus != rpc.ConfirmationStatusFinalized {
			return errors.New("transaction not confirmed yet")
		}
	case rpc.CommitmentProcessed:
		if confirmedStatus != rpc.ConfirmationStatusProcessed && confirmedStatus != rpc.ConfirmationStatusConfirmed && confirmedStatus != rpc.ConfirmationStatusFinalized {
			return errors.New("transaction not processed yet")
		}
	}

	if status.Err != nil {
		return fmt.Errorf("transaction error: %v", status.Err)
	}

	return nil
}

// observeRPC routes an RPC call through the circuit breaker and records metrics.
func (c *Client) observeRPC(ctx context.Context, method string, fn func() (interface{}, error)) (interface{}, error) {
	start := time.Now()

	var result interface{}
	var err error
	if c.breakers != nil {
		result, err = c.breakers.Execute(circuitbreaker.ServiceSolanaRPC, fn)
	} else {
		result, err = fn()
	}

	if c.metrics != nil {
		c.metrics.ObserveRPCCall(method, c.network, time.Since(start), err)
	}
	return result, err
}

// isTransactionPendingError checks if error indicates transaction is still pending.
func isTransactionPendingError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "not found") || strings.Contains(msg, "not confirmed yet") || strings.Contains(msg, "not processed yet") || strings.Contains(msg, "not finalized yet")
}

// commitmentFromString maps a config commitment string to the RPC type.
func commitmentFromString(s string) rpc.CommitmentType {
	switch strings.ToLower(s) {
	case "processed":
		return rpc.CommitmentProcessed
	case "finalized", "finalised":
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}
