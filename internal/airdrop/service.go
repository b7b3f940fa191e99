package airdrop

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/coderomm/Xolana/internal/circuitbreaker"
	"github.com/coderomm/Xolana/internal/config"
	"github.com/coderomm/Xolana/internal/httputil"
	"github.com/coderomm/Xolana/internal/metrics"
)

// Errors surfaced to HTTP handlers.
var (
	ErrInvalidWallet = errors.New("airdrop: invalid wallet address")
	ErrFaucet        = errors.New("airdrop: faucet request failed")
)

const maxFaucetResponseBytes = 64 * 1024

// Service proxies devnet faucet airdrops so browser clients never talk to the
// RPC endpoint directly.
type Service struct {
	faucetURL  string
	lamports   uint64
	httpClient *http.Client
	breakers   *circuitbreaker.Manager
	metrics    *metrics.Metrics
}

// Option customizes the airdrop service.
type Option func(*Service)

// WithBreakers sets the circuit breaker manager for faucet calls.
func WithBreakers(m *circuitbreaker.Manager) Option {
	return func(s *Service) {
		s.breakers = m
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService constructs the faucet proxy.
func NewService(cfg config.AirdropConfig, opts ...Option) *Service {
	lamports := cfg.Lamports
	if lamports == 0 {
		lamports = 5 * solana.LAMPORTS_PER_SOL
	}

	s := &Service{
		faucetURL:  cfg.FaucetURL,
		lamports:   lamports,
		httpClient: httputil.NewClient(15 * time.Second),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lamports returns the amount requested per airdrop.
func (s *Service) Lamports() uint64 {
	return s.lamports
}

// rpcRequest is the JSON-RPC 2.0 envelope the faucet expects.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result string    `json:"result"`
	Error  *rpcError `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Request asks the faucet to airdrop the configured amount to the given
// wallet and returns the faucet's transaction signature.
func (s *Service) Request(ctx context.Context, publicKey string) (string, error) {
	start := time.Now()
	sig, err := s.request(ctx, publicKey)

	if s.metrics != nil {
		status := "success"
		switch {
		case errors.Is(err, ErrInvalidWallet):
			status = "invalid_wallet"
		case err != nil:
			status = "faucet_error"
		}
		s.metrics.ObserveAirdrop(status, time.Since(start))
	}
	return sig, err
}

func (s *Service) request(ctx context.Context, publicKey string) (string, error) {
	if _, err := solana.PublicKeyFromBase58(publicKey); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidWallet, publicKey)
	}

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  "requestAirdrop",
		Params:  []interface{}{publicKey, s.lamports},
	})
	if err != nil {
		return "", fmt.Errorf("marshal faucet request: %w", err)
	}

	call := func() (interface{}, error) {
		sig, err := s.callFaucet(ctx, payload)
		return sig, err
	}

	var result interface{}
	if s.breakers != nil {
		result, err = s.breakers.Execute(circuitbreaker.ServiceFaucet, call)
	} else {
		result, err = call()
	}
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// callFaucet performs the JSON-RPC round trip.
func (s *Service) callFaucet(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.faucetURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build faucet request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFaucet, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFaucetResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrFaucet, err)
	}

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: status %d", ErrFaucet, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrFaucet, err)
	}
	if rpcResp.Error != nil {
		return "", fmt.Errorf("%w: %s (code %d)", ErrFaucet, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	if rpcResp.Result == "" {
		return "", fmt.Errorf("%w: empty result", ErrFaucet)
	}
	return rpcResp.Result, nil
}
