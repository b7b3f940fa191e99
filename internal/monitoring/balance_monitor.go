package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"

	"github.com/coderomm/Xolana/internal/config"
	"github.com/coderomm/Xolana/internal/httputil"
	"github.com/coderomm/Xolana/internal/logger"
	"github.com/coderomm/Xolana/internal/metrics"
)

// BalanceFetcher reads the lamport balance of an account.
type BalanceFetcher interface {
	Balance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

// BalanceMonitor periodically checks the service wallet balance, exports it
// as a gauge, and sends an alert webhook when it drops below the threshold.
// The service wallet pays mint transaction fees and ATA rent, so an empty
// wallet silently stops all reward minting.
type BalanceMonitor struct {
	cfg        config.MonitoringConfig
	chain      BalanceFetcher
	wallet     solana.PublicKey
	httpClient *http.Client
	metrics    *metrics.Metrics

	mu          sync.Mutex
	lastAlertAt time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// BalanceAlert contains information about a low service wallet balance.
type BalanceAlert struct {
	Wallet    string    `json:"wallet"`
	Balance   float64   `json:"balance"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBalanceMonitor creates a balance monitor for the service wallet.
func NewBalanceMonitor(cfg config.MonitoringConfig, chain BalanceFetcher, wallet solana.PublicKey, metricsCollector *metrics.Metrics) *BalanceMonitor {
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &BalanceMonitor{
		cfg:        cfg,
		chain:      chain,
		wallet:     wallet,
		httpClient: httputil.NewClient(timeout),
		metrics:    metricsCollector,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the balance monitoring loop.
func (m *BalanceMonitor) Start(ctx context.Context) {
	interval := m.cfg.CheckInterval.Duration
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	log.Info().
		Str("wallet", logger.TruncateAddress(m.wallet.String())).
		Dur("check_interval", interval).
		Float64("threshold_sol", m.cfg.LowBalanceThreshold).
		Msg("balance_monitor.started")

	m.wg.Add(1)
	go m.monitorLoop(ctx, interval)
}

// Stop gracefully stops the balance monitoring loop.
func (m *BalanceMonitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	log.Info().Msg("balance_monitor.stopped")
}

// monitorLoop runs the periodic balance checks.
func (m *BalanceMonitor) monitorLoop(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial check runs immediately
	m.checkBalance(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkBalance(ctx)
		}
	}
}

// checkBalance reads the wallet balance, updates the gauge, and alerts when
// the balance is below the threshold.
func (m *BalanceMonitor) checkBalance(ctx context.Context) {
	lamports, err := m.chain.Balance(ctx, m.wallet)
	if err != nil {
		log.Error().
			Err(err).
			Str("wallet", logger.TruncateAddress(m.wallet.String())).
			Msg("balance_monitor.fetch_error")
		return
	}

	balanceSOL := float64(lamports) / float64(solana.LAMPORTS_PER_SOL)

	if m.metrics != nil {
		m.metrics.SetServiceWalletBalance(balanceSOL)
	}

	log.Debug().
		Str("wallet", logger.TruncateAddress(m.wallet.String())).
		Float64("balance_sol", balanceSOL).
		Msg("balance_monitor.balance_checked")

	if m.cfg.LowBalanceThreshold > 0 && balanceSOL < m.cfg.LowBalanceThreshold {
		if m.shouldAlert() {
			m.sendAlert(ctx, balanceSOL)
		}
	} else {
		m.clearAlert()
	}
}

// shouldAlert limits alerts to once per 24 hours to avoid spam.
func (m *BalanceMonitor) shouldAlert() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastAlertAt.IsZero() {
		return true
	}
	return time.Since(m.lastAlertAt) > 24*time.Hour
}

// clearAlert resets the alert history once the balance is healthy again.
func (m *BalanceMonitor) clearAlert() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAlertAt = time.Time{}
}

// sendAlert posts a webhook notification about the low balance.
func (m *BalanceMonitor) sendAlert(ctx context.Context, balance float64) {
	if m.cfg.LowBalanceAlertURL == "" {
		return
	}

	wallet := m.wallet.String()

	// Default Discord webhook format
	body, err := json.Marshal(map[string]any{
		"content": fmt.Sprintf(
			"**Low Balance Alert**\n\n"+
				"Service wallet: `%s`\n"+
				"Balance: **%.6f SOL**\n"+
				"Threshold: %.6f SOL\n\n"+
				"Top up the wallet or reward minting will stop.",
			wallet, balance, m.cfg.LowBalanceThreshold,
		),
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("wallet", logger.TruncateAddress(wallet)).
			Msg("balance_monitor.marshal_error")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.LowBalanceAlertURL, bytes.NewReader(body))
	if err != nil {
		log.Error().
			Err(err).
			Str("wallet", logger.TruncateAddress(wallet)).
			Msg("balance_monitor.request_error")
		return
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range m.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		log.Error().
			Err(err).
			Str("wallet", logger.TruncateAddress(wallet)).
			Msg("balance_monitor.send_error")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Info().
			Str("wallet", logger.TruncateAddress(wallet)).
			Float64("balance_sol", balance).
			Int("status_code", resp.StatusCode).
			Msg("balance_monitor.alert_sent")
		m.mu.Lock()
		m.lastAlertAt = time.Now()
		m.mu.Unlock()
	} else {
		log.Warn().
			Str("wallet", logger.TruncateAddress(wallet)).
			Int("status_code", resp.StatusCode).
			Msg("balance_monitor.alert_rejected")
	}
}
