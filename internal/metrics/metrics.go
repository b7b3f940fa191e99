package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the Xolana backend.
type Metrics struct {
	// Stake notification metrics
	NotificationsTotal   *prometheus.CounterVec
	NotificationDuration *prometheus.HistogramVec

	// Mint metrics
	MintsTotal        *prometheus.CounterVec
	MintLamportsTotal prometheus.Counter
	MintDuration      *prometheus.HistogramVec

	// Stake transaction preparer metrics
	StakesPreparedTotal *prometheus.CounterVec

	// Airdrop metrics
	AirdropsTotal   *prometheus.CounterVec
	AirdropDuration *prometheus.HistogramVec

	// Token search metrics
	SearchesTotal  *prometheus.CounterVec
	SearchDuration *prometheus.HistogramVec

	// RPC call metrics
	RPCCallsTotal   *prometheus.CounterVec
	RPCCallDuration *prometheus.HistogramVec
	RPCErrorsTotal  *prometheus.CounterVec

	// Outbound callback metrics
	CallbacksTotal       *prometheus.CounterVec
	CallbackRetriesTotal *prometheus.CounterVec
	CallbackDLQTotal     *prometheus.CounterVec
	CallbackDuration     *prometheus.HistogramVec

	// Rate limiting metrics
	RateLimitHitsTotal *prometheus.CounterVec

	// Storage metrics
	DBQueryDuration     *prometheus.HistogramVec
	DBConnectionsActive prometheus.Gauge

	// Service wallet metrics
	ServiceWalletBalance prometheus.Gauge
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Stake notification metrics
		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xolana_stake_notifications_total",
				Help: "Total number of inbound transaction notifications by outcome",
			},
			[]string{"outcome"},
		),
		NotificationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xolana_stake_notification_duration_seconds",
				Help:    "Time taken to process an inbound notification end to end",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),

		// Mint metrics
		MintsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xolana_mints_total",
				Help: "Total number of reward token mint attempts",
			},
			[]string{"status"},
		),
		MintLamportsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "xolana_mint_lamports_total",
				Help: "Total staked lamports credited as reward tokens",
			},
		),
		MintDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xolana_mint_duration_seconds",
				Help:    "Time from mint submission to on-chain confirmation",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"network"},
		),

		// Stake preparer metrics
		StakesPreparedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xolana_stakes_prepared_total",
				Help: "Total number of unsigned stake transactions built",
			},
			[]string{"status"},
		),

		// Airdrop metrics
		AirdropsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xolana_airdrops_total",
				Help: "Total number of faucet airdrop requests",
			},
			[]string{"status"},
		),
		AirdropDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xolana_airdrop_duration_seconds",
				Help:    "Duration of faucet airdrop proxy calls",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"status"},
		),

		// Token search metrics
		SearchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xolana_token_searches_total",
				Help: "Total number of token search relay requests",
			},
			[]string{"status"},
		),
		SearchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xolana_token_search_duration_seconds",
				Help:    "Duration of token search upstream calls",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"status"},
		),

		// RPC call metrics
		RPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xolana_rpc_calls_total",
				Help: "Total number of RPC calls to the Solana cluster",
			},
			[]string{"method", "network"},
		),
		RPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xolana_rpc_call_duration_seconds",
				Help:    "Duration of RPC calls to the Solana cluster (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "network"},
		),
		RPCErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xolana_rpc_errors_total",
				Help: "Total number of RPC errors",
			},
			[]string{"method", "network", "error_type"},
		),

		// Outbound callback metrics
		CallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xolana_callbacks_total",
				Help: "Total number of outbound callback deliveries",
			},
			[]string{"event_type", "status"},
		),
		CallbackRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xolana_callback_retries_total",
				Help: "Total number of callback retry attempts",
			},
			[]string{"event_type", "attempt"},
		),
		CallbackDLQTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xolana_callback_dlq_total",
				Help: "Total number of callbacks sent to DLQ",
			},
			[]string{"event_type"},
		),
		CallbackDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xolana_callback_duration_seconds",
				Help:    "Time taken for callback delivery",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"event_type"},
		),

		// Rate limiting metrics
		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xolana_rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
			[]string{"limit_type", "identifier"},
		),

		// Storage metrics
		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xolana_db_query_duration_seconds",
				Help:    "Processed-stake store query duration (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"operation", "backend"},
		),
		DBConnectionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "xolana_db_connections_active",
				Help: "Number of active database connections",
			},
		),

		// Service wallet metrics
		ServiceWalletBalance: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "xolana_service_wallet_balance_sol",
				Help: "Current service wallet balance in SOL",
			},
		),
	}
}

// ObserveNotification records an inbound notification and its outcome.
// Outcomes: minted, replayed, ignored, rejected, failed.
func (m *Metrics) ObserveNotification(outcome string, duration time.Duration) {
	m.NotificationsTotal.WithLabelValues(outcome).Inc()
	m.NotificationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveMint records a reward mint attempt.
func (m *Metrics) ObserveMint(status, network string, lamports uint64, duration time.Duration) {
	m.MintsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		m.MintLamportsTotal.Add(float64(lamports))
	}
	m.MintDuration.WithLabelValues(network).Observe(duration.Seconds())
}

// ObserveStakePrepared records an unsigned stake transaction build.
func (m *Metrics) ObserveStakePrepared(status string) {
	m.StakesPreparedTotal.WithLabelValues(status).Inc()
}

// ObserveAirdrop records a faucet airdrop proxy call.
func (m *Metrics) ObserveAirdrop(status string, duration time.Duration) {
	m.AirdropsTotal.WithLabelValues(status).Inc()
	m.AirdropDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveSearch records a token search relay call.
func (m *Metrics) ObserveSearch(status string, duration time.Duration) {
	m.SearchesTotal.WithLabelValues(status).Inc()
	m.SearchDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveRPCCall records an RPC call to the Solana cluster.
func (m *Metrics) ObserveRPCCall(method, network string, duration time.Duration, err error) {
	m.RPCCallsTotal.WithLabelValues(method, network).Inc()
	m.RPCCallDuration.WithLabelValues(method, network).Observe(duration.Seconds())

	if err != nil {
		errorType := "unknown"
		if errStr := strings.ToLower(err.Error()); errStr != "" {
			switch {
			case strings.Contains(errStr, "timeout"):
				errorType = "timeout"
			case strings.Contains(errStr, "rate limit"):
				errorType = "rate_limit"
			case strings.Contains(errStr, "connection"):
				errorType = "connection"
			case strings.Contains(errStr, "not found"):
				errorType = "not_found"
			default:
				errorType = "other"
			}
		}
		m.RPCErrorsTotal.WithLabelValues(method, network, errorType).Inc()
	}
}

// ObserveCallback records an outbound callback delivery.
func (m *Metrics) ObserveCallback(eventType, status string, duration time.Duration, attempt int, sentToDLQ bool) {
	m.CallbacksTotal.WithLabelValues(eventType, status).Inc()
	m.CallbackDuration.WithLabelValues(eventType).Observe(duration.Seconds())

	if attempt > 1 {
		m.CallbackRetriesTotal.WithLabelValues(eventType, formatAttempt(attempt)).Inc()
	}

	if sentToDLQ {
		m.CallbackDLQTotal.WithLabelValues(eventType).Inc()
	}
}

// ObserveRateLimit records a rate limit hit.
func (m *Metrics) ObserveRateLimit(limitType, identifier string) {
	m.RateLimitHitsTotal.WithLabelValues(limitType, identifier).Inc()
}

// ObserveDBQuery records a processed-stake store query.
func (m *Metrics) ObserveDBQuery(operation, backend string, duration time.Duration) {
	m.DBQueryDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

// SetServiceWalletBalance records the current service wallet balance.
func (m *Metrics) SetServiceWalletBalance(sol float64) {
	m.ServiceWalletBalance.Set(sol)
}

func formatAttempt(attempt int) string {
	if attempt <= 5 {
		return string(rune('0' + attempt))
	}
	return "5+"
}
