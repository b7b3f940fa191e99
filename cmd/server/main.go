package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coderomm/Xolana/internal/airdrop"
	"github.com/coderomm/Xolana/internal/callbacks"
	"github.com/coderomm/Xolana/internal/circuitbreaker"
	"github.com/coderomm/Xolana/internal/config"
	"github.com/coderomm/Xolana/internal/httpserver"
	"github.com/coderomm/Xolana/internal/idempotency"
	"github.com/coderomm/Xolana/internal/lifecycle"
	"github.com/coderomm/Xolana/internal/logger"
	"github.com/coderomm/Xolana/internal/metrics"
	"github.com/coderomm/Xolana/internal/monitoring"
	"github.com/coderomm/Xolana/internal/search"
	solanaclient "github.com/coderomm/Xolana/internal/solana"
	"github.com/coderomm/Xolana/internal/stake"
	"github.com/coderomm/Xolana/internal/storage"
)

var version = "dev"

func main() {
	// .env is optional; real deployments set environment variables directly
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("XOLANA_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "xolana",
		Version:     version,
		Environment: cfg.Logging.Environment,
	})
	log.Logger = appLogger

	lm := lifecycle.NewManager()
	defer func() {
		if err := lm.Close(); err != nil {
			log.Error().Err(err).Msg("server.cleanup_failed")
		}
	}()

	metricsCollector := metrics.New(nil)
	breakers := circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chain, err := solanaclient.NewClient(ctx, cfg.Solana,
		solanaclient.WithBreakers(breakers),
		solanaclient.WithMetrics(metricsCollector),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("server.solana_connect_failed")
	}
	lm.Register("solana client", chain)

	store, err := storage.NewStore(storage.StoreConfig{
		Backend:           cfg.Storage.Backend,
		PostgresURL:       cfg.Storage.PostgresURL,
		PostgresTableName: cfg.Storage.PostgresTableName,
		MongoDBURL:        cfg.Storage.MongoDBURL,
		MongoDBDatabase:   cfg.Storage.MongoDBDatabase,
		MongoDBCollection: cfg.Storage.MongoDBCollection,
		FilePath:          cfg.Storage.FilePath,
		RetentionPeriod:   cfg.Storage.RetentionPeriod.Duration,
		CleanupInterval:   cfg.Storage.CleanupInterval.Duration,
	})
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("server.storage_init_failed")
	}
	lm.Register("processed-stake store", store)

	notifier := buildNotifier(cfg, metricsCollector, appLogger)

	stakeSvc, err := stake.NewService(cfg, chain, store, notifier, metricsCollector)
	if err != nil {
		log.Fatal().Err(err).Msg("server.stake_service_init_failed")
	}
	airdropSvc := airdrop.NewService(cfg.Airdrop,
		airdrop.WithBreakers(breakers),
		airdrop.WithMetrics(metricsCollector),
	)
	searchSvc := search.NewService(cfg.Search,
		search.WithBreakers(breakers),
		search.WithMetrics(metricsCollector),
	)

	serviceWallet, err := solanaclient.ParsePrivateKey(cfg.Stake.ServiceWalletKey)
	if err != nil {
		log.Fatal().Err(err).Msg("server.service_wallet_parse_failed")
	}
	monitor := monitoring.NewBalanceMonitor(cfg.Monitoring, chain, serviceWallet.PublicKey(), metricsCollector)
	monitor.Start(ctx)
	lm.RegisterFunc("balance monitor", func() error {
		monitor.Stop()
		return nil
	})

	srv := httpserver.New(cfg, stakeSvc, airdropSvc, searchSvc, idempotency.NewMemoryStore(), metricsCollector, appLogger)

	go func() {
		log.Info().
			Str("address", cfg.Server.Address).
			Str("network", cfg.Solana.Network).
			Str("storage", cfg.Storage.Backend).
			Bool("rate_limit_global", cfg.RateLimit.GlobalEnabled).
			Msg("server.started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server.listen_failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("server.shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server.shutdown_failed")
	}

	log.Info().Msg("server.stopped")
}

// buildNotifier wires the mint-success callback client with its optional DLQ.
func buildNotifier(cfg *config.Config, metricsCollector *metrics.Metrics, appLogger zerolog.Logger) callbacks.Notifier {
	if cfg.Callbacks.MintSuccessURL == "" {
		return callbacks.NoopNotifier{}
	}

	opts := []callbacks.RetryOption{
		callbacks.WithRetryLogger(appLogger),
		callbacks.WithMetrics(metricsCollector),
	}
	if cfg.Callbacks.DLQEnabled {
		dlq, err := callbacks.NewFileDLQStore(cfg.Callbacks.DLQPath)
		if err != nil {
			// Callbacks still fire; failed deliveries just are not persisted
			log.Error().Err(err).Str("path", cfg.Callbacks.DLQPath).Msg("server.dlq_init_failed")
		} else {
			opts = append(opts, callbacks.WithDLQStore(dlq))
		}
	}

	return callbacks.NewRetryableClient(cfg.Callbacks, opts...)
}
