package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"coverflow/config"
	"coverflow/db"
	"coverflow/escrow"
	"coverflow/feed"
	"coverflow/notify"
	"coverflow/policy"
	"coverflow/registry"
	"coverflow/relay"
	"coverflow/settlement"
	"coverflow/telemetry"
	"coverflow/transfer"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("validate config: %v", err)
	}

	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	metrics := telemetry.NewMetrics("coverflow")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	settlementRepo := settlement.NewRepository(pool)
	notifier := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger, metrics)
	settlements := settlement.NewService(pool, settlementRepo, notifier, logger, metrics)

	policies := policy.NewService(pool, policy.NewRepository(pool), settlementRepo,
		registry.NewChildRegistry(pool), policy.Addresses{
			Vault:            cfg.Chain.Vault,
			Oracle:           cfg.Chain.Oracle,
			Admin:            cfg.Chain.Admin,
			LPRewards:        cfg.Chain.LPRewards,
			StakerRewards:    cfg.Chain.StakerRewards,
			ProtocolTreasury: cfg.Chain.ProtocolTreasury,
			ArbiterRewards:   cfg.Chain.ArbiterRewards,
			BuilderRewards:   cfg.Chain.BuilderRewards,
			AdminFee:         cfg.Chain.AdminFee,
			GasWallet:        cfg.Chain.GasWallet,
		}, logger)

	sponsors := relay.NewService(pool, relay.NewRepository(pool), relay.Config{
		JWTSecret:      cfg.Relay.JWTSecret,
		TokenTTL:       cfg.TokenTTL(),
		RequestsPerSec: cfg.Relay.RequestsPerSec,
		Burst:          cfg.Relay.Burst,
		DailyBudget:    cfg.Relay.DailyBudget,
	}, logger, metrics)

	sweeper := settlement.NewSweeper(settlements, settlementRepo, logger, metrics, cfg.Sweep.BatchSize)
	if err := sweeper.Start(cfg.Sweep.Cron); err != nil {
		log.Fatalf("start expiry sweeper: %v", err)
	}
	defer sweeper.Stop()

	var sender transfer.Sender
	if cfg.Dispatcher.WalletBridgeURL != "" {
		sender = transfer.NewHTTPSender(cfg.Dispatcher.WalletBridgeURL, cfg.Dispatcher.WalletBridgeAPIKey)
	} else {
		logger.Warn().Msg("wallet bridge not configured, transfers are log-only")
		sender = transfer.NewLogSender(logger)
	}
	dispatcher := transfer.NewDispatcher(pool, transfer.NewRepository(pool), sender, logger, metrics, transfer.Config{
		PollInterval: cfg.PollInterval(),
		BatchSize:    cfg.Dispatcher.BatchSize,
		MaxAttempts:  cfg.Dispatcher.MaxAttempts,
	})

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return dispatcher.Run(ctx) })

	if cfg.Feed.WSURL != "" {
		spec, err := policy.ProductFor(escrow.ProductDepeg)
		if err != nil {
			log.Fatalf("depeg product spec: %v", err)
		}
		watcher := feed.NewWatcher(feed.Config{
			WSURL:           cfg.Feed.WSURL,
			RESTURL:         cfg.Feed.RESTURL,
			Assets:          cfg.Feed.Assets,
			Threshold:       spec.TriggerThreshold,
			TriggerDuration: spec.TriggerDuration,
			ReconnectMax:    cfg.ReconnectMax(),
			SnapshotsPerMin: cfg.Feed.SnapshotRequestsPerMin,
		}, logger, metrics)
		submitter := feed.NewSubmitter(settlements, settlementRepo, cfg.Chain.Oracle, logger)
		group.Go(func() error { return watcher.Run(ctx) })
		group.Go(func() error { return submitter.Run(ctx, watcher.Events()) })
	}

	server := &Server{
		settlements: settlements,
		policies:    policies,
		sponsors:    sponsors,
		db:          pool,
		metrics:     metrics,
		log:         logger,
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	group.Go(func() error {
		logger.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("shutdown after failure")
		return
	}
	logger.Info().Msg("shutdown complete")
}
