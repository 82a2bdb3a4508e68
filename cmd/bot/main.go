package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"starfarm-bot/internal/bot"
	"starfarm-bot/internal/catalog"
	"starfarm-bot/internal/config"
	"starfarm-bot/internal/database"
	"starfarm-bot/internal/economy"
	"starfarm-bot/internal/ledger"
	"starfarm-bot/internal/logging"
	"starfarm-bot/internal/metrics"
	"starfarm-bot/internal/worker"
)

func main() {
	// Load Configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.Production)
	if err != nil {
		log.Fatalf("Could not create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to Database
	db, err := database.ConnectPostgres(cfg, logger)
	if err != nil {
		logger.Fatal("could not connect to database", zap.Error(err))
	}

	// Connect to Redis
	rdb, err := database.ConnectRedis(cfg, logger)
	if err != nil {
		logger.Fatal("could not connect to redis", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Fatal("could not load catalog", zap.Error(err))
	}

	engine := economy.New(ledger.NewPostgres(db), cat, economy.Options{
		ReferralReward:       cfg.ReferralReward,
		Escrow:               cfg.AuctionSettlement == config.SettlementEscrow,
		AuctionSeedCount:     cfg.AuctionSeedCount,
		AuctionDurationHours: cfg.AuctionDurationHours,
		Logger:               logger,
	})

	tgBot, err := bot.NewBot(cfg.BotToken, engine, logger.Named("bot"), cfg.GameName)
	if err != nil {
		logger.Fatal("could not create bot", zap.Error(err))
	}

	sweeper := worker.NewSweeper(engine, rdb, tgBot, cfg.AuctionSweepInterval, logger)
	go sweeper.Start(ctx)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
	}

	logger.Info("service started",
		zap.String("game", cfg.GameName),
		zap.String("settlement", cfg.AuctionSettlement))

	if err := tgBot.Start(ctx); err != nil {
		logger.Error("bot stopped", zap.Error(err))
	}
	<-ctx.Done()
	logger.Info("shutting down")
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
