package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"momentum-arb-bot/config"
	"momentum-arb-bot/internal/api"
	"momentum-arb-bot/internal/cache"
	"momentum-arb-bot/internal/credentials"
	"momentum-arb-bot/internal/database"
	"momentum-arb-bot/internal/events"
	"momentum-arb-bot/internal/exchange"
	"momentum-arb-bot/internal/logging"
	"momentum-arb-bot/internal/orders"
	"momentum-arb-bot/internal/positions"
	"momentum-arb-bot/internal/strategy"
	"momentum-arb-bot/internal/triarb"
	"momentum-arb-bot/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration failed")
	}

	logging.Setup(logging.Config{
		Level:  cfg.LoggingConfig.Level,
		Pretty: cfg.LoggingConfig.Pretty,
	})

	db, err := database.NewDB(database.Config{
		URL:      cfg.DatabaseConfig.URL,
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Name,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.RunMigrations(ctx); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}
	repo := database.NewRepository(db)

	candleCache := cache.NewCandleCache(cfg.RedisConfig.Address, cfg.RedisConfig.Password, cfg.RedisConfig.DB)
	defer candleCache.Close()

	registry := exchange.NewRegistry(cfg.MarketConfig.BaseURLOverrides)
	bus := events.NewEventBus()

	credsService, err := credentials.NewService(repo, credentials.VaultConfig{
		Enabled:   cfg.VaultConfig.Enabled,
		Address:   cfg.VaultConfig.Address,
		Token:     cfg.VaultConfig.Token,
		MountPath: cfg.VaultConfig.MountPath,
	}, cfg.CredentialsConfig.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("credentials service init failed")
	}

	orderExec := orders.NewExecutor(registry, credsService)
	strategyService := strategy.NewService(repo)
	positionService := positions.NewService(repo, registry, orderExec, bus)

	arbScanner := triarb.NewScanner(registry)
	arbLimiter := triarb.NewExecutionLimiter(cfg.ArbConfig.CooldownOverrides())
	if cfg.ArbConfig.MaxSlippagePercent > 0 {
		triarb.DefaultMaxSlippagePercent = decimal.NewFromFloat(cfg.ArbConfig.MaxSlippagePercent)
	}
	arbExecutor := triarb.NewExecutor(arbScanner, orderExec, repo, bus, arbLimiter)

	momentumWorker := worker.New(repo, credsService, positionService, registry, candleCache, bus, worker.Options{
		Tick:              cfg.WorkerConfig.Tick(),
		RotationThreshold: cfg.WorkerConfig.RotationThreshold,
		RotationWindow:    cfg.WorkerConfig.RotationWindow,
		ParallelBatch:     cfg.WorkerConfig.ParallelBatch,
		UniversalSource:   cfg.WorkerConfig.UniversalSource,
	})
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		momentumWorker.Run(ctx)
	}()

	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
		ReadTimeout:    time.Duration(cfg.ServerConfig.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.ServerConfig.WriteTimeout) * time.Second,
		ProductionMode: !cfg.LoggingConfig.Pretty,
	}, repo, registry, strategyService, positionService, credsService, orderExec, arbScanner, arbExecutor, bus)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	// Stop taking new work, then drain: worker first, then HTTP.
	cancel()
	select {
	case <-workerDone:
	case <-time.After(30 * time.Second):
		log.Warn().Msg("worker did not stop in time")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	log.Info().Msg("stopped")
}
