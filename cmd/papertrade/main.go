package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"papertrade/internal/api"
	"papertrade/internal/auth"
	"papertrade/internal/cache"
	"papertrade/internal/config"
	"papertrade/internal/database"
	"papertrade/internal/logging"
	"papertrade/internal/market"
	"papertrade/internal/monitoring"
	"papertrade/internal/notify"
	"papertrade/internal/paper"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		LogDir:     cfg.Logging.LogDir,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	logger.WithFields(logrus.Fields{
		"app":     cfg.App.Name,
		"version": cfg.App.Version,
		"env":     cfg.App.Env,
	}).Info("Starting paper trading platform")

	// Database is optional: without one the engine runs fully in memory,
	// which suits local simulation but loses all state on restart.
	var db *database.DB
	var ledger paper.Ledger
	if cfg.Database.Host != "" {
		db, err = database.NewConnection(&database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
			MaxOpen:  cfg.Database.MaxOpen,
			MaxIdle:  cfg.Database.MaxIdle,
			Timeout:  cfg.Database.Timeout,
		}, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to database")
		}
		defer db.Close()

		migrator, err := database.NewMigrator(db, cfg.Database.MigrationsPath)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create migrator")
		}
		if err := migrator.Up(); err != nil {
			logger.WithError(err).Fatal("Failed to run migrations")
		}
		logger.Info("Database migrations applied")

		ledger = paper.NewPostgresLedger(db)
	} else {
		logger.Warn("No database configured, running with in-memory state")
		ledger = paper.NewMemoryLedger()
	}

	cacher, err := cache.NewCacher(&cache.Config{
		Enabled:  cfg.Redis.Enabled,
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize cache")
	}
	defer cacher.Close()

	oracle, cleanup, err := buildOracle(cfg, cacher)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize price oracle")
	}
	if cleanup != nil {
		defer cleanup()
	}

	hub := notify.NewHub()
	metrics := monitoring.NewMetrics()

	processor := paper.NewProcessor(ledger, oracle, hub, metrics, logger)
	defer processor.Close()

	revaluer := paper.NewRevaluer(processor, cfg.Paper.RevalueInterval, logger)
	if err := revaluer.Start(); err != nil {
		logger.WithError(err).Fatal("Failed to start revaluer")
	}
	defer revaluer.Stop()

	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Duration)
	server := api.NewServer(cfg, logger, db, jwtManager, processor, hub, metrics)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Fatal("Server error")
		}
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}

	logger.Info("Shutdown complete")
}

// buildOracle assembles the configured price source, optionally wrapped in a
// short-lived cache.
func buildOracle(cfg *config.Config, cacher cache.Cacher) (market.Oracle, func() error, error) {
	var (
		oracle  market.Oracle
		cleanup func() error
	)

	switch cfg.Oracle.Source {
	case "live":
		live, err := market.NewBanexgOracle(&market.ExchangeConfig{
			Name:      cfg.Oracle.Exchange.Name,
			APIKey:    cfg.Oracle.Exchange.APIKey,
			APISecret: cfg.Oracle.Exchange.APISecret,
			TestNet:   cfg.Oracle.Exchange.TestNet,
		})
		if err != nil {
			return nil, nil, err
		}
		oracle = live
		cleanup = live.Close
	default:
		oracle = market.NewStaticOracle(cfg.Oracle.Prices, cfg.Oracle.DefaultPrice)
	}

	if cfg.Oracle.CacheTTL > 0 {
		oracle = market.NewCachedOracle(oracle, cacher, cfg.Oracle.CacheTTL)
	}

	return oracle, cleanup, nil
}
