// Package main provides the entry point for the order supervisor.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/avolkov/sharewatch/internal/broker"
	"github.com/avolkov/sharewatch/internal/config"
	"github.com/avolkov/sharewatch/internal/dashboard"
	"github.com/avolkov/sharewatch/internal/guard"
	"github.com/avolkov/sharewatch/internal/intake"
	"github.com/avolkov/sharewatch/internal/mode"
	"github.com/avolkov/sharewatch/internal/retry"
	"github.com/avolkov/sharewatch/internal/snapshot"
	"github.com/avolkov/sharewatch/internal/storage"
	"github.com/avolkov/sharewatch/internal/validator"
	"github.com/avolkov/sharewatch/internal/watcher"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Best-effort .env load; missing file is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}

	logger := newLogrusLogger(cfg)
	stdLogger := log.New(os.Stdout, "[supervisor] ", log.LstdFlags)

	logger.Infof("starting order supervisor in %s mode (dry_run=%v)", cfg.Environment.Mode, cfg.Safety.DryRun)

	brokerPort, err := newBrokerPort(cfg)
	if err != nil {
		logger.WithError(err).Error("failed to construct broker client")
		return 1
	}

	store, err := storage.NewJSONStorage(cfg.Storage.Path)
	if err != nil {
		logger.WithError(err).Error("failed to initialize storage")
		return 1
	}

	modeController := mode.New(store)
	guardRegistry := guard.New()
	retryClient := retry.NewClient(stdLogger)
	snapshotRegistry := snapshot.NewRegistry()

	validatorCfg := validator.DefaultConfig()
	validatorCfg.Deposit = decimal.NewFromFloat(cfg.FreeTrading.DepositRub)
	validatorCfg.MaxPositionPct = decimal.NewFromFloat(cfg.FreeTrading.MaxPositionPct)
	validatorCfg.RiskPerTradePct = decimal.NewFromFloat(cfg.FreeTrading.RiskPerTradePct)
	validatorCfg.MaxPriceDeviationPct = decimal.NewFromFloat(cfg.FreeTrading.MaxPriceDeviationPct)
	validatorCfg.MaxConcurrentPositions = cfg.FreeTrading.MaxConcurrentPositions
	validatorCfg.MaxDailyTrades = cfg.FreeTrading.MaxDailyTrades
	validatorCfg.MaxDailyLossRub = decimal.NewFromFloat(cfg.FreeTrading.MaxDailyLossRub)
	validatorCfg.TradingStart = cfg.Schedule.TradingStart
	validatorCfg.TradingEnd = cfg.Schedule.TradingEnd
	validatorCfg.SLATRMultiplier = decimal.NewFromFloat(cfg.FreeTrading.SLATRMultiplier)
	validatorCfg.TPATRMultiplier = decimal.NewFromFloat(cfg.FreeTrading.TPATRMultiplier)
	validatorCfg.PriceTick = decimal.NewFromFloat(cfg.FreeTrading.PriceTick)
	orderValidator := validator.New(validatorCfg)

	watcherCfg := watcher.Config{
		PollInterval: config.Duration(cfg.Schedule.PollInterval, watcher.DefaultConfig.PollInterval),
		SLTimeout:    config.Duration(cfg.Schedule.SLPlacementTimeout, watcher.DefaultConfig.SLTimeout),
	}
	positionWatcher := watcher.New(brokerPort, store, modeController, guardRegistry, retryClient, logger.WithField("component", "watcher"), watcherCfg)

	confirmTimeout := config.Duration(cfg.Schedule.ConfirmTimeout, intake.DefaultConfirmTimeout)
	orderIntake := intake.New(snapshotRegistry, orderValidator, brokerPort, store, modeController, positionWatcher, logger.WithField("component", "intake"))
	orderIntake.SetConfirmTimeout(confirmTimeout)

	var dashServer *dashboard.Server
	if cfg.Dashboard.Enabled {
		dashServer = dashboard.NewServer(dashboard.Config{
			Port:      cfg.Dashboard.Port,
			AuthToken: cfg.Dashboard.AuthToken,
		}, store, modeController, logger.Logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received, stopping supervisor")
		guardRegistry.CancelAll()
		cancel()
	}()

	if err := positionWatcher.Hydrate(ctx); err != nil {
		logger.WithError(err).Warn("failed to hydrate watcher from storage; continuing with empty tracked set")
	}

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return positionWatcher.Run(gctx)
	})

	sweepInterval := config.Duration(cfg.Schedule.IntakeSweepInterval, 15*time.Second)
	group.Go(func() error {
		return orderIntake.Run(gctx, sweepInterval)
	})

	if dashServer != nil {
		group.Go(func() error {
			return dashServer.Start()
		})
		group.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return dashServer.Shutdown(shutdownCtx)
		})
		logger.Infof("dashboard enabled on port %d", cfg.Dashboard.Port)
	}

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("supervisor stopped with error")
		return 1
	}

	logger.Info("supervisor stopped")
	return 0
}

func newLogrusLogger(cfg *config.Config) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.Environment.Mode == "live" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if lvl, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logrus.NewEntry(logger)
}

func newBrokerPort(cfg *config.Config) (broker.Port, error) {
	var port broker.Port
	if cfg.Safety.DryRun {
		port = broker.NewDryRunBroker()
	} else {
		// No live provider client is wired: the brokerage integration this
		// spec targets is a dry-run/paper surface, and a real credentialed
		// client (e.g. the Tinkoff Invest API) is out of scope here. Live
		// mode still requires broker credentials (enforced by config
		// validation) so that wiring a client stays a one-function change.
		return nil, fmt.Errorf("live trading requires a broker client implementation for provider %q; none is wired", cfg.Broker.Provider)
	}

	cb := cfg.CircuitBreaker
	settings := broker.CircuitBreakerSettings{
		MaxRequests:  cb.MaxRequests,
		Interval:     config.Duration(cb.Interval, broker.DefaultCircuitBreakerSettings.Interval),
		Timeout:      config.Duration(cb.Timeout, broker.DefaultCircuitBreakerSettings.Timeout),
		MinRequests:  cb.MinRequests,
		FailureRatio: cb.FailureRatio,
	}
	return broker.NewCircuitBreakerBrokerWithSettings(port, settings), nil
}
