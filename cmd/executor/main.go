package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"executor/internal/broker"
	"executor/internal/config"
	cronrunner "executor/internal/cron"
	"executor/internal/db"
	"executor/internal/handler"
	"executor/internal/logger"
	"executor/internal/metrics"
	gormrepository "executor/internal/repository/gorm"
	"executor/internal/risk"
	"executor/internal/service"
)

func main() {
	cfgPath := os.Getenv("EXEC_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("EXEC_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log, cfg.App.Worker)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	workerName, class, err := cfg.WorkerClass()
	if err != nil {
		logger.Fatal("invalid worker", zap.Error(err))
	}

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	err = db.Ping(pingCtx, dbConn)
	cancelPing()
	if err != nil {
		logger.Fatal("db unreachable", zap.Error(err))
	}
	if cfg.DB.AutoMigrate {
		if err := db.AutoMigrate(dbConn); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
	}

	brokerage, err := newBrokerage(cfg.Broker)
	if err != nil {
		logger.Fatal("brokerage init failed", zap.Error(err))
	}
	defer brokerage.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mtx := metrics.New(workerName)
	store := gormrepository.New(dbConn.Gorm)

	account := &service.AccountMonitor{Broker: brokerage, Metrics: mtx, Logger: logger}
	if err := account.Check(ctx); err != nil {
		logger.Fatal("brokerage account check failed", zap.Error(err))
	}

	claimant := cfg.Executor.Claimant
	if claimant == "" {
		host, _ := os.Hostname()
		claimant = fmt.Sprintf("executor-%s@%s/%s", workerName, host, uuid.NewString()[:8])
	}

	execHandler := &service.ExecutionHandler{
		Name:    workerName,
		Class:   class,
		Policy:  cfg.Executor,
		Broker:  brokerage,
		Guards:  &risk.Guards{Broker: brokerage},
		Events:  &service.EventLog{Repo: store, Logger: logger},
		Metrics: mtx,
		Logger:  logger,
	}
	if cfg.Executor.PositionSource == config.PositionSourceLedger {
		execHandler.LedgerGuards = &risk.LedgerGuards{Trades: store}
		execHandler.Ledger = &service.TradeLedger{Repo: store, Logger: logger}
	}

	runner := &service.Runner{
		Dispatch: &service.DispatchClaimer{
			Repo:     store,
			JobTypes: class.JobTypes,
			Claimant: claimant,
			Logger:   logger,
			Metrics:  mtx,
		},
		Intents: &service.IntentClaimer{
			Repo:     store,
			Executor: class.ExecutorTag,
			Logger:   logger,
			Metrics:  mtx,
		},
		Handler:               execHandler,
		Logger:                logger,
		Metrics:               mtx,
		PollInterval:          cfg.Executor.PollInterval,
		IdleHeartbeatInterval: cfg.Executor.IdleHeartbeatInterval,
		JobPause:              cfg.Executor.JobPause,
	}

	cronRunner := cronrunner.New(logger, ctx)
	if spec := strings.TrimSpace(cfg.Executor.AccountHeartbeat); spec != "" {
		if _, err := cronRunner.Add("account_heartbeat", spec, account.Check); err != nil {
			logger.Fatal("invalid executor.account_heartbeat", zap.String("spec", spec), zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	var srv *http.Server
	if cfg.Server.Enabled {
		if strings.EqualFold(cfg.App.Env, "dev") {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
		engine := gin.New()
		engine.Use(gin.Recovery())
		ops := &handler.OpsHandler{
			Worker:  workerName,
			Ping:    func(ctx context.Context) error { return db.Ping(ctx, dbConn) },
			Metrics: mtx,
		}
		ops.Register(engine)

		srv = &http.Server{
			Addr:    cfg.Server.HTTPAddr,
			Handler: engine,
		}
		go func() {
			logger.Info("ops server started", zap.String("addr", cfg.Server.HTTPAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops server failed", zap.Error(err))
			}
		}()
	}

	logger.Info("executor starting",
		zap.String("claimant", claimant),
		zap.Strings("job_types", class.JobTypes),
		zap.String("executor_tag", class.ExecutorTag),
		zap.String("exit_policy", cfg.Executor.ExitPolicy),
		zap.String("position_source", cfg.Executor.PositionSource),
		zap.String("broker", cfg.Broker.Provider),
		zap.Bool("paper", cfg.Broker.Paper),
	)
	if err := runner.Run(ctx); err != nil {
		logger.Error("executor loop failed", zap.Error(err))
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	logger.Info("executor stopped")
}

func newBrokerage(cfg config.BrokerConfig) (broker.Brokerage, error) {
	switch cfg.Provider {
	case config.BrokerSim:
		return broker.NewSim(decimal.NewFromInt(100000)), nil
	default:
		return broker.NewAlpaca(broker.AlpacaConfig{
			KeyID:     cfg.KeyID,
			SecretKey: cfg.SecretKey,
			BaseURL:   cfg.ResolvedBaseURL(),
			Timeout:   cfg.Timeout,
		})
	}
}
