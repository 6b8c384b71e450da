package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blogle/dojo-sub001/internal/cache"
	"github.com/blogle/dojo-sub001/internal/cli"
	"github.com/blogle/dojo-sub001/internal/log"
	"github.com/blogle/dojo-sub001/internal/services"
	"github.com/blogle/dojo-sub001/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	logger.Info("Starting dojo-auditor")

	cfg := cli.LoadAndValidateConfig(logger)

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	amqpClient := cli.InitAMQP(logger, cfg)
	if amqpClient != nil {
		defer amqpClient.Close()
	}

	ledger := cli.NewLedger(cfg, sqliteRepo, amqpClient)
	auditor := services.NewAuditor(ledger)

	cacheManager := cache.NewManager()
	cacheManager.Register(ledger.ReadCacheCleaner())
	cacheManager.StartCleanup(cfg.ReadCacheTTL)
	defer cacheManager.Stop()

	processorConfig := services.DefaultAuditProcessorConfig()
	processorConfig.Interval = cfg.AuditInterval
	processorConfig.Repair = cfg.AuditRepair
	processor := services.NewAuditProcessor(auditor, processorConfig)

	stopProcessor := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := processor.Stop(stopCtx); err != nil {
			logger.Warn("Audit processor did not stop cleanly", log.FieldError, err)
		}
	}

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, stopProcessor)

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start audit processor", log.FieldError, err)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if amqpClient != nil {
		auditWorker := worker.NewAuditWorker(auditor, cfg.AuditRepair)
		g.Go(func() error {
			err := amqpClient.ConsumeLedgerEvents(gctx, auditWorker.HandleLedgerEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("Skipping ledger event consumption - periodic audits only")
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Ledger event consumption failed", log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeNetwork)
		stopProcessor()
		return err
	}

	<-done
	logger.Info("dojo-auditor stopped")
	return nil
}
