package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/blogle/dojo-sub001/internal/cache"
	"github.com/blogle/dojo-sub001/internal/cli"
	apphttp "github.com/blogle/dojo-sub001/internal/http"
	"github.com/blogle/dojo-sub001/internal/log"
	"github.com/blogle/dojo-sub001/internal/middleware/ratelimit"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	amqpClient := cli.InitAMQP(logger, cfg)
	if amqpClient != nil {
		defer amqpClient.Close()
	}

	ledger := cli.NewLedger(cfg, sqliteRepo, amqpClient).WithLogger(logger)

	cacheManager := cache.NewManager()
	cacheManager.Register(ledger.ReadCacheCleaner())
	cacheManager.StartCleanup(cfg.ReadCacheTTL)
	defer cacheManager.Stop()

	rateLimit := ratelimit.DefaultConfig()
	rateLimit.MutationsPerMinute = cfg.RateLimitPerMinute
	rateLimit.Burst = cfg.RateLimitBurst

	srv, err := apphttp.NewServer(":"+cfg.Port, ledger, apphttp.Options{
		Logger:         logger,
		RateLimit:      rateLimit,
		TrustedProxies: cfg.TrustedProxies,
		Ready:          sqliteRepo,
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	// Other processes rewrite the derived caches too (dojo-admin rebuild,
	// dojo-auditor repair); their events purge this process's read cache.
	if amqpClient != nil {
		go func() {
			err := amqpClient.SubscribeLedgerEvents(ctx, ledger.HandleLedgerEvent)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Ledger event subscription stopped", log.FieldError, err,
					log.FieldErrorType, log.ErrorTypeNetwork)
			}
		}()
	}

	logger.Info("Starting ledger API", "port", cfg.Port, "events", cfg.EventsEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port,
			log.FieldErrorType, log.ErrorTypeNetwork)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
