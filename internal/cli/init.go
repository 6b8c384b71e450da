// Package cli provides common initialization utilities shared by the
// dojo, dojo-auditor and dojo-admin binaries.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/blogle/dojo-sub001/internal/amqp"
	"github.com/blogle/dojo-sub001/internal/config"
	"github.com/blogle/dojo-sub001/internal/log"
	"github.com/blogle/dojo-sub001/internal/services"
	"github.com/blogle/dojo-sub001/internal/storage"
)

// SetupLogger initializes structured logging at level (see log.ParseLevel)
// and sets it as the default logger. An unknown level falls back to info.
func SetupLogger(level, component string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Component = component
	if parsed, err := log.ParseLevel(level); err == nil {
		cfg.Level = parsed
	}
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite opens the ledger database and applies migrations.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	sqliteRepo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", dbPath)
		os.Exit(1)
	}
	return sqliteRepo
}

// InitAMQP connects to the broker when events are enabled. It returns nil
// when AMQP_URL is empty, and exits the process if the connection fails.
func InitAMQP(logger *log.Logger, cfg *config.Config) *amqp.Client {
	if !cfg.EventsEnabled() {
		logger.Info("Ledger events disabled - no AMQP_URL provided")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeNetwork)
		os.Exit(1)
	}
	logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client
}

// NewLedger builds the orchestrator from configuration. A nil client
// leaves the ledger without an event publisher.
func NewLedger(cfg *config.Config, repo *storage.SQLiteRepository, client *amqp.Client) *services.Ledger {
	ledgerConfig := services.DefaultLedgerConfig()
	ledgerConfig.MaxFutureDays = cfg.MaxFutureDays
	ledgerConfig.ReadCacheSize = cfg.ReadCacheSize
	ledgerConfig.ReadCacheTTL = cfg.ReadCacheTTL

	var publisher services.EventPublisher
	if client != nil {
		publisher = client
	}
	return services.NewLedger(repo, publisher, ledgerConfig)
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()

		cleanupDone := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(cleanupDone)
		}()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-cleanupDone:
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}
