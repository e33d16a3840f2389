// Package cli holds the start-up and shutdown steps shared by the binaries
// under cmd/.
package cli

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"emprestimos/internal/config"
	applog "emprestimos/internal/log"
	"emprestimos/internal/storage"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT=json
// and makes it the slog default.
func SetupLogger(component string) *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Component = component
	cfg.Level = applog.ParseLevel(os.Getenv("LOG_LEVEL"))
	cfg.JSON = os.Getenv("LOG_FORMAT") == "json"
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile reads .env into the environment without overriding variables
// already set. A missing file is normal outside development; a malformed one
// is reported on stderr.
func LoadEnvFile() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		os.Stderr.WriteString("ignoring .env: " + err.Error() + "\n")
	}
}

func fatal(logger *applog.Logger, msg string, args ...any) {
	logger.Error(msg, args...)
	os.Exit(1)
}

// LoadAndValidateConfig exits the process when the environment does not
// describe a valid configuration.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fatal(logger, "Configuration validation failed", "error", err)
	}
	return cfg
}

// InitSQLite opens and migrates the store at dbPath, exiting on failure.
func InitSQLite(logger *applog.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		fatal(logger, "Failed to initialize SQLite repository", "error", err, "path", dbPath)
	}
	return repo
}

// GracefulShutdown returns a context cancelled by SIGINT or SIGTERM. After
// the signal, cleanup runs with its own timeout-bounded context; the returned
// channel closes when cleanup returns or the timeout wins.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer close(done)
		<-ctx.Done()
		stop()
		logger.Info("Shutdown signal received", "timeout", timeout)

		cleanupCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		finished := make(chan struct{})
		go func() {
			defer close(finished)
			if cleanup != nil {
				cleanup(cleanupCtx)
			}
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-cleanupCtx.Done():
			logger.Warn("Shutdown timeout reached, exiting with cleanup still running")
		}
	}()

	return ctx, done
}

// WaitForShutdown blocks until the signal has arrived and cleanup is over.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
