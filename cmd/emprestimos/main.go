package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"emprestimos/internal/amqp"
	"emprestimos/internal/backend"
	"emprestimos/internal/cli"
	apphttp "emprestimos/internal/http"
	applog "emprestimos/internal/log"
	"emprestimos/internal/metrics"
	"emprestimos/internal/middleware/ratelimit"
	"emprestimos/internal/services"
	"emprestimos/internal/workspace"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid mirror configuration", "error", err)
		os.Exit(1)
	}
	mirrors, err := backend.NewFactory(logger.Logger).CreateMirror(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize mirror", "error", err, "backend", backendCfg.Type)
		os.Exit(1)
	}
	defer mirrors.Close()

	m := metrics.New()
	saver := services.NewSaver(cfg.SaverConcurrency, m)
	deps := services.Dependencies{
		Storage:     repo,
		Saver:       saver,
		Metrics:     m,
		Workspaces:  workspace.NewRegistry(cfg.WorkspaceCache, 30*time.Minute),
		DefaultMode: cfg.Mode(),
	}

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// The sync queue still holds every change; the processor drains it.
			logger.Warn("AMQP unavailable, notifications disabled", "error", err)
		} else {
			deps.Publisher = amqpClient
			defer amqpClient.Close()
		}
	}

	loans := services.NewLoanService(deps)
	svc := apphttp.Services{
		Clients:      services.NewClientService(deps),
		Loans:        loans,
		Installments: services.NewInstallmentService(deps, loans),
		Movements:    services.NewMovementService(deps),
		Due:          services.NewDueService(deps),
	}

	var processor *services.SyncProcessor
	if mirrors.Mirror != nil {
		svc.Sync = services.NewSyncService(deps, mirrors.Mirror)
		processor = services.NewSyncProcessor(repo, mirrors.Mirror, m, services.SyncProcessorConfig{
			PollInterval:    cfg.SyncInterval,
			BatchSize:       cfg.SyncBatchSize,
			MaxRetries:      cfg.SyncMaxRetries,
			CleanupInterval: time.Hour,
			CleanupAge:      24 * time.Hour,
		})
		svc.Queue = processor
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Logger:    logger,
		Metrics:   m,
		RateLimit: ratelimit.DefaultConfig(),
		Ready:     repo.Ping,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if processor != nil {
			if err := processor.Stop(ctx); err != nil {
				logger.Error("Sync processor stop error", "error", err)
			}
		}
		if err := saver.Close(); err != nil {
			logger.Error("Pending saves failed", "error", err)
		}
	})

	if processor != nil {
		if err := processor.Start(ctx); err != nil {
			logger.Error("Failed to start sync processor", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("Starting emprestimos server",
		"port", cfg.Port,
		"mirror", backendCfg.Type,
		"schedule_mode", cfg.Mode(),
		"amqp", amqpClient != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
