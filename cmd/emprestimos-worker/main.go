package main

import (
	"context"
	"os"
	"time"

	"emprestimos/internal/amqp"
	"emprestimos/internal/backend"
	"emprestimos/internal/cli"
	applog "emprestimos/internal/log"
	"emprestimos/internal/metrics"
	"emprestimos/internal/services"
	"emprestimos/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting emprestimos-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

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
	if mirrors.Mirror == nil {
		logger.Error("The worker needs a mirror; set MIRROR_BACKEND")
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	processor := services.NewSyncProcessor(repo, mirrors.Mirror, metrics.New(), services.SyncProcessorConfig{
		PollInterval:    cfg.SyncInterval,
		BatchSize:       cfg.SyncBatchSize,
		MaxRetries:      cfg.SyncMaxRetries,
		CleanupInterval: time.Hour,
		CleanupAge:      24 * time.Hour,
	})
	syncWorker := worker.NewSyncWorker(processor, cfg.SyncInterval)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)
	if err := syncWorker.Run(ctx, amqpClient); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
