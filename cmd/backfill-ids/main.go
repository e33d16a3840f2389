// Command backfill-ids assigns identifiers to local rows stored without one,
// so they can be mirrored.
package main

import (
	"context"
	"os"
	"time"

	"emprestimos/internal/cli"
	applog "emprestimos/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentStorage)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fixed, err := repo.BackfillIDs(ctx)
	if err != nil {
		logger.Error("Backfill failed", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}

	var total int64
	for table, n := range fixed {
		total += n
		logger.Info("Backfilled identifiers", "table", table, "rows", n)
	}
	logger.Info("Backfill complete", "rows", total)
}
