package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"emprestimos/internal/mirror/google"
	"emprestimos/internal/mirror/memory"
	"emprestimos/internal/mirror/postgres"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new mirror factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateMirror implements Factory.CreateMirror
func (f *DefaultFactory) CreateMirror(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case NoMirror:
		f.logger.Info("No mirror configured, sync disabled")
		return &Result{}, nil
	case MemoryMirror:
		return f.createMemoryMirror(config)
	case SheetsMirror:
		return f.createSheetsMirror(ctx, config)
	case PostgresMirror:
		return f.createPostgresMirror(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported mirror type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryMirror(config Config) (*Result, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	store, err := memory.NewFromFiles(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to seed memory mirror: %w", err)
	}

	f.logger.Info("Initialized memory mirror", "data_directory", dataDir)

	return &Result{Mirror: store}, nil
}

func (f *DefaultFactory) createSheetsMirror(ctx context.Context, config Config) (*Result, error) {
	creds := []byte(config.GoogleServiceAccountJSON)
	if len(creds) == 0 {
		b, err := os.ReadFile(config.GoogleServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		creds = b
	}

	cli, err := google.NewWithCredentials(ctx, config.GoogleSpreadsheetID, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets mirror", "spreadsheet_id", config.GoogleSpreadsheetID)

	return &Result{Mirror: cli}, nil
}

func (f *DefaultFactory) createPostgresMirror(ctx context.Context, config Config) (*Result, error) {
	pool, err := postgres.Connect(ctx, config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres mirror: %w", err)
	}

	f.logger.Info("Initialized Postgres mirror")

	return &Result{
		Mirror: postgres.New(pool),
		Cleanup: func() error {
			pool.Close()
			return nil
		},
	}, nil
}
