package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"emprestimos/internal/core"
	"emprestimos/internal/mirror"
	"emprestimos/internal/storage"
)

var ErrNoMirror = errors.New("no mirror configured")

// SyncService moves whole tables between the local store and the mirror.
type SyncService struct {
	deps   Dependencies
	mirror mirror.Mirror
}

func NewSyncService(deps Dependencies, m mirror.Mirror) *SyncService {
	return &SyncService{deps: deps.withDefaults(), mirror: m}
}

// TableResult reports one table's transfer.
type TableResult struct {
	Table   string `json:"table"`
	Rows    int    `json:"rows"`
	Skipped int    `json:"skipped"`
}

// Upload sends every local record of table to the mirror. Records missing a
// required field are skipped and counted.
func (s *SyncService) Upload(ctx context.Context, table string) (TableResult, error) {
	if s.mirror == nil {
		return TableResult{}, ErrNoMirror
	}
	spec, err := mirror.Spec(table)
	if err != nil {
		return TableResult{}, err
	}
	rows, err := TableRows(ctx, s.deps.Storage, table)
	if err != nil {
		return TableResult{}, fmt.Errorf("read local %s: %w", table, err)
	}
	kept, skipped := spec.FilterComplete(rows)
	if skipped > 0 {
		slog.WarnContext(ctx, "Skipping incomplete records", "table", table, "count", skipped)
	}
	n, err := s.mirror.Upsert(ctx, spec, kept)
	if err != nil {
		return TableResult{}, fmt.Errorf("upload %s: %w", table, err)
	}
	s.deps.Metrics.SyncRows(table, "upload", n)
	slog.InfoContext(ctx, "Table uploaded", "table", table, "rows", n, "skipped", skipped)
	return TableResult{Table: table, Rows: n, Skipped: skipped}, nil
}

// UploadAll uploads every table in dependency order, stopping at the first
// failure.
func (s *SyncService) UploadAll(ctx context.Context) ([]TableResult, error) {
	out := make([]TableResult, 0, len(storage.Tables))
	for _, t := range storage.Tables {
		r, err := s.Upload(ctx, t)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Download replaces the local table with the mirror's rows. Rows that cannot
// be parsed are skipped and counted. Replaced rows are not queued for upload.
func (s *SyncService) Download(ctx context.Context, table string) (TableResult, error) {
	if s.mirror == nil {
		return TableResult{}, ErrNoMirror
	}
	spec, err := mirror.Spec(table)
	if err != nil {
		return TableResult{}, err
	}
	rows, err := s.mirror.Fetch(ctx, spec)
	if err != nil {
		return TableResult{}, fmt.Errorf("download %s: %w", table, err)
	}

	var n, skipped int
	switch table {
	case storage.TableClients:
		var recs []core.Client
		recs, skipped = parseAll(ctx, table, rows, mirror.ParseClient)
		n, err = len(recs), s.deps.Storage.ReplaceClients(ctx, recs)
	case storage.TableLoans:
		var recs []core.Loan
		recs, skipped = parseAll(ctx, table, rows, mirror.ParseLoan)
		n, err = len(recs), s.deps.Storage.ReplaceLoans(ctx, recs)
	case storage.TableInstallments:
		var recs []core.Installment
		recs, skipped = parseAll(ctx, table, rows, mirror.ParseInstallment)
		n, err = len(recs), s.deps.Storage.ReplaceInstallments(ctx, recs)
	case storage.TableMovements:
		var recs []core.Movement
		recs, skipped = parseAll(ctx, table, rows, mirror.ParseMovement)
		n, err = len(recs), s.deps.Storage.ReplaceMovements(ctx, recs)
	}
	if err != nil {
		return TableResult{}, fmt.Errorf("replace local %s: %w", table, err)
	}

	s.deps.Workspaces.Clear()
	s.deps.Metrics.SyncRows(table, "download", n)
	slog.InfoContext(ctx, "Table downloaded", "table", table, "rows", n, "skipped", skipped)
	return TableResult{Table: table, Rows: n, Skipped: skipped}, nil
}

func parseAll[T any](ctx context.Context, table string, rows []mirror.Row, parse func(mirror.Row) (T, error)) ([]T, int) {
	out := make([]T, 0, len(rows))
	skipped := 0
	for i, r := range rows {
		rec, err := parse(r)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable remote row",
				"table", table,
				"row", i+1,
				"error", err)
			skipped++
			continue
		}
		out = append(out, rec)
	}
	return out, skipped
}
