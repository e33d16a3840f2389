package services

import (
	"context"
	"errors"
	"testing"

	"emprestimos/internal/mirror"
	"emprestimos/internal/mirror/memory"
	"emprestimos/internal/storage"

	"github.com/shopspring/decimal"
)

func TestSyncService_UploadAll(t *testing.T) {
	deps, _ := newTestDeps(t)
	c := createClient(t, deps, "Maria")
	createLoan(t, deps, c.ID)
	store := memory.New()
	svc := NewSyncService(deps, store)

	results, err := svc.UploadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]int{
		storage.TableClients:      1,
		storage.TableLoans:        1,
		storage.TableInstallments: 3,
		storage.TableMovements:    1,
	}
	if len(results) != len(want) {
		t.Fatalf("results = %+v", results)
	}
	for _, r := range results {
		if r.Rows != want[r.Table] || r.Skipped != 0 {
			t.Errorf("%s: rows=%d skipped=%d, want %d", r.Table, r.Rows, r.Skipped, want[r.Table])
		}
	}
}

func TestSyncService_Download(t *testing.T) {
	deps, _ := newTestDeps(t)
	c := createClient(t, deps, "Maria")
	sum := createLoan(t, deps, c.ID)
	store := memory.New()
	svc := NewSyncService(deps, store)
	ctx := context.Background()

	spec, _ := mirror.Spec(storage.TableInstallments)
	remote := mirror.InstallmentRow(sum.Installments[0])
	remote["valor_pago"] = "500,00"
	remote["pago"] = "Sim"
	remote["data_pagamento"] = "20/02/2025"
	broken := mirror.Row{"id": "bad", "id_emprestimo": sum.Loan.ID, "numero": "x", "valor": "1", "vencimento": "2025-01-01", "pago": "Não"}
	if _, err := store.Upsert(ctx, spec, []mirror.Row{remote, broken}); err != nil {
		t.Fatal(err)
	}

	// Open the loan so the download has a workspace to invalidate.
	if _, err := NewLoanService(deps).Get(ctx, sum.Loan.ID); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Download(ctx, storage.TableInstallments)
	if err != nil {
		t.Fatal(err)
	}
	if res.Rows != 1 || res.Skipped != 1 {
		t.Fatalf("result = %+v", res)
	}
	rows, err := deps.Storage.ListInstallments(ctx, sum.Loan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || !rows[0].IsPaid || !rows[0].Residual.Equal(decimal.Zero) {
		t.Fatalf("local rows = %+v", rows)
	}
	if deps.Workspaces.Len() != 0 {
		t.Fatal("download should drop open workspaces")
	}
}

func TestSyncService_NoMirror(t *testing.T) {
	deps, _ := newTestDeps(t)
	svc := NewSyncService(deps, nil)
	if _, err := svc.Upload(context.Background(), storage.TableClients); !errors.Is(err, ErrNoMirror) {
		t.Fatalf("expected ErrNoMirror, got %v", err)
	}
	if _, err := svc.Download(context.Background(), storage.TableClients); !errors.Is(err, ErrNoMirror) {
		t.Fatalf("expected ErrNoMirror, got %v", err)
	}
}
