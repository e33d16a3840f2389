package services

import (
	"context"
	"fmt"

	"emprestimos/internal/mirror"
	"emprestimos/internal/storage"
)

// RecordRow reads one local record and renders it as a mirror row.
func RecordRow(ctx context.Context, repo *storage.SQLiteRepository, table, id string) (mirror.Row, error) {
	switch table {
	case storage.TableClients:
		c, err := repo.GetClient(ctx, id)
		if err != nil {
			return nil, err
		}
		return mirror.ClientRow(c), nil
	case storage.TableLoans:
		l, err := repo.GetLoan(ctx, id)
		if err != nil {
			return nil, err
		}
		return mirror.LoanRow(l), nil
	case storage.TableInstallments:
		i, err := repo.GetInstallment(ctx, id)
		if err != nil {
			return nil, err
		}
		return mirror.InstallmentRow(i), nil
	case storage.TableMovements:
		m, err := repo.GetMovement(ctx, id)
		if err != nil {
			return nil, err
		}
		return mirror.MovementRow(m), nil
	}
	return nil, fmt.Errorf("%w: %q", mirror.ErrUnknownTable, table)
}

// TableRows reads every local record of table as mirror rows.
func TableRows(ctx context.Context, repo *storage.SQLiteRepository, table string) ([]mirror.Row, error) {
	var rows []mirror.Row
	switch table {
	case storage.TableClients:
		list, err := repo.ListClients(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range list {
			rows = append(rows, mirror.ClientRow(c))
		}
	case storage.TableLoans:
		list, err := repo.ListLoans(ctx)
		if err != nil {
			return nil, err
		}
		for _, l := range list {
			rows = append(rows, mirror.LoanRow(l))
		}
	case storage.TableInstallments:
		list, err := repo.ListAllInstallments(ctx)
		if err != nil {
			return nil, err
		}
		for _, i := range list {
			rows = append(rows, mirror.InstallmentRow(i))
		}
	case storage.TableMovements:
		list, err := repo.ListMovements(ctx)
		if err != nil {
			return nil, err
		}
		for _, m := range list {
			rows = append(rows, mirror.MovementRow(m))
		}
	default:
		return nil, fmt.Errorf("%w: %q", mirror.ErrUnknownTable, table)
	}
	return rows, nil
}
