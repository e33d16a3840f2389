package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"emprestimos/internal/core"
	"emprestimos/internal/schedule"
	"emprestimos/internal/storage"
	"emprestimos/internal/workspace"
)

// InstallmentService edits rows of an open loan. Each change is applied to
// the workspace synchronously and persisted in the background; the returned
// Pending reports the save.
type InstallmentService struct {
	deps  Dependencies
	loans *LoanService

	// writeMu orders background writes so the stored row is always the
	// workspace's latest state.
	writeMu sync.Mutex
}

func NewInstallmentService(deps Dependencies, loans *LoanService) *InstallmentService {
	return &InstallmentService{deps: deps.withDefaults(), loans: loans}
}

// Change is the outcome of an edit: the recalculated row, the new totals and
// the background save. Warning is set when the typed value could not be
// parsed and was stored as blank.
type Change struct {
	Installment core.Installment
	Totals      core.Totals
	Warning     string
	Saved       *Pending
}

// Edit writes localized text into a monetary field (nominal, interest,
// discount or paid).
func (s *InstallmentService) Edit(ctx context.Context, loanID, id, field, text string) (Change, error) {
	f, err := schedule.ParseField(field)
	if err != nil {
		return Change{}, err
	}
	ws, err := s.loans.Open(ctx, loanID)
	if err != nil {
		return Change{}, err
	}
	inst, totals, err := ws.Edit(id, f, text)
	var warning string
	switch {
	case errors.Is(err, schedule.ErrParseRecoverable):
		warning = err.Error()
	case err != nil:
		return Change{}, err
	}

	return Change{
		Installment: inst,
		Totals:      totals,
		Warning:     warning,
		Saved:       s.persist(ctx, ws, id, nil),
	}, nil
}

// SetPaid marks or unmarks an installment as paid. Marking a row paid that
// carries an amount paid records the receipt as an incoming movement;
// unmarking it removes that receipt again, so one payment is counted once
// however often it is toggled.
func (s *InstallmentService) SetPaid(ctx context.Context, loanID, id string, paid bool) (Change, error) {
	ws, err := s.loans.Open(ctx, loanID)
	if err != nil {
		return Change{}, err
	}
	before, err := ws.Installment(id)
	if err != nil {
		return Change{}, err
	}
	inst, err := ws.TogglePaid(id, paid)
	if err != nil {
		return Change{}, err
	}

	var ledger func(context.Context) error
	switch {
	case paid && !before.IsPaid && inst.Paid.Valid && inst.Paid.Decimal.IsPositive():
		receipt := core.Movement{
			ID:          receiptID(inst.ID),
			Kind:        core.MovementIn,
			Amount:      inst.Paid.Decimal,
			Date:        inst.PaymentDate,
			Description: fmt.Sprintf("Parcela %d/%d", inst.Number, ws.Loan().Term),
			RelatedID:   inst.ID,
			Origin:      core.OriginInstallment,
		}
		ledger = func(ctx context.Context) error { return s.recordReceipt(ctx, receipt) }
	case !paid && before.IsPaid:
		ledger = func(ctx context.Context) error { return s.dropReceipt(ctx, inst.ID) }
	}

	return Change{
		Installment: inst,
		Totals:      ws.Totals(),
		Saved:       s.persist(ctx, ws, id, ledger),
	}, nil
}

// receiptID derives the movement id of an installment's receipt, so
// recording it again overwrites instead of duplicating.
func receiptID(installmentID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("receipt/"+installmentID)).String()
}

func (s *InstallmentService) recordReceipt(ctx context.Context, receipt core.Movement) error {
	m, err := s.deps.Storage.SaveMovement(ctx, receipt)
	if err != nil {
		return fmt.Errorf("record receipt for installment %s: %w", receipt.RelatedID, err)
	}
	notify(ctx, s.deps.Publisher, storage.TableMovements, m.ID, storage.OpSync)
	return nil
}

// dropReceipt deletes the receipt recorded when the installment was paid.
// A row paid without an amount has none.
func (s *InstallmentService) dropReceipt(ctx context.Context, installmentID string) error {
	id := receiptID(installmentID)
	err := s.deps.Storage.DeleteMovement(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("remove receipt for installment %s: %w", installmentID, err)
	}
	notify(ctx, s.deps.Publisher, storage.TableMovements, id, storage.OpDelete)
	return nil
}

// persist saves the row and then runs ledger, when set, under the same lock.
func (s *InstallmentService) persist(ctx context.Context, ws *workspace.Workspace, id string, ledger func(context.Context) error) *Pending {
	return s.deps.Saver.Submit(ctx, "installment", func(ctx context.Context) error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()

		inst, err := ws.Installment(id)
		if err != nil {
			return err
		}
		if err := s.deps.Storage.SaveInstallment(ctx, inst); err != nil {
			return fmt.Errorf("save installment %s: %w", id, err)
		}
		notify(ctx, s.deps.Publisher, storage.TableInstallments, id, storage.OpSync)
		if ledger == nil {
			return nil
		}
		return ledger(ctx)
	})
}
