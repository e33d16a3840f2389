package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"emprestimos/internal/core"
	"emprestimos/internal/schedule"
	"emprestimos/internal/storage"
	"emprestimos/internal/workspace"

	"github.com/google/uuid"
)

// LoanService creates loans, generates and regenerates their schedules and
// keeps an open workspace per loan for installment edits.
type LoanService struct {
	deps Dependencies
}

func NewLoanService(deps Dependencies) *LoanService {
	return &LoanService{deps: deps.withDefaults()}
}

// CreateLoanInput is the new-loan form.
type CreateLoanInput struct {
	ClientID string
	Note     string
	Terms    schedule.TermsInput
}

func (s *LoanService) parseTerms(in schedule.TermsInput) (schedule.Terms, error) {
	if strings.TrimSpace(in.Mode) == "" {
		in.Mode = string(s.deps.DefaultMode)
	}
	return schedule.ParseTerms(in)
}

func (s *LoanService) generate(t schedule.Terms) (schedule.Result, error) {
	res, err := schedule.Generate(t)
	if err != nil {
		return schedule.Result{}, err
	}
	s.deps.Metrics.ScheduleGenerated(string(res.Mode), res.FellBack)
	return res, nil
}

// Preview generates a schedule without persisting anything.
func (s *LoanService) Preview(in schedule.TermsInput) (schedule.Result, error) {
	t, err := s.parseTerms(in)
	if err != nil {
		return schedule.Result{}, err
	}
	return s.generate(t)
}

// Create generates the schedule, stores the loan with its installments and
// records the disbursement as an outgoing movement.
func (s *LoanService) Create(ctx context.Context, in CreateLoanInput) (core.LoanSummary, schedule.Result, error) {
	client, err := s.deps.Storage.GetClient(ctx, in.ClientID)
	if err != nil {
		return core.LoanSummary{}, schedule.Result{}, err
	}
	t, err := s.parseTerms(in.Terms)
	if err != nil {
		return core.LoanSummary{}, schedule.Result{}, err
	}
	t.LoanID = uuid.NewString()
	res, err := s.generate(t)
	if err != nil {
		return core.LoanSummary{}, schedule.Result{}, err
	}

	loan := core.Loan{
		ID:            t.LoanID,
		ClientID:      client.ID,
		Principal:     t.Principal,
		StartDate:     t.StartDate,
		Term:          t.Term,
		Note:          strings.TrimSpace(in.Note),
		Mode:          string(res.Mode),
		MonthlyRate:   t.MonthlyRate,
		TotalInterest: res.TotalInterest,
	}
	if err := loan.Validate(); err != nil {
		return core.LoanSummary{}, schedule.Result{}, fmt.Errorf("%w: %v", schedule.ErrInvalidInput, err)
	}

	stored, err := s.deps.Storage.SaveLoan(ctx, loan, res.Installments)
	if err != nil {
		return core.LoanSummary{}, schedule.Result{}, fmt.Errorf("save loan: %w", err)
	}
	disbursement, err := s.deps.Storage.SaveMovement(ctx, core.Movement{
		Kind:        core.MovementOut,
		Amount:      loan.Principal,
		Date:        loan.StartDate,
		Description: truncate("Empréstimo - "+client.Name, 200),
		RelatedID:   loan.ID,
		Origin:      core.OriginLoan,
	})
	if err != nil {
		return core.LoanSummary{}, schedule.Result{}, fmt.Errorf("record disbursement: %w", err)
	}

	ws, err := workspace.New(loan, stored, workspace.WithClock(s.deps.Now))
	if err != nil {
		return core.LoanSummary{}, schedule.Result{}, err
	}
	s.deps.Workspaces.Put(ws)

	notify(ctx, s.deps.Publisher, storage.TableLoans, loan.ID, storage.OpSync)
	for _, inst := range stored {
		notify(ctx, s.deps.Publisher, storage.TableInstallments, inst.ID, storage.OpSync)
	}
	notify(ctx, s.deps.Publisher, storage.TableMovements, disbursement.ID, storage.OpSync)

	slog.InfoContext(ctx, "Loan created",
		"id", loan.ID,
		"client_id", loan.ClientID,
		"mode", loan.Mode,
		"fell_back", res.FellBack,
		"term", loan.Term)
	return ws.Summary(), res, nil
}

// Open returns the loan's workspace, loading it from storage when it is not
// already open.
func (s *LoanService) Open(ctx context.Context, id string) (*workspace.Workspace, error) {
	return s.deps.Workspaces.Open(id, func() (*workspace.Workspace, error) {
		loan, err := s.deps.Storage.GetLoan(ctx, id)
		if err != nil {
			return nil, err
		}
		rows, err := s.deps.Storage.ListInstallments(ctx, id)
		if err != nil {
			return nil, err
		}
		return workspace.New(loan, rows, workspace.WithClock(s.deps.Now))
	})
}

func (s *LoanService) Get(ctx context.Context, id string) (core.LoanSummary, error) {
	ws, err := s.Open(ctx, id)
	if err != nil {
		return core.LoanSummary{}, err
	}
	return ws.Summary(), nil
}

// List returns every loan, or a single client's loans when clientID is set.
func (s *LoanService) List(ctx context.Context, clientID string) ([]core.Loan, error) {
	if clientID != "" {
		return s.deps.Storage.ListLoansByClient(ctx, clientID)
	}
	return s.deps.Storage.ListLoans(ctx)
}

// Regenerate rebuilds the whole schedule from new loan-level terms. Rows that
// survive keep their identifiers; per-row edits are replaced by the new plan.
func (s *LoanService) Regenerate(ctx context.Context, id string, in schedule.TermsInput) (core.LoanSummary, schedule.Result, error) {
	ws, err := s.Open(ctx, id)
	if err != nil {
		return core.LoanSummary{}, schedule.Result{}, err
	}
	in.LoanID = id
	t, err := s.parseTerms(in)
	if err != nil {
		return core.LoanSummary{}, schedule.Result{}, err
	}
	res, err := ws.Regenerate(ws.Loan(), t, uuid.NewString)
	if err != nil {
		return core.LoanSummary{}, schedule.Result{}, err
	}
	s.deps.Metrics.ScheduleGenerated(string(res.Mode), res.FellBack)

	loan := ws.Loan()
	stored, err := s.deps.Storage.SaveLoan(ctx, loan, ws.Installments())
	if err != nil {
		// The workspace no longer matches storage; reload on next access.
		s.deps.Workspaces.Drop(id)
		return core.LoanSummary{}, schedule.Result{}, fmt.Errorf("save regenerated loan: %w", err)
	}

	notify(ctx, s.deps.Publisher, storage.TableLoans, loan.ID, storage.OpSync)
	for _, inst := range stored {
		notify(ctx, s.deps.Publisher, storage.TableInstallments, inst.ID, storage.OpSync)
	}
	slog.InfoContext(ctx, "Loan schedule regenerated",
		"id", loan.ID,
		"mode", loan.Mode,
		"term", loan.Term)
	return ws.Summary(), res, nil
}

// Delete removes the loan and its installments.
func (s *LoanService) Delete(ctx context.Context, id string) error {
	rows, err := s.deps.Storage.ListInstallments(ctx, id)
	if err != nil {
		return err
	}
	if err := s.deps.Storage.DeleteLoan(ctx, id); err != nil {
		return err
	}
	s.deps.Workspaces.Drop(id)
	for _, r := range rows {
		notify(ctx, s.deps.Publisher, storage.TableInstallments, r.ID, storage.OpDelete)
	}
	notify(ctx, s.deps.Publisher, storage.TableLoans, id, storage.OpDelete)
	return nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}
	return s[:cut]
}
