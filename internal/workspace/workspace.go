// Package workspace holds the installments of the loan currently on screen.
//
// A Workspace owns a keyed collection (installment id to record) plus the
// display order. Every edit runs the schedule recalculation before it
// returns, so rows and totals are never observed half-updated.
package workspace

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"emprestimos/internal/cache"
	"emprestimos/internal/core"
	"emprestimos/internal/schedule"
)

var ErrInstallmentNotFound = errors.New("installment not found in workspace")

// Workspace is safe for concurrent use; a single mutex serialises edits.
type Workspace struct {
	mu    sync.RWMutex
	loan  core.Loan
	byID  map[string]*core.Installment
	order []string
	now   func() time.Time
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithClock overrides the clock used to stamp payment dates.
func WithClock(now func() time.Time) Option {
	return func(w *Workspace) { w.now = now }
}

// New loads rows into a workspace ordered by installment number. Rows must
// carry identifiers.
func New(loan core.Loan, rows []core.Installment, opts ...Option) (*Workspace, error) {
	w := &Workspace{loan: loan, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.load(rows); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Workspace) load(rows []core.Installment) error {
	sorted := make([]core.Installment, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	byID := make(map[string]*core.Installment, len(sorted))
	order := make([]string, 0, len(sorted))
	for i := range sorted {
		r := sorted[i]
		if r.ID == "" {
			return fmt.Errorf("installment %d has no identifier", r.Number)
		}
		if _, dup := byID[r.ID]; dup {
			return fmt.Errorf("duplicate installment id %s", r.ID)
		}
		if r.Number != i+1 {
			return fmt.Errorf("installment numbers must be contiguous from 1, got %d at position %d", r.Number, i+1)
		}
		byID[r.ID] = &r
		order = append(order, r.ID)
	}
	w.byID, w.order = byID, order
	return nil
}

func (w *Workspace) Loan() core.Loan {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.loan
}

// Installments returns a copy of the rows in number order.
func (w *Workspace) Installments() []core.Installment {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot()
}

func (w *Workspace) snapshot() []core.Installment {
	out := make([]core.Installment, len(w.order))
	for i, id := range w.order {
		out[i] = *w.byID[id]
	}
	return out
}

func (w *Workspace) Installment(id string) (core.Installment, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	r, ok := w.byID[id]
	if !ok {
		return core.Installment{}, fmt.Errorf("%w: %s", ErrInstallmentNotFound, id)
	}
	return *r, nil
}

// Summary returns the loan, its rows and the totals row from one consistent view.
func (w *Workspace) Summary() core.LoanSummary {
	w.mu.RLock()
	defer w.mu.RUnlock()
	rows := w.snapshot()
	return core.LoanSummary{
		Loan:         w.loan,
		Installments: rows,
		Totals:       schedule.ComputeTotals(rows),
		Status:       string(schedule.StatusOf(rows, core.DateOf(w.now()))),
	}
}

func (w *Workspace) Totals() core.Totals {
	return w.Summary().Totals
}

// Edit writes localized text into a monetary field of one installment and
// recalculates it. An unparseable value is stored as blank and the returned
// error wraps schedule.ErrParseRecoverable; the row and totals are still
// returned and consistent.
func (w *Workspace) Edit(id string, field schedule.Field, text string) (core.Installment, core.Totals, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.byID[id]
	if !ok {
		return core.Installment{}, core.Totals{}, fmt.Errorf("%w: %s", ErrInstallmentNotFound, id)
	}
	edited := *r
	err := schedule.ApplyEdit(&edited, field, text)
	if err != nil && !errors.Is(err, schedule.ErrParseRecoverable) {
		return core.Installment{}, core.Totals{}, err
	}
	*r = edited
	return edited, schedule.ComputeTotals(w.snapshot()), err
}

// TogglePaid marks or unmarks an installment as paid.
func (w *Workspace) TogglePaid(id string, paid bool) (core.Installment, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.byID[id]
	if !ok {
		return core.Installment{}, fmt.Errorf("%w: %s", ErrInstallmentNotFound, id)
	}
	schedule.TogglePaid(r, paid, w.now())
	return *r, nil
}

// Regenerate rebuilds the schedule from new loan terms. Rows whose number
// survives keep their identifier; new rows get one from newID.
func (w *Workspace) Regenerate(loan core.Loan, terms schedule.Terms, newID func() string) (schedule.Result, error) {
	terms.LoanID = loan.ID
	res, err := schedule.Generate(terms)
	if err != nil {
		return schedule.Result{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range res.Installments {
		if i < len(w.order) {
			res.Installments[i].ID = w.order[i]
		} else {
			res.Installments[i].ID = newID()
		}
	}
	if err := w.load(res.Installments); err != nil {
		return schedule.Result{}, err
	}
	loan.Principal = terms.Principal
	loan.StartDate = terms.StartDate
	loan.Term = terms.Term
	loan.MonthlyRate = terms.MonthlyRate
	loan.TotalInterest = res.TotalInterest
	loan.Mode = string(res.Mode)
	w.loan = loan
	return res, nil
}

// Registry keeps recently opened workspaces keyed by loan id. Least
// recently used entries are dropped beyond its capacity; every edit is
// persisted as it happens, so a dropped workspace is simply reloaded.
type Registry struct {
	items *cache.Loading[*Workspace]
}

func NewRegistry(capacity int, ttl time.Duration) *Registry {
	return &Registry{items: cache.NewLoading[*Workspace](capacity, ttl)}
}

func (r *Registry) Get(loanID string) (*Workspace, bool) {
	return r.items.Get(loanID)
}

// Open returns the loan's workspace, calling load at most once for
// concurrent requests on a miss.
func (r *Registry) Open(loanID string, load func() (*Workspace, error)) (*Workspace, error) {
	return r.items.GetOrLoad(loanID, load)
}

func (r *Registry) Put(w *Workspace) {
	r.items.Set(w.Loan().ID, w)
}

func (r *Registry) Drop(loanID string) {
	r.items.Delete(loanID)
}

// Clear drops every open workspace, used after local tables are replaced.
func (r *Registry) Clear() {
	r.items.Purge()
}

// CleanExpired lets a cache.Manager age out idle workspaces.
func (r *Registry) CleanExpired() int {
	return r.items.CleanExpired()
}

func (r *Registry) Len() int {
	return r.items.Size()
}
