package services

import (
	"context"
	"sort"

	"emprestimos/internal/core"
	"emprestimos/internal/schedule"
)

// DueService answers the collection reports: installments due soon, overdue
// installments and the expected monthly inflow.
type DueService struct {
	deps Dependencies
}

func NewDueService(deps Dependencies) *DueService {
	return &DueService{deps: deps.withDefaults()}
}

// Upcoming lists unpaid installments due from today through the next days.
func (s *DueService) Upcoming(ctx context.Context, days int) ([]core.DueItem, error) {
	today := core.DateOf(s.deps.Now())
	through := core.DateOf(today.AddDate(0, 0, days))
	rows, err := s.deps.Storage.ListOpenInstallments(ctx, through)
	if err != nil {
		return nil, err
	}
	var open []core.Installment
	for _, r := range rows {
		if !r.DueDate.Before(today.Time) {
			open = append(open, r)
		}
	}
	return s.annotate(ctx, open, today)
}

// Overdue lists unpaid installments past their due date, most late first.
func (s *DueService) Overdue(ctx context.Context) ([]core.DueItem, error) {
	today := core.DateOf(s.deps.Now())
	rows, err := s.deps.Storage.ListOpenInstallments(ctx, core.DateOf(today.AddDate(0, 0, -1)))
	if err != nil {
		return nil, err
	}
	items, err := s.annotate(ctx, rows, today)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].DaysLate > items[j].DaysLate })
	return items, nil
}

// Forecast groups the residual of unpaid installments by due month, from
// the current month for the given number of months. Overdue amounts are
// counted in the current month.
func (s *DueService) Forecast(ctx context.Context, months int) ([]core.MonthForecast, error) {
	if months <= 0 {
		months = 6
	}
	rows, err := s.deps.Storage.ListAllInstallments(ctx)
	if err != nil {
		return nil, err
	}
	return forecast(rows, core.DateOf(s.deps.Now()), months), nil
}

func forecast(rows []core.Installment, today core.Date, months int) []core.MonthForecast {
	start := core.NewDate(today.Year(), int(today.Month()), 1)
	out := make([]core.MonthForecast, months)
	for i := range out {
		m := start.AddMonths(i)
		out[i] = core.MonthForecast{Year: m.Year(), Month: int(m.Month())}
	}
	for _, r := range rows {
		if r.IsPaid || !r.Residual.IsPositive() {
			continue
		}
		idx := monthsBetween(start, r.DueDate)
		if idx < 0 {
			idx = 0
		}
		if idx >= months {
			continue
		}
		out[idx].Expected = out[idx].Expected.Add(r.Residual)
		out[idx].Count++
	}
	return out
}

func monthsBetween(from, to core.Date) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

func (s *DueService) annotate(ctx context.Context, rows []core.Installment, today core.Date) ([]core.DueItem, error) {
	if len(rows) == 0 {
		return []core.DueItem{}, nil
	}
	loans, err := s.deps.Storage.ListLoans(ctx)
	if err != nil {
		return nil, err
	}
	clients, err := s.deps.Storage.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	clientOf := make(map[string]string, len(loans))
	for _, l := range loans {
		clientOf[l.ID] = l.ClientID
	}
	names := make(map[string]string, len(clients))
	for _, c := range clients {
		names[c.ID] = c.Name
	}

	items := make([]core.DueItem, 0, len(rows))
	for _, r := range rows {
		clientID := clientOf[r.LoanID]
		items = append(items, core.DueItem{
			Installment: r,
			ClientID:    clientID,
			ClientName:  names[clientID],
			DaysLate:    schedule.DaysLate(r, today),
		})
	}
	return items, nil
}
