package http

import (
	"github.com/shopspring/decimal"

	"emprestimos/internal/core"
	"emprestimos/internal/schedule"
	"emprestimos/internal/services"
)

// Amounts are rendered as fixed two-decimal strings so clients never see
// float rounding. Blank optional fields are null.

func amount(d decimal.Decimal) string {
	return core.Round2(d).StringFixed(2)
}

func optional(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := amount(d.Decimal)
	return &s
}

type clientView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	CPF      string `json:"cpf"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Referral string `json:"referral"`
}

func viewClient(c core.Client) clientView {
	return clientView(c)
}

func viewClients(cs []core.Client) []clientView {
	out := make([]clientView, 0, len(cs))
	for _, c := range cs {
		out = append(out, viewClient(c))
	}
	return out
}

type loanView struct {
	ID            string    `json:"id"`
	ClientID      string    `json:"client_id"`
	Principal     string    `json:"principal"`
	StartDate     core.Date `json:"start_date"`
	Term          int       `json:"term"`
	Note          string    `json:"note"`
	Mode          string    `json:"mode"`
	MonthlyRate   string    `json:"monthly_rate"`
	TotalInterest string    `json:"total_interest"`
}

func viewLoan(l core.Loan) loanView {
	return loanView{
		ID:            l.ID,
		ClientID:      l.ClientID,
		Principal:     amount(l.Principal),
		StartDate:     l.StartDate,
		Term:          l.Term,
		Note:          l.Note,
		Mode:          l.Mode,
		MonthlyRate:   l.MonthlyRate.String(),
		TotalInterest: amount(l.TotalInterest),
	}
}

type installmentView struct {
	ID              string    `json:"id"`
	LoanID          string    `json:"loan_id"`
	Number          int       `json:"number"`
	Nominal         string    `json:"nominal"`
	DueDate         core.Date `json:"due_date"`
	Interest        *string   `json:"interest"`
	Discount        *string   `json:"discount"`
	Updated         string    `json:"updated"`
	Paid            *string   `json:"amount_paid"`
	Residual        string    `json:"residual"`
	IsPaid          bool      `json:"paid"`
	PaymentDate     core.Date `json:"payment_date"`
	CapitalPortion  string    `json:"capital_portion"`
	InterestPortion string    `json:"interest_portion"`
	State           string    `json:"state"`
	DaysLate        int       `json:"days_late"`
}

func viewInstallment(i core.Installment, today core.Date) installmentView {
	return installmentView{
		ID:              i.ID,
		LoanID:          i.LoanID,
		Number:          i.Number,
		Nominal:         amount(i.Nominal),
		DueDate:         i.DueDate,
		Interest:        optional(i.Interest),
		Discount:        optional(i.Discount),
		Updated:         amount(i.Updated),
		Paid:            optional(i.Paid),
		Residual:        amount(i.Residual),
		IsPaid:          i.IsPaid,
		PaymentDate:     i.PaymentDate,
		CapitalPortion:  amount(i.CapitalPortion),
		InterestPortion: amount(i.InterestPortion),
		State:           string(schedule.StateOf(i, today)),
		DaysLate:        schedule.DaysLate(i, today),
	}
}

func viewInstallments(rows []core.Installment, today core.Date) []installmentView {
	out := make([]installmentView, 0, len(rows))
	for _, r := range rows {
		out = append(out, viewInstallment(r, today))
	}
	return out
}

type totalsView struct {
	Nominal      string `json:"nominal"`
	Interest     string `json:"interest"`
	Discount     string `json:"discount"`
	Updated      string `json:"updated"`
	Paid         string `json:"amount_paid"`
	Residual     string `json:"residual"`
	CapitalPaid  string `json:"capital_paid"`
	InterestPaid string `json:"interest_paid"`
	Count        int    `json:"count"`
	PaidCount    int    `json:"paid_count"`
}

func viewTotals(t core.Totals) totalsView {
	return totalsView{
		Nominal:      amount(t.Nominal),
		Interest:     amount(t.Interest),
		Discount:     amount(t.Discount),
		Updated:      amount(t.Updated),
		Paid:         amount(t.Paid),
		Residual:     amount(t.Residual),
		CapitalPaid:  amount(t.CapitalPaid),
		InterestPaid: amount(t.InterestPaid),
		Count:        t.Count,
		PaidCount:    t.PaidCount,
	}
}

type summaryView struct {
	Loan         loanView          `json:"loan"`
	Status       string            `json:"status"`
	Installments []installmentView `json:"installments"`
	Totals       totalsView        `json:"totals"`
}

func viewSummary(s core.LoanSummary, today core.Date) summaryView {
	return summaryView{
		Loan:         viewLoan(s.Loan),
		Status:       s.Status,
		Installments: viewInstallments(s.Installments, today),
		Totals:       viewTotals(s.Totals),
	}
}

type resultView struct {
	Mode          string            `json:"mode"`
	FellBack      bool              `json:"fell_back"`
	Payment       string            `json:"payment"`
	Total         string            `json:"total"`
	TotalInterest string            `json:"total_interest"`
	Installments  []installmentView `json:"installments,omitempty"`
	Totals        *totalsView       `json:"totals,omitempty"`
}

func viewResult(r schedule.Result, today core.Date, withRows bool) resultView {
	v := resultView{
		Mode:          string(r.Mode),
		FellBack:      r.FellBack,
		Payment:       amount(r.Payment),
		Total:         amount(r.Total),
		TotalInterest: amount(r.TotalInterest),
	}
	if withRows {
		v.Installments = viewInstallments(r.Installments, today)
		t := viewTotals(schedule.ComputeTotals(r.Installments))
		v.Totals = &t
	}
	return v
}

type changeView struct {
	Installment installmentView `json:"installment"`
	Totals      totalsView      `json:"totals"`
	Warning     string          `json:"warning,omitempty"`
	Saved       bool            `json:"saved"`
	SaveError   string          `json:"save_error,omitempty"`
}

type movementView struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Amount      string    `json:"amount"`
	Date        core.Date `json:"date"`
	Description string    `json:"description"`
	RelatedID   string    `json:"related_id,omitempty"`
	Origin      string    `json:"origin"`
}

func viewMovement(m core.Movement) movementView {
	return movementView{
		ID:          m.ID,
		Kind:        string(m.Kind),
		Amount:      amount(m.Amount),
		Date:        m.Date,
		Description: m.Description,
		RelatedID:   m.RelatedID,
		Origin:      string(m.Origin),
	}
}

type balanceView struct {
	In  string `json:"in"`
	Out string `json:"out"`
	Net string `json:"net"`
}

func viewBalance(b services.Balance) balanceView {
	return balanceView{In: amount(b.In), Out: amount(b.Out), Net: amount(b.Net)}
}

type dueView struct {
	Installment installmentView `json:"installment"`
	ClientID    string          `json:"client_id"`
	ClientName  string          `json:"client_name"`
	DaysLate    int             `json:"days_late"`
}

func viewDue(items []core.DueItem, today core.Date) []dueView {
	out := make([]dueView, 0, len(items))
	for _, it := range items {
		out = append(out, dueView{
			Installment: viewInstallment(it.Installment, today),
			ClientID:    it.ClientID,
			ClientName:  it.ClientName,
			DaysLate:    it.DaysLate,
		})
	}
	return out
}

type forecastView struct {
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	Expected string `json:"expected"`
	Count    int    `json:"count"`
}

func viewForecast(fs []core.MonthForecast) []forecastView {
	out := make([]forecastView, 0, len(fs))
	for _, f := range fs {
		out = append(out, forecastView{
			Year:     f.Year,
			Month:    f.Month,
			Expected: amount(f.Expected),
			Count:    f.Count,
		})
	}
	return out
}
