package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"emprestimos/internal/core"

	"github.com/shopspring/decimal"
)

// MaxTerm is the longest schedule accepted, fifty years of monthly
// installments.
const MaxTerm = 600

// Terms are the loan parameters a plan is generated from. MonthlyRate is a
// fraction (0.02 for 2% per month).
type Terms struct {
	LoanID        string
	Principal     decimal.Decimal
	TotalInterest decimal.Decimal
	MonthlyRate   decimal.Decimal
	Term          int
	StartDate     core.Date
	Mode          Mode
}

// Result is a generated plan. Mode is the strategy actually used, which
// differs from the requested one when FellBack is set.
type Result struct {
	Installments  []core.Installment
	Mode          Mode
	FellBack      bool
	Payment       decimal.Decimal // first installment's nominal amount
	Total         decimal.Decimal
	TotalInterest decimal.Decimal
}

// Validate checks the terms before any strategy runs.
func (t Terms) Validate() error {
	switch {
	case t.Term <= 0:
		return fmt.Errorf("%w: term must be positive, got %d", ErrInvalidInput, t.Term)
	case t.Term > MaxTerm:
		return fmt.Errorf("%w: term must be at most %d, got %d", ErrInvalidInput, MaxTerm, t.Term)
	case !t.Principal.IsPositive():
		return fmt.Errorf("%w: principal must be positive", ErrInvalidInput)
	case t.TotalInterest.IsNegative():
		return fmt.Errorf("%w: interest cannot be negative", ErrInvalidInput)
	case t.MonthlyRate.IsNegative():
		return fmt.Errorf("%w: rate cannot be negative", ErrInvalidInput)
	case t.StartDate.IsEmpty():
		return fmt.Errorf("%w: start date is required", ErrInvalidInput)
	}
	return nil
}

// Generate produces installments numbered 1..Term, the first due one month
// after the start date and each following one a month later. An annuity
// request with a zero rate falls back to the flat split. Identifiers are left
// blank for the caller to assign.
func Generate(t Terms) (Result, error) {
	if err := t.Validate(); err != nil {
		return Result{}, err
	}
	mode := t.Mode
	if mode == "" {
		mode = ModeFlat
	}
	strategy, err := GetStrategy(mode)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	res := Result{Mode: mode}
	splits, err := strategy.Split(t.Principal, t.TotalInterest, t.MonthlyRate, t.Term)
	if errors.Is(err, ErrDivisionByZero) {
		res.Mode, res.FellBack = ModeFlat, true
		splits, err = Flat{}.Split(t.Principal, t.TotalInterest, t.MonthlyRate, t.Term)
	}
	if err != nil {
		return Result{}, err
	}

	res.Installments = make([]core.Installment, len(splits))
	for i, s := range splits {
		inst := core.Installment{
			LoanID:          t.LoanID,
			Number:          i + 1,
			Nominal:         s.Nominal,
			DueDate:         t.StartDate.AddMonths(i + 1),
			CapitalPortion:  s.Capital,
			InterestPortion: s.Interest,
		}
		Recalculate(&inst)
		res.Installments[i] = inst
		res.Total = res.Total.Add(s.Nominal)
		res.TotalInterest = res.TotalInterest.Add(s.Interest)
	}
	res.Payment = res.Installments[0].Nominal
	return res, nil
}

// TermsInput carries loan form fields as typed by the user. Amounts use the
// localized format; Rate is a percentage ("2,5" for 2.5% per month).
type TermsInput struct {
	LoanID    string
	Principal string
	Interest  string
	Rate      string
	Term      string
	StartDate string
	Mode      string
}

// ParseTerms converts form input into Terms. Unlike field edits, loan
// parameters are a hard gate: any non-numeric value yields ErrInvalidInput.
// Blank interest and rate mean zero.
func ParseTerms(in TermsInput) (Terms, error) {
	principal, err := core.ParseAmount(in.Principal)
	if err != nil {
		return Terms{}, fmt.Errorf("%w: principal %q", ErrInvalidInput, in.Principal)
	}
	t := Terms{LoanID: in.LoanID, Principal: principal}

	if strings.TrimSpace(in.Interest) != "" {
		if t.TotalInterest, err = core.ParseAmount(in.Interest); err != nil {
			return Terms{}, fmt.Errorf("%w: interest %q", ErrInvalidInput, in.Interest)
		}
	}
	if strings.TrimSpace(in.Rate) != "" {
		if t.MonthlyRate, err = core.ParsePercent(in.Rate); err != nil {
			return Terms{}, fmt.Errorf("%w: rate %q", ErrInvalidInput, in.Rate)
		}
	}
	if t.Term, err = strconv.Atoi(strings.TrimSpace(in.Term)); err != nil {
		return Terms{}, fmt.Errorf("%w: term %q", ErrInvalidInput, in.Term)
	}
	if t.StartDate, err = core.ParseDate(in.StartDate); err != nil {
		return Terms{}, fmt.Errorf("%w: start date %q", ErrInvalidInput, in.StartDate)
	}
	if t.Mode, err = ParseMode(in.Mode); err != nil {
		return Terms{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return t, t.Validate()
}
