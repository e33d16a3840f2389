// Package schedule computes installment plans for a loan and keeps the
// derived fields of existing installments consistent with their inputs.
//
// Two split strategies are registered: flat (equal share of principal plus
// total interest) and annuity (fixed payment over a declining balance). All
// functions are pure and synchronous; persistence belongs to the caller.
package schedule

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"emprestimos/internal/core"

	"github.com/shopspring/decimal"
)

// Mode names a split strategy.
type Mode string

const (
	ModeFlat    Mode = "flat"
	ModeAnnuity Mode = "annuity"
)

// Split is one row of a computed plan before dates and identifiers are attached.
type Split struct {
	Nominal  decimal.Decimal
	Capital  decimal.Decimal
	Interest decimal.Decimal
}

// Strategy turns loan amounts into per-installment splits. Implementations
// receive already validated input: positive principal and term, non-negative
// interest and rate.
type Strategy interface {
	Split(principal, totalInterest, rate decimal.Decimal, term int) ([]Split, error)
}

// Flat divides principal plus total interest evenly. When only a rate is
// given, total interest is principal × rate × term. The last installment
// absorbs the rounding remainder so the plan sums exactly.
type Flat struct{}

func (Flat) Split(principal, totalInterest, rate decimal.Decimal, term int) ([]Split, error) {
	interest := totalInterest
	if interest.IsZero() && rate.IsPositive() {
		interest = core.Round2(principal.Mul(rate).Mul(decimal.NewFromInt(int64(term))))
	}
	n := decimal.NewFromInt(int64(term))
	total := principal.Add(interest)
	share := core.Round2(total.Div(n))
	interestShare := core.Round2(interest.Div(n))

	splits := make([]Split, term)
	for i := range splits {
		nominal, in := share, interestShare
		if i == term-1 {
			rest := decimal.NewFromInt(int64(term - 1))
			nominal = total.Sub(share.Mul(rest))
			in = interest.Sub(interestShare.Mul(rest))
		}
		splits[i] = Split{Nominal: nominal, Interest: in, Capital: nominal.Sub(in)}
	}
	return splits, nil
}

// Annuity charges a fixed payment p = P·r / (1 − (1+r)^−n), rounded to cents.
// Interest of each row is the open balance times r; the last row closes the
// balance so capital sums to the principal.
type Annuity struct{}

func (Annuity) Split(principal, _, rate decimal.Decimal, term int) ([]Split, error) {
	if rate.IsZero() {
		return nil, ErrDivisionByZero
	}
	p := AnnuityPayment(principal, rate, term)

	splits := make([]Split, term)
	balance := principal
	for i := range splits {
		interest := core.Round2(balance.Mul(rate))
		capital := p.Sub(interest)
		if i == term-1 {
			capital = balance
			interest = p.Sub(balance)
		}
		balance = balance.Sub(capital)
		splits[i] = Split{Nominal: p, Capital: capital, Interest: interest}
	}
	return splits, nil
}

// AnnuityPayment returns the fixed installment for principal at rate over term,
// rounded to cents. The caller guarantees rate > 0 and term > 0.
func AnnuityPayment(principal, rate decimal.Decimal, term int) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(rate).Pow(decimal.NewFromInt(int64(term)))
	return core.Round2(principal.Mul(rate).Mul(factor).Div(factor.Sub(decimal.NewFromInt(1))))
}

var (
	strategiesMu sync.RWMutex
	strategies   = map[Mode]Strategy{
		ModeFlat:    Flat{},
		ModeAnnuity: Annuity{},
	}
)

// GetStrategy returns the strategy registered for mode.
func GetStrategy(mode Mode) (Strategy, error) {
	strategiesMu.RLock()
	defer strategiesMu.RUnlock()
	s, ok := strategies[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return s, nil
}

// RegisterStrategy adds or replaces the strategy for mode.
func RegisterStrategy(mode Mode, s Strategy) {
	strategiesMu.Lock()
	defer strategiesMu.Unlock()
	strategies[mode] = s
}

// Modes lists the registered modes in name order.
func Modes() []Mode {
	strategiesMu.RLock()
	defer strategiesMu.RUnlock()
	out := make([]Mode, 0, len(strategies))
	for m := range strategies {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseMode accepts a mode name case-insensitively; blank means flat.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeFlat, nil
	}
	m := Mode(s)
	if _, err := GetStrategy(m); err != nil {
		return "", err
	}
	return m, nil
}
