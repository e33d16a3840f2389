package schedule

import (
	"fmt"
	"strings"

	"emprestimos/internal/core"

	"github.com/shopspring/decimal"
)

// Field is an editable monetary column of an installment.
type Field string

const (
	FieldNominal  Field = "nominal"
	FieldInterest Field = "interest"
	FieldDiscount Field = "discount"
	FieldPaid     Field = "paid"
)

// ParseField maps a column name to a Field.
func ParseField(s string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FieldNominal, FieldInterest, FieldDiscount, FieldPaid:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
}

// ParseAmount parses localized monetary text for an editable field. Blank
// text is an absent value. Unparseable text is also treated as absent and
// reported with ErrParseRecoverable so the caller can warn without rejecting.
func ParseAmount(text string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(text) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := core.ParseAmount(text)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %q", ErrParseRecoverable, text)
	}
	return decimal.NewNullDecimal(d), nil
}

// Recalculate derives the updated amount and the residual from the raw
// fields, in that order. Results are not clamped: a negative value is a credit
// in the client's favour.
func Recalculate(inst *core.Installment) {
	inst.Updated = inst.Nominal.
		Add(core.ValueOrZero(inst.Interest)).
		Sub(core.ValueOrZero(inst.Discount))
	inst.Residual = inst.Updated.Sub(core.ValueOrZero(inst.Paid))
}

// ApplyEdit stores text into field and recalculates the row. A parse failure
// leaves the field empty (zero for the nominal amount), still recalculates,
// and returns an error wrapping ErrParseRecoverable.
func ApplyEdit(inst *core.Installment, field Field, text string) error {
	v, perr := ParseAmount(text)
	switch field {
	case FieldNominal:
		inst.Nominal = core.ValueOrZero(v)
	case FieldInterest:
		inst.Interest = v
	case FieldDiscount:
		inst.Discount = v
	case FieldPaid:
		inst.Paid = v
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	Recalculate(inst)
	return perr
}

// ComputeTotals sums every column across rows. Paid amounts are split
// interest first: a payment settles the row's interest portion plus any
// interest adjustment net of discount, and the remainder counts as capital.
func ComputeTotals(rows []core.Installment) core.Totals {
	var t core.Totals
	for _, r := range rows {
		paid := core.ValueOrZero(r.Paid)
		t.Nominal = t.Nominal.Add(r.Nominal)
		t.Interest = t.Interest.Add(core.ValueOrZero(r.Interest))
		t.Discount = t.Discount.Add(core.ValueOrZero(r.Discount))
		t.Updated = t.Updated.Add(r.Updated)
		t.Paid = t.Paid.Add(paid)
		t.Residual = t.Residual.Add(r.Residual)
		t.Count++
		if r.IsPaid {
			t.PaidCount++
		}

		capital, interest := SplitPaid(r)
		t.CapitalPaid = t.CapitalPaid.Add(capital)
		t.InterestPaid = t.InterestPaid.Add(interest)
	}
	return t
}

// SplitPaid returns how much of the row's paid amount went to capital and to
// interest.
func SplitPaid(r core.Installment) (capital, interest decimal.Decimal) {
	paid := core.ValueOrZero(r.Paid)
	if !paid.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	due := r.InterestPortion.
		Add(core.ValueOrZero(r.Interest)).
		Sub(core.ValueOrZero(r.Discount))
	if due.IsNegative() {
		due = decimal.Zero
	}
	interest = decimal.Min(paid, due)
	return paid.Sub(interest), interest
}
