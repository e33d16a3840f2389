// Package core provides money parsing and handling utilities.
//
// Amounts are decimal.Decimal values kept at cent precision. Text input follows
// the Brazilian convention used by the forms: comma as decimal separator and
// period as thousands separator ("1.234,56"), with an optional "R$" prefix.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseAmount converts localized text to a non-negative amount in cents.
// Amounts with significant digits below the cent are rejected.
//
// Examples:
//
//	ParseAmount("1.234,56")   -> 1234.56
//	ParseAmount("R$ 50,00")   -> 50.00
//	ParseAmount("94.56")      -> 94.56 (single dot followed by 1-2 digits is a decimal point)
//	ParseAmount("1.000")      -> 1000
//	ParseAmount("1,500")      -> 1.50
//	ParseAmount("12,345")     -> ErrInvalidAmount (finer than cents)
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := parseLocalized(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.Equal(Round2(d)) {
		return decimal.Zero, ErrInvalidAmount
	}
	return Round2(d), nil
}

// ParsePercent converts localized percent text ("2,5") to a fraction (0.025).
func ParsePercent(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	d, err := parseLocalized(s)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Div(hundred), nil
}

func parseLocalized(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}

	var intPart, fracPart string
	switch commas := strings.Count(s, ","); {
	case commas > 1:
		return decimal.Zero, ErrInvalidAmount
	case commas == 1:
		parts := strings.SplitN(s, ",", 2)
		intPart, fracPart = parts[0], parts[1]
	default:
		intPart = s
		if strings.Count(s, ".") == 1 {
			idx := strings.IndexByte(s, '.')
			// "1.234" is a thousands group, "94.56" or "0.5" a decimal point.
			if len(s)-idx-1 != 3 || idx == 0 {
				intPart, fracPart = s[:idx], s[idx+1:]
			}
		}
	}

	intDigits, ok := ungroup(intPart)
	if !ok || !allDigits(fracPart) {
		return decimal.Zero, ErrInvalidAmount
	}
	if intDigits == "" {
		intDigits = "0"
	}
	num := intDigits
	if fracPart != "" {
		num += "." + fracPart
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ungroup removes period thousands separators, checking every group after the
// first has exactly three digits.
func ungroup(s string) (string, bool) {
	if !strings.Contains(s, ".") {
		return s, allDigits(s)
	}
	groups := strings.Split(s, ".")
	if groups[0] == "" || len(groups[0]) > 3 {
		return "", false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return "", false
		}
	}
	joined := strings.Join(groups, "")
	return joined, allDigits(joined)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Round2 rounds half away from zero to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FormatAmount renders an amount as "1.234,56".
func FormatAmount(d decimal.Decimal) string {
	s := Round2(d).StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := b.String() + "," + frac
	if neg {
		return "-" + out
	}
	return out
}

// FormatBRL renders an amount as "R$ 1.234,56".
func FormatBRL(d decimal.Decimal) string {
	s := FormatAmount(d)
	if strings.HasPrefix(s, "-") {
		return "-R$ " + s[1:]
	}
	return "R$ " + s
}

// FormatOptional renders a blank string for an absent amount.
func FormatOptional(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return FormatAmount(d.Decimal)
}

// ValueOrZero treats an absent amount as zero.
func ValueOrZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}
