package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MovementIn  MovementKind = "in"
	MovementOut MovementKind = "out"

	OriginLoan        MovementOrigin = "loan"
	OriginInstallment MovementOrigin = "installment"
	OriginManual      MovementOrigin = "manual"
)

const (
	isoLayout     = "2006-01-02"
	displayLayout = "02/01/2006"
)

type (
	MovementKind   string
	MovementOrigin string

	Date struct {
		time.Time
	}

	Client struct {
		ID       string
		Name     string
		CPF      string
		Phone    string
		Address  string
		City     string
		Referral string // Who referred the client
	}

	Loan struct {
		ID            string
		ClientID      string
		Principal     decimal.Decimal
		StartDate     Date
		Term          int
		Note          string
		Mode          string          // Schedule strategy used at creation
		MonthlyRate   decimal.Decimal // Fraction, 0.02 = 2% per month
		TotalInterest decimal.Decimal
	}

	Installment struct {
		ID       string
		LoanID   string
		Number   int
		Nominal  decimal.Decimal
		DueDate  Date
		Interest decimal.NullDecimal // Late interest adjustment
		Discount decimal.NullDecimal
		Updated  decimal.Decimal
		Paid     decimal.NullDecimal // Amount paid
		Residual decimal.Decimal

		IsPaid      bool
		PaymentDate Date

		// Composition of Nominal as generated by the schedule.
		CapitalPortion  decimal.Decimal
		InterestPortion decimal.Decimal
	}

	Movement struct {
		ID          string
		Kind        MovementKind
		Amount      decimal.Decimal
		Date        Date
		Description string
		RelatedID   string
		Origin      MovementOrigin
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyName        = errors.New("empty name")
	ErrEmptyClient      = errors.New("empty client reference")
	ErrEmptyLoan        = errors.New("empty loan reference")
	ErrInvalidTerm      = errors.New("invalid term")
	ErrInvalidNumber    = errors.New("invalid installment number")
	ErrInvalidKind      = errors.New("invalid movement kind")
	ErrEmptyDescription = errors.New("empty description")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// IsEmpty returns true if the date is zero (optional dates such as payment date)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// ISO formats the date as YYYY-MM-DD, or "" when empty.
func (d Date) ISO() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(isoLayout)
}

// Display formats the date as DD/MM/YYYY, or "" when empty.
func (d Date) Display() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(displayLayout)
}

// AddMonths moves the date n months forward, clamping the day to the
// last day of the target month (Jan 31 + 1 month = Feb 28/29).
func (d Date) AddMonths(n int) Date {
	y, m, day := d.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return NewDate(first.Year(), int(first.Month()), day)
}

// ParseDate accepts YYYY-MM-DD and DD/MM/YYYY. Blank input yields an empty date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	layout := isoLayout
	if strings.Contains(s, "/") {
		layout = displayLayout
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// MarshalText encodes the date as YYYY-MM-DD for JSON.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.ISO()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON overrides the embedded time.Time encoding so dates travel as
// "YYYY-MM-DD" and empty dates as "".
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.ISO())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

func (c Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if c.CPF != "" && len(DigitsOnly(c.CPF)) != 11 {
		return errors.New("cpf must have 11 digits")
	}
	return nil
}

func (l Loan) Validate() error {
	if strings.TrimSpace(l.ClientID) == "" {
		return ErrEmptyClient
	}
	if !l.Principal.IsPositive() {
		return ErrInvalidAmount
	}
	if l.Term <= 0 {
		return ErrInvalidTerm
	}
	if err := l.StartDate.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}
	if l.MonthlyRate.IsNegative() || l.TotalInterest.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

func (i Installment) Validate() error {
	if strings.TrimSpace(i.LoanID) == "" {
		return ErrEmptyLoan
	}
	if i.Number < 1 {
		return ErrInvalidNumber
	}
	if i.Nominal.IsNegative() {
		return ErrInvalidAmount
	}
	for _, v := range []decimal.NullDecimal{i.Interest, i.Discount, i.Paid} {
		if v.Valid && v.Decimal.IsNegative() {
			return ErrInvalidAmount
		}
	}
	return i.DueDate.Validate()
}

func (m Movement) Validate() error {
	switch m.Kind {
	case MovementIn, MovementOut:
	default:
		return ErrInvalidKind
	}
	if !m.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := m.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(m.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(m.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

// DigitsOnly strips every non-digit rune, used for CPF and phone masks.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
