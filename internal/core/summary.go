package core

import "github.com/shopspring/decimal"

// Totals is the column-wise sum shown below the installment table.
type Totals struct {
	Nominal  decimal.Decimal
	Interest decimal.Decimal
	Discount decimal.Decimal
	Updated  decimal.Decimal
	Paid     decimal.Decimal
	Residual decimal.Decimal

	// Split of Paid into the capital and interest it settled.
	CapitalPaid  decimal.Decimal
	InterestPaid decimal.Decimal

	Count     int
	PaidCount int
}

// LoanSummary bundles a loan with its installments and totals.
type LoanSummary struct {
	Loan         Loan
	Installments []Installment
	Totals       Totals
	Status       string
}

// DueItem is an installment annotated with its loan and client for the
// upcoming/overdue lists.
type DueItem struct {
	Installment Installment
	ClientID    string
	ClientName  string
	DaysLate    int
}

// MonthForecast is the expected inflow for one calendar month.
type MonthForecast struct {
	Year     int
	Month    int // 1-12
	Expected decimal.Decimal
	Count    int
}
