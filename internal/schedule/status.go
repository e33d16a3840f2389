package schedule

import "emprestimos/internal/core"

// DueState classifies one installment relative to a reference day.
type DueState string

const (
	DuePaid     DueState = "paid"
	DueOverdue  DueState = "overdue"
	DueToday    DueState = "due_today"
	DueUpcoming DueState = "upcoming"
)

// LoanStatus summarises a loan's installments.
type LoanStatus string

const (
	LoanSettled    LoanStatus = "settled"     // every installment paid
	LoanLate       LoanStatus = "late"        // at least one unpaid installment past due
	LoanInProgress LoanStatus = "in_progress" // otherwise
)

// StateOf reports the installment's due state on today.
func StateOf(inst core.Installment, today core.Date) DueState {
	switch {
	case inst.IsPaid:
		return DuePaid
	case inst.DueDate.Before(today.Time):
		return DueOverdue
	case inst.DueDate.Equal(today.Time):
		return DueToday
	default:
		return DueUpcoming
	}
}

// DaysLate is the number of whole days an unpaid installment is past due,
// zero when it is paid or not yet due.
func DaysLate(inst core.Installment, today core.Date) int {
	if StateOf(inst, today) != DueOverdue {
		return 0
	}
	return int(today.Sub(inst.DueDate.Time).Hours() / 24)
}

// StatusOf derives the loan status from its installments. A loan without
// installments is in progress.
func StatusOf(rows []core.Installment, today core.Date) LoanStatus {
	if len(rows) == 0 {
		return LoanInProgress
	}
	settled := true
	for _, r := range rows {
		switch StateOf(r, today) {
		case DueOverdue:
			return LoanLate
		case DuePaid:
		default:
			settled = false
		}
	}
	if settled {
		return LoanSettled
	}
	return LoanInProgress
}
