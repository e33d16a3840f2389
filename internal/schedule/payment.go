package schedule

import (
	"time"

	"emprestimos/internal/core"
)

// TogglePaid sets the paid flag. Marking paid stamps today's date unless a
// payment date is already present; unmarking clears it. The amount paid is a
// separate field and is left untouched.
func TogglePaid(inst *core.Installment, paid bool, now time.Time) {
	inst.IsPaid = paid
	if !paid {
		inst.PaymentDate = core.Date{}
		return
	}
	if inst.PaymentDate.IsEmpty() {
		inst.PaymentDate = core.DateOf(now)
	}
}
