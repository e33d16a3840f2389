package schedule

import (
	"errors"
	"testing"
	"time"

	"emprestimos/internal/core"

	"github.com/shopspring/decimal"
)

func threeRows(t *testing.T) []core.Installment {
	t.Helper()
	res, err := Generate(Terms{
		LoanID:        "loan-1",
		Principal:     dec("1000"),
		TotalInterest: dec("500"),
		Term:          3,
		StartDate:     core.NewDate(2025, 1, 1),
	})
	if err != nil {
		t.Fatal(err)
	}
	return res.Installments
}

func TestApplyEditDiscountScenario(t *testing.T) {
	rows := threeRows(t)
	before := ComputeTotals(rows)

	if err := ApplyEdit(&rows[1], FieldDiscount, "50,00"); err != nil {
		t.Fatal(err)
	}
	if want := rows[1].Nominal.Sub(dec("50")); !rows[1].Updated.Equal(want) {
		t.Fatalf("updated %s, want %s", rows[1].Updated, want)
	}
	if !rows[1].Residual.Equal(rows[1].Updated) {
		t.Fatalf("residual %s", rows[1].Residual)
	}
	for _, i := range []int{0, 2} {
		if !rows[i].Updated.Equal(dec("500")) || rows[i].Discount.Valid {
			t.Fatalf("row %d changed", i)
		}
	}

	after := ComputeTotals(rows)
	if !after.Discount.Equal(dec("50")) {
		t.Fatalf("totals discount %s", after.Discount)
	}
	if !after.Updated.Equal(before.Updated.Sub(dec("50"))) {
		t.Fatalf("totals updated %s", after.Updated)
	}
}

func TestApplyEditKeepsInvariants(t *testing.T) {
	rows := threeRows(t)
	edits := []struct {
		row   int
		field Field
		text  string
	}{
		{0, FieldInterest, "12,50"},
		{0, FieldPaid, "200"},
		{2, FieldNominal, "1.234,56"},
		{2, FieldDiscount, "R$ 10,00"},
		{1, FieldPaid, "600,00"}, // overpayment
	}
	for _, e := range edits {
		if err := ApplyEdit(&rows[e.row], e.field, e.text); err != nil {
			t.Fatalf("%+v: %v", e, err)
		}
	}
	var sumUpdated, sumResidual decimal.Decimal
	for i, r := range rows {
		upd := r.Nominal.Add(core.ValueOrZero(r.Interest)).Sub(core.ValueOrZero(r.Discount))
		if !r.Updated.Equal(upd) {
			t.Fatalf("row %d updated %s != %s", i, r.Updated, upd)
		}
		if !r.Residual.Equal(upd.Sub(core.ValueOrZero(r.Paid))) {
			t.Fatalf("row %d residual %s", i, r.Residual)
		}
		sumUpdated = sumUpdated.Add(r.Updated)
		sumResidual = sumResidual.Add(r.Residual)
	}
	totals := ComputeTotals(rows)
	if !totals.Updated.Equal(sumUpdated) || !totals.Residual.Equal(sumResidual) {
		t.Fatalf("totals out of sync: %+v", totals)
	}
	if !rows[1].Residual.Equal(dec("-100")) {
		t.Fatalf("overpayment should leave a credit, got %s", rows[1].Residual)
	}
}

func TestApplyEditParseFailure(t *testing.T) {
	rows := threeRows(t)
	_ = ApplyEdit(&rows[0], FieldDiscount, "10")

	err := ApplyEdit(&rows[0], FieldDiscount, "dez reais")
	if !errors.Is(err, ErrParseRecoverable) {
		t.Fatalf("expected ErrParseRecoverable, got %v", err)
	}
	if rows[0].Discount.Valid {
		t.Fatalf("unparseable discount should be blank")
	}
	if !rows[0].Updated.Equal(rows[0].Nominal) {
		t.Fatalf("row not recalculated after parse failure")
	}

	err = ApplyEdit(&rows[0], FieldNominal, "??")
	if !errors.Is(err, ErrParseRecoverable) || !rows[0].Nominal.IsZero() {
		t.Fatalf("nominal should fall back to zero, got %s (%v)", rows[0].Nominal, err)
	}
}

func TestApplyEditBlankClears(t *testing.T) {
	rows := threeRows(t)
	_ = ApplyEdit(&rows[0], FieldPaid, "100")
	if err := ApplyEdit(&rows[0], FieldPaid, "  "); err != nil {
		t.Fatal(err)
	}
	if rows[0].Paid.Valid || !rows[0].Residual.Equal(rows[0].Updated) {
		t.Fatalf("blank paid should clear the field")
	}
}

func TestApplyEditUnknownField(t *testing.T) {
	rows := threeRows(t)
	if err := ApplyEdit(&rows[0], "vencimento", "1"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("got %v", err)
	}
	if _, err := ParseField("Desconto"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("got %v", err)
	}
	if f, err := ParseField(" Discount "); err != nil || f != FieldDiscount {
		t.Fatalf("got %q %v", f, err)
	}
}

func TestRecalculateIdempotent(t *testing.T) {
	inst := core.Installment{
		Nominal:  dec("94.56"),
		Interest: decimal.NewNullDecimal(dec("3.10")),
		Discount: decimal.NewNullDecimal(dec("1.00")),
		Paid:     decimal.NewNullDecimal(dec("50")),
	}
	Recalculate(&inst)
	first := inst
	Recalculate(&inst)
	if !inst.Updated.Equal(first.Updated) || !inst.Residual.Equal(first.Residual) {
		t.Fatalf("recalculation not idempotent")
	}
	if !inst.Updated.Equal(dec("96.66")) || !inst.Residual.Equal(dec("46.66")) {
		t.Fatalf("updated=%s residual=%s", inst.Updated, inst.Residual)
	}
}

func TestSplitPaid(t *testing.T) {
	cases := []struct {
		name                      string
		inst                      core.Installment
		wantCapital, wantInterest string
	}{
		{
			name:         "unpaid",
			inst:         core.Installment{InterestPortion: dec("20")},
			wantCapital:  "0",
			wantInterest: "0",
		},
		{
			name:         "full payment",
			inst:         core.Installment{InterestPortion: dec("20"), Paid: decimal.NewNullDecimal(dec("94.56"))},
			wantCapital:  "74.56",
			wantInterest: "20",
		},
		{
			name:         "partial below interest",
			inst:         core.Installment{InterestPortion: dec("20"), Paid: decimal.NewNullDecimal(dec("15"))},
			wantCapital:  "0",
			wantInterest: "15",
		},
		{
			name: "late interest and discount",
			inst: core.Installment{
				InterestPortion: dec("20"),
				Interest:        decimal.NewNullDecimal(dec("5")),
				Discount:        decimal.NewNullDecimal(dec("10")),
				Paid:            decimal.NewNullDecimal(dec("100")),
			},
			wantCapital:  "85",
			wantInterest: "15",
		},
		{
			name: "discount larger than interest",
			inst: core.Installment{
				InterestPortion: dec("20"),
				Discount:        decimal.NewNullDecimal(dec("50")),
				Paid:            decimal.NewNullDecimal(dec("30")),
			},
			wantCapital:  "30",
			wantInterest: "0",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, i := SplitPaid(tc.inst)
			if !c.Equal(dec(tc.wantCapital)) || !i.Equal(dec(tc.wantInterest)) {
				t.Fatalf("capital=%s interest=%s", c, i)
			}
		})
	}
}

func TestComputeTotalsCounts(t *testing.T) {
	rows := threeRows(t)
	TogglePaid(&rows[0], true, time.Date(2025, 2, 1, 15, 0, 0, 0, time.UTC))
	_ = ApplyEdit(&rows[0], FieldPaid, "500")
	totals := ComputeTotals(rows)
	if totals.Count != 3 || totals.PaidCount != 1 {
		t.Fatalf("counts %d/%d", totals.PaidCount, totals.Count)
	}
	if !totals.CapitalPaid.Add(totals.InterestPaid).Equal(totals.Paid) {
		t.Fatalf("paid split does not add up")
	}
	if !totals.InterestPaid.Equal(rows[0].InterestPortion) {
		t.Fatalf("interest paid %s", totals.InterestPaid)
	}
}

func TestTogglePaid(t *testing.T) {
	now := time.Date(2025, 3, 9, 10, 30, 0, 0, time.UTC)
	inst := core.Installment{Paid: decimal.NewNullDecimal(dec("10"))}

	TogglePaid(&inst, true, now)
	if !inst.IsPaid || inst.PaymentDate.Display() != "09/03/2025" {
		t.Fatalf("expected stamp, got %+v", inst.PaymentDate)
	}

	TogglePaid(&inst, true, now.AddDate(0, 0, 5))
	if inst.PaymentDate.Display() != "09/03/2025" {
		t.Fatalf("existing payment date overwritten")
	}

	TogglePaid(&inst, false, now)
	if inst.IsPaid || !inst.PaymentDate.IsEmpty() {
		t.Fatalf("expected cleared date")
	}
	if !inst.Paid.Decimal.Equal(dec("10")) {
		t.Fatalf("amount paid must not change")
	}
}
