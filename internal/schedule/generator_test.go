package schedule

import (
	"errors"
	"testing"

	"emprestimos/internal/core"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestGenerateFlatScenario(t *testing.T) {
	res, err := Generate(Terms{
		Principal:     dec("1000.00"),
		TotalInterest: dec("500.00"),
		Term:          3,
		StartDate:     core.NewDate(2025, 1, 10),
		Mode:          ModeFlat,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Installments) != 3 {
		t.Fatalf("expected 3 installments, got %d", len(res.Installments))
	}
	for i, inst := range res.Installments {
		if inst.Number != i+1 {
			t.Fatalf("row %d has number %d", i, inst.Number)
		}
		if !inst.Nominal.Equal(dec("500")) {
			t.Fatalf("row %d expected 500.00, got %s", i, inst.Nominal)
		}
		if !inst.Updated.Equal(inst.Nominal) || !inst.Residual.Equal(inst.Nominal) {
			t.Fatalf("row %d derived fields not initialised", i)
		}
	}
	if got := ComputeTotals(res.Installments).Nominal; !got.Equal(dec("1500")) {
		t.Fatalf("expected totals 1500.00, got %s", got)
	}
	wantDue := []core.Date{core.NewDate(2025, 2, 10), core.NewDate(2025, 3, 10), core.NewDate(2025, 4, 10)}
	for i, d := range wantDue {
		if !res.Installments[i].DueDate.Equal(d.Time) {
			t.Fatalf("row %d due %s, want %s", i, res.Installments[i].DueDate.ISO(), d.ISO())
		}
	}
}

func TestGenerateFlatSumsExactly(t *testing.T) {
	cases := []struct {
		principal, interest string
		term                int
	}{
		{"1000", "0", 3},
		{"100", "0.01", 7},
		{"999.99", "123.45", 12},
		{"1", "0", 9},
		{"25000", "7321.17", 36},
	}
	for _, tc := range cases {
		res, err := Generate(Terms{
			Principal:     dec(tc.principal),
			TotalInterest: dec(tc.interest),
			Term:          tc.term,
			StartDate:     core.NewDate(2025, 1, 1),
		})
		if err != nil {
			t.Fatalf("%+v: %v", tc, err)
		}
		want := dec(tc.principal).Add(dec(tc.interest))
		share := want.Div(decimal.NewFromInt(int64(tc.term)))
		sum, capital, interest := decimal.Zero, decimal.Zero, decimal.Zero
		for _, inst := range res.Installments {
			sum = sum.Add(inst.Nominal)
			capital = capital.Add(inst.CapitalPortion)
			interest = interest.Add(inst.InterestPortion)
			if inst.Nominal.Sub(share).Abs().GreaterThan(dec("0.01").Mul(decimal.NewFromInt(int64(tc.term)))) {
				t.Fatalf("%+v: installment %s too far from share %s", tc, inst.Nominal, share)
			}
		}
		if !sum.Equal(want) {
			t.Fatalf("%+v: sum %s, want %s", tc, sum, want)
		}
		if !capital.Equal(dec(tc.principal)) || !interest.Equal(dec(tc.interest)) {
			t.Fatalf("%+v: composition capital=%s interest=%s", tc, capital, interest)
		}
	}
}

func TestGenerateFlatFromRate(t *testing.T) {
	res, err := Generate(Terms{
		Principal:   dec("1000"),
		MonthlyRate: dec("0.05"),
		Term:        4,
		StartDate:   core.NewDate(2025, 1, 1),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.TotalInterest.Equal(dec("200")) || !res.Payment.Equal(dec("300")) {
		t.Fatalf("interest=%s payment=%s", res.TotalInterest, res.Payment)
	}
}

func TestGenerateAnnuityScenario(t *testing.T) {
	res, err := Generate(Terms{
		Principal:   dec("1000.00"),
		MonthlyRate: dec("0.02"),
		Term:        12,
		StartDate:   core.NewDate(2025, 1, 1),
		Mode:        ModeAnnuity,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.FellBack || res.Mode != ModeAnnuity {
		t.Fatalf("unexpected fallback")
	}
	if !res.Payment.Equal(dec("94.56")) {
		t.Fatalf("expected payment 94.56, got %s", res.Payment)
	}
	if !res.TotalInterest.Equal(dec("134.72")) {
		t.Fatalf("expected interest 134.72, got %s", res.TotalInterest)
	}
	capital := decimal.Zero
	for i, inst := range res.Installments {
		if !inst.Nominal.Equal(dec("94.56")) {
			t.Fatalf("row %d nominal %s", i, inst.Nominal)
		}
		capital = capital.Add(inst.CapitalPortion)
	}
	if !capital.Equal(dec("1000")) {
		t.Fatalf("capital portions sum to %s", capital)
	}
	// Interest share declines with the balance.
	if !res.Installments[0].InterestPortion.Equal(dec("20")) {
		t.Fatalf("first interest %s", res.Installments[0].InterestPortion)
	}
	if !res.Installments[11].InterestPortion.LessThan(res.Installments[0].InterestPortion) {
		t.Fatalf("interest did not decline")
	}
}

func TestAnnuityIdentities(t *testing.T) {
	one := decimal.NewFromInt(1)
	cases := []struct {
		principal, rate string
		term            int
	}{
		{"1000", "0.02", 12},
		{"5000", "0.035", 24},
		{"750", "0.1", 3},
		{"20000", "0.015", 48},
	}
	for _, tc := range cases {
		p := AnnuityPayment(dec(tc.principal), dec(tc.rate), tc.term)
		res, err := Generate(Terms{
			Principal:   dec(tc.principal),
			MonthlyRate: dec(tc.rate),
			Term:        tc.term,
			StartDate:   core.NewDate(2025, 1, 1),
			Mode:        ModeAnnuity,
		})
		if err != nil {
			t.Fatal(err)
		}
		n := decimal.NewFromInt(int64(tc.term))
		if got := p.Mul(n).Sub(dec(tc.principal)); !got.Equal(res.TotalInterest) {
			t.Fatalf("%+v: p*n-P=%s, interest=%s", tc, got, res.TotalInterest)
		}
		r := dec(tc.rate)
		discount := one.Sub(one.Div(one.Add(r).Pow(n)))
		pv := p.Mul(discount).Div(r)
		// Rounding the payment to cents moves the present value by at most n cents.
		if pv.Sub(dec(tc.principal)).Abs().GreaterThan(dec("0.01").Mul(n)) {
			t.Fatalf("%+v: present value %s", tc, pv)
		}
	}
}

func TestGenerateAnnuityZeroRateFallsBack(t *testing.T) {
	res, err := Generate(Terms{
		Principal: dec("1200"),
		Term:      12,
		StartDate: core.NewDate(2025, 1, 1),
		Mode:      ModeAnnuity,
	})
	if err != nil {
		t.Fatalf("expected fallback, got %v", err)
	}
	if !res.FellBack || res.Mode != ModeFlat {
		t.Fatalf("expected flat fallback, got mode=%s fellBack=%v", res.Mode, res.FellBack)
	}
	if !res.Payment.Equal(dec("100")) {
		t.Fatalf("payment %s", res.Payment)
	}
	if _, err := (Annuity{}).Split(dec("1"), decimal.Zero, decimal.Zero, 1); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("annuity strategy should report division by zero, got %v", err)
	}
}

func TestGenerateSingleInstallment(t *testing.T) {
	for _, mode := range []Mode{ModeFlat, ModeAnnuity} {
		res, err := Generate(Terms{
			Principal:     dec("1000"),
			TotalInterest: dec("100"),
			MonthlyRate:   dec("0.1"),
			Term:          1,
			StartDate:     core.NewDate(2025, 1, 31),
			Mode:          mode,
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Installments) != 1 || !res.Installments[0].Nominal.Equal(dec("1100")) {
			t.Fatalf("%s: %+v", mode, res.Installments)
		}
		if !res.Installments[0].DueDate.Equal(core.NewDate(2025, 2, 28).Time) {
			t.Fatalf("%s: due %s", mode, res.Installments[0].DueDate.ISO())
		}
	}
}

func TestGenerateInvalidInput(t *testing.T) {
	base := Terms{Principal: dec("100"), Term: 2, StartDate: core.NewDate(2025, 1, 1)}
	bads := []func(*Terms){
		func(t *Terms) { t.Term = 0 },
		func(t *Terms) { t.Term = -3 },
		func(t *Terms) { t.Term = MaxTerm + 1 },
		func(t *Terms) { t.Term = 1_000_000_000 },
		func(t *Terms) { t.Principal = decimal.Zero },
		func(t *Terms) { t.TotalInterest = dec("-1") },
		func(t *Terms) { t.MonthlyRate = dec("-0.01") },
		func(t *Terms) { t.StartDate = core.Date{} },
		func(t *Terms) { t.Mode = "balloon" },
	}
	for i, mutate := range bads {
		terms := base
		mutate(&terms)
		if _, err := Generate(terms); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestGenerateMaxTerm(t *testing.T) {
	res, err := Generate(Terms{Principal: dec("6000"), Term: MaxTerm, StartDate: core.NewDate(2025, 1, 31)})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Installments) != MaxTerm {
		t.Fatalf("got %d installments, want %d", len(res.Installments), MaxTerm)
	}
	if last := res.Installments[MaxTerm-1].DueDate; last.Year() != 2075 {
		t.Errorf("last due date = %s, want in 2075", last.ISO())
	}
}

func TestParseTerms(t *testing.T) {
	terms, err := ParseTerms(TermsInput{
		Principal: "1.000,00",
		Rate:      "2",
		Term:      "12",
		StartDate: "01/01/2025",
		Mode:      "Annuity",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !terms.Principal.Equal(dec("1000")) || !terms.MonthlyRate.Equal(dec("0.02")) || terms.Term != 12 || terms.Mode != ModeAnnuity {
		t.Fatalf("unexpected terms %+v", terms)
	}

	bads := []TermsInput{
		{Principal: "abc", Term: "3", StartDate: "2025-01-01"},
		{Principal: "100", Term: "três", StartDate: "2025-01-01"},
		{Principal: "100", Term: "0", StartDate: "2025-01-01"},
		{Principal: "100", Term: "601", StartDate: "2025-01-01"},
		{Principal: "100", Interest: "x", Term: "3", StartDate: "2025-01-01"},
		{Principal: "100", Term: "3", StartDate: "ontem"},
	}
	for i, in := range bads {
		if _, err := ParseTerms(in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d expected ErrInvalidInput, got %v", i, err)
		}
	}
}

type capitalOnly struct{}

func (capitalOnly) Split(principal, _, _ decimal.Decimal, term int) ([]Split, error) {
	return Flat{}.Split(principal, decimal.Zero, decimal.Zero, term)
}

func TestRegisterStrategy(t *testing.T) {
	RegisterStrategy("custom", capitalOnly{})
	t.Cleanup(func() {
		strategiesMu.Lock()
		delete(strategies, "custom")
		strategiesMu.Unlock()
	})
	if _, err := GetStrategy("custom"); err != nil {
		t.Fatal(err)
	}
	if m, err := ParseMode(" CUSTOM "); err != nil || m != "custom" {
		t.Fatalf("got %q %v", m, err)
	}
	if len(Modes()) != 3 {
		t.Fatalf("modes: %v", Modes())
	}
}
