package mirror

import (
	"errors"
	"testing"

	"emprestimos/internal/core"

	"github.com/shopspring/decimal"
)

func TestSpecLookup(t *testing.T) {
	s, err := Spec("parcelas")
	if err != nil || s.Remote != "Parcelas" || s.Columns[0] != s.Key {
		t.Fatalf("unexpected spec %+v (%v)", s, err)
	}
	if _, err := Spec("expenses"); !errors.Is(err, ErrUnknownTable) {
		t.Fatalf("got %v", err)
	}
	for _, name := range []string{"clientes", "emprestimos", "parcelas", "movimentacoes"} {
		s, _ := Spec(name)
		if s.Columns[0] != s.Key {
			t.Fatalf("%s: key must be the first column", name)
		}
	}
}

func TestFilterComplete(t *testing.T) {
	s, _ := Spec("clientes")
	rows := []Row{
		{"id_cliente": "1", "nome": "Ana"},
		{"id_cliente": "", "nome": "No id"},
		{"id_cliente": "3", "nome": "  "},
	}
	kept, skipped := s.FilterComplete(rows)
	if len(kept) != 1 || skipped != 2 {
		t.Fatalf("kept %d skipped %d", len(kept), skipped)
	}
}

func TestInstallmentRoundTrip(t *testing.T) {
	in := core.Installment{
		ID:              "i1",
		LoanID:          "l1",
		Number:          2,
		Nominal:         decimal.RequireFromString("94.56"),
		DueDate:         core.NewDate(2025, 3, 1),
		Discount:        decimal.NewNullDecimal(decimal.RequireFromString("5")),
		Paid:            decimal.NewNullDecimal(decimal.RequireFromString("89.56")),
		IsPaid:          true,
		PaymentDate:     core.NewDate(2025, 3, 2),
		CapitalPortion:  decimal.RequireFromString("76.05"),
		InterestPortion: decimal.RequireFromString("18.51"),
	}
	in.Updated = decimal.RequireFromString("89.56")
	in.Residual = decimal.Zero

	row := InstallmentRow(in)
	if row["pago"] != "Sim" || row["juros"] != "" || row["desconto"] != "5.00" {
		t.Fatalf("unexpected row %v", row)
	}
	out, err := ParseInstallment(row)
	if err != nil {
		t.Fatal(err)
	}
	if out.Number != 2 || !out.Nominal.Equal(in.Nominal) || out.Interest.Valid || !out.Discount.Valid ||
		!out.Updated.Equal(in.Updated) || !out.Residual.IsZero() || !out.IsPaid ||
		!out.PaymentDate.Equal(in.PaymentDate.Time) || !out.InterestPortion.Equal(in.InterestPortion) {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestParseInstallmentLegacyRow(t *testing.T) {
	// Rows written by hand: localized amount, display dates, no derived columns.
	out, err := ParseInstallment(Row{
		"id": "x", "id_emprestimo": "l", "numero": "3.0", "valor": "1.234,50",
		"vencimento": "10/04/2025", "pago": "Não", "valor_pago": "",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Number != 3 || !out.Nominal.Equal(decimal.RequireFromString("1234.5")) || out.IsPaid {
		t.Fatalf("unexpected %+v", out)
	}
	if !out.Updated.Equal(out.Nominal) || !out.Residual.Equal(out.Nominal) || !out.CapitalPortion.Equal(out.Nominal) {
		t.Fatalf("derived fields not recomputed: %+v", out)
	}

	if _, err := ParseInstallment(Row{"id": "x", "numero": "um"}); err == nil {
		t.Fatalf("expected error for non-numeric numero")
	}
}

func TestLoanClientMovementRoundTrip(t *testing.T) {
	loan := core.Loan{
		ID: "l", ClientID: "c", Principal: decimal.NewFromInt(1000), StartDate: core.NewDate(2025, 1, 5),
		Term: 12, Mode: "annuity", MonthlyRate: decimal.RequireFromString("0.025"), TotalInterest: decimal.RequireFromString("169.36"),
	}
	gotLoan, err := ParseLoan(LoanRow(loan))
	if err != nil {
		t.Fatal(err)
	}
	if gotLoan.Term != 12 || !gotLoan.MonthlyRate.Equal(loan.MonthlyRate) || !gotLoan.Principal.Equal(loan.Principal) || gotLoan.Mode != "annuity" {
		t.Fatalf("loan mismatch %+v", gotLoan)
	}

	client := core.Client{ID: "c", Name: "Ana", City: "Natal"}
	gotClient, err := ParseClient(ClientRow(client))
	if err != nil || gotClient != client {
		t.Fatalf("client mismatch %+v (%v)", gotClient, err)
	}

	mov := core.Movement{ID: "m", Kind: core.MovementOut, Amount: decimal.NewFromInt(1000), Date: core.NewDate(2025, 1, 5), Description: "d", RelatedID: "l", Origin: core.OriginLoan}
	gotMov, err := ParseMovement(MovementRow(mov))
	if err != nil || gotMov.Kind != core.MovementOut || gotMov.Origin != core.OriginLoan || !gotMov.Amount.Equal(mov.Amount) {
		t.Fatalf("movement mismatch %+v (%v)", gotMov, err)
	}

	legacy, err := ParseMovement(Row{"id": "m2", "tipo": "Entrada", "valor": "50,00", "data": "01/02/2025"})
	if err != nil || legacy.Kind != core.MovementIn || legacy.Origin != core.OriginManual {
		t.Fatalf("legacy movement %+v (%v)", legacy, err)
	}
}
