package mirror

import (
	"fmt"
	"strconv"
	"strings"

	"emprestimos/internal/core"

	"github.com/shopspring/decimal"
)

// Remote rows store amounts as plain decimals ("1234.56"), dates as ISO and
// the paid flag as "Sim"/"Não". Parsing is lenient: localized amounts,
// DD/MM/YYYY dates and boolean spellings written by hand are accepted too.

const (
	paidYes = "Sim"
	paidNo  = "Não"
)

func ClientRow(c core.Client) Row {
	return Row{
		"id_cliente": c.ID,
		"nome":       c.Name,
		"cpf":        c.CPF,
		"telefone":   c.Phone,
		"endereco":   c.Address,
		"cidade":     c.City,
		"indicacao":  c.Referral,
	}
}

func ParseClient(r Row) (core.Client, error) {
	c := core.Client{
		ID:       strings.TrimSpace(r["id_cliente"]),
		Name:     strings.TrimSpace(r["nome"]),
		CPF:      strings.TrimSpace(r["cpf"]),
		Phone:    strings.TrimSpace(r["telefone"]),
		Address:  strings.TrimSpace(r["endereco"]),
		City:     strings.TrimSpace(r["cidade"]),
		Referral: strings.TrimSpace(r["indicacao"]),
	}
	if c.ID == "" {
		return c, fmt.Errorf("client without id_cliente")
	}
	return c, nil
}

func LoanRow(l core.Loan) Row {
	return Row{
		"id":          l.ID,
		"id_cliente":  l.ClientID,
		"valor":       l.Principal.StringFixed(2),
		"data_inicio": l.StartDate.ISO(),
		"parcelas":    strconv.Itoa(l.Term),
		"observacao":  l.Note,
		"modo":        l.Mode,
		"taxa":        l.MonthlyRate.String(),
		"juros_total": l.TotalInterest.StringFixed(2),
	}
}

func ParseLoan(r Row) (core.Loan, error) {
	var (
		l = core.Loan{
			ID:       strings.TrimSpace(r["id"]),
			ClientID: strings.TrimSpace(r["id_cliente"]),
			Note:     r["observacao"],
			Mode:     strings.TrimSpace(r["modo"]),
		}
		err error
	)
	if l.ID == "" {
		return l, fmt.Errorf("loan without id")
	}
	if l.Mode == "" {
		l.Mode = "flat"
	}
	if l.Principal, err = parseAmount("valor", r["valor"]); err != nil {
		return l, err
	}
	if l.StartDate, err = parseDate("data_inicio", r["data_inicio"]); err != nil {
		return l, err
	}
	if l.Term, err = parseInt("parcelas", r["parcelas"]); err != nil {
		return l, err
	}
	if l.MonthlyRate, err = parseRate(r["taxa"]); err != nil {
		return l, err
	}
	if l.TotalInterest, err = parseAmount("juros_total", r["juros_total"]); err != nil {
		return l, err
	}
	return l, nil
}

func InstallmentRow(i core.Installment) Row {
	paid := paidNo
	if i.IsPaid {
		paid = paidYes
	}
	return Row{
		"id":                 i.ID,
		"id_emprestimo":      i.LoanID,
		"numero":             strconv.Itoa(i.Number),
		"valor":              i.Nominal.StringFixed(2),
		"vencimento":         i.DueDate.ISO(),
		"juros":              optional(i.Interest),
		"desconto":           optional(i.Discount),
		"parcela_atualizada": i.Updated.StringFixed(2),
		"valor_pago":         optional(i.Paid),
		"residual":           i.Residual.StringFixed(2),
		"pago":               paid,
		"data_pagamento":     i.PaymentDate.ISO(),
		"capital":            i.CapitalPortion.StringFixed(2),
		"juros_parcela":      i.InterestPortion.StringFixed(2),
	}
}

// ParseInstallment rebuilds an installment. Derived columns are recomputed
// from the raw ones rather than trusted.
func ParseInstallment(r Row) (core.Installment, error) {
	var (
		i = core.Installment{
			ID:     strings.TrimSpace(r["id"]),
			LoanID: strings.TrimSpace(r["id_emprestimo"]),
			IsPaid: parseBool(r["pago"]),
		}
		err error
	)
	if i.ID == "" {
		return i, fmt.Errorf("installment without id")
	}
	if i.Number, err = parseInt("numero", r["numero"]); err != nil {
		return i, err
	}
	if i.Nominal, err = parseAmount("valor", r["valor"]); err != nil {
		return i, err
	}
	if i.DueDate, err = parseDate("vencimento", r["vencimento"]); err != nil {
		return i, err
	}
	if i.PaymentDate, err = parseDate("data_pagamento", r["data_pagamento"]); err != nil {
		return i, err
	}
	for _, f := range []struct {
		col string
		dst *decimal.NullDecimal
	}{
		{"juros", &i.Interest},
		{"desconto", &i.Discount},
		{"valor_pago", &i.Paid},
	} {
		if *f.dst, err = parseOptional(f.col, r[f.col]); err != nil {
			return i, err
		}
	}
	if i.CapitalPortion, err = parseAmount("capital", r["capital"]); err != nil {
		return i, err
	}
	if i.InterestPortion, err = parseAmount("juros_parcela", r["juros_parcela"]); err != nil {
		return i, err
	}
	if i.CapitalPortion.IsZero() && i.InterestPortion.IsZero() {
		i.CapitalPortion = i.Nominal
	}
	i.Updated = i.Nominal.Add(core.ValueOrZero(i.Interest)).Sub(core.ValueOrZero(i.Discount))
	i.Residual = i.Updated.Sub(core.ValueOrZero(i.Paid))
	return i, nil
}

func MovementRow(m core.Movement) Row {
	return Row{
		"id":             m.ID,
		"tipo":           string(m.Kind),
		"valor":          m.Amount.StringFixed(2),
		"data":           m.Date.ISO(),
		"descricao":      m.Description,
		"id_relacionado": m.RelatedID,
		"origem":         string(m.Origin),
	}
}

func ParseMovement(r Row) (core.Movement, error) {
	var (
		m = core.Movement{
			ID:          strings.TrimSpace(r["id"]),
			Kind:        parseKind(r["tipo"]),
			Description: r["descricao"],
			RelatedID:   strings.TrimSpace(r["id_relacionado"]),
			Origin:      core.MovementOrigin(strings.TrimSpace(r["origem"])),
		}
		err error
	)
	if m.ID == "" {
		return m, fmt.Errorf("movement without id")
	}
	if m.Origin == "" {
		m.Origin = core.OriginManual
	}
	if m.Amount, err = parseAmount("valor", r["valor"]); err != nil {
		return m, err
	}
	if m.Date, err = parseDate("data", r["data"]); err != nil {
		return m, err
	}
	return m, nil
}

func optional(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

// parseAmount accepts canonical decimals first, then the localized format.
func parseAmount(col, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return d, nil
	}
	d, err := core.ParseAmount(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("column %s: %q: %w", col, s, err)
	}
	return d, nil
}

func parseOptional(col, s string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := parseAmount(col, s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func parseRate(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("column taxa: %q: %w", s, err)
	}
	return d, nil
}

func parseDate(col, s string) (core.Date, error) {
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, fmt.Errorf("column %s: %w", col, err)
	}
	return d, nil
}

func parseInt(col, s string) (int, error) {
	s = strings.TrimSpace(s)
	// Spreadsheets may hand integers back as "3.0".
	s = strings.TrimSuffix(s, ".0")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("column %s: %q: %w", col, s, err)
	}
	return n, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sim", "s", "true", "1", "yes", "x":
		return true
	}
	return false
}

func parseKind(s string) core.MovementKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in", "entrada":
		return core.MovementIn
	case "out", "saida", "saída":
		return core.MovementOut
	}
	return core.MovementKind(strings.TrimSpace(s))
}
