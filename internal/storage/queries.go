package storage

import (
	"context"
	"database/sql"
	"fmt"

	"emprestimos/internal/core"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Queries holds the row-level statements. Column lists are spelled out so the
// mapping between records and columns stays explicit.
type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Clients

const upsertClient = `
INSERT INTO clientes (id, nome, cpf, telefone, endereco, cidade, indicacao)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    nome = excluded.nome,
    cpf = excluded.cpf,
    telefone = excluded.telefone,
    endereco = excluded.endereco,
    cidade = excluded.cidade,
    indicacao = excluded.indicacao,
    updated_at = CURRENT_TIMESTAMP`

func (q *Queries) UpsertClient(ctx context.Context, c core.Client) error {
	_, err := q.db.ExecContext(ctx, upsertClient, c.ID, c.Name, c.CPF, c.Phone, c.Address, c.City, c.Referral)
	return err
}

const selectClient = `SELECT COALESCE(id, ''), nome, cpf, telefone, endereco, cidade, indicacao FROM clientes`

func scanClient(row interface{ Scan(...any) error }) (core.Client, error) {
	var c core.Client
	err := row.Scan(&c.ID, &c.Name, &c.CPF, &c.Phone, &c.Address, &c.City, &c.Referral)
	return c, err
}

func (q *Queries) GetClient(ctx context.Context, id string) (core.Client, error) {
	return scanClient(q.db.QueryRowContext(ctx, selectClient+` WHERE id = ?`, id))
}

func (q *Queries) ListClients(ctx context.Context) ([]core.Client, error) {
	rows, err := q.db.QueryContext(ctx, selectClient+` ORDER BY nome COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) ListCities(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT DISTINCT cidade FROM clientes WHERE cidade <> '' ORDER BY cidade COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			return nil, err
		}
		out = append(out, city)
	}
	return out, rows.Err()
}

// Loans

const upsertLoan = `
INSERT INTO emprestimos (id, id_cliente, valor, data_inicio, parcelas, observacao, modo, taxa, juros_total)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    id_cliente = excluded.id_cliente,
    valor = excluded.valor,
    data_inicio = excluded.data_inicio,
    parcelas = excluded.parcelas,
    observacao = excluded.observacao,
    modo = excluded.modo,
    taxa = excluded.taxa,
    juros_total = excluded.juros_total,
    updated_at = CURRENT_TIMESTAMP`

func (q *Queries) UpsertLoan(ctx context.Context, l core.Loan) error {
	_, err := q.db.ExecContext(ctx, upsertLoan,
		l.ID, l.ClientID, amountText(l.Principal), l.StartDate.ISO(), l.Term, l.Note,
		l.Mode, l.MonthlyRate.String(), amountText(l.TotalInterest))
	return err
}

const selectLoan = `SELECT COALESCE(id, ''), id_cliente, valor, data_inicio, parcelas, observacao, modo, taxa, juros_total FROM emprestimos`

func scanLoan(row interface{ Scan(...any) error }) (core.Loan, error) {
	var (
		l                                core.Loan
		principal, start, rate, interest string
		err                              error
	)
	if err = row.Scan(&l.ID, &l.ClientID, &principal, &start, &l.Term, &l.Note, &l.Mode, &rate, &interest); err != nil {
		return l, err
	}
	if l.Principal, err = parseAmountText("valor", principal); err != nil {
		return l, err
	}
	if l.StartDate, err = parseDateText("data_inicio", start); err != nil {
		return l, err
	}
	if l.MonthlyRate, err = parseAmountText("taxa", rate); err != nil {
		return l, err
	}
	if l.TotalInterest, err = parseAmountText("juros_total", interest); err != nil {
		return l, err
	}
	return l, nil
}

func (q *Queries) GetLoan(ctx context.Context, id string) (core.Loan, error) {
	return scanLoan(q.db.QueryRowContext(ctx, selectLoan+` WHERE id = ?`, id))
}

func (q *Queries) listLoans(ctx context.Context, where string, args ...any) ([]core.Loan, error) {
	rows, err := q.db.QueryContext(ctx, selectLoan+where+` ORDER BY data_inicio DESC, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (q *Queries) ListLoans(ctx context.Context) ([]core.Loan, error) {
	return q.listLoans(ctx, "")
}

func (q *Queries) ListLoansByClient(ctx context.Context, clientID string) ([]core.Loan, error) {
	return q.listLoans(ctx, ` WHERE id_cliente = ?`, clientID)
}

// Installments

// Conflicts on (loan, number) keep the stored identifier.
const upsertInstallment = `
INSERT INTO parcelas (id, id_emprestimo, numero, valor, vencimento, juros, desconto,
    parcela_atualizada, valor_pago, residual, pago, data_pagamento, capital, juros_parcela)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id_emprestimo, numero) DO UPDATE SET
    valor = excluded.valor,
    vencimento = excluded.vencimento,
    juros = excluded.juros,
    desconto = excluded.desconto,
    parcela_atualizada = excluded.parcela_atualizada,
    valor_pago = excluded.valor_pago,
    residual = excluded.residual,
    pago = excluded.pago,
    data_pagamento = excluded.data_pagamento,
    capital = excluded.capital,
    juros_parcela = excluded.juros_parcela,
    updated_at = CURRENT_TIMESTAMP`

func (q *Queries) UpsertInstallment(ctx context.Context, i core.Installment) error {
	_, err := q.db.ExecContext(ctx, upsertInstallment,
		i.ID, i.LoanID, i.Number, amountText(i.Nominal), i.DueDate.ISO(),
		nullAmountText(i.Interest), nullAmountText(i.Discount),
		amountText(i.Updated), nullAmountText(i.Paid), amountText(i.Residual),
		boolInt(i.IsPaid), i.PaymentDate.ISO(),
		amountText(i.CapitalPortion), amountText(i.InterestPortion))
	return err
}

// UpdateInstallment rewrites a row by identifier, including its number.
func (q *Queries) UpdateInstallment(ctx context.Context, i core.Installment) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE parcelas SET numero = ?, valor = ?, vencimento = ?, juros = ?, desconto = ?,
    parcela_atualizada = ?, valor_pago = ?, residual = ?, pago = ?, data_pagamento = ?,
    capital = ?, juros_parcela = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?`,
		i.Number, amountText(i.Nominal), i.DueDate.ISO(),
		nullAmountText(i.Interest), nullAmountText(i.Discount),
		amountText(i.Updated), nullAmountText(i.Paid), amountText(i.Residual),
		boolInt(i.IsPaid), i.PaymentDate.ISO(),
		amountText(i.CapitalPortion), amountText(i.InterestPortion), i.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const selectInstallment = `
SELECT COALESCE(id, ''), id_emprestimo, numero, valor, vencimento, juros, desconto,
    parcela_atualizada, valor_pago, residual, pago, data_pagamento, capital, juros_parcela
FROM parcelas`

func scanInstallment(row interface{ Scan(...any) error }) (core.Installment, error) {
	var (
		i                                        core.Installment
		nominal, due, updated, residual, payDate string
		capital, interestPortion                 string
		interest, discount, paid                 sql.NullString
		isPaid                                   int64
		err                                      error
	)
	if err = row.Scan(&i.ID, &i.LoanID, &i.Number, &nominal, &due, &interest, &discount,
		&updated, &paid, &residual, &isPaid, &payDate, &capital, &interestPortion); err != nil {
		return i, err
	}
	i.IsPaid = isPaid != 0

	if i.Nominal, err = parseAmountText("valor", nominal); err != nil {
		return i, err
	}
	if i.Updated, err = parseAmountText("parcela_atualizada", updated); err != nil {
		return i, err
	}
	if i.Residual, err = parseAmountText("residual", residual); err != nil {
		return i, err
	}
	if i.CapitalPortion, err = parseAmountText("capital", capital); err != nil {
		return i, err
	}
	if i.InterestPortion, err = parseAmountText("juros_parcela", interestPortion); err != nil {
		return i, err
	}
	if i.Interest, err = parseNullAmountText("juros", interest); err != nil {
		return i, err
	}
	if i.Discount, err = parseNullAmountText("desconto", discount); err != nil {
		return i, err
	}
	if i.Paid, err = parseNullAmountText("valor_pago", paid); err != nil {
		return i, err
	}
	if i.DueDate, err = parseDateText("vencimento", due); err != nil {
		return i, err
	}
	if i.PaymentDate, err = parseDateText("data_pagamento", payDate); err != nil {
		return i, err
	}
	return i, nil
}

func (q *Queries) GetInstallment(ctx context.Context, id string) (core.Installment, error) {
	return scanInstallment(q.db.QueryRowContext(ctx, selectInstallment+` WHERE id = ?`, id))
}

func (q *Queries) listInstallments(ctx context.Context, tail string, args ...any) ([]core.Installment, error) {
	rows, err := q.db.QueryContext(ctx, selectInstallment+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Installment
	for rows.Next() {
		i, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (q *Queries) ListInstallments(ctx context.Context, loanID string) ([]core.Installment, error) {
	return q.listInstallments(ctx, ` WHERE id_emprestimo = ? ORDER BY numero`, loanID)
}

func (q *Queries) ListAllInstallments(ctx context.Context) ([]core.Installment, error) {
	return q.listInstallments(ctx, ` ORDER BY id_emprestimo, numero`)
}

func (q *Queries) ListOpenInstallments(ctx context.Context, dueBefore string) ([]core.Installment, error) {
	return q.listInstallments(ctx, ` WHERE pago = 0 AND vencimento <= ? ORDER BY vencimento, numero`, dueBefore)
}

// Movements

const upsertMovement = `
INSERT INTO movimentacoes (id, tipo, valor, data, descricao, id_relacionado, origem)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    tipo = excluded.tipo,
    valor = excluded.valor,
    data = excluded.data,
    descricao = excluded.descricao,
    id_relacionado = excluded.id_relacionado,
    origem = excluded.origem,
    updated_at = CURRENT_TIMESTAMP`

func (q *Queries) UpsertMovement(ctx context.Context, m core.Movement) error {
	_, err := q.db.ExecContext(ctx, upsertMovement,
		m.ID, string(m.Kind), amountText(m.Amount), m.Date.ISO(), m.Description, m.RelatedID, string(m.Origin))
	return err
}

const selectMovement = `SELECT COALESCE(id, ''), tipo, valor, data, descricao, id_relacionado, origem FROM movimentacoes`

func scanMovement(row interface{ Scan(...any) error }) (core.Movement, error) {
	var (
		m            core.Movement
		kind, origin string
		amount, date string
		err          error
	)
	if err = row.Scan(&m.ID, &kind, &amount, &date, &m.Description, &m.RelatedID, &origin); err != nil {
		return m, err
	}
	m.Kind, m.Origin = core.MovementKind(kind), core.MovementOrigin(origin)
	if m.Amount, err = parseAmountText("valor", amount); err != nil {
		return m, err
	}
	if m.Date, err = parseDateText("data", date); err != nil {
		return m, err
	}
	return m, nil
}

func (q *Queries) GetMovement(ctx context.Context, id string) (core.Movement, error) {
	return scanMovement(q.db.QueryRowContext(ctx, selectMovement+` WHERE id = ?`, id))
}

func (q *Queries) ListMovements(ctx context.Context) ([]core.Movement, error) {
	rows, err := q.db.QueryContext(ctx, selectMovement+` ORDER BY data DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Generic

func (q *Queries) DeleteByID(ctx context.Context, table, id string) (int64, error) {
	if !isKnownTable(table) {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	res, err := q.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteAll(ctx context.Context, table string) error {
	if !isKnownTable(table) {
		return fmt.Errorf("unknown table %q", table)
	}
	_, err := q.db.ExecContext(ctx, `DELETE FROM `+table)
	return err
}

func isKnownTable(table string) bool {
	for _, t := range Tables {
		if t == table {
			return true
		}
	}
	return false
}
