// Package mirror defines the remote copy of the local tables and the ports
// its adapters implement. Records cross the boundary as Rows: column name to
// text value, with the column set fixed per table by its TableSpec.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownTable = errors.New("unknown mirror table")

// Row is one record keyed by remote column name.
type Row map[string]string

// Key returns the row's identifier under spec.
func (r Row) Key(spec TableSpec) string {
	return strings.TrimSpace(r[spec.Key])
}

// TableSpec describes a mirrored table.
type TableSpec struct {
	Local    string   // local table name
	Remote   string   // remote table or sheet name
	Key      string   // upsert key column
	Columns  []string // every column, key first
	Required []string // rows with any of these blank are not uploaded
}

var specs = map[string]TableSpec{
	"clientes": {
		Local:    "clientes",
		Remote:   "clientes",
		Key:      "id_cliente",
		Columns:  []string{"id_cliente", "nome", "cpf", "telefone", "endereco", "cidade", "indicacao"},
		Required: []string{"id_cliente", "nome"},
	},
	"emprestimos": {
		Local:    "emprestimos",
		Remote:   "Emprestimos",
		Key:      "id",
		Columns:  []string{"id", "id_cliente", "valor", "data_inicio", "parcelas", "observacao", "modo", "taxa", "juros_total"},
		Required: []string{"id", "id_cliente", "valor", "data_inicio", "parcelas"},
	},
	"parcelas": {
		Local:  "parcelas",
		Remote: "Parcelas",
		Key:    "id",
		Columns: []string{"id", "id_emprestimo", "numero", "valor", "vencimento", "juros", "desconto",
			"parcela_atualizada", "valor_pago", "residual", "pago", "data_pagamento", "capital", "juros_parcela"},
		Required: []string{"id", "id_emprestimo", "numero", "valor", "vencimento", "pago"},
	},
	"movimentacoes": {
		Local:    "movimentacoes",
		Remote:   "Movimentacoes",
		Key:      "id",
		Columns:  []string{"id", "tipo", "valor", "data", "descricao", "id_relacionado", "origem"},
		Required: []string{"id", "tipo", "valor", "data", "descricao"},
	},
}

// Spec returns the TableSpec for a local table name.
func Spec(local string) (TableSpec, error) {
	s, ok := specs[local]
	if !ok {
		return TableSpec{}, fmt.Errorf("%w: %q", ErrUnknownTable, local)
	}
	return s, nil
}

// Complete reports whether every required column of row is non-blank.
func (s TableSpec) Complete(row Row) bool {
	for _, c := range s.Required {
		if strings.TrimSpace(row[c]) == "" {
			return false
		}
	}
	return true
}

// FilterComplete keeps rows with all required columns and reports how many
// were dropped.
func (s TableSpec) FilterComplete(rows []Row) (kept []Row, skipped int) {
	kept = make([]Row, 0, len(rows))
	for _, r := range rows {
		if s.Complete(r) {
			kept = append(kept, r)
			continue
		}
		skipped++
	}
	return kept, skipped
}

// Values returns the row's values in column order.
func (s TableSpec) Values(row Row) []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = row[c]
	}
	return out
}

// Ports for mirror adapters.
type (
	// Upserter inserts or updates rows by the table key column and returns
	// how many rows were written.
	Upserter interface {
		Upsert(ctx context.Context, spec TableSpec, rows []Row) (int, error)
	}

	// Deleter removes rows by key. Missing keys are not an error.
	Deleter interface {
		Delete(ctx context.Context, spec TableSpec, keys []string) error
	}

	// Fetcher reads every row of a remote table.
	Fetcher interface {
		Fetch(ctx context.Context, spec TableSpec) ([]Row, error)
	}

	Mirror interface {
		Upserter
		Deleter
		Fetcher
	}
)
