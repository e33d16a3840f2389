// Package memory is an in-process mirror used in development and tests.
package memory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"emprestimos/internal/mirror"
)

type table struct {
	order []string
	rows  map[string]mirror.Row
}

type Store struct {
	mu     sync.Mutex
	tables map[string]*table
}

var _ mirror.Mirror = (*Store)(nil)

func New() *Store {
	return &Store{tables: make(map[string]*table)}
}

// NewFromFiles seeds the store from "<Remote>.csv" files in base, one per
// table, with a header row of column names. Missing files are skipped.
func NewFromFiles(base string) (*Store, error) {
	s := New()
	for _, local := range []string{"clientes", "emprestimos", "parcelas", "movimentacoes"} {
		spec, err := mirror.Spec(local)
		if err != nil {
			return nil, err
		}
		rows, err := readCSV(filepath.Join(base, spec.Remote+".csv"))
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", spec.Remote, err)
		}
		if _, err := s.Upsert(context.Background(), spec, rows); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) get(remote string) *table {
	t, ok := s.tables[remote]
	if !ok {
		t = &table{rows: make(map[string]mirror.Row)}
		s.tables[remote] = t
	}
	return t
}

// Upsert stores copies of the rows keyed by spec.Key. Rows without a key are
// ignored.
func (s *Store) Upsert(_ context.Context, spec mirror.TableSpec, rows []mirror.Row) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.get(spec.Remote)
	written := 0
	for _, r := range rows {
		key := r.Key(spec)
		if key == "" {
			continue
		}
		if _, exists := t.rows[key]; !exists {
			t.order = append(t.order, key)
		}
		cp := make(mirror.Row, len(spec.Columns))
		for _, c := range spec.Columns {
			cp[c] = r[c]
		}
		t.rows[key] = cp
		written++
	}
	return written, nil
}

func (s *Store) Delete(_ context.Context, spec mirror.TableSpec, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.get(spec.Remote)
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := t.rows[k]; ok {
			delete(t.rows, k)
			drop[k] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return nil
	}
	order := t.order[:0]
	for _, k := range t.order {
		if _, gone := drop[k]; !gone {
			order = append(order, k)
		}
	}
	t.order = order
	return nil
}

// Fetch returns copies of the rows in insertion order.
func (s *Store) Fetch(_ context.Context, spec mirror.TableSpec) ([]mirror.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.get(spec.Remote)
	out := make([]mirror.Row, 0, len(t.order))
	for _, k := range t.order {
		cp := make(mirror.Row, len(t.rows[k]))
		for c, v := range t.rows[k] {
			cp[c] = v
		}
		out = append(out, cp)
	}
	return out, nil
}

// Len returns the number of rows stored for a remote table.
func (s *Store) Len(remote string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.get(remote).rows)
}

func readCSV(path string) ([]mirror.Row, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.Comment = '#'
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []mirror.Row
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(mirror.Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
