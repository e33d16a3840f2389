package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"emprestimos/internal/core"
	"emprestimos/internal/schedule"
	"emprestimos/internal/storage"
)

type published struct {
	table, id, operation string
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) PublishRecordSync(_ context.Context, table, recordID, operation string, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{table, recordID, operation})
	return f.err
}

func (f *fakePublisher) count(table, operation string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.msgs {
		if m.table == table && m.operation == operation {
			n++
		}
	}
	return n
}

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestDeps(t *testing.T) (Dependencies, *fakePublisher) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	pub := &fakePublisher{}
	deps := Dependencies{
		Storage:   repo,
		Publisher: pub,
		Saver:     NewSaver(2, nil),
		Now:       func() time.Time { return testNow },
	}
	return deps.withDefaults(), pub
}

func createClient(t *testing.T, deps Dependencies, name string) core.Client {
	t.Helper()
	c, err := NewClientService(deps).Create(context.Background(), ClientInput{Name: name, CPF: "123.456.789-01", City: "Recife"})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func createLoan(t *testing.T, deps Dependencies, clientID string) core.LoanSummary {
	t.Helper()
	sum, _, err := NewLoanService(deps).Create(context.Background(), CreateLoanInput{
		ClientID: clientID,
		Terms: schedule.TermsInput{
			Principal: "1.000,00",
			Interest:  "500,00",
			Term:      "3",
			StartDate: "15/01/2025",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return sum
}
