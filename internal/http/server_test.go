package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"emprestimos/internal/core"
	applog "emprestimos/internal/log"
	"emprestimos/internal/metrics"
	"emprestimos/internal/middleware/ratelimit"
	"emprestimos/internal/mirror"
	"emprestimos/internal/schedule"
	"emprestimos/internal/services"
	"emprestimos/internal/storage"
	"emprestimos/internal/workspace"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	now := func() time.Time { return testNow }
	deps := services.Dependencies{
		Storage:    repo,
		Saver:      services.NewSaver(2, nil),
		Workspaces: workspace.NewRegistry(8, time.Minute),
		Now:        now,
	}
	loans := services.NewLoanService(deps)
	svc := Services{
		Clients:      services.NewClientService(deps),
		Loans:        loans,
		Installments: services.NewInstallmentService(deps, loans),
		Movements:    services.NewMovementService(deps),
		Due:          services.NewDueService(deps),
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.Config{Output: io.Discard})
	}
	opts.Now = now
	s := NewServer(":0", svc, opts)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "192.0.2.10:1234"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, Options{})
	if rec := do(t, s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}

	down := newTestServer(t, Options{Ready: func(context.Context) error { return errors.New("db down") }})
	rec := do(t, down, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "db down") {
		t.Fatalf("readyz = %d %s", rec.Code, rec.Body.String())
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	s := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("request id = %q", got)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing nosniff header")
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type = %q", ct)
	}
}

type createdLoan struct {
	Loan struct {
		ID string `json:"id"`
	} `json:"loan"`
	Status       string `json:"status"`
	Installments []struct {
		ID       string `json:"id"`
		Number   int    `json:"number"`
		Nominal  string `json:"nominal"`
		DueDate  string `json:"due_date"`
		State    string `json:"state"`
		DaysLate int    `json:"days_late"`
	} `json:"installments"`
	Totals struct {
		Nominal string `json:"nominal"`
	} `json:"totals"`
	Schedule struct {
		Mode string `json:"mode"`
	} `json:"schedule"`
}

type changed struct {
	Installment struct {
		Updated     string  `json:"updated"`
		Discount    *string `json:"discount"`
		Paid        bool    `json:"paid"`
		PaymentDate string  `json:"payment_date"`
		Residual    string  `json:"residual"`
	} `json:"installment"`
	Totals struct {
		Discount string `json:"discount"`
		Updated  string `json:"updated"`
	} `json:"totals"`
	Warning   string `json:"warning"`
	Saved     bool   `json:"saved"`
	SaveError string `json:"save_error"`
}

func createClientAndLoan(t *testing.T, s *Server) (string, createdLoan) {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/clients", `{"name":"Maria","cpf":"123.456.789-01","city":"Recife"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create client = %d %s", rec.Code, rec.Body.String())
	}
	var client struct {
		ID string `json:"id"`
	}
	decode(t, rec, &client)

	body := fmt.Sprintf(`{"client_id":%q,"principal":"1.000,00","interest":"500,00","term":3,"start_date":"15/01/2025"}`, client.ID)
	rec = do(t, s, http.MethodPost, "/api/loans", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create loan = %d %s", rec.Code, rec.Body.String())
	}
	var loan createdLoan
	decode(t, rec, &loan)
	return client.ID, loan
}

func TestLoanLifecycle(t *testing.T) {
	s := newTestServer(t, Options{})
	clientID, loan := createClientAndLoan(t, s)

	if len(loan.Installments) != 3 || loan.Totals.Nominal != "1500.00" || loan.Schedule.Mode != "flat" {
		t.Fatalf("unexpected loan %+v", loan)
	}
	for _, inst := range loan.Installments {
		if inst.Nominal != "500.00" {
			t.Fatalf("installment %d nominal = %s", inst.Number, inst.Nominal)
		}
	}
	first := loan.Installments[0]
	if first.DueDate != "2025-02-15" || first.State != string(schedule.DueOverdue) || first.DaysLate != 23 {
		t.Fatalf("first installment = %+v", first)
	}
	if loan.Status != string(schedule.LoanLate) {
		t.Fatalf("status = %s", loan.Status)
	}

	second := loan.Installments[1].ID
	path := fmt.Sprintf("/api/loans/%s/installments/%s?wait=true", loan.Loan.ID, second)
	rec := do(t, s, http.MethodPatch, path, `{"field":"discount","value":"50,00"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("edit = %d %s", rec.Code, rec.Body.String())
	}
	var c changed
	decode(t, rec, &c)
	if c.Installment.Updated != "450.00" || c.Totals.Discount != "50.00" || c.Totals.Updated != "1450.00" || !c.Saved {
		t.Fatalf("unexpected change %+v", c)
	}

	rec = do(t, s, http.MethodPatch, path, `{"field":"interest","value":"abc"}`)
	decode(t, rec, &c)
	if rec.Code != http.StatusOK || c.Warning == "" {
		t.Fatalf("expected recoverable warning, got %d %+v", rec.Code, c)
	}

	rec = do(t, s, http.MethodPost, fmt.Sprintf("/api/loans/%s/installments/%s/pay?wait=true", loan.Loan.ID, second), `{"paid":true}`)
	decode(t, rec, &c)
	if rec.Code != http.StatusOK || !c.Installment.Paid || c.Installment.PaymentDate != "2025-03-10" {
		t.Fatalf("pay = %d %+v", rec.Code, c)
	}

	rec = do(t, s, http.MethodGet, "/api/loans/"+loan.Loan.ID+"/installments", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"discount":"50.00"`) {
		t.Fatalf("list installments = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, s, http.MethodGet, "/api/loans?client_id="+clientID, "")
	var loans []struct {
		ID string `json:"id"`
	}
	decode(t, rec, &loans)
	if len(loans) != 1 || loans[0].ID != loan.Loan.ID {
		t.Fatalf("loans = %+v", loans)
	}

	if rec := do(t, s, http.MethodDelete, "/api/clients/"+clientID, ""); rec.Code != http.StatusConflict {
		t.Fatalf("delete client with loans = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodDelete, "/api/loans/"+loan.Loan.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete loan = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/loans/"+loan.Loan.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted loan = %d", rec.Code)
	}
}

func TestPreview(t *testing.T) {
	s := newTestServer(t, Options{})
	tests := []struct {
		name          string
		body          string
		status        int
		payment       string
		totalInterest string
		mode          string
		fellBack      bool
	}{
		{
			name:          "annuity",
			body:          `{"principal":1000,"rate":"2","term":12,"start_date":"2025-01-10","mode":"annuity"}`,
			status:        http.StatusOK,
			payment:       "94.56",
			totalInterest: "134.72",
			mode:          "annuity",
		},
		{
			name:          "zero rate falls back to flat",
			body:          `{"principal":"1.200,00","term":12,"start_date":"2025-01-10","mode":"annuity"}`,
			status:        http.StatusOK,
			payment:       "100.00",
			totalInterest: "0.00",
			mode:          "flat",
			fellBack:      true,
		},
		{
			name:          "numeric principal and rate",
			body:          `{"principal":1200.000,"rate":0.125,"term":12,"start_date":"2025-01-10","mode":"annuity"}`,
			status:        http.StatusOK,
			payment:       "100.81",
			totalInterest: "9.72",
			mode:          "annuity",
		},
		{
			name:   "numeric principal below the cent",
			body:   `{"principal":1000.005,"term":3,"start_date":"2025-01-10"}`,
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "term above the maximum",
			body:   `{"principal":1000,"term":"1000000000","start_date":"2025-01-10"}`,
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "zero term",
			body:   `{"principal":1000,"term":0,"start_date":"2025-01-10"}`,
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "non numeric principal",
			body:   `{"principal":"abc","term":3,"start_date":"2025-01-10"}`,
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "unknown field",
			body:   `{"principal":1000,"term":3,"colour":"red"}`,
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/schedule/preview", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			var res struct {
				Mode          string `json:"mode"`
				FellBack      bool   `json:"fell_back"`
				Payment       string `json:"payment"`
				TotalInterest string `json:"total_interest"`
				Installments  []any  `json:"installments"`
			}
			decode(t, rec, &res)
			if res.Payment != tt.payment || res.TotalInterest != tt.totalInterest || res.Mode != tt.mode || res.FellBack != tt.fellBack {
				t.Fatalf("preview = %+v", res)
			}
			if len(res.Installments) != 12 {
				t.Fatalf("expected 12 rows, got %d", len(res.Installments))
			}
		})
	}
}

func TestMovementsAndReports(t *testing.T) {
	s := newTestServer(t, Options{})
	createClientAndLoan(t, s)

	rec := do(t, s, http.MethodPost, "/api/movements", `{"kind":"in","amount":"250,00","date":"2025-03-01","description":"Aporte"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create movement = %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, s, http.MethodPost, "/api/movements", `{"kind":"sideways","amount":"1","date":"2025-03-01","description":"x"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid kind = %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/movements", "")
	var list struct {
		Movements []movementView `json:"movements"`
		Balance   balanceView    `json:"balance"`
	}
	decode(t, rec, &list)
	if len(list.Movements) != 2 || list.Balance.In != "250.00" || list.Balance.Out != "1000.00" || list.Balance.Net != "-750.00" {
		t.Fatalf("movements = %+v", list)
	}

	rec = do(t, s, http.MethodGet, "/api/due/overdue", "")
	var overdue []struct {
		ClientName string `json:"client_name"`
		DaysLate   int    `json:"days_late"`
	}
	decode(t, rec, &overdue)
	if len(overdue) != 1 || overdue[0].ClientName != "Maria" || overdue[0].DaysLate != 23 {
		t.Fatalf("overdue = %+v", overdue)
	}

	if rec := do(t, s, http.MethodGet, "/api/due/upcoming?days=10", ""); rec.Code != http.StatusOK {
		t.Fatalf("upcoming = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/due/upcoming?days=-1", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("negative days = %d", rec.Code)
	}
	rec = do(t, s, http.MethodGet, "/api/forecast?months=3", "")
	var fc []forecastView
	decode(t, rec, &fc)
	if len(fc) != 3 {
		t.Fatalf("forecast = %+v", fc)
	}
}

func TestSyncWithoutMirror(t *testing.T) {
	s := newTestServer(t, Options{})
	for _, path := range []string{"/api/sync/upload", "/api/sync/download/clientes", "/api/sync/retry"} {
		if rec := do(t, s, http.MethodPost, path, ""); rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s = %d", path, rec.Code)
		}
	}
	if rec := do(t, s, http.MethodGet, "/api/sync/stats", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("stats = %d", rec.Code)
	}
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	s := newTestServer(t, Options{RateLimit: ratelimit.Config{RequestsPerMinute: 2}})
	for i := 0; i < 2; i++ {
		if rec := do(t, s, http.MethodPost, "/api/schedule/preview", `{"principal":1000,"term":3,"start_date":"2025-01-10"}`); rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, rec.Code)
		}
	}
	rec := do(t, s, http.MethodPost, "/api/schedule/preview", `{"principal":1000,"term":3,"start_date":"2025-01-10"}`)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/clients", ""); rec.Code != http.StatusOK {
		t.Fatalf("reads should not be limited, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, Options{Metrics: metrics.New()})
	do(t, s, http.MethodGet, "/api/clients", "")
	rec := do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("/api/clients")) {
		t.Fatalf("metrics = %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("loan x: %w", storage.ErrNotFound), http.StatusNotFound},
		{workspace.ErrInstallmentNotFound, http.StatusNotFound},
		{mirror.ErrUnknownTable, http.StatusNotFound},
		{fmt.Errorf("%w: 2 loan(s)", services.ErrClientHasLoans), http.StatusConflict},
		{services.ErrNoMirror, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: term", schedule.ErrInvalidInput), http.StatusUnprocessableEntity},
		{schedule.ErrUnknownField, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: x", services.ErrValidation), http.StatusUnprocessableEntity},
		{core.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestTextAcceptsStringsAndNumbers(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"1.234,56"`, "1.234,56"},
		{`1234.5`, "1234,5"},
		{`1.500`, "1,5"},
		{`0.125`, "0,125"},
		{`1e3`, "1000"},
		{`12`, "12"},
		{`null`, ""},
		{`"  R$ 10\u0000 "`, "R$ 10"},
	}
	for _, tt := range tests {
		var got text
		if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.in, err)
		}
		if string(got) != tt.want {
			t.Errorf("unmarshal %s = %q, want %q", tt.in, got, tt.want)
		}
	}
	var bad text
	if err := json.Unmarshal([]byte(`true`), &bad); err == nil {
		t.Fatal("expected error for boolean")
	}
}

func TestNumericTermsKeepTheirDecimalPoint(t *testing.T) {
	var req termsRequest
	body := `{"principal": 1.500, "rate": 0.125, "term": 2, "start_date": "2025-01-10", "mode": "annuity"}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatal(err)
	}
	terms, err := schedule.ParseTerms(req.input())
	if err != nil {
		t.Fatal(err)
	}
	if !terms.Principal.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("principal = %s, want 1.5", terms.Principal)
	}
	if !terms.MonthlyRate.Equal(decimal.RequireFromString("0.00125")) {
		t.Errorf("monthly rate = %s, want 0.00125", terms.MonthlyRate)
	}
}
