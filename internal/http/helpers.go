package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"emprestimos/internal/core"
	applog "emprestimos/internal/log"
	"emprestimos/internal/middleware/trace"
	"emprestimos/internal/mirror"
	"emprestimos/internal/schedule"
	"emprestimos/internal/services"
	"emprestimos/internal/storage"
	"emprestimos/internal/workspace"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg, RequestID: trace.GetRequestID(r.Context())})
}

// fail maps a service error to a status code and writes it. Server errors are
// logged with their cause and reported to the client without detail.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		applog.For(r.Context()).LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, operation(r.Method),
			applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", ""))
		writeError(w, r, status, http.StatusText(status))
		return
	}
	writeError(w, r, status, err.Error())
}

func operation(method string) string {
	switch method {
	case http.MethodPost:
		return applog.OpCreate
	case http.MethodPut, http.MethodPatch:
		return applog.OpUpdate
	case http.MethodDelete:
		return applog.OpDelete
	default:
		return applog.OpRead
	}
}

var validationErrors = []error{
	services.ErrValidation,
	schedule.ErrInvalidInput,
	schedule.ErrUnknownField,
	schedule.ErrUnknownMode,
	core.ErrInvalidAmount,
	core.ErrInvalidKind,
	core.ErrInvalidTerm,
	core.ErrEmptyName,
	core.ErrEmptyDescription,
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, workspace.ErrInstallmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, mirror.ErrUnknownTable):
		return http.StatusNotFound
	case errors.Is(err, services.ErrClientHasLoans):
		return http.StatusConflict
	case errors.Is(err, services.ErrNoMirror):
		return http.StatusServiceUnavailable
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var msg string
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			msg = "request body is empty"
		case errors.As(err, &maxErr):
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		default:
			msg = fmt.Sprintf("invalid JSON body: %v", err)
		}
		writeError(w, r, http.StatusBadRequest, msg)
		return false
	}
	return true
}

// text accepts a JSON string or number, so amounts may be sent either as
// localized text ("1.234,56") or as plain numbers. Numbers are rewritten with
// a decimal comma so the localized parser never reads their point as a
// thousands separator.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = text(sanitizeInput(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return fmt.Errorf("invalid number %s", b)
	}
	*t = text(strings.Replace(d.String(), ".", ",", 1))
	return nil
}

func (t text) String() string { return string(t) }

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func pathVar(r *http.Request, name string) string {
	return strings.TrimSpace(mux.Vars(r)[name])
}

// queryInt reads a positive integer parameter, falling back to def when it
// is absent.
func queryInt(r *http.Request, name string, def, max int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > max {
		return 0, fmt.Errorf("%w: %s must be between 0 and %d", services.ErrValidation, name, max)
	}
	return n, nil
}

func queryDate(r *http.Request, name string) (core.Date, error) {
	d, err := core.ParseDate(r.URL.Query().Get(name))
	if err != nil {
		return core.Date{}, fmt.Errorf("%w: %s: %v", services.ErrValidation, name, err)
	}
	return d, nil
}
