package log

import (
	"context"
	"log/slog"
	"net/http"
)

type loggerKey struct{}

// NewContext returns ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Lookup returns the logger stored by NewContext, if any.
func Lookup(ctx context.Context) (*Logger, bool) {
	logger, ok := ctx.Value(loggerKey{}).(*Logger)
	return logger, ok
}

// FromContext returns the request logger, or the default logger tagged
// "unknown" outside a request.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := Lookup(ctx); ok {
		return logger
	}
	return tagged(slog.Default(), "unknown")
}

// Middleware puts logger in every request context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), logger)))
		})
	}
}

// StructuredLogger writes the fixed-shape records for HTTP and loan events.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// For returns a StructuredLogger over the request logger in ctx.
func For(ctx context.Context) *StructuredLogger {
	return NewStructuredLogger(FromContext(ctx))
}

func (sl *StructuredLogger) log(ctx context.Context, level slog.Level, msg string, fields LogFields) {
	sl.logger.base.LogAttrs(ctx, level, msg, fields.Attrs()...)
}

// LogHTTPEnd logs a finished request: 4xx at warn, 5xx at error.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}
	sl.log(ctx, level, "HTTP request completed", NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Referer()).
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP))
}

// LogLoanCreated logs a generated and stored loan. op is OpGenerate or
// OpRegenerate.
func (sl *StructuredLogger) LogLoanCreated(ctx context.Context, loanID, clientID, principal string, term int, mode, op string) {
	sl.log(ctx, slog.LevelInfo, "Loan schedule stored", NewFields().
		WithLoan(loanID, clientID, principal, term, mode).
		WithOperation(op).
		WithComponent(ComponentLoan))
}

// LogInstallmentChange logs an edit or payment toggle on one installment.
func (sl *StructuredLogger) LogInstallmentChange(ctx context.Context, loanID, installmentID, op, detail string) {
	fields := NewFields().
		WithInstallment(loanID, installmentID).
		WithOperation(op)
	if detail != "" {
		fields = fields.With(FieldDetail, detail)
	}
	sl.log(ctx, slog.LevelInfo, "Installment changed", fields.WithComponent(ComponentSchedule))
}

// LogError logs err with the component and operation it came from.
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	sl.log(ctx, slog.LevelError, msg, fields.
		WithError(err).
		WithOperation(operation).
		WithComponent(component))
}
