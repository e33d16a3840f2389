package log

import "log/slog"

// Record keys shared across packages.
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldUserAgent     = "user_agent"
	FieldReferer       = "referer"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldDetail        = "detail"
	FieldClientID      = "client_id"
	FieldLoanID        = "loan_id"
	FieldInstallmentID = "installment_id"
	FieldPrincipal     = "principal"
	FieldTerm          = "term"
	FieldMode          = "mode"
)

const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentLoan     = "loan"
	ComponentSchedule = "schedule"
	ComponentStorage  = "storage"
	ComponentWorker   = "worker"
	ComponentMirror   = "mirror"
)

const (
	OpCreate     = "create"
	OpRead       = "read"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpGenerate   = "generate"
	OpRegenerate = "regenerate"
	OpToggle     = "toggle_paid"
)

// LogFields collects attributes for one record in the order they were added.
// Each With call returns the extended list, so calls chain.
type LogFields []slog.Attr

func NewFields() LogFields {
	return make(LogFields, 0, 8)
}

// With appends a free-form attribute.
func (f LogFields) With(key string, value any) LogFields {
	return append(f, slog.Any(key, value))
}

func (f LogFields) WithComponent(component string) LogFields {
	return append(f, slog.String(FieldComponent, component))
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	return append(f, slog.String(FieldRequestID, requestID))
}

func (f LogFields) WithClientIP(ip string) LogFields {
	return append(f, slog.String(FieldClientIP, ip))
}

// WithError is a no-op for a nil err.
func (f LogFields) WithError(err error) LogFields {
	if err == nil {
		return f
	}
	return append(f, slog.String(FieldError, err.Error()))
}

func (f LogFields) WithOperation(op string) LogFields {
	return append(f, slog.String(FieldOperation, op))
}

// WithLoan adds the loan identity and terms. principal is already formatted
// for display.
func (f LogFields) WithLoan(loanID, clientID, principal string, term int, mode string) LogFields {
	return append(f,
		slog.String(FieldLoanID, loanID),
		slog.String(FieldClientID, clientID),
		slog.String(FieldPrincipal, principal),
		slog.Int(FieldTerm, term),
		slog.String(FieldMode, mode))
}

func (f LogFields) WithInstallment(loanID, installmentID string) LogFields {
	return append(f,
		slog.String(FieldLoanID, loanID),
		slog.String(FieldInstallmentID, installmentID))
}

// WithHTTPRequest leaves out an empty user agent or referer.
func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f = append(f,
		slog.String(FieldMethod, method),
		slog.String(FieldPath, path),
		slog.String(FieldQuery, query))
	if userAgent != "" {
		f = append(f, slog.String(FieldUserAgent, userAgent))
	}
	if referer != "" {
		f = append(f, slog.String(FieldReferer, referer))
	}
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	return append(f,
		slog.Int(FieldStatusCode, statusCode),
		slog.Int64(FieldDuration, durationMs),
		slog.Bool(FieldSuccess, success))
}

// Attrs returns the attributes for slog.Logger.LogAttrs.
func (f LogFields) Attrs() []slog.Attr {
	return f
}
