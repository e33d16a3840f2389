package schedule

import "errors"

var (
	// ErrInvalidInput blocks generation: non-positive term or principal,
	// negative interest, or non-numeric loan fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDivisionByZero is returned by the annuity strategy for a zero rate.
	// Generate recovers from it by falling back to the flat split.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrParseRecoverable reports a monetary field that could not be parsed.
	// The field has already been treated as empty when it is returned.
	ErrParseRecoverable = errors.New("unparseable amount treated as zero")

	// ErrUnknownMode names a schedule mode with no registered strategy.
	ErrUnknownMode = errors.New("unknown schedule mode")

	// ErrUnknownField names an installment field that cannot be edited.
	ErrUnknownField = errors.New("unknown installment field")
)
