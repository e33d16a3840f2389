// Package backend builds the mirror adapter selected by configuration.
package backend

import (
	"context"

	"emprestimos/internal/mirror"
)

// CleanupFunc releases resources held by a mirror.
type CleanupFunc func() error

// Result contains the mirror instance and optional cleanup function. Mirror is
// nil for the "none" type.
type Result struct {
	Mirror  mirror.Mirror
	Cleanup CleanupFunc
}

// Close runs the cleanup function, if any.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates mirrors based on configuration
type Factory interface {
	CreateMirror(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for mirror creation
type Config struct {
	Type MirrorType

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Postgres / Supabase
	PostgresURL string

	// Memory mirror seed directory
	DataDirectory string
}

// MirrorType names a mirror adapter.
type MirrorType string

const (
	NoMirror       MirrorType = "none"
	MemoryMirror   MirrorType = "memory"
	SheetsMirror   MirrorType = "sheets"
	PostgresMirror MirrorType = "postgres"
)

func (mt MirrorType) String() string {
	return string(mt)
}

// IsValid returns true if the mirror type is known
func (mt MirrorType) IsValid() bool {
	switch mt {
	case NoMirror, MemoryMirror, SheetsMirror, PostgresMirror:
		return true
	default:
		return false
	}
}
