// Package services orchestrates the schedule engine, the local store and the
// mirror: loans, installments, clients, movements, due reports and syncing.
package services

import (
	"errors"
	"time"

	"emprestimos/internal/metrics"
	"emprestimos/internal/schedule"
	"emprestimos/internal/storage"
	"emprestimos/internal/workspace"
)

// ErrValidation marks input rejected before anything is stored.
var ErrValidation = errors.New("validation failed")

// Dependencies are the collaborators shared by the services. Storage is
// required; the rest default to no-ops or fresh instances.
type Dependencies struct {
	Storage     *storage.SQLiteRepository
	Publisher   Publisher
	Saver       *Saver
	Metrics     *metrics.Metrics
	Workspaces  *workspace.Registry
	DefaultMode schedule.Mode
	Now         func() time.Time
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Saver == nil {
		d.Saver = NewSaver(4, d.Metrics)
	}
	if d.Workspaces == nil {
		d.Workspaces = workspace.NewRegistry(64, 30*time.Minute)
	}
	if d.DefaultMode == "" {
		d.DefaultMode = schedule.ModeFlat
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}
