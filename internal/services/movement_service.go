package services

import (
	"context"
	"fmt"
	"strings"

	"emprestimos/internal/core"
	"emprestimos/internal/storage"

	"github.com/shopspring/decimal"
)

type MovementService struct {
	deps Dependencies
}

func NewMovementService(deps Dependencies) *MovementService {
	return &MovementService{deps: deps.withDefaults()}
}

// MovementInput is the manual cash movement form. Amount is localized text,
// Date is DD/MM/YYYY or YYYY-MM-DD and defaults to today.
type MovementInput struct {
	Kind        string `json:"kind"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Description string `json:"description"`
	RelatedID   string `json:"related_id"`
}

// Balance sums cash in and out.
type Balance struct {
	In  decimal.Decimal `json:"in"`
	Out decimal.Decimal `json:"out"`
	Net decimal.Decimal `json:"net"`
}

func parseKind(s string) (core.MovementKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in", "entrada":
		return core.MovementIn, nil
	case "out", "saida", "saída":
		return core.MovementOut, nil
	}
	return "", fmt.Errorf("%w: %q", core.ErrInvalidKind, s)
}

func (s *MovementService) Create(ctx context.Context, in MovementInput) (core.Movement, error) {
	kind, err := parseKind(in.Kind)
	if err != nil {
		return core.Movement{}, err
	}
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.Movement{}, fmt.Errorf("%w: %q", core.ErrInvalidAmount, in.Amount)
	}
	date, err := core.ParseDate(in.Date)
	if err != nil {
		return core.Movement{}, fmt.Errorf("%w: date %q: %w", ErrValidation, in.Date, err)
	}
	if date.IsEmpty() {
		date = core.DateOf(s.deps.Now())
	}

	m := core.Movement{
		Kind:        kind,
		Amount:      amount,
		Date:        date,
		Description: strings.TrimSpace(in.Description),
		RelatedID:   strings.TrimSpace(in.RelatedID),
		Origin:      core.OriginManual,
	}
	if err := m.Validate(); err != nil {
		return core.Movement{}, fmt.Errorf("%w: movement: %w", ErrValidation, err)
	}
	saved, err := s.deps.Storage.SaveMovement(ctx, m)
	if err != nil {
		return core.Movement{}, fmt.Errorf("save movement: %w", err)
	}
	notify(ctx, s.deps.Publisher, storage.TableMovements, saved.ID, storage.OpSync)
	return saved, nil
}

// List returns movements dated within [from, to]; empty bounds are open.
func (s *MovementService) List(ctx context.Context, from, to core.Date) ([]core.Movement, error) {
	all, err := s.deps.Storage.ListMovements(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Movement, 0, len(all))
	for _, m := range all {
		if !from.IsEmpty() && m.Date.Before(from.Time) {
			continue
		}
		if !to.IsEmpty() && m.Date.After(to.Time) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *MovementService) Delete(ctx context.Context, id string) error {
	if err := s.deps.Storage.DeleteMovement(ctx, id); err != nil {
		return err
	}
	notify(ctx, s.deps.Publisher, storage.TableMovements, id, storage.OpDelete)
	return nil
}

// Totalize sums movements by kind.
func Totalize(movements []core.Movement) Balance {
	var b Balance
	for _, m := range movements {
		switch m.Kind {
		case core.MovementIn:
			b.In = b.In.Add(m.Amount)
		case core.MovementOut:
			b.Out = b.Out.Add(m.Amount)
		}
	}
	b.Net = b.In.Sub(b.Out)
	return b
}
