package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"emprestimos/internal/core"
	"emprestimos/internal/storage"
)

var ErrClientHasLoans = errors.New("client has loans")

type ClientService struct {
	deps Dependencies
}

func NewClientService(deps Dependencies) *ClientService {
	return &ClientService{deps: deps.withDefaults()}
}

// ClientInput is the client form. Masked CPF and phone values are accepted
// and stored as digits.
type ClientInput struct {
	Name     string `json:"name"`
	CPF      string `json:"cpf"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Referral string `json:"referral"`
}

func (in ClientInput) client(id string) core.Client {
	return core.Client{
		ID:       id,
		Name:     strings.TrimSpace(in.Name),
		CPF:      core.DigitsOnly(in.CPF),
		Phone:    core.DigitsOnly(in.Phone),
		Address:  strings.TrimSpace(in.Address),
		City:     strings.TrimSpace(in.City),
		Referral: strings.TrimSpace(in.Referral),
	}
}

func (s *ClientService) Create(ctx context.Context, in ClientInput) (core.Client, error) {
	return s.save(ctx, in.client(""))
}

// Update replaces every field of an existing client.
func (s *ClientService) Update(ctx context.Context, id string, in ClientInput) (core.Client, error) {
	if _, err := s.deps.Storage.GetClient(ctx, id); err != nil {
		return core.Client{}, err
	}
	return s.save(ctx, in.client(id))
}

func (s *ClientService) save(ctx context.Context, c core.Client) (core.Client, error) {
	if err := c.Validate(); err != nil {
		return core.Client{}, fmt.Errorf("%w: client: %w", ErrValidation, err)
	}
	saved, err := s.deps.Storage.SaveClient(ctx, c)
	if err != nil {
		return core.Client{}, fmt.Errorf("save client: %w", err)
	}
	notify(ctx, s.deps.Publisher, storage.TableClients, saved.ID, storage.OpSync)
	return saved, nil
}

func (s *ClientService) Get(ctx context.Context, id string) (core.Client, error) {
	return s.deps.Storage.GetClient(ctx, id)
}

func (s *ClientService) List(ctx context.Context) ([]core.Client, error) {
	return s.deps.Storage.ListClients(ctx)
}

// Cities lists the distinct cities on file, for the client form.
func (s *ClientService) Cities(ctx context.Context) ([]string, error) {
	return s.deps.Storage.ListCities(ctx)
}

// Delete removes a client without loans.
func (s *ClientService) Delete(ctx context.Context, id string) error {
	loans, err := s.deps.Storage.ListLoansByClient(ctx, id)
	if err != nil {
		return err
	}
	if len(loans) > 0 {
		return fmt.Errorf("%w: %d loan(s)", ErrClientHasLoans, len(loans))
	}
	if err := s.deps.Storage.DeleteClient(ctx, id); err != nil {
		return err
	}
	notify(ctx, s.deps.Publisher, storage.TableClients, id, storage.OpDelete)
	slog.InfoContext(ctx, "Client deleted", "id", id)
	return nil
}
