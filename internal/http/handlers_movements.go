package http

import (
	"net/http"

	"emprestimos/internal/services"
)

type movementRequest struct {
	Kind        string `json:"kind"`
	Amount      text   `json:"amount"`
	Date        string `json:"date"`
	Description string `json:"description"`
	RelatedID   string `json:"related_id"`
}

// handleListMovements lists movements between the optional from and to dates
// together with their balance.
func (s *Server) handleListMovements(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		fail(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		fail(w, r, err)
		return
	}
	ms, err := s.svc.Movements.List(r.Context(), from, to)
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]movementView, 0, len(ms))
	for _, m := range ms {
		out = append(out, viewMovement(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"movements": out,
		"balance":   viewBalance(services.Totalize(ms)),
	})
}

func (s *Server) handleCreateMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := s.svc.Movements.Create(r.Context(), services.MovementInput{
		Kind:        sanitizeInput(req.Kind),
		Amount:      req.Amount.String(),
		Date:        sanitizeInput(req.Date),
		Description: sanitizeInput(req.Description),
		RelatedID:   sanitizeInput(req.RelatedID),
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewMovement(m))
}

func (s *Server) handleDeleteMovement(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Movements.Delete(r.Context(), pathVar(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
