package http

import (
	"net/http"

	"emprestimos/internal/services"
)

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.svc.Clients.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewClients(clients))
}

func (s *Server) handleClientCities(w http.ResponseWriter, r *http.Request) {
	cities, err := s.svc.Clients.Cities(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	if cities == nil {
		cities = []string{}
	}
	writeJSON(w, http.StatusOK, cities)
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Clients.Get(r.Context(), pathVar(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewClient(c))
}

func decodeClient(w http.ResponseWriter, r *http.Request) (services.ClientInput, bool) {
	var in services.ClientInput
	if !decodeJSON(w, r, &in) {
		return in, false
	}
	in.Name = sanitizeInput(in.Name)
	in.CPF = sanitizeInput(in.CPF)
	in.Phone = sanitizeInput(in.Phone)
	in.Address = sanitizeInput(in.Address)
	in.City = sanitizeInput(in.City)
	in.Referral = sanitizeInput(in.Referral)
	return in, true
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeClient(w, r)
	if !ok {
		return
	}
	c, err := s.svc.Clients.Create(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewClient(c))
}

func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeClient(w, r)
	if !ok {
		return
	}
	c, err := s.svc.Clients.Update(r.Context(), pathVar(r, "id"), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewClient(c))
}

func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Clients.Delete(r.Context(), pathVar(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
