package http

import (
	"net/http"

	"emprestimos/internal/core"
)

const (
	defaultUpcomingDays = 7
	maxUpcomingDays     = 366
	defaultForecast     = 6
	maxForecast         = 60
)

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", defaultUpcomingDays, maxUpcomingDays)
	if err != nil {
		fail(w, r, err)
		return
	}
	items, err := s.svc.Due.Upcoming(r.Context(), days)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewDue(items, core.DateOf(s.today())))
}

func (s *Server) handleOverdue(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.Due.Overdue(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewDue(items, core.DateOf(s.today())))
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	months, err := queryInt(r, "months", defaultForecast, maxForecast)
	if err != nil {
		fail(w, r, err)
		return
	}
	fs, err := s.svc.Due.Forecast(r.Context(), months)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewForecast(fs))
}
