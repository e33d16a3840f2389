package http

import (
	"net/http"
	"strconv"

	"emprestimos/internal/core"
	applog "emprestimos/internal/log"
	"emprestimos/internal/services"
)

type editRequest struct {
	Field string `json:"field"`
	Value text   `json:"value"`
}

type payRequest struct {
	Paid *bool `json:"paid"`
}

func (s *Server) handleListInstallments(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Loans.Get(r.Context(), pathVar(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	today := core.DateOf(s.today())
	writeJSON(w, http.StatusOK, map[string]any{
		"installments": viewInstallments(summary.Installments, today),
		"totals":       viewTotals(summary.Totals),
	})
}

func (s *Server) handleEditInstallment(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	loanID, id := pathVar(r, "id"), pathVar(r, "iid")
	change, err := s.svc.Installments.Edit(r.Context(), loanID, id, req.Field, req.Value.String())
	if err != nil {
		fail(w, r, err)
		return
	}
	applog.For(r.Context()).LogInstallmentChange(r.Context(), loanID, id, applog.OpUpdate, req.Field)
	s.writeChange(w, r, change)
}

func (s *Server) handlePayInstallment(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Paid == nil {
		writeError(w, r, http.StatusUnprocessableEntity, "paid is required")
		return
	}
	loanID, id := pathVar(r, "id"), pathVar(r, "iid")
	change, err := s.svc.Installments.SetPaid(r.Context(), loanID, id, *req.Paid)
	if err != nil {
		fail(w, r, err)
		return
	}
	applog.For(r.Context()).LogInstallmentChange(r.Context(), loanID, id, applog.OpToggle, strconv.FormatBool(*req.Paid))
	s.writeChange(w, r, change)
}

// writeChange renders an edit result. With ?wait=true the response is held
// until the background save finishes and reports its outcome.
func (s *Server) writeChange(w http.ResponseWriter, r *http.Request, change services.Change) {
	v := changeView{
		Installment: viewInstallment(change.Installment, core.DateOf(s.today())),
		Totals:      viewTotals(change.Totals),
		Warning:     change.Warning,
	}
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait && change.Saved != nil {
		if err := change.Saved.Wait(r.Context()); err != nil {
			v.SaveError = err.Error()
		} else {
			v.Saved = true
		}
	} else if change.Saved != nil {
		select {
		case <-change.Saved.Done():
			if err := change.Saved.Err(); err != nil {
				v.SaveError = err.Error()
			} else {
				v.Saved = true
			}
		default:
		}
	}
	status := http.StatusOK
	if !v.Saved && v.SaveError == "" {
		status = http.StatusAccepted
	}
	writeJSON(w, status, v)
}
