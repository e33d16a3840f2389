package http

import (
	"net/http"

	"emprestimos/internal/core"
	applog "emprestimos/internal/log"
	"emprestimos/internal/schedule"
	"emprestimos/internal/services"
)

// termsRequest is the loan form. Amounts accept localized text or numbers;
// rate is a monthly percentage.
type termsRequest struct {
	Principal text `json:"principal"`
	Interest  text `json:"interest"`
	Rate      text `json:"rate"`
	Term      text `json:"term"`
	StartDate text `json:"start_date"`
	Mode      text `json:"mode"`
}

func (t termsRequest) input() schedule.TermsInput {
	return schedule.TermsInput{
		Principal: t.Principal.String(),
		Interest:  t.Interest.String(),
		Rate:      t.Rate.String(),
		Term:      t.Term.String(),
		StartDate: t.StartDate.String(),
		Mode:      t.Mode.String(),
	}
}

type createLoanRequest struct {
	ClientID string `json:"client_id"`
	Note     string `json:"note"`
	termsRequest
}

type loanCreatedView struct {
	summaryView
	Schedule resultView `json:"schedule"`
}

func logLoan(r *http.Request, l core.Loan, op string) {
	applog.For(r.Context()).LogLoanCreated(r.Context(), l.ID, l.ClientID, core.FormatBRL(l.Principal), l.Term, l.Mode, op)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req termsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.svc.Loans.Preview(req.input())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewResult(res, core.DateOf(s.today()), true))
}

func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	summary, res, err := s.svc.Loans.Create(r.Context(), services.CreateLoanInput{
		ClientID: sanitizeInput(req.ClientID),
		Note:     sanitizeInput(req.Note),
		Terms:    req.input(),
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	logLoan(r, summary.Loan, applog.OpGenerate)
	today := core.DateOf(s.today())
	writeJSON(w, http.StatusCreated, loanCreatedView{
		summaryView: viewSummary(summary, today),
		Schedule:    viewResult(res, today, false),
	})
}

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := s.svc.Loans.List(r.Context(), sanitizeInput(r.URL.Query().Get("client_id")))
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]loanView, 0, len(loans))
	for _, l := range loans {
		out = append(out, viewLoan(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Loans.Get(r.Context(), pathVar(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSummary(summary, core.DateOf(s.today())))
}

func (s *Server) handleDeleteLoan(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Loans.Delete(r.Context(), pathVar(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req termsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	summary, res, err := s.svc.Loans.Regenerate(r.Context(), pathVar(r, "id"), req.input())
	if err != nil {
		fail(w, r, err)
		return
	}
	logLoan(r, summary.Loan, applog.OpRegenerate)
	today := core.DateOf(s.today())
	writeJSON(w, http.StatusOK, loanCreatedView{
		summaryView: viewSummary(summary, today),
		Schedule:    viewResult(res, today, false),
	})
}
