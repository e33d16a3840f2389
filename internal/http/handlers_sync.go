package http

import (
	"net/http"
	"strings"

	"emprestimos/internal/services"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.svc.Sync == nil {
		fail(w, r, services.ErrNoMirror)
		return
	}
	if table := strings.TrimSpace(r.URL.Query().Get("table")); table != "" {
		res, err := s.svc.Sync.Upload(r.Context(), table)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, []services.TableResult{res})
		return
	}
	results, err := s.svc.Sync.UploadAll(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if s.svc.Sync == nil {
		fail(w, r, services.ErrNoMirror)
		return
	}
	res, err := s.svc.Sync.Download(r.Context(), pathVar(r, "table"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSyncStats(w http.ResponseWriter, r *http.Request) {
	if s.svc.Queue == nil {
		fail(w, r, services.ErrNoMirror)
		return
	}
	stats, err := s.svc.Queue.Stats(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"running": s.svc.Queue.IsRunning(),
		"queue":   stats,
	})
}

func (s *Server) handleSyncRetry(w http.ResponseWriter, r *http.Request) {
	if s.svc.Queue == nil {
		fail(w, r, services.ErrNoMirror)
		return
	}
	n, err := s.svc.Queue.RetryFailed(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"requeued": n})
}
