// Package http exposes the lending tracker as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	applog "emprestimos/internal/log"
	"emprestimos/internal/metrics"
	"emprestimos/internal/middleware/ratelimit"
	"emprestimos/internal/middleware/security"
	"emprestimos/internal/middleware/trace"
	"emprestimos/internal/services"
)

// Services are the operations the API serves. Sync and Queue are nil when no
// mirror is configured.
type Services struct {
	Clients      *services.ClientService
	Loans        *services.LoanService
	Installments *services.InstallmentService
	Movements    *services.MovementService
	Due          *services.DueService
	Sync         *services.SyncService
	Queue        *services.SyncProcessor
}

// Options tune the outer layers of the server. Zero values are usable.
type Options struct {
	Logger    *applog.Logger
	Metrics   *metrics.Metrics
	RateLimit ratelimit.Config
	// Ready reports whether dependencies are reachable for /readyz.
	Ready func(ctx context.Context) error
	Now   func() time.Time
}

type Server struct {
	http.Server
	svc         Services
	opts        Options
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector

	shutdownOnce sync.Once
}

func NewServer(addr string, svc Services, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		svc:         svc,
		opts:        opts,
		rateLimiter: ratelimit.NewLimiter(opts.RateLimit),
		detector:    security.NewDetector(),
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "route not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	var observe trace.Observer
	if opts.Metrics != nil {
		observe = opts.Metrics.ObserveHTTP
	}
	httpLogger := opts.Logger.WithComponent(applog.ComponentHTTP)
	router.Use(
		applog.Middleware(httpLogger),
		trace.NewMiddleware(httpLogger, s.detector.ExtractClientIP, observe).Middleware,
		security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware,
		s.detector.Middleware,
		s.rateLimiter.Middleware(s.detector.ExtractClientIP, ratelimit.Writes, func(w http.ResponseWriter, r *http.Request) {
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded, try again later")
		}),
	)

	router.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api").Subrouter()
	s.routes(api)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes(api *mux.Router) {
	api.HandleFunc("/clients", s.handleListClients).Methods(http.MethodGet)
	api.HandleFunc("/clients", s.handleCreateClient).Methods(http.MethodPost)
	api.HandleFunc("/clients/cities", s.handleClientCities).Methods(http.MethodGet)
	api.HandleFunc("/clients/{id}", s.handleGetClient).Methods(http.MethodGet)
	api.HandleFunc("/clients/{id}", s.handleUpdateClient).Methods(http.MethodPut)
	api.HandleFunc("/clients/{id}", s.handleDeleteClient).Methods(http.MethodDelete)

	api.HandleFunc("/schedule/preview", s.handlePreview).Methods(http.MethodPost)
	api.HandleFunc("/loans", s.handleListLoans).Methods(http.MethodGet)
	api.HandleFunc("/loans", s.handleCreateLoan).Methods(http.MethodPost)
	api.HandleFunc("/loans/{id}", s.handleGetLoan).Methods(http.MethodGet)
	api.HandleFunc("/loans/{id}", s.handleDeleteLoan).Methods(http.MethodDelete)
	api.HandleFunc("/loans/{id}/regenerate", s.handleRegenerate).Methods(http.MethodPost)

	api.HandleFunc("/loans/{id}/installments", s.handleListInstallments).Methods(http.MethodGet)
	api.HandleFunc("/loans/{id}/installments/{iid}", s.handleEditInstallment).Methods(http.MethodPatch)
	api.HandleFunc("/loans/{id}/installments/{iid}/pay", s.handlePayInstallment).Methods(http.MethodPost)

	api.HandleFunc("/movements", s.handleListMovements).Methods(http.MethodGet)
	api.HandleFunc("/movements", s.handleCreateMovement).Methods(http.MethodPost)
	api.HandleFunc("/movements/{id}", s.handleDeleteMovement).Methods(http.MethodDelete)

	api.HandleFunc("/due/upcoming", s.handleUpcoming).Methods(http.MethodGet)
	api.HandleFunc("/due/overdue", s.handleOverdue).Methods(http.MethodGet)
	api.HandleFunc("/forecast", s.handleForecast).Methods(http.MethodGet)

	api.HandleFunc("/sync/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/sync/download/{table}", s.handleDownload).Methods(http.MethodPost)
	api.HandleFunc("/sync/stats", s.handleSyncStats).Methods(http.MethodGet)
	api.HandleFunc("/sync/retry", s.handleSyncRetry).Methods(http.MethodPost)
}

// Shutdown gracefully shuts down the server and its rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) today() time.Time {
	return s.opts.Now()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.opts.Ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
