package web

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ai-brand-diagnosis/internal/usecase"
)

// Server is the HTTP surface: the public diagnosis API plus the
// JWT-protected operations API for the dead letter queue. Operators trade
// the shared admin key for a short-lived session cookie at login.
type Server struct {
	diagUC   usecase.DiagnosisService
	dlqUC    usecase.DeadLetterUseCase
	adminKey string
	auth     *AuthManager
	log      *zerolog.Logger
}

func NewServer(
	diagUC usecase.DiagnosisService,
	dlqUC usecase.DeadLetterUseCase,
	adminKey string,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		diagUC:   diagUC,
		dlqUC:    dlqUC,
		adminKey: adminKey,
		auth:     auth,
		log:      &l,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/diagnosis", diagnosisStartHandler(s.diagUC))
		r.Get("/diagnosis/{executionID}/status", diagnosisStatusHandler(s.diagUC))
		r.Get("/diagnosis/{executionID}/report", diagnosisReportHandler(s.diagUC))

		r.Post("/admin/auth/login", s.handleAdminLogin)
		r.Post("/admin/auth/logout", s.handleAdminLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/dead-letters", deadLetterListHandler(s.dlqUC))
			r.Get("/dead-letters/stats", deadLetterStatsHandler(s.dlqUC))
			r.Post("/dead-letters/{id}/retry", deadLetterActionHandler(s.dlqUC.Retry))
			r.Post("/dead-letters/{id}/resolve", deadLetterActionHandler(s.dlqUC.Resolve))
			r.Post("/dead-letters/{id}/ignore", deadLetterActionHandler(s.dlqUC.Ignore))
		})
	})

	return r
}

// handleAdminLogin exchanges the shared admin key for a session cookie.
func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if s.adminKey == "" || s.auth == nil {
		s.log.Error().Msg("admin login is not configured")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	var body struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Key == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if subtle.ConstantTimeCompare([]byte(body.Key), []byte(s.adminKey)) != 1 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if _, err := s.auth.Mint(w); err != nil {
		s.log.Error().Err(err).Msg("session mint failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminLogout expires the session cookie; safe without one.
func (s *Server) handleAdminLogout(w http.ResponseWriter, _ *http.Request) {
	if s.auth != nil {
		s.auth.Clear(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireAdmin rejects requests without a valid admin JWT (header or cookie).
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			s.log.Error().Msg("admin auth is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil || claims.Role != "admin" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
