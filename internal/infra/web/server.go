package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	ucport "vpn-shop-bot/internal/domain/ports/usecase"
	"vpn-shop-bot/internal/infra/logging"
	"vpn-shop-bot/internal/infra/metrics"
	"vpn-shop-bot/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Deps are the usecases behind the admin API.
type Deps struct {
	Stats     usecase.StatsUseCase
	Catalog   usecase.CatalogUseCase
	Settings  usecase.SettingsUseCase
	Referrals usecase.ReferralUseCase
	Settler   ucport.Settler
}

type Server struct {
	deps   Deps
	auth   *AuthManager
	port   int
	log    *zerolog.Logger
	server *http.Server
}

func NewServer(port int, deps Deps, auth *AuthManager, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "admin_api").Logger()
	return &Server{deps: deps, auth: auth, port: port, log: &l}
}

// Routes builds the admin router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.traceID)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/stats", s.handleStats)
			r.Get("/transactions", s.handleTransactions)
			r.Post("/transactions/{paymentID}/settle", s.handleSettle)
			r.Get("/documents", s.handleDocuments)

			r.Get("/settings", s.handleSettingsAll)
			r.Get("/settings/{key}", s.handleSettingGet)
			r.Put("/settings/{key}", s.handleSettingPut)

			r.Route("/users/{id}/referrals", func(r chi.Router) {
				r.Get("/", s.handleReferrals)
				r.Post("/reset", s.handleReferralsReset)
				r.Post("/set", s.handleReferralsSet)
			})

			r.Get("/hosts", s.handleHostsList)
			r.Post("/hosts", s.handleHostSave)
			r.Get("/hosts/{name}", s.handleHostGet)
			r.Put("/hosts/{name}", s.handleHostSave)
			r.Delete("/hosts/{name}", s.handleHostDelete)
			r.Get("/hosts/{name}/plans", s.handlePlansList)

			r.Post("/plans", s.handlePlanSave)
			r.Get("/plans/{id}", s.handlePlanGet)
			r.Put("/plans/{id}", s.handlePlanSave)
			r.Delete("/plans/{id}", s.handlePlanDelete)
		})
	})
	return r
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", s.port).Msg("admin api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) traceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(logging.WithTraceID(r.Context(), logging.NewTraceID())))
	})
}

// authMiddleware accepts a session minted by /login, as cookie or bearer token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			metrics.IncAdminCommand("api", "unauthorized")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
