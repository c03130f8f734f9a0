package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"assay-backoffice/internal/auth"
	"assay-backoffice/internal/escalation"
	"assay-backoffice/internal/notify"
	"assay-backoffice/internal/service"
	"assay-backoffice/internal/storage"
)

// Rates is the approval workflow consumed by the handlers.
type Rates interface {
	Submit(ctx context.Context, actor storage.User, req service.SubmitRequest) (storage.RateRecord, error)
	Decide(ctx context.Context, actor storage.User, id string, req service.DecideRequest) (storage.RateRecord, error)
	List(ctx context.Context, filter service.ListFilter) ([]storage.RateRecord, error)
}

// Readiness reports SMS reachability for a role set.
type Readiness interface {
	CheckSMSReadiness(ctx context.Context, roles auth.RoleSet) (notify.Readiness, error)
}

// Armed lists the escalation timers currently armed.
type Armed interface {
	Scheduled() []escalation.Escalation
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Rates     Rates
	Readiness Readiness
	Armed     Armed
	Users     storage.UserStore
	Tokens    *auth.Tokens
}

// Server exposes the approval workflow over HTTP.
type Server struct {
	deps   Deps
	logger zerolog.Logger
	router *mux.Router
}

// NewServer builds the router.
func NewServer(deps Deps, logger zerolog.Logger) *Server {
	s := &Server{deps: deps, logger: logger.With().Str("component", "api").Logger()}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	apiR := r.PathPrefix("/api").Subrouter()
	apiR.Use(s.authenticate)
	apiR.HandleFunc("/weekly-prices", s.submitRate).Methods(http.MethodPost)
	apiR.HandleFunc("/weekly-prices", s.listRates).Methods(http.MethodGet)
	apiR.HandleFunc("/weekly-prices/escalations", s.requireRoles(auth.Operators, s.listEscalations)).Methods(http.MethodGet)
	apiR.HandleFunc("/weekly-prices/{id}/approve", s.decideRate).Methods(http.MethodPost)
	apiR.HandleFunc("/notifications/sms-readiness", s.requireRoles(auth.Operators, s.smsReadiness)).Methods(http.MethodGet)
	return r
}
