package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"assay-backoffice/internal/auth"
	"assay-backoffice/internal/storage"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assay_http_requests_total",
		Help: "HTTP requests processed, by route and status code",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assay_http_request_duration_seconds",
		Help:    "Latency of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "route"})
)

type ctxKey int

const actorKey ctxKey = iota

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		httpRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()

		ev := s.logger.Debug()
		if rec.status >= http.StatusInternalServerError {
			ev = s.logger.Error()
		}
		ev.Str("method", r.Method).
			Str("route", route).
			Int("status", rec.status).
			Dur("elapsed", elapsed).
			Msg("request")
	})
}

// authenticate resolves the bearer token to an active user.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := auth.ExtractBearer(r)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := s.deps.Tokens.Parse(raw)
		if err != nil {
			s.logger.Debug().Err(err).Msg("rejected bearer token")
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		user, err := s.deps.Users.GetUser(r.Context(), claims.Subject)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		case err != nil:
			s.logger.Error().Err(err).Str("user_id", claims.Subject).Msg("load user for token")
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		case !user.IsActive:
			respondError(w, http.StatusUnauthorized, "account disabled")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, user)))
	})
}

func (s *Server) requireRoles(roles auth.RoleSet, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !roles.Has(actorFrom(r).Role) {
			respondError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r)
	}
}

func actorFrom(r *http.Request) storage.User {
	u, _ := r.Context().Value(actorKey).(storage.User)
	return u
}
