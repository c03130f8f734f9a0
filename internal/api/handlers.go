package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"assay-backoffice/internal/auth"
	"assay-backoffice/internal/service"
)

const maxBodyBytes = 1 << 20

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) submitRate(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := s.deps.Rates.Submit(r.Context(), actorFrom(r), req)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) listRates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := service.ListFilter{
		Type:   q.Get("type"),
		ItemID: q.Get("itemId"),
		Week:   q.Get("week"),
	}
	if raw := q.Get("approvedOnly"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "approvedOnly must be true or false")
			return
		}
		filter.ApprovedOnly = v
	}

	recs, err := s.deps.Rates.List(r.Context(), filter)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, recs)
}

func (s *Server) decideRate(w http.ResponseWriter, r *http.Request) {
	var req service.DecideRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := s.deps.Rates.Decide(r.Context(), actorFrom(r), mux.Vars(r)["id"], req)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) listEscalations(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Armed.Scheduled())
}

func (s *Server) smsReadiness(w http.ResponseWriter, r *http.Request) {
	roles := auth.RateSubmissionRecipients
	if raw := r.URL.Query().Get("role"); raw != "" {
		parsed := make([]auth.Role, 0)
		for _, name := range strings.Split(raw, ",") {
			role, err := auth.ParseRole(name)
			if err != nil {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			parsed = append(parsed, role)
		}
		roles = auth.NewRoleSet(parsed...)
	}

	readiness, err := s.deps.Readiness.CheckSMSReadiness(r.Context(), roles)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, readiness)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	return true
}

// respondServiceError maps workflow errors onto status codes.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotPending):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrForbidden):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrDuplicatePeriod):
		respondError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, map[string]string{"error": msg})
}
