// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/okian/jury/pkg/errs"
	"github.com/okian/jury/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SubmissionDependencies
	RankingDependencies
	JudgeDependencies
}

// Server wires HTTP routes for the judging API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	submissionsHandler *SubmissionsHandler
	rankingsHandler    *RankingsHandler
	judgesHandler      *JudgesHandler
	log                logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		submissionsHandler: NewSubmissionsHandler(deps),
		rankingsHandler:    NewRankingsHandler(deps),
		judgesHandler:      NewJudgesHandler(deps),
		log:                log,
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Use(middleware.RequestID, middleware.Recoverer, MetricsMiddleware, LoggingMiddleware(s.log))

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/stats", s.statsHandler.HandleStats)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/submissions", s.submissionsHandler.HandlePostSubmission)
		r.Route("/competitions/{competitionID}", func(r chi.Router) {
			r.Get("/criteria", s.rankingsHandler.HandleGetCriteria)
			r.Get("/rankings", s.rankingsHandler.HandleGetRankings)
			r.Get("/progress", s.judgesHandler.HandleGetProgress)
		})
		r.Get("/judges/{judgeID}/worklist", s.judgesHandler.HandleGetWorklist)
		r.Get("/entries/{entryID}/judges/{judgeID}/scorecard", s.judgesHandler.HandleGetScorecard)
	})
}

// Router returns a chi router with every route registered.
func (s *Server) Router(ctx context.Context) chi.Router {
	r := chi.NewRouter()
	s.Register(ctx, r)
	return r
}

type errorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, Details: errs.Details(err)})
}

// writeServiceError maps error kinds to status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errs.IsValidation(err), errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "validation_error", err)
	case errs.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", errors.New("internal error"))
	}
}
