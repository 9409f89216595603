package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/pkg/errs"
)

// RankingDependencies defines the interface for ranking reads.
type RankingDependencies interface {
	Criteria(ctx context.Context, competitionID string) ([]model.Criterion, error)
	Ranking(ctx context.Context, competitionID string, minJudges int) ([]model.ProjectScore, error)
	DefaultMinJudges() int
}

// RankingsHandler handles competition criteria and ranking requests.
type RankingsHandler struct {
	deps RankingDependencies
}

// NewRankingsHandler creates a new rankings handler.
func NewRankingsHandler(deps RankingDependencies) *RankingsHandler {
	return &RankingsHandler{deps: deps}
}

// HandleGetRankings handles GET /v1/competitions/{competitionID}/rankings?min_judges=N.
func (h *RankingsHandler) HandleGetRankings(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rankings"
	competitionID := chi.URLParam(r, "competitionID")

	minJudges := h.deps.DefaultMinJudges()
	if raw := r.URL.Query().Get("min_judges"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", errs.Invalid(op, "min_judges must be a non-negative integer"))
			return
		}
		minJudges = n
	}

	ranked, err := h.deps.Ranking(r.Context(), competitionID, minJudges)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rankingsResponse{
		CompetitionID: competitionID,
		MinJudges:     minJudges,
		Entries:       toProjectScores(ranked),
	})
}

// HandleGetCriteria handles GET /v1/competitions/{competitionID}/criteria.
func (h *RankingsHandler) HandleGetCriteria(w http.ResponseWriter, r *http.Request) {
	criteria, err := h.deps.Criteria(r.Context(), chi.URLParam(r, "competitionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCriteria(criteria))
}
