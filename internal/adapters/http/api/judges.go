package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	service "github.com/okian/jury/internal/app"
	"github.com/okian/jury/internal/domain/completion"
)

// JudgeDependencies defines the interface for judge-facing reads.
type JudgeDependencies interface {
	ListEntriesForJudge(ctx context.Context, judgeID string) (completion.Worklist, error)
	Progress(ctx context.Context, competitionID string) ([]completion.JudgeProgress, error)
	Scorecard(ctx context.Context, entryID, judgeID string) (service.Scorecard, error)
}

// JudgesHandler handles worklist, progress and scorecard requests.
type JudgesHandler struct {
	deps JudgeDependencies
}

// NewJudgesHandler creates a new judges handler.
func NewJudgesHandler(deps JudgeDependencies) *JudgesHandler {
	return &JudgesHandler{deps: deps}
}

// HandleGetWorklist handles GET /v1/judges/{judgeID}/worklist.
func (h *JudgesHandler) HandleGetWorklist(w http.ResponseWriter, r *http.Request) {
	judgeID := chi.URLParam(r, "judgeID")
	wl, err := h.deps.ListEntriesForJudge(r.Context(), judgeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, worklistResponse{
		JudgeID: judgeID,
		ToJudge: toWorkItems(wl.ToJudge),
		Judged:  toWorkItems(wl.Judged),
	})
}

// HandleGetProgress handles GET /v1/competitions/{competitionID}/progress.
func (h *JudgesHandler) HandleGetProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Progress(r.Context(), chi.URLParam(r, "competitionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgress(p))
}

// HandleGetScorecard handles GET /v1/entries/{entryID}/judges/{judgeID}/scorecard.
func (h *JudgesHandler) HandleGetScorecard(w http.ResponseWriter, r *http.Request) {
	card, err := h.deps.Scorecard(r.Context(), chi.URLParam(r, "entryID"), chi.URLParam(r, "judgeID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScorecard(card))
}
