package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	service "github.com/okian/jury/internal/app"
	"github.com/okian/jury/internal/domain/submission"
	"github.com/okian/jury/pkg/errs"
)

const maxSubmissionBytes = 64 << 10

// SubmissionDependencies defines the interface for score submission.
type SubmissionDependencies interface {
	Submit(ctx context.Context, sub submission.Submission) (service.SubmitResult, error)
}

// SubmissionsHandler handles score submissions.
type SubmissionsHandler struct {
	deps SubmissionDependencies
}

// NewSubmissionsHandler creates a new submissions handler.
func NewSubmissionsHandler(deps SubmissionDependencies) *SubmissionsHandler {
	return &SubmissionsHandler{deps: deps}
}

// HandlePostSubmission handles POST /v1/submissions requests.
func (h *SubmissionsHandler) HandlePostSubmission(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_submission"
	var req submissionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmissionBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errs.WrapKind(op, ErrBadRequest, fmt.Errorf("decode body: %w", err)))
		return
	}

	res, err := h.deps.Submit(r.Context(), submission.Submission{
		EntryID:  req.EntryID,
		JudgeID:  req.JudgeID,
		Values:   req.Scores,
		Feedback: req.Feedback,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submissionResponse{Scored: res.Scored, Total: res.Total, Complete: res.Complete})
}
