package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/cjudge/internal/auth"
	"github.com/sakif/cjudge/internal/model"
	"github.com/sakif/cjudge/internal/service"
)

// SubmissionService is the read side of the submission history.
type SubmissionService interface {
	ListMine(ctx context.Context, userID string, limit, offset int) ([]model.Submission, error)
	Solved(ctx context.Context, userID string) (*model.SolvedSummary, error)
}

var _ SubmissionService = (*service.SubmissionService)(nil)

// SubmissionHandler serves the signed-in user's history. Both routes sit
// behind auth.RequireAuth.
type SubmissionHandler struct {
	svc    SubmissionService
	logger *slog.Logger
}

func NewSubmissionHandler(svc SubmissionService, logger *slog.Logger) *SubmissionHandler {
	return &SubmissionHandler{svc: svc, logger: logger}
}

// HandleListMine returns the caller's submissions, newest first.
//
// HTTP: GET /api/submissions/me?limit=50&offset=0
func (h *SubmissionHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	subs, err := h.svc.ListMine(r.Context(), userID, queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// HandleSolved returns {solved, attempted} problem IDs for the caller.
//
// HTTP: GET /api/submissions/me/solved
func (h *SubmissionHandler) HandleSolved(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	summary, err := h.svc.Solved(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
