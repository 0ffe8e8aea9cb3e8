package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/cjudge/internal/model"
	"github.com/sakif/cjudge/internal/service"
)

// ProblemService is the catalog as the problem endpoints see it.
type ProblemService interface {
	List(ctx context.Context, limit, offset int) ([]model.Problem, error)
	Get(ctx context.Context, id string, withTests bool) (*model.Problem, error)
	Create(ctx context.Context, in service.ProblemInput) (*model.Problem, error)
	Update(ctx context.Context, id string, in service.ProblemInput) (*model.Problem, error)
	Delete(ctx context.Context, id string) error
	Import(ctx context.Context, problems []model.Problem) (int, error)
}

var _ ProblemService = (*service.ProblemService)(nil)

// ProblemHandler serves the problem catalog. Reads are public; writes sit
// behind auth.RequireAdminKey (see server.go).
type ProblemHandler struct {
	svc    ProblemService
	logger *slog.Logger
}

func NewProblemHandler(svc ProblemService, logger *slog.Logger) *ProblemHandler {
	return &ProblemHandler{svc: svc, logger: logger}
}

// HandleList returns the catalog ordered by number, without test cases.
//
// HTTP: GET /api/problems?limit=100&offset=0
func (h *ProblemHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	problems, err := h.svc.List(r.Context(), queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, problems)
}

// HandleGet returns one problem without its test cases.
//
// HTTP: GET /api/problems/{id}
func (h *ProblemHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, false)
}

// HandleGetFull returns one problem including its test cases.
//
// HTTP: GET /api/problems/{id}/full (admin)
func (h *ProblemHandler) HandleGetFull(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, true)
}

func (h *ProblemHandler) get(w http.ResponseWriter, r *http.Request, withTests bool) {
	problem, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"), withTests)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, problem)
}

// HandleCreate adds a problem. A zero number takes the next free one.
//
// HTTP: POST /api/problems (admin)
func (h *ProblemHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.ProblemInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	problem, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, problem)
}

// HandleUpdate replaces a problem's editable fields.
//
// HTTP: PUT /api/problems/{id} (admin)
func (h *ProblemHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in service.ProblemInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	problem, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, problem)
}

// HandleDelete removes a problem and its submissions.
//
// HTTP: DELETE /api/problems/{id} (admin)
func (h *ProblemHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleImport upserts a JSON array of problems by ID.
//
// HTTP: POST /api/problems/import (admin)
func (h *ProblemHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	var problems []model.Problem
	if err := decodeJSON(w, r, &problems); err != nil {
		writeError(w, err)
		return
	}

	n, err := h.svc.Import(r.Context(), problems)
	if err != nil {
		h.logger.Warn("import stopped",
			slog.Int("imported", n),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}
