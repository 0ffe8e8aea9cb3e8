package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/cjudge/internal/auth"
	"github.com/sakif/cjudge/internal/executor"
	"github.com/sakif/cjudge/internal/judge"
	"github.com/sakif/cjudge/internal/service"
)

// ExecutionService is what the C runner endpoints need from the service layer.
type ExecutionService interface {
	Run(ctx context.Context, in service.RunInput) (*executor.Result, error)
	Judge(ctx context.Context, in service.JudgeInput) (*judge.Report, error)
}

var _ ExecutionService = (*service.ExecutionService)(nil)

// ExecuteHandler serves POST /api/c/run and POST /api/c/judge.
type ExecuteHandler struct {
	svc    ExecutionService
	logger *slog.Logger
}

// NewExecuteHandler creates a new ExecuteHandler.
func NewExecuteHandler(svc ExecutionService, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		svc:    svc,
		logger: logger,
	}
}

// RunRequest is the body of POST /api/c/run. TimeoutSeconds is the time
// limit in seconds; "timeout" is accepted as an older spelling and loses when
// both are sent.
type RunRequest struct {
	Code           string   `json:"code"`
	Stdin          string   `json:"stdin"`
	TimeoutSeconds *float64 `json:"timeoutSeconds"`
	Timeout        *float64 `json:"timeout"`
}

// limit returns the requested time limit, or nil for the default.
func (r RunRequest) limit() *time.Duration {
	secs := r.TimeoutSeconds
	if secs == nil {
		secs = r.Timeout
	}
	if secs == nil {
		return nil
	}
	d := time.Duration(*secs * float64(time.Second))
	return &d
}

// RunResponse flattens executor.Result for clients. ErrorKind is the
// classification of a failed run and absent on success.
type RunResponse struct {
	Success        bool   `json:"success"`
	Compiled       bool   `json:"compiled"`
	Executed       bool   `json:"executed"`
	Stdout         string `json:"stdout"`
	Stderr         string `json:"stderr"`
	CompileOutput  string `json:"compileOutput,omitempty"`
	ExitCode       int    `json:"exitCode"`
	DurationMs     int64  `json:"durationMs"`
	MemoryExceeded bool   `json:"memoryExceeded,omitempty"`
	ErrorKind      string `json:"errorKind,omitempty"`
}

// JudgeRequest is the body of POST /api/c/judge. TestCases, when present,
// wins over ProblemID.
type JudgeRequest struct {
	Code      string           `json:"code"`
	ProblemID string           `json:"problemId"`
	TestCases []judge.TestCase `json:"testCases"`
}

// HandleRun compiles and runs one program.
//
// HTTP: POST /api/c/run
//
// A program that fails to compile, crashes or times out is still a 200: the
// failure is the result. Only bad requests and infrastructure problems get
// an error status.
func (h *ExecuteHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.svc.Run(r.Context(), service.RunInput{
		Code:    req.Code,
		Stdin:   req.Stdin,
		Timeout: req.limit(),
	})
	if err != nil {
		h.logger.Warn("run failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	h.logger.Info("code run",
		slog.String("classification", string(result.Classification)),
		slog.Int64("durationMs", result.DurationMs),
	)
	writeJSON(w, http.StatusOK, toRunResponse(result))
}

// HandleJudge judges a submission against test cases.
//
// HTTP: POST /api/c/judge
// Auth: Optional; signed-in users get the submission recorded.
func (h *ExecuteHandler) HandleJudge(w http.ResponseWriter, r *http.Request) {
	var req JudgeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	report, err := h.svc.Judge(r.Context(), service.JudgeInput{
		Code:      req.Code,
		ProblemID: req.ProblemID,
		TestCases: req.TestCases,
		UserID:    userID,
	})
	if err != nil {
		h.logger.Warn("judge failed",
			slog.String("problemID", req.ProblemID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	h.logger.Info("code judged",
		slog.String("problemID", req.ProblemID),
		slog.String("verdict", string(report.Verdict)),
		slog.Int("passed", report.Passed),
		slog.Int("total", report.Total),
	)
	writeJSON(w, http.StatusOK, report)
}

func toRunResponse(res *executor.Result) RunResponse {
	resp := RunResponse{
		Success:        res.Success,
		Compiled:       res.Compiled,
		Executed:       res.Executed,
		Stdout:         res.Stdout,
		Stderr:         res.Stderr,
		CompileOutput:  res.CompileOutput,
		ExitCode:       res.ExitCode,
		DurationMs:     res.DurationMs,
		MemoryExceeded: res.MemoryExceeded,
	}
	if res.Classification != executor.ClassOK {
		resp.ErrorKind = string(res.Classification)
	}
	return resp
}
