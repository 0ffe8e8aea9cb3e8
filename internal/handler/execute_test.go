package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/cjudge/internal/apperror"
	"github.com/sakif/cjudge/internal/auth"
	"github.com/sakif/cjudge/internal/executor"
	"github.com/sakif/cjudge/internal/handler"
	"github.com/sakif/cjudge/internal/judge"
	"github.com/sakif/cjudge/internal/service"
)

// MockExecutionService records what the handler passed and returns canned values.
type MockExecutionService struct {
	CapturedRun   service.RunInput
	CapturedJudge service.JudgeInput
	RunResult     *executor.Result
	JudgeReport   *judge.Report
	ReturnErr     error
}

func (m *MockExecutionService) Run(_ context.Context, in service.RunInput) (*executor.Result, error) {
	m.CapturedRun = in
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return m.RunResult, nil
}

func (m *MockExecutionService) Judge(_ context.Context, in service.JudgeInput) (*judge.Report, error) {
	m.CapturedJudge = in
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return m.JudgeReport, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

func TestExecuteHandler_HandleRun(t *testing.T) {
	logger := testLogger()

	t.Run("successful run", func(t *testing.T) {
		mockSvc := &MockExecutionService{
			RunResult: &executor.Result{
				Success: true, Compiled: true, Executed: true,
				Stdout: "Hello World", DurationMs: 120, Classification: executor.ClassOK,
			},
		}
		h := handler.NewExecuteHandler(mockSvc, logger)

		reqBody := `{"code":"int main(){puts(\"Hello World\");}","stdin":"x"}`
		req := httptest.NewRequest(http.MethodPost, "/api/c/run", bytes.NewBufferString(reqBody))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()

		h.HandleRun(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		body := decodeBody(t, rr)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "Hello World", body["stdout"])
		assert.Equal(t, float64(120), body["durationMs"])
		assert.NotContains(t, body, "errorKind")

		assert.Equal(t, "x", mockSvc.CapturedRun.Stdin)
		assert.Nil(t, mockSvc.CapturedRun.Timeout, "absent timeout should reach the service as nil")
	})

	t.Run("time limit in seconds", func(t *testing.T) {
		tests := []struct {
			name string
			body string
			want time.Duration
		}{
			{"timeoutSeconds", `{"code":"x","timeoutSeconds":3}`, 3 * time.Second},
			{"timeout alias", `{"code":"x","timeout":2.5}`, 2500 * time.Millisecond},
			{"timeoutSeconds wins over alias", `{"code":"x","timeoutSeconds":4,"timeout":9}`, 4 * time.Second},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				mockSvc := &MockExecutionService{RunResult: &executor.Result{Classification: executor.ClassOK}}
				h := handler.NewExecuteHandler(mockSvc, logger)

				req := httptest.NewRequest(http.MethodPost, "/api/c/run", bytes.NewBufferString(tt.body))
				rr := httptest.NewRecorder()

				h.HandleRun(rr, req)

				require.Equal(t, http.StatusOK, rr.Code)
				require.NotNil(t, mockSvc.CapturedRun.Timeout)
				assert.Equal(t, tt.want, *mockSvc.CapturedRun.Timeout)
			})
		}
	})

	t.Run("failed run is still 200 with errorKind", func(t *testing.T) {
		mockSvc := &MockExecutionService{
			RunResult: &executor.Result{
				Compiled: false, Stderr: "main.c:1: error: expected ';'",
				ExitCode: 1, Classification: executor.ClassCompileError,
			},
		}
		h := handler.NewExecuteHandler(mockSvc, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/c/run", bytes.NewBufferString(`{"code":"int main("}`))
		rr := httptest.NewRecorder()

		h.HandleRun(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		body := decodeBody(t, rr)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "compile_error", body["errorKind"])
	})

	t.Run("invalid request body", func(t *testing.T) {
		h := handler.NewExecuteHandler(&MockExecutionService{}, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/c/run", bytes.NewBufferString(`{"invalid_json":`))
		rr := httptest.NewRecorder()

		h.HandleRun(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "validation_error", decodeBody(t, rr)["error"])
	})

	t.Run("oversized body", func(t *testing.T) {
		h := handler.NewExecuteHandler(&MockExecutionService{}, logger)

		big := `{"code":"` + strings.Repeat("a", 5<<20) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/api/c/run", strings.NewReader(big))
		rr := httptest.NewRecorder()

		h.HandleRun(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	errorCases := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"validation error", apperror.ValidationFailed("code", "code is required"), http.StatusBadRequest, "validation_error"},
		{"sandbox busy", apperror.Unavailable("all sandbox slots are busy"), http.StatusServiceUnavailable, "unavailable"},
		{"infrastructure failure", apperror.Internal("sandbox run failed", errors.New("dial unix /var/run/docker.sock")), http.StatusInternalServerError, "internal_error"},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			h := handler.NewExecuteHandler(&MockExecutionService{ReturnErr: tc.err}, logger)

			req := httptest.NewRequest(http.MethodPost, "/api/c/run", bytes.NewBufferString(`{"code":"x"}`))
			rr := httptest.NewRecorder()

			h.HandleRun(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			body := decodeBody(t, rr)
			assert.Equal(t, tc.wantError, body["error"])
			if tc.wantStatus == http.StatusInternalServerError {
				assert.NotContains(t, body["message"], "docker.sock", "internal details must not leak")
			}
		})
	}
}

func TestExecuteHandler_HandleJudge(t *testing.T) {
	logger := testLogger()

	t.Run("explicit test cases, anonymous", func(t *testing.T) {
		mockSvc := &MockExecutionService{
			JudgeReport: &judge.Report{
				Success: true, Verdict: judge.Accepted, Passed: 1, Total: 1,
				Details: []judge.Detail{{Index: 1, Passed: true, Expected: "3", Actual: "3"}},
			},
		}
		h := handler.NewExecuteHandler(mockSvc, logger)

		reqBody := `{"code":"x","testCases":[{"input":"1 2","expectedOutput":"3"}]}`
		req := httptest.NewRequest(http.MethodPost, "/api/c/judge", bytes.NewBufferString(reqBody))
		rr := httptest.NewRecorder()

		h.HandleJudge(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		body := decodeBody(t, rr)
		assert.Equal(t, "accepted", body["verdict"])
		assert.Len(t, body["details"], 1)

		require.Len(t, mockSvc.CapturedJudge.TestCases, 1)
		assert.Equal(t, "3", mockSvc.CapturedJudge.TestCases[0].Output)
		assert.Empty(t, mockSvc.CapturedJudge.UserID)
	})

	t.Run("problem id with signed-in user", func(t *testing.T) {
		mockSvc := &MockExecutionService{JudgeReport: &judge.Report{Verdict: judge.WrongAnswer, Total: 2}}
		h := handler.NewExecuteHandler(mockSvc, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/c/judge", bytes.NewBufferString(`{"code":"x","problemId":"p1000"}`))
		req = req.WithContext(auth.ContextWithUserID(req.Context(), "user-1"))
		rr := httptest.NewRecorder()

		h.HandleJudge(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "p1000", mockSvc.CapturedJudge.ProblemID)
		assert.Equal(t, "user-1", mockSvc.CapturedJudge.UserID)
		assert.Nil(t, mockSvc.CapturedJudge.TestCases, "absent testCases should reach the service as nil")
	})

	t.Run("unknown problem", func(t *testing.T) {
		h := handler.NewExecuteHandler(&MockExecutionService{ReturnErr: apperror.NotFound("problem", "nope")}, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/c/judge", bytes.NewBufferString(`{"code":"x","problemId":"nope"}`))
		rr := httptest.NewRecorder()

		h.HandleJudge(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "not_found", decodeBody(t, rr)["error"])
	})

	t.Run("missing test cases", func(t *testing.T) {
		h := handler.NewExecuteHandler(&MockExecutionService{
			ReturnErr: apperror.ValidationFailed("testCases", "test cases are required"),
		}, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/c/judge", bytes.NewBufferString(`{"code":"x"}`))
		rr := httptest.NewRecorder()

		h.HandleJudge(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		body := decodeBody(t, rr)
		assert.Equal(t, "testCases", body["field"])
	})
}
