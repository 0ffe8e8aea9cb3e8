// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services accept plain Go values and return apperror values, never HTTP
// status codes. The same ExecutionService could sit behind a CLI or a queue
// consumer without changing a line.
//
// DEPENDENCY INJECTION:
// Every service takes interfaces (executor.Executor, Judger, the repository
// interfaces), so tests pass in-memory fakes and main.go passes the Docker
// runner and SQLite.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/cjudge/internal/apperror"
	"github.com/sakif/cjudge/internal/executor"
	"github.com/sakif/cjudge/internal/judge"
	"github.com/sakif/cjudge/internal/model"
	"github.com/sakif/cjudge/internal/repository"
)

// MinTimeout is the smallest time limit a run may ask for.
const MinTimeout = time.Second

// Judger is the part of *judge.Judge the service needs.
type Judger interface {
	Judge(ctx context.Context, code string, cases []judge.TestCase) (*judge.Report, error)
}

var _ Judger = (*judge.Judge)(nil)

// ExecutionConfig bounds what a single request may ask for.
type ExecutionConfig struct {
	CodeMaxLength  int
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
}

// DefaultExecutionConfig returns a 50000 character code limit and run
// timeouts of 10s by default, 30s at most.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		CodeMaxLength:  50000,
		DefaultTimeout: 10 * time.Second,
		MaxTimeout:     30 * time.Second,
	}
}

// RunInput is a free-form run. A nil Timeout means the configured default.
type RunInput struct {
	Code    string
	Stdin   string
	Timeout *time.Duration
}

// JudgeInput is a submission. TestCases wins over ProblemID when both are
// set; a nil TestCases means "load them from the problem". Only a pass over
// the problem's stored cases is recorded, and only for a signed-in UserID.
type JudgeInput struct {
	Code      string
	ProblemID string
	TestCases []judge.TestCase
	UserID    string
}

// ExecutionService validates run and judge requests and hands them to the
// execution core.
type ExecutionService struct {
	exec        executor.Executor
	judge       Judger
	problems    repository.ProblemRepository
	submissions repository.SubmissionRepository
	config      ExecutionConfig
	logger      *slog.Logger
}

// NewExecutionService wires the service. problems and submissions may be nil
// when no catalog is configured; judge requests must then carry test cases.
func NewExecutionService(
	exec executor.Executor,
	j Judger,
	problems repository.ProblemRepository,
	submissions repository.SubmissionRepository,
	cfg ExecutionConfig,
	logger *slog.Logger,
) *ExecutionService {
	return &ExecutionService{
		exec:        exec,
		judge:       j,
		problems:    problems,
		submissions: submissions,
		config:      cfg,
		logger:      logger,
	}
}

// Run compiles and runs code once against stdin.
func (s *ExecutionService) Run(ctx context.Context, in RunInput) (*executor.Result, error) {
	if err := s.validateCode(in.Code); err != nil {
		return nil, err
	}

	res, err := s.exec.Execute(ctx, executor.Request{
		Code:    in.Code,
		Stdin:   in.Stdin,
		Timeout: s.clampTimeout(in.Timeout),
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Judge evaluates code against explicit test cases or the problem's stored
// ones, and records the submission for signed-in users.
func (s *ExecutionService) Judge(ctx context.Context, in JudgeInput) (*judge.Report, error) {
	if err := s.validateCode(in.Code); err != nil {
		return nil, err
	}

	if len(in.TestCases) > MaxTestCases {
		return nil, apperror.ValidationFailed("testCases",
			fmt.Sprintf("at most %d test cases may be sent", MaxTestCases))
	}

	cases := in.TestCases
	fromCatalog := false
	if cases == nil && in.ProblemID != "" {
		loaded, err := s.loadTestCases(ctx, in.ProblemID)
		if err != nil {
			return nil, err
		}
		cases = loaded
		fromCatalog = true
	}
	if len(cases) == 0 {
		return nil, apperror.ValidationFailed("testCases", "test cases are required")
	}

	report, err := s.judge.Judge(ctx, in.Code, cases)
	if err != nil {
		return nil, err
	}

	// A verdict on caller-supplied cases says nothing about the problem.
	switch {
	case in.UserID == "" || in.ProblemID == "":
	case !fromCatalog:
		s.logger.Debug("submission not recorded: judged against inline test cases",
			slog.String("userID", in.UserID),
			slog.String("problemID", in.ProblemID),
		)
	default:
		s.recordSubmission(ctx, in, report)
	}
	return report, nil
}

// clampTimeout maps a requested limit into [MinTimeout, MaxTimeout].
func (s *ExecutionService) clampTimeout(requested *time.Duration) time.Duration {
	if requested == nil {
		return s.config.DefaultTimeout
	}
	return min(max(*requested, MinTimeout), s.config.MaxTimeout)
}

func (s *ExecutionService) validateCode(code string) error {
	if code == "" {
		return apperror.ValidationFailed("code", "code is required")
	}
	if len(code) > s.config.CodeMaxLength {
		return apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", s.config.CodeMaxLength))
	}
	return nil
}

func (s *ExecutionService) loadTestCases(ctx context.Context, problemID string) ([]judge.TestCase, error) {
	if s.problems == nil {
		return nil, apperror.NotFound("problem", problemID)
	}
	problem, err := s.problems.GetByID(ctx, problemID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, apperror.Internal("loading test cases", err)
	}

	cases := make([]judge.TestCase, len(problem.TestCases))
	for i, tc := range problem.TestCases {
		cases[i] = judge.TestCase{Input: tc.Input, Output: tc.Output}
	}
	return cases, nil
}

// recordSubmission never fails the request: the verdict has already been
// computed and the caller should see it even if the database is down.
func (s *ExecutionService) recordSubmission(ctx context.Context, in JudgeInput, report *judge.Report) {
	if s.submissions == nil {
		return
	}
	sub := &model.Submission{
		UserID:     in.UserID,
		ProblemID:  in.ProblemID,
		Code:       in.Code,
		Verdict:    string(report.Verdict),
		Passed:     report.Passed,
		Total:      report.Total,
		DurationMs: report.DurationMs,
	}
	if err := s.submissions.CreateSubmission(ctx, sub); err != nil {
		s.logger.Error("failed to record submission",
			slog.String("userID", in.UserID),
			slog.String("problemID", in.ProblemID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("submission recorded",
		slog.String("id", sub.ID),
		slog.String("problemID", sub.ProblemID),
		slog.String("verdict", sub.Verdict),
	)
}
