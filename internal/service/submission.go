package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/cjudge/internal/apperror"
	"github.com/sakif/cjudge/internal/model"
	"github.com/sakif/cjudge/internal/repository"
)

// SubmissionService answers "what have I submitted" for signed-in users.
type SubmissionService struct {
	repo   repository.SubmissionRepository
	logger *slog.Logger
}

func NewSubmissionService(repo repository.SubmissionRepository, logger *slog.Logger) *SubmissionService {
	return &SubmissionService{repo: repo, logger: logger}
}

// ListMine returns the user's submissions, newest first.
func (s *SubmissionService) ListMine(ctx context.Context, userID string, limit, offset int) ([]model.Submission, error) {
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "user ID is required")
	}
	if limit <= 0 {
		limit = DefaultSubmissions
	}
	if limit > MaxSubmissions {
		limit = MaxSubmissions
	}
	if offset < 0 {
		offset = 0
	}

	subs, err := s.repo.ListSubmissionsByUser(ctx, userID, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list submissions",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	return subs, nil
}

// Solved splits the problems the user touched into solved and attempted.
func (s *SubmissionService) Solved(ctx context.Context, userID string) (*model.SolvedSummary, error) {
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "user ID is required")
	}

	summary, err := s.repo.ProblemIDsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("summarising submissions: %w", err)
	}
	return summary, nil
}
