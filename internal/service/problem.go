package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sakif/cjudge/internal/apperror"
	"github.com/sakif/cjudge/internal/model"
	"github.com/sakif/cjudge/internal/repository"
)

// Validation constants.
const (
	MaxTitleLength     = 200
	MaxTestCases       = 100
	DefaultListLimit   = 100
	MaxListLimit       = 500
	DefaultSubmissions = 50
	MaxSubmissions     = 200
)

// ProblemInput is the editable part of a problem, as an admin sends it.
type ProblemInput struct {
	Number      int              `json:"number"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Difficulty  string           `json:"difficulty"`
	Tags        []string         `json:"tags"`
	Source      string           `json:"source"`
	TestCases   []model.TestCase `json:"testCases"`
}

// ProblemService manages the problem catalog.
type ProblemService struct {
	repo   repository.ProblemRepository
	logger *slog.Logger
}

func NewProblemService(repo repository.ProblemRepository, logger *slog.Logger) *ProblemService {
	return &ProblemService{repo: repo, logger: logger}
}

// List returns the public catalog ordered by problem number.
func (s *ProblemService) List(ctx context.Context, limit, offset int) ([]model.Problem, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	problems, err := s.repo.List(ctx, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list problems", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing problems: %w", err)
	}
	return problems, nil
}

// Get returns one problem. Test cases are stripped unless withTests is set,
// which only admin callers do.
func (s *ProblemService) Get(ctx context.Context, id string, withTests bool) (*model.Problem, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "problem ID is required")
	}

	problem, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !withTests {
		public := problem.Public()
		return &public, nil
	}
	return problem, nil
}

// Create validates and stores a new problem.
func (s *ProblemService) Create(ctx context.Context, in ProblemInput) (*model.Problem, error) {
	problem, err := buildProblem(in)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, problem); err != nil {
		s.logger.Error("failed to create problem",
			slog.String("title", problem.Title),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating problem: %w", err)
	}

	s.logger.Info("problem created",
		slog.String("id", problem.ID),
		slog.Int("number", problem.Number),
	)
	return problem, nil
}

// Update replaces every editable field of an existing problem.
func (s *ProblemService) Update(ctx context.Context, id string, in ProblemInput) (*model.Problem, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "problem ID is required")
	}

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := buildProblem(in)
	if err != nil {
		return nil, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	if updated.Number == 0 {
		updated.Number = existing.Number
	}

	if err := s.repo.Update(ctx, updated); err != nil {
		s.logger.Error("failed to update problem",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating problem: %w", err)
	}

	s.logger.Info("problem updated", slog.String("id", id))
	return updated, nil
}

// Delete removes a problem and its submissions.
func (s *ProblemService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "problem ID is required")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("problem deleted", slog.String("id", id))
	return nil
}

// Import upserts problems by ID and returns how many were stored. The first
// invalid problem stops the import; earlier ones stay stored.
func (s *ProblemService) Import(ctx context.Context, problems []model.Problem) (int, error) {
	for i := range problems {
		p := &problems[i]
		if strings.TrimSpace(p.ID) == "" {
			return i, apperror.ValidationFailed("id", fmt.Sprintf("problem #%d has no id", i))
		}
		if p.Number <= 0 {
			return i, apperror.ValidationFailed("number", fmt.Sprintf("problem %s needs a positive number", p.ID))
		}
		if err := validateProblemFields(p.Title, p.TestCases); err != nil {
			return i, err
		}
		if err := s.repo.ImportProblem(ctx, p); err != nil {
			return i, fmt.Errorf("importing problem %s: %w", p.ID, err)
		}
	}
	s.logger.Info("problems imported", slog.Int("count", len(problems)))
	return len(problems), nil
}

// LoadSeedFile imports a JSON array of problems from path.
func (s *ProblemService) LoadSeedFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading seed file: %w", err)
	}

	var problems []model.Problem
	if err := json.Unmarshal(data, &problems); err != nil {
		return 0, fmt.Errorf("decoding seed file %s: %w", path, err)
	}
	return s.Import(ctx, problems)
}

func buildProblem(in ProblemInput) (*model.Problem, error) {
	title := strings.TrimSpace(in.Title)
	if err := validateProblemFields(title, in.TestCases); err != nil {
		return nil, err
	}
	if in.Number < 0 {
		return nil, apperror.ValidationFailed("number", "problem number must not be negative")
	}

	return &model.Problem{
		Number:      in.Number,
		Title:       title,
		Description: in.Description,
		Difficulty:  strings.TrimSpace(in.Difficulty),
		Tags:        in.Tags,
		Source:      strings.TrimSpace(in.Source),
		TestCases:   in.TestCases,
	}, nil
}

func validateProblemFields(title string, cases []model.TestCase) error {
	if strings.TrimSpace(title) == "" {
		return apperror.ValidationFailed("title", "problem title is required")
	}
	if len(title) > MaxTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("problem title must be %d characters or less", MaxTitleLength))
	}
	if len(cases) > MaxTestCases {
		return apperror.ValidationFailed("testCases",
			fmt.Sprintf("a problem may have at most %d test cases", MaxTestCases))
	}
	return nil
}
