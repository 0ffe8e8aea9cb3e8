// Package repository declares the storage interfaces the services depend on.
// The sqlite package implements all of them on a single *sqlite.DB.
package repository

import (
	"context"

	"github.com/sakif/cjudge/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// ProblemRepository is the problem catalog.
type ProblemRepository interface {
	Create(ctx context.Context, problem *model.Problem) error
	GetByID(ctx context.Context, id string) (*model.Problem, error)
	List(ctx context.Context, opts ListOptions) ([]model.Problem, error)
	Update(ctx context.Context, problem *model.Problem) error
	Delete(ctx context.Context, id string) error
	// ImportProblem creates the problem or replaces the one with the same ID.
	ImportProblem(ctx context.Context, problem *model.Problem) error
}

// SubmissionRepository records judged submissions.
type SubmissionRepository interface {
	CreateSubmission(ctx context.Context, sub *model.Submission) error
	ListSubmissionsByUser(ctx context.Context, userID string, opts ListOptions) ([]model.Submission, error)
	// ProblemIDsByUser returns the distinct problems the user submitted to,
	// split by whether any submission was accepted.
	ProblemIDsByUser(ctx context.Context, userID string) (*model.SolvedSummary, error)
}

type UserRepository interface {
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}
