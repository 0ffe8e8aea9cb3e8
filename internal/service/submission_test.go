package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/cjudge/internal/apperror"
	"github.com/sakif/cjudge/internal/model"
)

func TestListMine(t *testing.T) {
	repo := &fakeSubmissionRepo{created: []model.Submission{
		{ID: "s1", UserID: "alice"},
		{ID: "s2", UserID: "bob"},
		{ID: "s3", UserID: "alice"},
	}}
	svc := NewSubmissionService(repo, testLogger())

	subs, err := svc.ListMine(context.Background(), "alice", 0, 0)
	if err != nil {
		t.Fatalf("ListMine() error = %v", err)
	}
	if len(subs) != 2 {
		t.Errorf("ListMine() returned %d, want 2", len(subs))
	}

	subs, err = svc.ListMine(context.Background(), "alice", 1, 0)
	if err != nil {
		t.Fatalf("ListMine() error = %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("ListMine(limit=1) returned %d, want 1", len(subs))
	}
}

func TestListMine_RequiresUser(t *testing.T) {
	svc := NewSubmissionService(&fakeSubmissionRepo{}, testLogger())

	_, err := svc.ListMine(context.Background(), "", 0, 0)
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("ListMine() error = %v, want ErrValidation", err)
	}
}

func TestSolved(t *testing.T) {
	repo := &fakeSubmissionRepo{summary: &model.SolvedSummary{
		Solved:    []string{"p1000"},
		Attempted: []string{"p1001"},
	}}
	svc := NewSubmissionService(repo, testLogger())

	summary, err := svc.Solved(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Solved() error = %v", err)
	}
	if len(summary.Solved) != 1 || len(summary.Attempted) != 1 {
		t.Errorf("summary = %+v", summary)
	}

	if _, err := svc.Solved(context.Background(), ""); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Solved(\"\") error = %v, want ErrValidation", err)
	}
}
