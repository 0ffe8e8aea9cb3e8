package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sakif/cjudge/internal/apperror"
	"github.com/sakif/cjudge/internal/model"
)

func newTestProblemService(t *testing.T) (*ProblemService, *fakeProblemRepo) {
	t.Helper()
	repo := newFakeProblemRepo()
	return NewProblemService(repo, testLogger()), repo
}

func TestProblemCreate_Success(t *testing.T) {
	svc, _ := newTestProblemService(t)

	p, err := svc.Create(context.Background(), ProblemInput{
		Title:      "  A+B  ",
		Difficulty: "bronze",
		TestCases:  []model.TestCase{{Input: "1 2", Output: "3"}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if p.ID == "" {
		t.Error("expected problem to have an ID")
	}
	if p.Title != "A+B" {
		t.Errorf("Title = %q, want trimmed %q", p.Title, "A+B")
	}
}

func TestProblemCreate_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   ProblemInput
	}{
		{"empty title", ProblemInput{Title: ""}},
		{"whitespace title", ProblemInput{Title: "   "}},
		{"title too long", ProblemInput{Title: strings.Repeat("t", MaxTitleLength+1)}},
		{"negative number", ProblemInput{Title: "x", Number: -1}},
		{"too many cases", ProblemInput{Title: "x", TestCases: make([]model.TestCase, MaxTestCases+1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestProblemService(t)

			_, err := svc.Create(context.Background(), tt.in)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("Create() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestProblemGet_HidesTestCasesUnlessAsked(t *testing.T) {
	svc, repo := newTestProblemService(t)
	repo.problems["p1"] = &model.Problem{ID: "p1", Title: "x", TestCases: []model.TestCase{{Output: "1"}}}

	public, err := svc.Get(context.Background(), "p1", false)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if public.TestCases != nil {
		t.Error("public view exposes test cases")
	}

	full, err := svc.Get(context.Background(), "p1", true)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(full.TestCases) != 1 {
		t.Errorf("admin view has %d test cases, want 1", len(full.TestCases))
	}
}

func TestProblemGet_NotFoundAndEmptyID(t *testing.T) {
	svc, _ := newTestProblemService(t)

	if _, err := svc.Get(context.Background(), "missing", false); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Get(context.Background(), " ", false); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Get() error = %v, want ErrValidation", err)
	}
}

func TestProblemUpdate_KeepsIdentity(t *testing.T) {
	svc, _ := newTestProblemService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, ProblemInput{Number: 7, Title: "old"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := svc.Update(ctx, created.ID, ProblemInput{Title: "new"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.ID != created.ID {
		t.Errorf("ID changed from %s to %s", created.ID, updated.ID)
	}
	if updated.Number != 7 {
		t.Errorf("Number = %d, want the existing 7 when none is given", updated.Number)
	}
	if updated.Title != "new" {
		t.Errorf("Title = %q, want %q", updated.Title, "new")
	}
}

func TestProblemUpdate_NotFound(t *testing.T) {
	svc, _ := newTestProblemService(t)

	_, err := svc.Update(context.Background(), "missing", ProblemInput{Title: "x"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestProblemDelete(t *testing.T) {
	svc, repo := newTestProblemService(t)
	repo.problems["p1"] = &model.Problem{ID: "p1", Title: "x"}

	if err := svc.Delete(context.Background(), "p1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := svc.Delete(context.Background(), "p1"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestProblemList_ClampsLimit(t *testing.T) {
	svc, repo := newTestProblemService(t)
	for _, id := range []string{"a", "b", "c"} {
		repo.problems[id] = &model.Problem{ID: id, Title: id}
	}

	list, err := svc.List(context.Background(), 2, -1)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Errorf("List() returned %d, want 2", len(list))
	}
}

func TestProblemImport(t *testing.T) {
	svc, repo := newTestProblemService(t)

	n, err := svc.Import(context.Background(), []model.Problem{
		{ID: "p1000", Number: 1000, Title: "A+B"},
		{ID: "p1001", Number: 1001, Title: "A-B"},
	})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if n != 2 || len(repo.problems) != 2 {
		t.Errorf("imported %d (stored %d), want 2", n, len(repo.problems))
	}
}

func TestProblemImport_StopsAtInvalidProblem(t *testing.T) {
	svc, repo := newTestProblemService(t)

	n, err := svc.Import(context.Background(), []model.Problem{
		{ID: "p1000", Number: 1000, Title: "A+B"},
		{ID: "", Number: 1001, Title: "no id"},
		{ID: "p1002", Number: 1002, Title: "never reached"},
	})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("Import() error = %v, want ErrValidation", err)
	}
	if n != 1 || len(repo.problems) != 1 {
		t.Errorf("imported %d (stored %d), want 1", n, len(repo.problems))
	}
}

func TestLoadSeedFile(t *testing.T) {
	svc, repo := newTestProblemService(t)
	path := filepath.Join(t.TempDir(), "problems.json")
	seed := `[
		{"id": "p1000", "number": 1000, "title": "A+B", "difficulty": "bronze",
		 "tags": ["math"], "testCases": [{"input": "1 2", "output": "3"}]}
	]`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("writing seed: %v", err)
	}

	n, err := svc.LoadSeedFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadSeedFile() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("loaded %d problems, want 1", n)
	}
	p := repo.problems["p1000"]
	if p == nil || p.Title != "A+B" || len(p.TestCases) != 1 || p.TestCases[0].Output != "3" {
		t.Errorf("stored problem = %+v", p)
	}
}

func TestLoadSeedFile_Errors(t *testing.T) {
	svc, _ := newTestProblemService(t)
	dir := t.TempDir()

	if _, err := svc.LoadSeedFile(context.Background(), filepath.Join(dir, "missing.json")); err == nil {
		t.Error("LoadSeedFile() should fail for a missing file")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing seed: %v", err)
	}
	if _, err := svc.LoadSeedFile(context.Background(), bad); err == nil {
		t.Error("LoadSeedFile() should fail for malformed JSON")
	}
}
