package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sakif/cjudge/internal/apperror"
	"github.com/sakif/cjudge/internal/auth"
	"github.com/sakif/cjudge/internal/model"
)

// fakeUserRepo upserts by GitHub ID the way the sqlite repository does.
type fakeUserRepo struct {
	byID   map[string]*model.User
	byGHID map[int64]*model.User
	nextID int

	upsertErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:   make(map[string]*model.User),
		byGHID: make(map[int64]*model.User),
		nextID: 1,
	}
}

func (f *fakeUserRepo) Upsert(_ context.Context, user *model.User) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if existing, ok := f.byGHID[user.GitHubID]; ok {
		existing.Login, existing.Email, existing.AvatarURL = user.Login, user.Email, user.AvatarURL
		existing.UpdatedAt = time.Now()
		*user = *existing
		return nil
	}
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	f.nextID++
	user.CreatedAt, user.UpdatedAt = time.Now(), time.Now()
	stored := *user
	f.byID[user.ID] = &stored
	f.byGHID[user.GitHubID] = &stored
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func newTestAuthService(t *testing.T, repo *fakeUserRepo) (*AuthService, *auth.TokenService) {
	t.Helper()
	ts, err := auth.NewTokenService(strings.Repeat("k", auth.MinSecretLength))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return NewAuthService(repo, ts, testLogger()), ts
}

func TestLoginOrRegisterGitHub_NewUser(t *testing.T) {
	svc, tokens := newTestAuthService(t, newFakeUserRepo())

	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{
		ID: 42, Login: "octocat", Email: "octocat@github.com",
		AvatarURL: "https://avatars.githubusercontent.com/u/42",
	})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}
	if result.User.ID == "" || result.User.Login != "octocat" {
		t.Errorf("User = %+v", result.User)
	}

	subject, err := tokens.Validate(result.Token)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if subject != result.User.ID {
		t.Errorf("token subject = %q, want %q", subject, result.User.ID)
	}
}

func TestLoginOrRegisterGitHub_ReturningUserKeepsID(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)
	ctx := context.Background()

	first, err := svc.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 99, Login: "old-login"})
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := svc.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 99, Login: "new-login"})
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	if second.User.ID != first.User.ID {
		t.Errorf("ID changed on relogin: %q → %q", first.User.ID, second.User.ID)
	}
	if second.User.Login != "new-login" {
		t.Errorf("Login = %q, want the refreshed one", second.User.Login)
	}
	if len(repo.byID) != 1 {
		t.Errorf("repo has %d users, want 1", len(repo.byID))
	}
}

func TestLoginOrRegisterGitHub_MissingLoginGetsPlaceholder(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())

	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 7})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}
	if result.User.Login != "github-7" {
		t.Errorf("Login = %q, want github-7", result.User.Login)
	}
}

func TestLoginOrRegisterGitHub_Rejects(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())

	for name, gh := range map[string]*auth.GitHubUser{
		"nil":     nil,
		"zero ID": {Login: "ghost"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.LoginOrRegisterGitHub(context.Background(), gh)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestLoginOrRegisterGitHub_RepositoryError(t *testing.T) {
	repo := newFakeUserRepo()
	repo.upsertErr = errors.New("disk I/O error")
	svc, _ := newTestAuthService(t, repo)

	_, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 1, Login: "user"})
	if !errors.Is(err, repo.upsertErr) {
		t.Fatalf("error = %v, want the repository error wrapped", err)
	}
}

func TestGetUserByID(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())
	ctx := context.Background()

	signedIn, err := svc.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 7, Login: "findme"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	user, err := svc.GetUserByID(ctx, signedIn.User.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.Login != "findme" {
		t.Errorf("Login = %q, want findme", user.Login)
	}

	if _, err := svc.GetUserByID(ctx, ""); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("empty ID: error = %v, want ErrValidation", err)
	}
	if _, err := svc.GetUserByID(ctx, "deleted-user"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("unknown ID: error = %v, want ErrNotFound", err)
	}
}
