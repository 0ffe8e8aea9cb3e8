package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/sakif/cjudge/internal/apperror"
	"github.com/sakif/cjudge/internal/auth"
	"github.com/sakif/cjudge/internal/model"
	"github.com/sakif/cjudge/internal/repository"
)

// AuthService turns a GitHub identity into a judge account and a session.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                               ↘ TokenService (JWT)
//
// Cookies and redirects stay in the handler; nothing here knows about HTTP.
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	logger *slog.Logger
}

func NewAuthService(users repository.UserRepository, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{users: users, tokens: tokens, logger: logger}
}

// AuthResult is the signed-in user and the session token to put in the cookie.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginOrRegisterGitHub upserts the account keyed by GitHub ID and signs a
// session for it. The first login creates the row; later logins refresh
// login, email and avatar, and keep the internal ID so submission history
// survives a GitHub rename.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil || gh.ID == 0 {
		return nil, apperror.ValidationFailed("githubId", "a GitHub user ID is required")
	}

	login := gh.Login
	if login == "" {
		login = "github-" + strconv.FormatInt(gh.ID, 10)
	}
	user := &model.User{
		GitHubID:  gh.ID,
		Login:     login,
		Email:     gh.Email,
		AvatarURL: gh.AvatarURL,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", gh.ID, err)
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: signing session for %s: %w", user.ID, err)
	}

	s.logger.Info("user signed in",
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
	)
	return &AuthResult{User: user, Token: token}, nil
}

// GetUserByID backs GET /api/me. The ID comes from a validated session, so a
// miss means the account was removed after the token was issued.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}
