package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/cjudge/internal/auth"
	"github.com/sakif/cjudge/internal/model"
	"github.com/sakif/cjudge/internal/service"
)

// GitHubProvider is the OAuth side of the login flow.
type GitHubProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// AuthService turns a GitHub profile into a session and looks users up.
type AuthService interface {
	LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*service.AuthResult, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

var (
	_ GitHubProvider = (*auth.GitHubProvider)(nil)
	_ AuthService    = (*service.AuthService)(nil)
)

const (
	stateCookieName = "oauth_state"
	stateCookieTTL  = 10 * time.Minute
)

// AuthHandler serves the GitHub login flow and the session endpoints.
//
// ROUTES:
//   - GET  /auth/github/login    → redirect to GitHub with a CSRF state
//   - GET  /auth/github/callback → check state, exchange code, set session cookie
//   - POST /auth/logout          → clear the session cookie
//   - GET  /api/me               → profile of the signed-in user
type AuthHandler struct {
	github     GitHubProvider
	svc        AuthService
	sessionTTL time.Duration
	logger     *slog.Logger
}

// NewAuthHandler creates an AuthHandler. sessionTTL should match the token
// lifetime so the cookie and the JWT expire together.
func NewAuthHandler(github GitHubProvider, svc AuthService, sessionTTL time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{github: github, svc: svc, sessionTTL: sessionTTL, logger: logger}
}

// HandleGitHubLogin stores a random state in a short-lived cookie and sends
// the browser to GitHub. The callback only proceeds when GitHub echoes the
// same state back, which proves this server started the flow.
//
// HTTP: GET /auth/github/login
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	setCookie(w, stateCookieName, state, int(stateCookieTTL.Seconds()))
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the login.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// A user who declines on GitHub lands back on /?auth=denied. Any failure
// after the state check is a 500 with a generic text; details go to the log.
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || q.Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state missing or mismatched")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	// single use
	setCookie(w, stateCookieName, "", -1)

	if denied := q.Get("error"); denied != "" {
		h.logger.Info("auth callback: authorization denied", slog.String("error", denied))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	result, err := h.svc.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("auth callback: sign-in failed",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	setCookie(w, auth.CookieName, result.Token, int(h.sessionTTL.Seconds()))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout deletes the session cookie. The JWT itself stays valid until
// it expires; without the cookie the browser just stops sending it.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	setCookie(w, auth.CookieName, "", -1)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the signed-in user's profile.
//
// HTTP: GET /api/me (behind RequireAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	user, err := h.svc.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// setCookie writes an HttpOnly, SameSite=Lax cookie on "/". maxAge < 0
// deletes it. Secure is left off so plain-HTTP local development works;
// put the server behind TLS in production.
func setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
