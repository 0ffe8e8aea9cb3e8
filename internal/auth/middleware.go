package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

const (
	// CookieName is the session cookie set by the GitHub callback.
	CookieName = "token"

	// AdminKeyHeader carries the admin key on catalog-editing requests.
	AdminKeyHeader = "X-Admin-Key"
)

// contextKey is unexported so no other package can read or overwrite the
// user ID stored under it.
type contextKey string

const userIDKey contextKey = "userID"

var errNoToken = errors.New("auth: no token")

// RequireAuth rejects requests without a valid session with a JSON 401 and
// puts the user ID in the context for the rest. A nil TokenService (login
// not configured) rejects everything.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}

// OptionalAuth identifies the caller when it can and never blocks. The judge
// endpoint uses it: anonymous submissions are judged the same way, signed-in
// ones are also recorded. An expired cookie is treated as no cookie.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := extractUserID(r, tokens); err == nil {
				r = r.WithContext(ContextWithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext returns the signed-in user, or ("", false) for an
// anonymous request.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// ContextWithUserID returns ctx carrying userID, as RequireAuth would.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// extractUserID prefers the HttpOnly cookie browsers send and falls back to
// "Authorization: Bearer <jwt>" for scripts and curl.
func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	if tokens == nil {
		return "", errNoToken
	}
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return tokens.Validate(cookie.Value)
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return tokens.Validate(strings.TrimPrefix(h, "Bearer "))
	}
	return "", errNoToken
}

// RequireAdminKey guards catalog editing. The key in AdminKeyHeader is
// checked against a bcrypt hash (ADMIN_KEY_HASH), so the plaintext key never
// sits in the server's configuration. An empty hash disables the admin API.
func RequireAdminKey(keys *KeyHasher, hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hash == "" {
				writeAuthError(w, http.StatusForbidden, "forbidden", "admin API is disabled")
				return
			}
			key := r.Header.Get(AdminKeyHeader)
			if key == "" {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "admin key required")
				return
			}
			if err := keys.Verify(hash, key); err != nil {
				writeAuthError(w, http.StatusForbidden, "forbidden", "invalid admin key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
