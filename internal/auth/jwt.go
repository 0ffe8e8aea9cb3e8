// Package auth provides sessions (JWT), GitHub login and the admin key check.
//
// Sessions are optional. Anonymous callers can run and judge code; a session
// only attaches judged submissions to a user and unlocks /api/submissions/me.
//
// LOGIN FLOW:
//  1. /auth/github/login redirects to GitHub
//  2. GitHub calls /auth/github/callback with a code
//  3. The code becomes a GitHub profile, the profile becomes a user row
//  4. The user ID is signed into a JWT and stored in an HttpOnly cookie
//  5. RequireAuth / OptionalAuth read the cookie (or a Bearer header) and put
//     the user ID in the request context
//
// A JWT is HEADER.PAYLOAD.SIGNATURE; the payload carries "sub" (user ID),
// "iss" and "exp", and the HMAC-SHA256 signature means no database lookup
// is needed to trust it.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "cjudge"

	// DefaultTokenTTL is how long a session lasts. There are no refresh
	// tokens; the user signs in with GitHub again.
	DefaultTokenTTL = 24 * time.Hour

	// MinSecretLength matches `openssl rand -hex 16`; use more in production.
	MinSecretLength = 32
)

var (
	// ErrTokenExpired is returned for a well-formed token past its exp.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrInvalidToken covers everything else: bad signature, wrong issuer
	// or algorithm, missing subject, garbage.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// TokenService signs and verifies session tokens with one HMAC secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithTTL overrides DefaultTokenTTL.
func WithTTL(d time.Duration) TokenOption {
	return func(s *TokenService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// NewTokenService creates a TokenService. JWT_SECRET=$(openssl rand -hex 32)
// gives a suitable secret.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", MinSecretLength)
	}
	s := &TokenService{secret: []byte(secret), ttl: DefaultTokenTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL reports the token lifetime, so the session cookie can match it.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Generate signs a session token for userID that is valid for TTL.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, s.ttl)
}

// GenerateWithDuration signs a token with a custom lifetime. A negative
// duration mints an already expired token.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: cannot sign a token without a user ID")
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate returns the user ID inside a token this service signed.
//
// Only HS256 is accepted. Pinning the method stops a token that claims
// "alg":"none" (or an RSA public key used as an HMAC secret) from passing.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	var c jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenStr, &c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrTokenExpired
	case err != nil:
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case c.Subject == "":
		return "", fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return c.Subject, nil
}
