package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ADMIN KEY:
// Problem management (create, import, edit, delete) is guarded by one
// shared key sent in the X-Admin-Key header. The server only ever sees its
// bcrypt hash (ADMIN_KEY_HASH); `server -hash-admin-key` produces one.
//
// bcrypt is slow on purpose. One comparison per admin request is nothing
// for us and a lot for someone guessing keys. The salt and the cost are
// embedded in the hash string:
//
//	$2a$12$<22-char salt><31-char hash>

const (
	// defaultCost takes roughly 250ms on a modern server.
	defaultCost = 12

	// MinAdminKeyLength keeps trivially guessable keys out.
	MinAdminKeyLength = 8

	// bcrypt ignores everything after 72 bytes.
	maxAdminKeyLength = 72
)

// ErrInvalidAdminKey is returned by Verify when the key does not match.
var ErrInvalidAdminKey = errors.New("auth: invalid admin key")

// KeyHasher hashes and checks the admin key.
//
// It's a struct so tests can lower the cost; bcrypt.MinCost turns a 250ms
// hash into well under a millisecond.
type KeyHasher struct {
	cost int
}

// NewKeyHasher returns a KeyHasher with the production cost.
func NewKeyHasher() *KeyHasher {
	return &KeyHasher{cost: defaultCost}
}

// NewKeyHasherWithCost is for tests. Never use a low cost in production.
func NewKeyHasherWithCost(cost int) *KeyHasher {
	return &KeyHasher{cost: cost}
}

// Hash returns the bcrypt hash to put in ADMIN_KEY_HASH.
func (k *KeyHasher) Hash(key string) (string, error) {
	switch {
	case len(key) < MinAdminKeyLength:
		return "", fmt.Errorf("auth: admin key must be at least %d bytes", MinAdminKeyLength)
	case len(key) > maxAdminKeyLength:
		// Rejected rather than silently truncated by bcrypt.
		return "", fmt.Errorf("auth: admin key must be %d bytes or fewer", maxAdminKeyLength)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(key), k.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing admin key: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil when key matches hash and ErrInvalidAdminKey when it
// does not. A malformed hash is a configuration error and is wrapped as is.
//
// bcrypt.CompareHashAndPassword compares in constant time.
func (k *KeyHasher) Verify(hash, key string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrInvalidAdminKey
	default:
		return fmt.Errorf("auth: checking admin key: %w", err)
	}
}
