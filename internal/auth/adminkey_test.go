package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestKeyHasher() *KeyHasher {
	return NewKeyHasherWithCost(bcrypt.MinCost)
}

func TestKeyHasher_Hash(t *testing.T) {
	k := newTestKeyHasher()

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"typical key", "s3cret-admin-key", false},
		{"minimum length", strings.Repeat("k", MinAdminKeyLength), false},
		{"72 bytes", strings.Repeat("k", 72), false},
		{"too short", "short", true},
		{"empty", "", true},
		{"over 72 bytes", strings.Repeat("k", 73), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := k.Hash(tt.key)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Hash(%d bytes) should fail", len(tt.key))
				}
				return
			}
			if err != nil {
				t.Fatalf("Hash() error = %v", err)
			}
			if !strings.HasPrefix(hash, "$2") {
				t.Errorf("Hash() does not look like bcrypt: %q", hash)
			}
		})
	}
}

func TestKeyHasher_HashIsSalted(t *testing.T) {
	k := newTestKeyHasher()

	h1, _ := k.Hash("same-admin-key")
	h2, _ := k.Hash("same-admin-key")

	if h1 == h2 {
		t.Error("two hashes of the same key must differ")
	}
}

func TestKeyHasher_Verify(t *testing.T) {
	k := newTestKeyHasher()
	hash, err := k.Hash("correct-horse-battery")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if err := k.Verify(hash, "correct-horse-battery"); err != nil {
		t.Errorf("Verify(correct) = %v, want nil", err)
	}

	if err := k.Verify(hash, "wrong-horse-battery"); !errors.Is(err, ErrInvalidAdminKey) {
		t.Errorf("Verify(wrong) = %v, want ErrInvalidAdminKey", err)
	}

	if err := k.Verify(hash, ""); !errors.Is(err, ErrInvalidAdminKey) {
		t.Errorf("Verify(empty) = %v, want ErrInvalidAdminKey", err)
	}
}

func TestKeyHasher_VerifyMalformedHash(t *testing.T) {
	err := newTestKeyHasher().Verify("not-a-bcrypt-hash", "whatever-key")
	if err == nil {
		t.Fatal("Verify() should fail for a malformed hash")
	}
	if errors.Is(err, ErrInvalidAdminKey) {
		t.Error("a malformed hash is a configuration error, not a wrong key")
	}
}
