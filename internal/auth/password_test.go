package auth

import (
	"strings"
	"testing"
)

func TestHashPassword_roundtrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("unexpected hash format: %s", hash)
	}

	ok, err := VerifyPassword("correct horse battery staple", hash)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Error("correct password should verify")
	}

	ok, err = VerifyPassword("wrong password", hash)
	if err != nil {
		t.Fatalf("verify wrong: %v", err)
	}
	if ok {
		t.Error("wrong password should not verify")
	}
}

func TestHashPassword_saltedPerCall(t *testing.T) {
	h1, err := HashPassword("secret-password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := HashPassword("secret-password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 == h2 {
		t.Error("hashes of the same password should differ (random salt)")
	}
}

func TestVerifyPassword_invalidFormat(t *testing.T) {
	if _, err := VerifyPassword("x", "not-a-hash"); err == nil {
		t.Error("invalid hash format should error")
	}
	if _, err := VerifyPassword("x", "$bcrypt$something$else$entirely$here"); err == nil {
		t.Error("non-argon2id hash should error")
	}
}
