package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestInspectReadsSubjectAndExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	id := Inspect("Bearer " + signed(t, jwt.MapClaims{"sub": "user-1", "exp": exp}))

	if id.UserID != "user-1" {
		t.Fatalf("expected user-1, got %q", id.UserID)
	}
	if id.ExpiresAt.Unix() != exp {
		t.Fatalf("unexpected expiry %v", id.ExpiresAt)
	}
	if !id.Authenticated(time.Now()) {
		t.Fatal("expected authenticated")
	}
	if id.Authenticated(time.Unix(exp+1, 0)) {
		t.Fatal("expected expired token to be unauthenticated")
	}
}

func TestInspectFallsBackToAlternateClaims(t *testing.T) {
	id := Inspect(signed(t, jwt.MapClaims{"id": "abc"}))
	if id.UserID != "abc" {
		t.Fatalf("expected abc, got %q", id.UserID)
	}
	if !id.ExpiresAt.IsZero() {
		t.Fatalf("expected no expiry, got %v", id.ExpiresAt)
	}
}

func TestInspectOpaqueAndEmpty(t *testing.T) {
	opaque := Inspect("not-a-jwt")
	if opaque.UserID == "" || opaque.UserID != Inspect("not-a-jwt").UserID {
		t.Fatalf("expected stable opaque id, got %q", opaque.UserID)
	}
	if !opaque.Authenticated(time.Now()) {
		t.Fatal("expected opaque token to authenticate")
	}
	if Inspect("   ").Authenticated(time.Now()) {
		t.Fatal("expected empty token to be guest")
	}
}
