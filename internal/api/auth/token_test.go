package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func parseWith(t *testing.T, tokenStr string, secret []byte) (*jwt.RegisteredClaims, error) {
	t.Helper()
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(tk *jwt.Token) (interface{}, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	return claims, err
}

func TestIssueToken_RoundTrip(t *testing.T) {
	secret := []byte("test-secret")

	tokenStr, err := IssueToken(42, secret)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	claims, err := parseWith(t, tokenStr, secret)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "42" {
		t.Fatalf("expected subject 42, got %q", claims.Subject)
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining < 6*24*time.Hour || remaining > 7*24*time.Hour {
		t.Fatalf("expected ~7 day expiry, got %v", remaining)
	}
}

func TestIssueToken_WrongSecretRejected(t *testing.T) {
	tokenStr, err := IssueToken(1, []byte("secret-a"))
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := parseWith(t, tokenStr, []byte("secret-b")); err == nil {
		t.Fatalf("expected verification failure with wrong secret")
	}
}

func TestIssueToken_GarbageRejected(t *testing.T) {
	for _, tokenStr := range []string{"", "garbage", "a.b.c"} {
		if _, err := parseWith(t, tokenStr, []byte("secret")); err == nil {
			t.Fatalf("expected parse failure for %q", tokenStr)
		}
	}
}
