package middleware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func mintToken(t *testing.T, method jwt.SigningMethod, key interface{}, expiresAt time.Time) string {
	t.Helper()
	claims := &AppClaims{
		UserID: "user-1",
		Role:   "User",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	raw, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func TestParseToken(t *testing.T) {
	raw := mintToken(t, jwt.SigningMethodHS256, []byte(testSecret), time.Now().Add(time.Hour))

	claims, err := ParseToken(raw, testSecret)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", claims.UserID)
	}
	if claims.Role != "User" {
		t.Errorf("Role = %q, want User", claims.Role)
	}
}

func TestParseTokenRejectsUnsignedToken(t *testing.T) {
	raw := mintToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, time.Now().Add(time.Hour))

	if _, err := ParseToken(raw, testSecret); err == nil {
		t.Fatal("expected error for alg=none token, got nil")
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	raw := mintToken(t, jwt.SigningMethodHS256, []byte("other-secret"), time.Now().Add(time.Hour))

	if _, err := ParseToken(raw, testSecret); err == nil {
		t.Fatal("expected error for wrong secret, got nil")
	}
}

func TestParseTokenRejectsExpiredToken(t *testing.T) {
	raw := mintToken(t, jwt.SigningMethodHS256, []byte(testSecret), time.Now().Add(-time.Hour))

	if _, err := ParseToken(raw, testSecret); err == nil {
		t.Fatal("expected error for expired token, got nil")
	}
}
