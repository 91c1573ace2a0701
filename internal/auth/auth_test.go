package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sitetrack.io/internal/model"
)

func newTestVerifier(t *testing.T, issuer string) *Verifier {
	t.Helper()
	v, err := NewVerifier(Config{Secret: "test-secret", Issuer: issuer})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

func TestGenerateAndValidate(t *testing.T) {
	v := newTestVerifier(t, "test-issuer")

	token, err := v.GenerateToken("user-42", model.RoleBureau, 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := v.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Issuer != "test-issuer" {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("expected token id")
	}

	id, err := v.Authenticate(token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.UserID != "user-42" || id.Role != model.RoleBureau {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier(Config{Secret: "  "}); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	v := newTestVerifier(t, "")
	issued := time.Now().Add(-2 * time.Hour)
	v.now = func() time.Time { return issued }
	token, err := v.GenerateToken("user-1", model.RoleAdmin, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	v.now = time.Now
	if _, err := v.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	issuerA := newTestVerifier(t, "a")
	issuerB := newTestVerifier(t, "b")
	token, err := issuerA.GenerateToken("user-1", model.RoleAdmin, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := issuerB.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	v := newTestVerifier(t, "")
	other, err := NewVerifier(Config{Secret: "other-secret"})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	token, err := other.GenerateToken("user-1", model.RoleAdmin, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := v.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsOtherAlgorithms(t *testing.T) {
	v := newTestVerifier(t, "")
	now := time.Now()
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    defaultIssuer,
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	if _, err := v.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestGenerateTokenValidatesInput(t *testing.T) {
	v := newTestVerifier(t, "")
	if _, err := v.GenerateToken(" ", model.RoleAdmin, time.Minute); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if _, err := v.GenerateToken("user-1", model.RoleAdmin, 0); err == nil {
		t.Fatal("expected error for non-positive ttl")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := ContextWithIdentity(context.Background(), Identity{UserID: " user-7 ", Role: model.RoleTerrain})
	id, ok := IdentityFromContext(ctx)
	if !ok || id.UserID != "user-7" || id.Role != model.RoleTerrain {
		t.Fatalf("unexpected identity: %+v, ok=%v", id, ok)
	}
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatal("expected no identity in empty context")
	}
	if _, ok := IdentityFromContext(ContextWithIdentity(context.Background(), Identity{})); ok {
		t.Fatal("blank user id must not count as authenticated")
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("secret-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := VerifyPassword(hash, "secret-pass"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong-pass"); err == nil {
		t.Fatal("expected mismatch")
	}
	if _, err := HashPassword("short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestLockedPasswordNeverVerifies(t *testing.T) {
	for _, hash := range []string{"", LockedPassword} {
		if err := VerifyPassword(hash, ""); !errors.Is(err, ErrLockedAccount) {
			t.Fatalf("VerifyPassword(%q) = %v, want ErrLockedAccount", hash, err)
		}
	}
}
