// Package auth verifies bearer tokens and carries the caller identity through
// request contexts. Token issuance by a login flow lives outside this service;
// GenerateToken exists for operators and tests.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"sitetrack.io/internal/model"
)

const defaultIssuer = "sitetrack"

// Claims represents JWT claims accepted by the API.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Config holds the HS256 key material and expected issuer.
type Config struct {
	Secret string
	Issuer string
}

// Verifier signs and validates HS256 tokens.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier builds a Verifier. An empty secret is a configuration error.
func NewVerifier(cfg Config) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	iss := strings.TrimSpace(cfg.Issuer)
	if iss == "" {
		iss = defaultIssuer
	}
	return &Verifier{secret: []byte(secret), issuer: iss, now: time.Now}, nil
}

// GenerateToken signs a token for the given user and role.
func (v *Verifier) GenerateToken(userID string, role model.Role, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("userID is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}

	now := v.now().UTC()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseAndValidate verifies the token signature and required claims.
func (v *Verifier) ParseAndValidate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := v.validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate turns a bearer token into an Identity.
func (v *Verifier) Authenticate(token string) (Identity, error) {
	claims, err := v.ParseAndValidate(token)
	if err != nil {
		return Identity{}, err
	}
	role, _ := model.ParseRole(claims.Role)
	return Identity{UserID: claims.Subject, Role: role}, nil
}

func (v *Verifier) validateClaims(claims *Claims) error {
	if claims.Issuer != v.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := v.now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
