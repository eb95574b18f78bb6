package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/punchamoorthee/custodia/internal/domain"
)

const (
	RoleAdmin   = "admin"
	tokenIssuer = "custodia"
)

var ErrForbidden = errors.New("forbidden")

// AdminClaims is the JWT payload accepted on admin routes.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuthorizer issues and verifies HS256 admin tokens.
type AdminAuthorizer struct {
	secret []byte
	now    func() time.Time
}

func NewAdminAuthorizer(secret string) (*AdminAuthorizer, error) {
	if len(secret) < 16 {
		return nil, errors.New("admin jwt secret must be at least 16 bytes")
	}
	return &AdminAuthorizer{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a token for subject with the given role and lifetime.
func (a *AdminAuthorizer) Issue(subject, role string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := AdminClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign admin token: %w", err)
	}
	return signed, nil
}

// Verify returns the admin subject of token. Invalid or expired tokens yield
// domain.ErrAuth; valid tokens without the admin role yield ErrForbidden.
func (a *AdminAuthorizer) Verify(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing bearer token", domain.ErrAuth)
	}

	claims := &AdminClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuth, err)
	}
	if claims.Role != RoleAdmin {
		return "", fmt.Errorf("%w: role %q cannot perform admin actions", ErrForbidden, claims.Role)
	}
	return claims.Subject, nil
}
