package http

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTTL is the lifetime of a session token when none is configured.
const DefaultSessionTTL = 24 * time.Hour

var errInvalidSessionToken = errors.New("invalid session token")

// SessionClaims are the claims carried by a signed session token.
type SessionClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer builds an issuer. A non-positive ttl falls back to DefaultSessionTTL
// and a nil clock to time.Now.
func NewTokenIssuer(secret string, ttl time.Duration, now func() time.Time) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("session secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: now}, nil
}

// Issue returns a signed token for the user and its expiry.
func (t *TokenIssuer) Issue(userID, email, role string) (string, time.Time, error) {
	issuedAt := t.now().UTC()
	expiresAt := issuedAt.Add(t.ttl)

	claims := SessionClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and expiry of raw and returns its claims.
func (t *TokenIssuer) Verify(raw string) (SessionClaims, error) {
	var claims SessionClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return SessionClaims{}, fmt.Errorf("%w: %v", errInvalidSessionToken, err)
	}
	if !token.Valid || claims.Subject == "" || claims.Email == "" {
		return SessionClaims{}, errInvalidSessionToken
	}
	return claims, nil
}
