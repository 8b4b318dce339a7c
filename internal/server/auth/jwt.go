// Package auth mints and validates the service's own session tokens.
//
// Tokens are HS256 JWTs carrying the user id as subject plus issuer,
// audience, issued-at, expiry and a random jti. Validation is stateless:
// a token is valid iff its signature verifies, issuer and audience match and
// the current time is strictly before its expiry.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophusers/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the claim set of a session token.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates session tokens with a shared secret.
type TokenIssuer struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
	now      func() time.Time
}

// Option customises a TokenIssuer.
type Option func(*TokenIssuer)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(t *TokenIssuer) { t.now = now }
}

// NewTokenIssuer returns an issuer for tokens valid for ttl.
func NewTokenIssuer(secret []byte, ttl time.Duration, issuer, audience string, opts ...Option) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: empty signing secret")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token lifetime must be positive")
	}
	t := &TokenIssuer{secret: secret, ttl: ttl, issuer: issuer, audience: audience, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// TTL is the configured validity window.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

// Issue mints a token for userID and returns it with its expiry.
func (t *TokenIssuer) Issue(userID string) (string, time.Time, error) {
	now := t.now().UTC()
	expiresAt := now.Add(t.ttl)

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		Issuer:    t.issuer,
		Audience:  jwt.ClaimStrings{t.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	// NumericDate has second precision; report what the token actually carries.
	return token, claims.ExpiresAt.Time, nil
}

// Validate checks a token and returns the user id it was issued for.
// Expired tokens yield common.ErrTokenExpired, everything else
// common.ErrInvalidToken.
func (t *TokenIssuer) Validate(token string) (string, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", common.ErrInvalidToken
	}
	return claims.Subject, nil
}
