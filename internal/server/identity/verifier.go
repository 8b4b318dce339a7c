package identity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophusers/internal/common"
	"github.com/dmitrijs2005/gophusers/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// GoogleIssuers are the issuer values Google puts into ID tokens.
var GoogleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// AssertionClaims is the subset of OIDC ID token claims we consume.
type AssertionClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Assertion is a verified assertion: the identity it proves plus the
// values needed to enforce single use.
//
// ReplayUntil is the last instant the verifier would still accept the
// assertion (exp plus leeway); single-use claims must last at least that long.
type Assertion struct {
	Identity    models.SubjectIdentity
	ID          string
	ExpiresAt   time.Time
	ReplayUntil time.Time
}

// ClaimUntil is how long a replay guard must remember the assertion.
func (a *Assertion) ClaimUntil() time.Time {
	if a.ReplayUntil.After(a.ExpiresAt) {
		return a.ReplayUntil
	}
	return a.ExpiresAt
}

// Verifier validates identity assertions against one provider.
type Verifier struct {
	keys     KeySource
	provider string
	issuers  []string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	Provider string
	Issuers  []string
	Audience string
	Leeway   time.Duration
	Now      func() time.Time
}

// NewVerifier builds a Verifier. Audience is required: without it any token
// minted by the provider for any client would be accepted.
func NewVerifier(keys KeySource, cfg VerifierConfig) (*Verifier, error) {
	if keys == nil {
		return nil, errors.New("identity: nil key source")
	}
	if strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("identity: audience must be set")
	}
	if len(cfg.Issuers) == 0 {
		return nil, errors.New("identity: at least one issuer must be set")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Provider == "" {
		cfg.Provider = "google"
	}
	return &Verifier{
		keys:     keys,
		provider: cfg.Provider,
		issuers:  cfg.Issuers,
		audience: cfg.Audience,
		leeway:   cfg.Leeway,
		now:      cfg.Now,
	}, nil
}

// Verify checks the assertion and extracts the subject identity. Every
// failure matches common.ErrInvalidAssertion.
func (v *Verifier) Verify(ctx context.Context, assertion string) (*Assertion, error) {
	if strings.TrimSpace(assertion) == "" {
		return nil, fmt.Errorf("%w: empty assertion", common.ErrInvalidAssertion)
	}

	claims := &AssertionClaims{}
	_, err := jwt.ParseWithClaims(assertion, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.Key(ctx, kid)
	},
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidAssertion, err)
	}

	if !slices.Contains(v.issuers, claims.Issuer) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", common.ErrInvalidAssertion, claims.Issuer)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", common.ErrInvalidAssertion)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: missing email", common.ErrInvalidAssertion)
	}

	return &Assertion{
		Identity: models.SubjectIdentity{
			Provider:      v.provider,
			Subject:       claims.Subject,
			Email:         strings.ToLower(claims.Email),
			EmailVerified: claims.EmailVerified,
			Name:          claims.Name,
			Picture:       claims.Picture,
		},
		ID:          claims.ID,
		ExpiresAt:   claims.ExpiresAt.Time,
		ReplayUntil: claims.ExpiresAt.Time.Add(v.leeway),
	}, nil
}
