// Package services contains server-side business logic. SessionService turns
// external identity assertions into session tokens; UserService reads and
// mutates the authenticated user's record.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophusers/internal/common"
	"github.com/dmitrijs2005/gophusers/internal/logging"
	"github.com/dmitrijs2005/gophusers/internal/models"
	"github.com/dmitrijs2005/gophusers/internal/server/identity"
	"github.com/dmitrijs2005/gophusers/internal/server/repositories/users"
)

// AssertionVerifier checks an identity assertion. *identity.Verifier
// satisfies it.
type AssertionVerifier interface {
	Verify(ctx context.Context, assertion string) (*identity.Assertion, error)
}

// TokenIssuer mints and validates session tokens. *auth.TokenIssuer
// satisfies it.
type TokenIssuer interface {
	Issue(userID string) (string, time.Time, error)
	Validate(token string) (string, error)
}

// Session is the result of a successful exchange.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

type SessionService struct {
	verifier AssertionVerifier
	replay   identity.ReplayGuard
	issuer   TokenIssuer
	users    users.Repository
	logger   logging.Logger
}

func NewSessionService(v AssertionVerifier, replay identity.ReplayGuard, issuer TokenIssuer,
	repo users.Repository, logger logging.Logger) *SessionService {
	return &SessionService{
		verifier: v,
		replay:   replay,
		issuer:   issuer,
		users:    repo,
		logger:   logger.With("module", "sessions"),
	}
}

// Exchange verifies assertion, provisions the user on first sight and mints
// a session token. Errors match common.ErrInvalidAssertion or
// common.ErrProvisioning.
func (s *SessionService) Exchange(ctx context.Context, assertion string) (*Session, error) {
	a, err := s.verifier.Verify(ctx, assertion)
	if err != nil {
		s.logger.Info(ctx, "assertion rejected", "error", err)
		return nil, err
	}

	if s.replay != nil {
		if err := s.replay.Claim(ctx, identity.ReplayKey(a, assertion), a.ClaimUntil()); err != nil {
			if errors.Is(err, identity.ErrReplayed) {
				s.logger.Warn(ctx, "assertion replayed", "subject", a.Identity.Subject)
				return nil, fmt.Errorf("%w: %v", common.ErrInvalidAssertion, err)
			}
			s.logger.Error(ctx, "replay guard unavailable", "error", err)
			return nil, fmt.Errorf("%w: %v", common.ErrProvisioning, err)
		}
	}

	user, err := s.provision(ctx, a.Identity)
	if err != nil {
		s.logger.Error(ctx, "user provisioning failed", "subject", a.Identity.Subject, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrProvisioning, err)
	}
	if !user.IsActive {
		s.logger.Info(ctx, "inactive user rejected", "user_id", user.ID)
		return nil, fmt.Errorf("%w: user is inactive", common.ErrInvalidAssertion)
	}

	token, exp, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	s.logger.Info(ctx, "session issued", "user_id", user.ID, "expires_at", exp)
	return &Session{Token: token, ExpiresAt: exp, User: user}, nil
}

func (s *SessionService) provision(ctx context.Context, id models.SubjectIdentity) (*models.User, error) {
	user, err := s.users.GetBySubject(ctx, id.Provider, id.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	return s.users.Create(ctx, &models.User{
		Provider: id.Provider,
		Subject:  id.Subject,
		Email:    id.Email,
		Name:     id.Name,
		Picture:  id.Picture,
	})
}

// Authenticate validates a session token and loads its user. Every failure
// matches common.ErrorUnauthorized, except repository failures which match
// common.ErrorInternal.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	userID, err := s.issuer.Validate(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorUnauthorized, err)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: unknown user", common.ErrorUnauthorized)
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: user is inactive", common.ErrorUnauthorized)
	}
	return user, nil
}
