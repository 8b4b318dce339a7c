package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophusers/internal/common"
	"github.com/dmitrijs2005/gophusers/internal/logging"
	"github.com/dmitrijs2005/gophusers/internal/models"
	"github.com/dmitrijs2005/gophusers/internal/server/repositories/users"
)

// UserService reads and updates the record of an already authenticated user.
type UserService struct {
	users  users.Repository
	logger logging.Logger
}

func NewUserService(repo users.Repository, logger logging.Logger) *UserService {
	return &UserService{users: repo, logger: logger.With("module", "users")}
}

// Me returns the full record of userID, creating an empty profile when the
// record predates profiles.
func (s *UserService) Me(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, s.wrap(err)
	}
	if u.Profile.ID == "" {
		p, err := s.users.EnsureProfile(ctx, userID)
		if err != nil {
			return nil, s.wrap(err)
		}
		u.Profile = *p
	}
	return u, nil
}

// UpdateProfile validates upd and applies it. Only supplied fields change.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.User, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}
	u, err := s.users.UpdateProfile(ctx, userID, upd.Normalize())
	if err != nil {
		s.logger.Error(ctx, "profile update failed", "user_id", userID, "error", err)
		return nil, s.wrap(err)
	}
	return u, nil
}

// UpdateAccount validates upd and applies it to the name and picture fields.
func (s *UserService) UpdateAccount(ctx context.Context, userID string, upd models.AccountUpdate) (*models.User, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}
	u, err := s.users.UpdateAccount(ctx, userID, upd.Normalize())
	if err != nil {
		s.logger.Error(ctx, "account update failed", "user_id", userID, "error", err)
		return nil, s.wrap(err)
	}
	return u, nil
}

func (s *UserService) wrap(err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", common.ErrorInternal, err)
}
