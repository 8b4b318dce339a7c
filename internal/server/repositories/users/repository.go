// Package users stores the canonical user records and their profiles.
package users

import (
	"context"

	"github.com/dmitrijs2005/gophusers/internal/models"
)

// Repository persists users. Implementations serialize writes per user so
// that concurrent partial updates never lose each other's fields.
type Repository interface {
	// Create inserts user together with an empty profile. If a record for the
	// same provider subject already exists it is returned unchanged.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetBySubject(ctx context.Context, provider, subject string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	// EnsureProfile creates the profile row for userID if it is missing.
	EnsureProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpdateAccount(ctx context.Context, id string, upd models.AccountUpdate) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (*models.User, error)
}
