// Package services contains application services for the gophusers CLI.
// ProfileService applies profile and account changes optimistically to the
// cached session user and reconciles them with the server's answer.
package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/gophusers/internal/client/client"
	"github.com/dmitrijs2005/gophusers/internal/client/session"
	"github.com/dmitrijs2005/gophusers/internal/filex"
	"github.com/dmitrijs2005/gophusers/internal/logging"
	"github.com/dmitrijs2005/gophusers/internal/models"
	"github.com/dmitrijs2005/gophusers/internal/netx"
)

// MaxAvatarSize bounds avatar files read from disk.
const MaxAvatarSize = 5 << 20

// uploadToPresignedURL and readAvatar are replaced in tests.
var (
	uploadToPresignedURL = netx.UploadToPresignedURL
	readAvatar           = filex.ReadLimited
)

// ProfileAPI is the part of client.Client the profile service needs.
type ProfileAPI interface {
	UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (models.User, error)
	UpdateAccount(ctx context.Context, upd models.AccountUpdate) (models.User, error)
	PresignAvatar(ctx context.Context, contentType string) (client.AvatarUpload, error)
}

type ProfileService struct {
	api    ProfileAPI
	store  *session.Store
	logger logging.Logger
}

func NewProfileService(api ProfileAPI, store *session.Store, logger logging.Logger) *ProfileService {
	return &ProfileService{api: api, store: store, logger: logger.With("module", "profile")}
}

// Update changes profile fields. Invalid input is rejected locally without a
// request. On success the cached user is replaced by the server's record; on
// any failure the optimistic change is rolled back.
func (s *ProfileService) Update(ctx context.Context, upd models.ProfileUpdate) (models.User, error) {
	if err := upd.Validate(); err != nil {
		return models.User{}, err
	}
	upd = upd.Normalize()

	return s.mutate(ctx,
		func(u *models.User) { upd.Apply(&u.Profile) },
		func(ctx context.Context) (models.User, error) { return s.api.UpdateProfile(ctx, upd) },
	)
}

// UpdateAccount changes name and picture the same way Update changes the
// profile.
func (s *ProfileService) UpdateAccount(ctx context.Context, upd models.AccountUpdate) (models.User, error) {
	if err := upd.Validate(); err != nil {
		return models.User{}, err
	}
	upd = upd.Normalize()

	return s.mutate(ctx,
		func(u *models.User) { upd.Apply(u) },
		func(ctx context.Context) (models.User, error) { return s.api.UpdateAccount(ctx, upd) },
	)
}

// UploadAvatar uploads the image at path through a presigned URL and points
// the account picture at it.
func (s *ProfileService) UploadAvatar(ctx context.Context, path string) (models.User, error) {
	if _, ok := s.store.Current().(session.Authenticated); !ok {
		return models.User{}, session.ErrNotAuthenticated
	}

	data, err := readAvatar(path, MaxAvatarSize)
	if err != nil {
		return models.User{}, err
	}
	contentType := http.DetectContentType(data)

	up, err := s.api.PresignAvatar(ctx, contentType)
	if err != nil {
		return models.User{}, err
	}
	if err := uploadToPresignedURL(ctx, up.UploadURL, contentType, data); err != nil {
		return models.User{}, fmt.Errorf("avatar upload: %w", err)
	}
	s.logger.Info(ctx, "avatar uploaded", "key", up.Key)

	return s.UpdateAccount(ctx, models.AccountUpdate{Picture: &up.PictureURL})
}

func (s *ProfileService) mutate(ctx context.Context, apply func(*models.User), write func(context.Context) (models.User, error)) (models.User, error) {
	p, ok := s.store.Provisional(apply)
	if !ok {
		return models.User{}, session.ErrNotAuthenticated
	}
	token := p.Token()

	user, err := write(session.WithToken(ctx, token))
	if err != nil {
		if s.store.Rollback(p) {
			s.logger.Debug(ctx, "optimistic change rolled back", "error", err)
		}
		return models.User{}, err
	}

	if _, err := s.store.CommitIf(ctx, token, user); err != nil {
		return user, err
	}
	return user, nil
}
