package client

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophusers/internal/client/session"
	"github.com/dmitrijs2005/gophusers/internal/models"
)

// Client is the gophusers API as seen by the CLI. Implementations attach the
// session token and report outcomes through their session.Pipeline.
type Client interface {
	Exchange(ctx context.Context, assertion string) (session.Grant, error)
	Me(ctx context.Context) (models.User, error)
	UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (models.User, error)
	UpdateAccount(ctx context.Context, upd models.AccountUpdate) (models.User, error)
	PresignAvatar(ctx context.Context, contentType string) (AvatarUpload, error)
	Close() error
}

// AvatarUpload is a presigned URL the avatar image can be PUT to, and the
// picture URL to store on the account afterwards.
type AvatarUpload struct {
	Key        string    `json:"key"`
	UploadURL  string    `json:"upload_url"`
	PictureURL string    `json:"picture_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type exchangeResponse struct {
	Token     string      `json:"token"`
	TokenType string      `json:"token_type"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

func (r exchangeResponse) grant() session.Grant {
	return session.Grant{Token: r.Token, ExpiresAt: r.ExpiresAt, User: r.User}
}
