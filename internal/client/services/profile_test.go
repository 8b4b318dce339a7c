package services

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophusers/internal/client/client"
	"github.com/dmitrijs2005/gophusers/internal/client/session"
	"github.com/dmitrijs2005/gophusers/internal/common"
	"github.com/dmitrijs2005/gophusers/internal/logging"
	"github.com/dmitrijs2005/gophusers/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func strp(s string) *string { return &s }

// fakeAPI plays the server. When gate is set, updates block until it is
// closed so tests can look at the optimistic state.
type fakeAPI struct {
	user    models.User
	err     error
	gate    chan struct{}
	entered chan struct{}

	tokens    []string
	presign   client.AvatarUpload
	presigned string
}

func (f *fakeAPI) wait(ctx context.Context) {
	if token, ok := tokenFrom(ctx); ok {
		f.tokens = append(f.tokens, token)
	}
	if f.gate != nil {
		close(f.entered)
		<-f.gate
	}
}

// tokenFrom runs an Authenticator over ctx to learn which token the request
// would carry.
func tokenFrom(ctx context.Context) (string, bool) {
	ex := &session.Exchange{}
	session.NewAuthenticator(session.NewStore(nil)).BeforeSend(ctx, ex)
	return ex.Token, ex.Token != ""
}

func (f *fakeAPI) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (models.User, error) {
	f.wait(ctx)
	if f.err != nil {
		return models.User{}, f.err
	}
	u := f.user
	upd.Apply(&u.Profile)
	u.UpdatedAt = u.UpdatedAt.Add(time.Second)
	f.user = u
	return u, nil
}

func (f *fakeAPI) UpdateAccount(ctx context.Context, upd models.AccountUpdate) (models.User, error) {
	f.wait(ctx)
	if f.err != nil {
		return models.User{}, f.err
	}
	u := f.user
	upd.Apply(&u)
	f.user = u
	return u, nil
}

func (f *fakeAPI) PresignAvatar(_ context.Context, contentType string) (client.AvatarUpload, error) {
	f.presigned = contentType
	return f.presign, f.err
}

func newProfileFixture(t *testing.T) (*ProfileService, *session.Store, *fakeAPI) {
	t.Helper()
	return newProfileFixtureDB(t, setupDB(t))
}

func newProfileFixtureDB(t *testing.T, db *sql.DB) (*ProfileService, *session.Store, *fakeAPI) {
	t.Helper()
	store := session.NewStore(db)
	u := models.User{ID: "u1", Email: "a@example.com", Name: "Ada", Profile: models.Profile{ID: "p1", UserID: "u1", Address: "1 Main St"}}
	require.NoError(t, store.Commit(context.Background(), "T1", u))
	api := &fakeAPI{user: u}
	return NewProfileService(api, store, logging.Nop{}), store, api
}

func currentUser(t *testing.T, s *session.Store) models.User {
	t.Helper()
	a, ok := s.Current().(session.Authenticated)
	require.True(t, ok)
	return a.User
}

func TestUpdate_ReplacesCacheWithServerRecord(t *testing.T) {
	db := setupDB(t)
	svc, store, api := newProfileFixtureDB(t, db)

	got, err := svc.Update(context.Background(), models.ProfileUpdate{Bio: strp("  hello ")})
	require.NoError(t, err)

	assert.Equal(t, "hello", got.Profile.Bio)
	assert.Equal(t, "1 Main St", got.Profile.Address)
	assert.Equal(t, api.user, currentUser(t, store))
	assert.Equal(t, []string{"T1"}, api.tokens)

	// persisted, not just cached
	st, err := session.NewStore(db).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.Authenticated{Token: "T1", User: api.user}, st)
}

func TestUpdate_OptimisticStateVisibleWhileInFlight(t *testing.T) {
	svc, store, api := newProfileFixture(t)
	api.gate = make(chan struct{})
	api.entered = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Update(context.Background(), models.ProfileUpdate{Bio: strp("draft")})
		done <- err
	}()

	<-api.entered
	assert.Equal(t, "draft", currentUser(t, store).Profile.Bio)
	close(api.gate)
	require.NoError(t, <-done)
	assert.Equal(t, "draft", currentUser(t, store).Profile.Bio)
}

func TestUpdate_RollsBackOnFailure(t *testing.T) {
	for name, apiErr := range map[string]error{
		"validation":  common.FieldErrors{{Field: "bio", Message: "too long"}},
		"unavailable": client.ErrUnavailable,
		"server":      client.ErrServer,
	} {
		t.Run(name, func(t *testing.T) {
			svc, store, api := newProfileFixture(t)
			before := currentUser(t, store)
			api.err = apiErr

			_, err := svc.Update(context.Background(), models.ProfileUpdate{Bio: strp("hello")})
			require.ErrorIs(t, err, apiErr)

			assert.Equal(t, before, currentUser(t, store))
			assert.Equal(t, "T1", session.TokenOf(store.Current()))
		})
	}
}

func TestUpdate_LocalValidationSendsNothing(t *testing.T) {
	svc, store, api := newProfileFixture(t)
	before := currentUser(t, store)

	_, err := svc.Update(context.Background(), models.ProfileUpdate{Address: strp("<script>")})
	require.ErrorIs(t, err, common.ErrValidation)

	assert.Empty(t, api.tokens)
	assert.Equal(t, before, currentUser(t, store))
}

func TestUpdate_RequiresSession(t *testing.T) {
	store := session.NewStore(setupDB(t))
	svc := NewProfileService(&fakeAPI{}, store, logging.Nop{})

	_, err := svc.Update(context.Background(), models.ProfileUpdate{Bio: strp("x")})
	require.ErrorIs(t, err, session.ErrNotAuthenticated)

	_, err = svc.UpdateAccount(context.Background(), models.AccountUpdate{Name: strp("x")})
	require.ErrorIs(t, err, session.ErrNotAuthenticated)

	_, err = svc.UploadAvatar(context.Background(), "avatar.png")
	require.ErrorIs(t, err, session.ErrNotAuthenticated)
}

func TestUpdate_SessionDroppedMidFlightStaysDropped(t *testing.T) {
	svc, store, api := newProfileFixture(t)
	api.gate = make(chan struct{})
	api.entered = make(chan struct{})
	api.err = client.ErrUnauthorized

	done := make(chan error, 1)
	go func() {
		_, err := svc.Update(context.Background(), models.ProfileUpdate{Bio: strp("draft")})
		done <- err
	}()

	<-api.entered
	require.NoError(t, store.Clear(context.Background()))
	close(api.gate)

	require.ErrorIs(t, <-done, client.ErrUnauthorized)
	assert.Equal(t, session.Unauthenticated{}, store.Current(), "rollback must not resurrect a cleared session")
}

func TestUpdateAccount(t *testing.T) {
	svc, store, _ := newProfileFixture(t)

	got, err := svc.UpdateAccount(context.Background(), models.AccountUpdate{Name: strp("Grace")})
	require.NoError(t, err)
	assert.Equal(t, "Grace", got.Name)
	assert.Equal(t, "Grace", currentUser(t, store).Name)

	_, err = svc.UpdateAccount(context.Background(), models.AccountUpdate{Name: strp(" ")})
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestUploadAvatar(t *testing.T) {
	svc, store, api := newProfileFixture(t)
	api.presign = client.AvatarUpload{Key: "avatars/u1/k", UploadURL: "https://s3.example/put", PictureURL: "https://cdn.example/avatars/u1/k"}

	path := filepath.Join(t.TempDir(), "me.png")
	png := []byte("\x89PNG\r\n\x1a\n0000")
	require.NoError(t, os.WriteFile(path, png, 0o600))

	var gotURL, gotType string
	var gotData []byte
	orig := uploadToPresignedURL
	uploadToPresignedURL = func(_ context.Context, url, contentType string, data []byte) error {
		gotURL, gotType, gotData = url, contentType, data
		return nil
	}
	t.Cleanup(func() { uploadToPresignedURL = orig })

	u, err := svc.UploadAvatar(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "image/png", api.presigned)
	assert.Equal(t, "https://s3.example/put", gotURL)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, png, gotData)
	assert.Equal(t, "https://cdn.example/avatars/u1/k", u.Picture)
	assert.Equal(t, u.Picture, currentUser(t, store).Picture)
}

func TestUploadAvatar_Failures(t *testing.T) {
	svc, store, api := newProfileFixture(t)
	before := currentUser(t, store)

	origRead := readAvatar
	readAvatar = func(string, int64) ([]byte, error) { return []byte("GIF89a"), nil }
	t.Cleanup(func() { readAvatar = origRead })

	api.err = client.ErrNotFound
	_, err := svc.UploadAvatar(context.Background(), "x.gif")
	require.ErrorIs(t, err, client.ErrNotFound)

	api.err = nil
	origUp := uploadToPresignedURL
	uploadToPresignedURL = func(context.Context, string, string, []byte) error { return errors.New("403") }
	t.Cleanup(func() { uploadToPresignedURL = origUp })

	_, err = svc.UploadAvatar(context.Background(), "x.gif")
	require.ErrorContains(t, err, "avatar upload")
	assert.Equal(t, before, currentUser(t, store))
}
