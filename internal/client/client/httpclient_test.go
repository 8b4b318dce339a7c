package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophusers/internal/client/session"
	"github.com/dmitrijs2005/gophusers/internal/common"
	"github.com/dmitrijs2005/gophusers/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenStage attaches a fixed token and records every exchange.
type tokenStage struct {
	token string

	mu   sync.Mutex
	seen []session.Exchange
}

func (s *tokenStage) BeforeSend(_ context.Context, ex *session.Exchange) {
	ex.Token = s.token
}

func (s *tokenStage) AfterReceive(_ context.Context, ex *session.Exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, *ex)
}

func (s *tokenStage) last(t *testing.T) session.Exchange {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.seen)
	return s.seen[len(s.seen)-1]
}

func newHTTPFixture(t *testing.T, token string, h http.HandlerFunc) (*HTTPClient, *tokenStage, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	stage := &tokenStage{token: token}
	c := NewHTTPClient(srv.URL+"/", 2*time.Second, session.NewPipeline(stage))
	t.Cleanup(func() { _ = c.Close() })
	return c, stage, srv
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestHTTPClient_Exchange(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c, stage, _ := newHTTPFixture(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/external", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "A1", body["assertion"])

		writeJSON(w, http.StatusOK, map[string]any{
			"token": "T1", "token_type": "bearer", "expires_at": exp,
			"user": map[string]any{"id": "u1", "email": "a@example.com"},
		})
	})

	g, err := c.Exchange(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, "T1", g.Token)
	assert.True(t, exp.Equal(g.ExpiresAt))
	assert.Equal(t, "u1", g.User.ID)

	ex := stage.last(t)
	assert.Equal(t, "POST /auth/external", ex.Operation)
	assert.Equal(t, session.OutcomeOK, ex.Outcome)
}

func TestHTTPClient_AttachesPipelineToken(t *testing.T) {
	c, _, _ := newHTTPFixture(t, "T1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer T1", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, models.User{ID: "u1", Profile: models.Profile{Bio: "hi"}})
	})

	u, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "hi", u.Profile.Bio)
}

func TestHTTPClient_Updates(t *testing.T) {
	c, _, _ := newHTTPFixture(t, "T1", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch r.Method + " " + r.URL.Path {
		case "PUT /users/me/profile":
			assert.JSONEq(t, `{"bio":"hello"}`, string(body))
			writeJSON(w, http.StatusOK, models.User{ID: "u1", Profile: models.Profile{Bio: "hello"}})
		case "PUT /users/me":
			assert.JSONEq(t, `{"name":"Ada"}`, string(body))
			writeJSON(w, http.StatusOK, models.User{ID: "u1", Name: "Ada"})
		case "POST /users/me/avatar":
			assert.JSONEq(t, `{"content_type":"image/png"}`, string(body))
			writeJSON(w, http.StatusOK, AvatarUpload{Key: "avatars/u1/x", UploadURL: "http://s3/put", PictureURL: "http://s3/x"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})
	ctx := context.Background()
	bio, name := "hello", "Ada"

	u, err := c.UpdateProfile(ctx, models.ProfileUpdate{Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "hello", u.Profile.Bio)

	u, err = c.UpdateAccount(ctx, models.AccountUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)

	up, err := c.PresignAvatar(ctx, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://s3/put", up.UploadURL)
	assert.Equal(t, "http://s3/x", up.PictureURL)
}

func TestHTTPClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		body    string
		want    error
		detail  string
		outcome session.Outcome
	}{
		{
			name: "unauthorized", code: 401, body: `{"detail":"Could not validate credentials"}`,
			want: ErrUnauthorized, detail: "Could not validate credentials", outcome: session.OutcomeUnauthorized,
		},
		{name: "not found", code: 404, body: `{"detail":"not found"}`, want: ErrNotFound, detail: "not found", outcome: session.OutcomeRejected},
		{name: "bad request", code: 400, body: `{"detail":"malformed body"}`, want: ErrBadRequest, detail: "malformed body", outcome: session.OutcomeRejected},
		{name: "provisioning", code: 503, body: `{"detail":"user provisioning failed"}`, want: ErrServer, detail: "user provisioning failed", outcome: session.OutcomeServerError},
		{name: "plain text", code: 500, body: "boom", want: ErrServer, detail: "boom", outcome: session.OutcomeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, stage, _ := newHTTPFixture(t, "T1", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.Me(context.Background())
			require.ErrorIs(t, err, tt.want)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.code, apiErr.Status)
			assert.Equal(t, tt.detail, apiErr.Detail)

			ex := stage.last(t)
			assert.Equal(t, tt.outcome, ex.Outcome)
			assert.Equal(t, "T1", ex.Token)
		})
	}
}

func TestHTTPClient_ValidationErrors(t *testing.T) {
	c, stage, _ := newHTTPFixture(t, "T1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": []map[string]any{
			{"loc": []any{"body", "phone"}, "msg": "invalid phone number", "type": "value_error"},
			{"loc": []any{"body", "bio"}, "msg": "too long", "type": "value_error"},
		}})
	})

	bio := "x"
	_, err := c.UpdateProfile(context.Background(), models.ProfileUpdate{Bio: &bio})
	require.ErrorIs(t, err, ErrValidation)

	var fe common.FieldErrors
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, common.FieldErrors{
		{Field: "phone", Message: "invalid phone number"},
		{Field: "bio", Message: "too long"},
	}, fe)
	assert.Equal(t, session.OutcomeRejected, stage.last(t).Outcome)
}

func TestHTTPClient_ValidationWithoutDetails(t *testing.T) {
	c, _, _ := newHTTPFixture(t, "", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "nope"})
	})

	_, err := c.Me(context.Background())
	require.ErrorIs(t, err, ErrValidation)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "nope", apiErr.Detail)
}

func TestHTTPClient_TransportFailure(t *testing.T) {
	c, stage, srv := newHTTPFixture(t, "T1", func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := c.Me(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.True(t, IsTransportError(err))

	ex := stage.last(t)
	assert.Equal(t, session.OutcomeTransportError, ex.Outcome)
	assert.Error(t, ex.Err)
}

func TestHTTPClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	stage := &tokenStage{token: "T1"}
	c := NewHTTPClient(srv.URL, 50*time.Millisecond, session.NewPipeline(stage))

	_, err := c.Me(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, session.OutcomeTransportError, stage.last(t).Outcome)
}

func TestHTTPClient_BadResponseBody(t *testing.T) {
	c, _, _ := newHTTPFixture(t, "", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "{not json")
	})

	_, err := c.Me(context.Background())
	require.ErrorContains(t, err, "decode response")
}

func TestFieldName(t *testing.T) {
	assert.Equal(t, "phone", fieldName([]any{"body", "phone"}))
	assert.Equal(t, "items", fieldName([]any{"body", "items", float64(0)}))
	assert.Equal(t, "", fieldName(nil))
}

func TestAPIError_Error(t *testing.T) {
	assert.Equal(t, "unauthorized: expired", (&APIError{Detail: "expired", Err: ErrUnauthorized}).Error())
	assert.Equal(t, "not found", (&APIError{Err: ErrNotFound}).Error())
}
