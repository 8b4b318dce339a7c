package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophusers/internal/logging"
	"github.com/dmitrijs2005/gophusers/internal/models"
	"github.com/dmitrijs2005/gophusers/internal/server/avatars"
	"github.com/dmitrijs2005/gophusers/internal/server/services"
)

// Sessions exchanges assertions and authenticates session tokens.
type Sessions interface {
	Exchange(ctx context.Context, assertion string) (*services.Session, error)
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// Users reads and mutates the authenticated user.
type Users interface {
	Me(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.User, error)
	UpdateAccount(ctx context.Context, userID string, upd models.AccountUpdate) (*models.User, error)
}

// Avatars presigns avatar uploads. A nil *avatars.Presigner reports
// avatars.ErrDisabled.
type Avatars interface {
	PresignUpload(ctx context.Context, userID, contentType string) (*avatars.Upload, error)
}

type handler struct {
	name     string
	sessions Sessions
	users    Users
	avatars  Avatars
	logger   logging.Logger
}

type exchangeRequest struct {
	Assertion string `json:"assertion"`
	// Credential is the field name browser sign-in widgets use.
	Credential string `json:"credential"`
}

type exchangeResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

type avatarRequest struct {
	ContentType string `json:"content_type"`
}

func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to " + h.name})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *handler) exchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := decodeJSON(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	assertion := req.Assertion
	if assertion == "" {
		assertion = req.Credential
	}
	if assertion == "" {
		writeError(w, errBadBody)
		return
	}

	sess, err := h.sessions.Exchange(r.Context(), assertion)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, exchangeResponse{
		Token:     sess.Token,
		TokenType: "bearer",
		ExpiresAt: sess.ExpiresAt.UTC(),
		User:      sess.User,
	})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	cur, _ := userFromContext(r.Context())
	u, err := h.users.Me(r.Context(), cur.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) profile(w http.ResponseWriter, r *http.Request) {
	cur, _ := userFromContext(r.Context())
	u, err := h.users.Me(r.Context(), cur.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u.Profile)
}

func (h *handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	cur, _ := userFromContext(r.Context())

	var upd models.ProfileUpdate
	if err := decodeJSON(r, w, &upd); err != nil {
		writeError(w, err)
		return
	}

	u, err := h.users.UpdateProfile(r.Context(), cur.ID, upd)
	if err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info(r.Context(), "profile updated", "user_id", cur.ID)
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	cur, _ := userFromContext(r.Context())

	var upd models.AccountUpdate
	if err := decodeJSON(r, w, &upd); err != nil {
		writeError(w, err)
		return
	}

	u, err := h.users.UpdateAccount(r.Context(), cur.ID, upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) avatar(w http.ResponseWriter, r *http.Request) {
	cur, _ := userFromContext(r.Context())

	var req avatarRequest
	if err := decodeJSON(r, w, &req); err != nil {
		writeError(w, err)
		return
	}

	up, err := h.avatars.PresignUpload(r.Context(), cur.ID, req.ContentType)
	if err != nil {
		if !errors.Is(err, avatars.ErrDisabled) {
			h.logger.Error(r.Context(), "presign failed", "user_id", cur.ID, "error", err)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}
