package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophusers/internal/logging"
	"github.com/dmitrijs2005/gophusers/internal/models"
)

var (
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrNotAuthenticated     = errors.New("not authenticated")
)

// Status is the reconciler's lifecycle state.
type Status int

const (
	StatusUnauthenticated Status = iota
	StatusAuthenticating
	StatusAuthenticated
	StatusInvalidating
)

func (s Status) String() string {
	switch s {
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusAuthenticating:
		return "authenticating"
	case StatusAuthenticated:
		return "authenticated"
	case StatusInvalidating:
		return "invalidating"
	default:
		return "unknown"
	}
}

// Grant is what the server hands out for an accepted identity assertion.
type Grant struct {
	Token     string
	ExpiresAt time.Time
	User      models.User
}

// API is the slice of the server API the reconciler drives. Calls made
// through it pass the transport's Pipeline, this reconciler included.
type API interface {
	Exchange(ctx context.Context, assertion string) (Grant, error)
	Me(ctx context.Context) (models.User, error)
}

// Reconciler moves the session between Unauthenticated, Authenticating,
// Authenticated and Invalidating. As a pipeline Stage it tears the session
// down when the server rejects the current token on any request; rejections
// of older tokens, other client errors, server errors and transport failures
// leave it alone.
type Reconciler struct {
	store  *Store
	api    API
	logger logging.Logger

	mu        sync.Mutex
	status    Status
	pending   int
	observers []func(Status)
}

func NewReconciler(store *Store, api API, logger logging.Logger) *Reconciler {
	r := &Reconciler{
		store:  store,
		api:    api,
		logger: logger.With("module", "session"),
	}
	if _, ok := store.Current().(Authenticated); ok {
		r.status = StatusAuthenticated
	}
	return r
}

func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Subscribe registers fn to be called on every status change. Calls happen
// on the goroutine that caused the change, outside internal locks.
func (r *Reconciler) Subscribe(fn func(Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

func (r *Reconciler) BeforeSend(context.Context, *Exchange) {}

func (r *Reconciler) AfterReceive(ctx context.Context, ex *Exchange) {
	if ex.Outcome != OutcomeUnauthorized || ex.Token == "" {
		return
	}
	if ok, err := r.invalidate(ctx, ex.Token); err != nil {
		r.logger.Error(ctx, "failed to clear rejected session", "operation", ex.Operation, "error", err)
	} else if ok {
		r.logger.Info(ctx, "session rejected by server", "operation", ex.Operation)
	} else {
		r.logger.Debug(ctx, "ignoring rejection of a stale token", "operation", ex.Operation)
	}
}

// Login exchanges an identity assertion for a session and commits it.
func (r *Reconciler) Login(ctx context.Context, assertion string) (models.User, error) {
	r.mu.Lock()
	if _, ok := r.store.Current().(Authenticated); ok {
		r.mu.Unlock()
		return models.User{}, ErrAlreadyAuthenticated
	}
	r.pending++
	ev := r.moveTo(StatusAuthenticating, nil)
	r.unlockAndNotify(ev)

	grant, err := r.api.Exchange(ctx, assertion)

	r.mu.Lock()
	r.pending--
	ev = nil
	if err == nil {
		err = r.store.Commit(ctx, grant.Token, grant.User)
	}
	if err != nil {
		if r.pending == 0 && r.status == StatusAuthenticating {
			ev = r.moveTo(StatusUnauthenticated, nil)
		}
		r.unlockAndNotify(ev)
		r.logger.Info(ctx, "login failed", "error", err)
		return models.User{}, err
	}
	ev = r.moveTo(StatusAuthenticated, nil)
	r.unlockAndNotify(ev)

	r.logger.Info(ctx, "logged in", "user_id", grant.User.ID)
	return grant.User, nil
}

// Logout drops the current session. Without a session it only makes sure
// nothing is left on disk.
func (r *Reconciler) Logout(ctx context.Context) error {
	cur, ok := r.store.Current().(Authenticated)
	if !ok {
		return r.store.Clear(ctx)
	}
	_, err := r.invalidate(ctx, cur.Token)
	return err
}

// Refresh re-fetches the canonical user with the current token and recommits
// it if that token is still current. A 401 has already torn the session down
// by the time the error is returned.
func (r *Reconciler) Refresh(ctx context.Context) (models.User, error) {
	cur, ok := r.store.Current().(Authenticated)
	if !ok {
		return models.User{}, ErrNotAuthenticated
	}

	user, err := r.api.Me(WithToken(ctx, cur.Token))
	if err != nil {
		return models.User{}, err
	}
	if _, err := r.store.CommitIf(ctx, cur.Token, user); err != nil {
		return user, err
	}
	return user, nil
}

// Restore loads the persisted session at startup. A complete session is
// resumed and refreshed opportunistically; if the refresh fails for any
// reason other than a rejected token the cached copy is kept. A token
// without a user is resolved through the server or dropped.
func (r *Reconciler) Restore(ctx context.Context) (Status, error) {
	st, err := r.store.Load(ctx)
	if err != nil {
		return r.Status(), err
	}

	switch s := st.(type) {
	case Authenticated:
		r.setStatus(StatusAuthenticated)
		if _, err := r.Refresh(ctx); err != nil {
			r.logger.Warn(ctx, "session refresh failed", "error", err)
		}
	case Pending:
		user, err := r.api.Me(WithToken(ctx, s.Token))
		if err == nil {
			err = r.store.Commit(ctx, s.Token, user)
		}
		if err != nil {
			r.logger.Warn(ctx, "dropping incomplete session", "error", err)
			if cerr := r.store.Clear(ctx); cerr != nil {
				return r.Status(), cerr
			}
			r.setStatus(StatusUnauthenticated)
			break
		}
		r.setStatus(StatusAuthenticated)
	default:
		r.setStatus(StatusUnauthenticated)
	}
	return r.Status(), nil
}

// invalidate clears the session if token is still the current one.
func (r *Reconciler) invalidate(ctx context.Context, token string) (bool, error) {
	r.mu.Lock()
	cur, ok := r.store.Current().(Authenticated)
	if !ok || cur.Token != token {
		r.mu.Unlock()
		return false, nil
	}

	ev := r.moveTo(StatusInvalidating, nil)
	_, err := r.store.ClearIf(context.WithoutCancel(ctx), token)
	ev = r.moveTo(StatusUnauthenticated, ev)
	if r.pending > 0 {
		ev = r.moveTo(StatusAuthenticating, ev)
	}
	r.unlockAndNotify(ev)
	return true, err
}

func (r *Reconciler) setStatus(s Status) {
	r.mu.Lock()
	ev := r.moveTo(s, nil)
	r.unlockAndNotify(ev)
}

// moveTo records a transition; r.mu must be held.
func (r *Reconciler) moveTo(s Status, ev []Status) []Status {
	if r.status == s {
		return ev
	}
	r.status = s
	return append(ev, s)
}

func (r *Reconciler) unlockAndNotify(ev []Status) {
	observers := slices.Clone(r.observers)
	r.mu.Unlock()
	for _, s := range ev {
		for _, fn := range observers {
			fn(s)
		}
	}
}
