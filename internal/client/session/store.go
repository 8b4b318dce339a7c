package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/gophusers/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/gophusers/internal/common"
	"github.com/dmitrijs2005/gophusers/internal/dbx"
	"github.com/dmitrijs2005/gophusers/internal/models"
)

// ErrEmptyToken is returned by Commit when asked to persist a session without
// a token.
var ErrEmptyToken = errors.New("session token is empty")

type snapshot struct {
	state State
}

// Store keeps the session in the client database as the session.token and
// session.user metadata entries and mirrors it in memory.
//
// Writers are serialised and each write is a single transaction followed by a
// swap of the in-memory snapshot, so readers of Current and Load observe
// either the old or the new session, never a mix. Concurrent commits are
// last-write-wins.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	cur atomic.Pointer[snapshot]
}

func NewStore(db *sql.DB) *Store {
	s := &Store{db: db}
	s.cur.Store(&snapshot{state: Unauthenticated{}})
	return s
}

// Current returns the in-memory session. It never blocks on I/O.
func (s *Store) Current() State {
	return s.cur.Load().state
}

// Load reads the persisted session with one statement. It does not validate
// the token. A complete session (or the absence of one) becomes current; a
// token without a readable user is returned as Pending and left for the
// caller to resolve. A user without a token is ignored.
func (s *Store) Load(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := metadata.NewSQLiteRepository(s.db).GetMany(ctx, common.SessionTokenKey, common.SessionUserKey)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	token := string(m[common.SessionTokenKey])
	if token == "" {
		s.cur.Store(&snapshot{state: Unauthenticated{}})
		return Unauthenticated{}, nil
	}

	raw, ok := m[common.SessionUserKey]
	if !ok {
		return Pending{Token: token}, nil
	}
	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil || user.ID == "" {
		return Pending{Token: token}, nil
	}

	st := Authenticated{Token: token, User: user}
	s.cur.Store(&snapshot{state: st})
	return st, nil
}

// Commit persists token and user together and makes them current.
func (s *Store) Commit(ctx context.Context, token string, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx, token, user)
}

// CommitIf replaces the cached user only while token is still the current
// session token. It reports whether the write happened.
func (s *Store) CommitIf(ctx context.Context, token string, user models.User) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if TokenOf(s.Current()) != token || token == "" {
		return false, nil
	}
	if err := s.commitLocked(ctx, token, user); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) commitLocked(ctx context.Context, token string, user models.User) error {
	if token == "" {
		return ErrEmptyToken
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("commit session: %w", err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Set(ctx, common.SessionTokenKey, []byte(token)); err != nil {
			return err
		}
		return repo.Set(ctx, common.SessionUserKey, data)
	})
	if err != nil {
		return fmt.Errorf("commit session: %w", err)
	}

	s.cur.Store(&snapshot{state: Authenticated{Token: token, User: user}})
	return nil
}

// Clear removes both entries. The in-memory session is dropped even when the
// database write fails, so a rejected token is never sent again.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked(ctx)
}

// ClearIf clears the session only while token is the current session token.
func (s *Store) ClearIf(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if TokenOf(s.Current()) != token || token == "" {
		return false, nil
	}
	return true, s.clearLocked(ctx)
}

func (s *Store) clearLocked(ctx context.Context) error {
	s.cur.Store(&snapshot{state: Unauthenticated{}})

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.NewSQLiteRepository(tx).Delete(ctx, common.SessionTokenKey, common.SessionUserKey)
	})
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Provision is an unpersisted change of the cached user made by Provisional.
type Provision struct {
	prev, next *snapshot
}

// Token returns the session token the provisional change was made under.
func (p Provision) Token() string {
	if p.next == nil {
		return ""
	}
	return TokenOf(p.next.state)
}

// User returns the provisional user.
func (p Provision) User() models.User {
	if p.next == nil {
		return models.User{}
	}
	if a, ok := p.next.state.(Authenticated); ok {
		return a.User
	}
	return models.User{}
}

// Provisional applies fn to a copy of the current user and makes the result
// current in memory only. It fails when no session is held.
func (s *Store) Provisional(fn func(u *models.User)) (Provision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cur.Load()
	cur, ok := prev.state.(Authenticated)
	if !ok {
		return Provision{}, false
	}
	user := cur.User
	fn(&user)
	next := &snapshot{state: Authenticated{Token: cur.Token, User: user}}
	s.cur.Store(next)
	return Provision{prev: prev, next: next}, true
}

// Rollback restores the state replaced by p unless something else has been
// made current since. It reports whether the rollback happened.
func (s *Store) Rollback(p Provision) bool {
	if p.next == nil {
		return false
	}
	return s.cur.CompareAndSwap(p.next, p.prev)
}
