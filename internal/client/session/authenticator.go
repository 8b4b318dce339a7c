package session

import "context"

// Authenticator attaches the current session token to outgoing requests.
// It only reads the in-memory snapshot and never does I/O.
type Authenticator struct {
	store *Store
}

func NewAuthenticator(store *Store) *Authenticator {
	return &Authenticator{store: store}
}

func (a *Authenticator) BeforeSend(ctx context.Context, ex *Exchange) {
	if t, ok := tokenFromContext(ctx); ok {
		ex.Token = t
		return
	}
	if cur, ok := a.store.Current().(Authenticated); ok {
		ex.Token = cur.Token
	}
}

func (a *Authenticator) AfterReceive(context.Context, *Exchange) {}
