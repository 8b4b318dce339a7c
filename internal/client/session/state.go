// Package session owns the client's view of "who is logged in": the persisted
// Store, the request Pipeline that every transport drives, the Authenticator
// stage that attaches the bearer token and the Reconciler that turns server
// rejections into a torn-down session.
package session

import "github.com/dmitrijs2005/gophusers/internal/models"

// State is the client session state. It is one of Unauthenticated,
// Authenticated or, only as a Load result, Pending.
type State interface {
	isState()
}

// Unauthenticated means no session is held. Requests go out without a token.
type Unauthenticated struct{}

// Authenticated holds a session token together with the cached user it was
// issued for.
type Authenticated struct {
	Token string
	User  models.User
}

// Pending is a persisted token whose user snapshot is missing or unreadable.
// Load may return it; the Store never holds it as its current state.
type Pending struct {
	Token string
}

func (Unauthenticated) isState() {}
func (Authenticated) isState()   {}
func (Pending) isState()         {}

// TokenOf returns the token carried by s, or "" when there is none.
func TokenOf(s State) string {
	switch v := s.(type) {
	case Authenticated:
		return v.Token
	case Pending:
		return v.Token
	default:
		return ""
	}
}
