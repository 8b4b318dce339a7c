package common

const (
	// AuthorizationHeaderName carries the session token on HTTP requests and
	// as gRPC metadata (lower-cased by gRPC).
	AuthorizationHeaderName = "Authorization"

	// BearerPrefix precedes the token inside the authorization value.
	BearerPrefix = "Bearer "

	// SessionTokenKey and SessionUserKey are the two co-located client
	// metadata entries that make up a persisted session.
	SessionTokenKey = "session.token"
	SessionUserKey  = "session.user"
)
