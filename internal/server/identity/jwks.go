package identity

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/gophusers/internal/logging"
)

// DefaultGoogleJWKSURL publishes the keys Google signs ID tokens with.
const DefaultGoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

// JWKSConfig tunes a remote key set. Zero values take the defaults below.
type JWKSConfig struct {
	Client *http.Client
	// RefreshInterval is how often the set is refetched in the background.
	RefreshInterval time.Duration
	// UnknownKIDEvery spaces refetches triggered by a kid missing from the set.
	UnknownKIDEvery time.Duration
	// RateLimitWait caps how long a lookup waits for its turn to refetch.
	RateLimitWait time.Duration
	Logger        logging.Logger
}

// JWKS is a KeySource backed by a remote JSON Web Key Set. Keys are refreshed
// in the background until ctx passed to NewJWKS ends. A failed refresh keeps
// the keys already held.
type JWKS struct {
	kf keyfunc.Keyfunc
}

// NewJWKS starts following url. The first fetch failing is logged, not
// returned: lookups keep retrying on unknown kids.
func NewJWKS(ctx context.Context, url string, cfg JWKSConfig) (*JWKS, error) {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Hour
	}
	if cfg.UnknownKIDEvery <= 0 {
		cfg.UnknownKIDEvery = 30 * time.Second
	}
	if cfg.RateLimitWait <= 0 {
		cfg.RateLimitWait = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop{}
	}

	kf, err := keyfunc.NewDefaultOverrideCtx(ctx, []string{url}, keyfunc.Override{
		Client:           cfg.Client,
		HTTPTimeout:      10 * time.Second,
		RateLimitWaitMax: cfg.RateLimitWait,
		RefreshErrorHandlerFunc: func(u string) func(context.Context, error) {
			return func(ctx context.Context, err error) {
				log.Warn(ctx, "jwks refresh failed", "url", u, "error", err)
			}
		},
		RefreshInterval:   cfg.RefreshInterval,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(cfg.UnknownKIDEvery), 1),
	})
	if err != nil {
		return nil, fmt.Errorf("jwks %s: %w", url, err)
	}
	return &JWKS{kf: kf}, nil
}

// Key returns the public key for kid. An empty kid resolves only when the set
// holds exactly one key.
func (j *JWKS) Key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	store := j.kf.Storage()
	if kid == "" {
		all, err := store.KeyReadAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("read jwks: %w", err)
		}
		if len(all) != 1 {
			return nil, ErrUnknownKey
		}
		return publicKey(all[0])
	}

	jwk, err := store.KeyRead(ctx, kid)
	if errors.Is(err, jwkset.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, kid)
	}
	if err != nil {
		return nil, fmt.Errorf("read jwks: %w", err)
	}
	return publicKey(jwk)
}

func publicKey(jwk jwkset.JWK) (crypto.PublicKey, error) {
	switch k := jwk.Key().(type) {
	case interface{ Public() crypto.PublicKey }:
		// a private JWK: keep the public half
		return k.Public(), nil
	case interface{ Equal(crypto.PublicKey) bool }:
		return k, nil
	default:
		return nil, ErrInvalidKey
	}
}
