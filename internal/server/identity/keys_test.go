package identity

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophusers/internal/logging"
)

func TestParseStaticKeys(t *testing.T) {
	rsaKey := newRSAKey(t)
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	pkix, err := x509.MarshalPKIXPublicKey(&ecKey.PublicKey)
	require.NoError(t, err)

	data := pem.EncodeToMemory(&pem.Block{
		Type:    "RSA PUBLIC KEY",
		Headers: map[string]string{"kid": "primary"},
		Bytes:   x509.MarshalPKCS1PublicKey(&rsaKey.PublicKey),
	})
	data = append(data, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pkix})...)

	path := filepath.Join(t.TempDir(), "keys.pem")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	keys, err := LoadStaticKeys(path)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	k, err := keys.Key(context.Background(), "primary")
	require.NoError(t, err)
	assert.True(t, rsaKey.PublicKey.Equal(k))

	k, err = keys.Key(context.Background(), "key-1")
	require.NoError(t, err)
	assert.True(t, ecKey.PublicKey.Equal(k))

	// more than one key: an empty kid is ambiguous
	_, err = keys.Key(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestParseStaticKeys_Invalid(t *testing.T) {
	_, err := ParseStaticKeys([]byte("nothing here"))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = ParseStaticKeys(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte{1}}))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = LoadStaticKeys(filepath.Join(t.TempDir(), "missing.pem"))
	assert.Error(t, err)
}

func TestStaticKeys_SingleKeyEmptyKid(t *testing.T) {
	key := newRSAKey(t)
	keys := StaticKeys{"only": &key.PublicKey}

	k, err := keys.Key(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(k))
}

// jwksServer publishes whatever key set it was last given and can be told to
// fail or stall.
type jwksServer struct {
	hits atomic.Int32
	fail atomic.Bool

	mu   sync.Mutex
	body []byte
	hold chan struct{}
}

func (s *jwksServer) publish(t *testing.T, keys map[string]*ecdsa.PrivateKey) {
	t.Helper()
	ctx := context.Background()
	set := jwkset.NewMemoryStorage()
	for kid, k := range keys {
		jwk, err := jwkset.NewJWKFromKey(&k.PublicKey, jwkset.JWKOptions{
			Metadata: jwkset.JWKMetadataOptions{KID: kid, ALG: jwkset.AlgES256, USE: jwkset.UseSig},
		})
		require.NoError(t, err)
		require.NoError(t, set.KeyWrite(ctx, jwk))
	}
	body, err := set.JSONPublic(ctx)
	require.NoError(t, err)

	s.mu.Lock()
	s.body = body
	s.mu.Unlock()
}

func (s *jwksServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.hits.Add(1)
	s.mu.Lock()
	body, hold := s.body, s.hold
	s.mu.Unlock()
	if hold != nil {
		<-hold
	}
	if s.fail.Load() {
		http.Error(w, "down", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func newECKeys(t *testing.T, kids ...string) map[string]*ecdsa.PrivateKey {
	t.Helper()
	keys := map[string]*ecdsa.PrivateKey{}
	for _, kid := range kids {
		k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		keys[kid] = k
	}
	return keys
}

type warnCounter struct {
	logging.Nop
	n atomic.Int32
}

func (w *warnCounter) Warn(context.Context, string, ...any) { w.n.Add(1) }
func (w *warnCounter) With(...any) logging.Logger          { return w }

func newTestJWKS(t *testing.T, srv *httptest.Server, cfg JWKSConfig) *JWKS {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg.Client = srv.Client()
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = time.Hour
	}
	j, err := NewJWKS(ctx, srv.URL, cfg)
	require.NoError(t, err)
	return j
}

func TestJWKS_FetchAndCache(t *testing.T) {
	s := &jwksServer{}
	priv := newECKeys(t, "a", "b")
	s.publish(t, priv)
	srv := httptest.NewServer(s)
	defer srv.Close()

	j := newTestJWKS(t, srv, JWKSConfig{UnknownKIDEvery: time.Hour, RateLimitWait: 50 * time.Millisecond})
	assert.Equal(t, int32(1), s.hits.Load())

	k, err := j.Key(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, priv["a"].PublicKey.Equal(k))

	_, err = j.Key(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, int32(1), s.hits.Load())

	// more than one key: an empty kid is ambiguous
	_, err = j.Key(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnknownKey)

	// an unknown kid refetches once
	_, err = j.Key(context.Background(), "c")
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.Equal(t, int32(2), s.hits.Load())

	// and the next one inside the window does not
	_, err = j.Key(context.Background(), "d")
	assert.Error(t, err)
	assert.Equal(t, int32(2), s.hits.Load())
}

func TestJWKS_RotationPicksUpNewKid(t *testing.T) {
	s := &jwksServer{}
	s.publish(t, newECKeys(t, "a"))
	srv := httptest.NewServer(s)
	defer srv.Close()

	j := newTestJWKS(t, srv, JWKSConfig{UnknownKIDEvery: time.Millisecond})

	k, err := j.Key(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, k)

	rotated := newECKeys(t, "a", "next")
	s.publish(t, rotated)

	k, err = j.Key(context.Background(), "next")
	require.NoError(t, err)
	assert.True(t, rotated["next"].PublicKey.Equal(k))
}

func TestJWKS_FailedRefreshKeepsKeys(t *testing.T) {
	s := &jwksServer{}
	priv := newECKeys(t, "a")
	s.publish(t, priv)
	srv := httptest.NewServer(s)
	defer srv.Close()

	log := &warnCounter{}
	j := newTestJWKS(t, srv, JWKSConfig{UnknownKIDEvery: time.Millisecond, Logger: log})

	s.fail.Store(true)
	_, err := j.Key(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.Equal(t, int32(2), s.hits.Load())
	assert.Equal(t, int32(1), log.n.Load())

	k, err := j.Key(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, priv["a"].PublicKey.Equal(k))
}

func TestJWKS_LookupNotBlockedByRefetch(t *testing.T) {
	s := &jwksServer{}
	priv := newECKeys(t, "a")
	s.publish(t, priv)
	srv := httptest.NewServer(s)
	defer srv.Close()

	j := newTestJWKS(t, srv, JWKSConfig{UnknownKIDEvery: time.Millisecond})

	hold := make(chan struct{})
	s.mu.Lock()
	s.hold = hold
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = j.Key(context.Background(), "stalled")
	}()
	require.Eventually(t, func() bool { return s.hits.Load() == 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	k, err := j.Key(ctx, "a")
	require.NoError(t, err)
	assert.True(t, priv["a"].PublicKey.Equal(k))

	close(hold)
	<-done
}

func TestJWKS_ServerError(t *testing.T) {
	s := &jwksServer{}
	s.fail.Store(true)
	srv := httptest.NewServer(s)
	defer srv.Close()

	log := &warnCounter{}
	j := newTestJWKS(t, srv, JWKSConfig{Logger: log})
	assert.Equal(t, int32(1), log.n.Load())

	_, err := j.Key(context.Background(), "a")
	assert.ErrorIs(t, err, ErrUnknownKey)
}
