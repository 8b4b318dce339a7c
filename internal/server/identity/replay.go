package identity

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// ErrReplayed is returned when an assertion has already been exchanged.
var ErrReplayed = errors.New("assertion already used")

// ReplayGuard remembers exchanged assertions until they expire.
type ReplayGuard interface {
	// Claim records key as used until expiresAt. It returns ErrReplayed if
	// the key was already claimed.
	Claim(ctx context.Context, key string, expiresAt time.Time) error
}

// ReplayKey derives the guard key for an assertion. The jti is used when the
// provider sets one; otherwise the raw assertion is hashed, so the stored
// key never reveals a usable credential.
func ReplayKey(a *Assertion, raw string) string {
	if a != nil && a.ID != "" {
		return a.Identity.Provider + ":jti:" + a.ID
	}
	sum := blake2b.Sum256([]byte(raw))
	return "raw:" + hex.EncodeToString(sum[:])
}

// RedisReplayGuard stores claims in Redis with SET NX and a TTL matching the
// assertion lifetime, so several server instances share one view.
type RedisReplayGuard struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisReplayGuard(client redis.UniversalClient, prefix string) *RedisReplayGuard {
	return &RedisReplayGuard{client: client, prefix: prefix, now: time.Now}
}

func (g *RedisReplayGuard) Claim(ctx context.Context, key string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(g.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := g.client.SetNX(ctx, g.prefix+key, 1, ttl).Result()
	if err != nil {
		return fmt.Errorf("replay guard: %w", err)
	}
	if !ok {
		return ErrReplayed
	}
	return nil
}

// MemoryReplayGuard is a process-local guard for single-instance deployments
// and tests. Expired claims are swept on write.
type MemoryReplayGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryReplayGuard() *MemoryReplayGuard {
	return &MemoryReplayGuard{seen: make(map[string]time.Time), now: time.Now}
}

func (g *MemoryReplayGuard) Claim(_ context.Context, key string, expiresAt time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for k, exp := range g.seen {
		if !now.Before(exp) {
			delete(g.seen, k)
		}
	}
	if _, ok := g.seen[key]; ok {
		return ErrReplayed
	}
	g.seen[key] = expiresAt
	return nil
}
