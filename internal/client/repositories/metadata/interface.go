// Package metadata stores small client-local key/value entries, such as the
// persisted session, in the SQLite metadata table.
package metadata

import (
	"context"
)

// Repository reads and writes metadata entries. Missing keys are reported as
// (nil, nil) by Get and are simply absent from GetMany and List.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetMany(ctx context.Context, keys ...string) (map[string][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
