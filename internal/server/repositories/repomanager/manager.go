package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophusers/internal/server/repositories/users"
)

// RepositoryManager vends repositories for one storage backend and prepares
// its schema.
type RepositoryManager interface {
	RunMigrations(context.Context) error
	Users() users.Repository
	Close() error
}

// Open returns a Postgres-backed manager when dsn is set and an in-memory
// one otherwise.
func Open(dsn string) (RepositoryManager, error) {
	if dsn == "" {
		return NewMemoryRepositoryManager(), nil
	}
	db, err := sqlOpen("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return NewPostgresRepositoryManager(db), nil
}

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

// MemoryRepositoryManager keeps everything in process memory.
type MemoryRepositoryManager struct {
	users *users.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{users: users.NewMemoryRepository()}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }
func (m *MemoryRepositoryManager) Users() users.Repository             { return m.users }
func (m *MemoryRepositoryManager) Close() error                        { return nil }
