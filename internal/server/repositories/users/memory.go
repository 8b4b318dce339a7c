package users

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophusers/internal/common"
	"github.com/dmitrijs2005/gophusers/internal/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps users in process memory. It is used when no
// database is configured and in tests.
type MemoryRepository struct {
	mu        sync.RWMutex
	byID      map[string]*models.User
	bySubject map[string]string
	now       func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:      make(map[string]*models.User),
		bySubject: make(map[string]string),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func subjectKey(provider, subject string) string {
	return provider + "\x00" + subject
}

func (r *MemoryRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := subjectKey(user.Provider, user.Subject)
	if id, ok := r.bySubject[key]; ok {
		return clone(r.byID[id]), nil
	}

	now := r.now()
	u := *user
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.IsActive = true
	u.CreatedAt, u.UpdatedAt = now, now
	u.Profile = models.Profile{ID: uuid.NewString(), UserID: u.ID, CreatedAt: now, UpdatedAt: now}

	r.byID[u.ID] = &u
	r.bySubject[key] = u.ID
	return clone(&u), nil
}

func (r *MemoryRepository) GetBySubject(_ context.Context, provider, subject string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySubject[subjectKey(provider, subject)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(r.byID[id]), nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(u), nil
}

func (r *MemoryRepository) EnsureProfile(_ context.Context, userID string) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	r.ensureProfile(u)
	p := u.Profile
	return &p, nil
}

func (r *MemoryRepository) UpdateAccount(_ context.Context, id string, upd models.AccountUpdate) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	upd.Apply(u)
	u.UpdatedAt = r.now()
	return clone(u), nil
}

func (r *MemoryRepository) UpdateProfile(_ context.Context, id string, upd models.ProfileUpdate) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	r.ensureProfile(u)
	upd.Apply(&u.Profile)
	u.Profile.UpdatedAt = r.now()
	return clone(u), nil
}

// SetActive flips the active flag. There is no HTTP surface for it; operators
// and tests use it directly.
func (r *MemoryRepository) SetActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.IsActive = active
	return nil
}

// DropProfile removes the profile of id, leaving the user in the state of
// a record created before profiles existed.
func (r *MemoryRepository) DropProfile(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.byID[id]; ok {
		u.Profile = models.Profile{}
	}
}

func (r *MemoryRepository) ensureProfile(u *models.User) {
	if u.Profile.ID != "" {
		return
	}
	now := r.now()
	u.Profile = models.Profile{ID: uuid.NewString(), UserID: u.ID, CreatedAt: now, UpdatedAt: now}
}

func clone(u *models.User) *models.User {
	c := *u
	return &c
}
