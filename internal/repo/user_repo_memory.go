package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kishan11111/GujaratClassified-sub001/internal/model"
)

type MemoryUserRepo struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]*model.User
	byMobile map[string]uuid.UUID
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		byID:     make(map[uuid.UUID]*model.User),
		byMobile: make(map[string]uuid.UUID),
	}
}

func (r *MemoryUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byMobile[user.Mobile]; ok {
		return ErrConflict
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	u := *user
	r.byID[u.ID] = &u
	r.byMobile[u.Mobile] = u.ID
	return nil
}

func (r *MemoryUserRepo) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return *u, nil
}

func (r *MemoryUserRepo) GetByMobile(ctx context.Context, mobile string) (model.User, error) {
	r.mu.RLock()
	id, ok := r.byMobile[mobile]
	r.mu.RUnlock()
	if !ok {
		return model.User{}, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryUserRepo) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = &passwordHash
	u.UpdatedAt = at
	return nil
}

func (r *MemoryUserRepo) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}
