package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kishan11111/GujaratClassified-sub001/internal/model"
)

// AdminRepo reads back-office accounts. Admins are provisioned outside this service.
type AdminRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.Admin, error)
	GetByEmail(ctx context.Context, email string) (model.Admin, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type adminRepo struct {
	db *sql.DB
}

func NewAdminRepo(db *sql.DB) AdminRepo {
	return &adminRepo{db: db}
}

const adminColumns = `id, email, name, password_hash, is_active, last_login_at, created_at`

func (r *adminRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Admin, error) {
	return r.getOne(ctx, `SELECT `+adminColumns+` FROM admins WHERE id = $1`, id)
}

func (r *adminRepo) GetByEmail(ctx context.Context, email string) (model.Admin, error) {
	return r.getOne(ctx, `SELECT `+adminColumns+` FROM admins WHERE lower(email) = lower($1)`, email)
}

func (r *adminRepo) getOne(ctx context.Context, query string, arg any) (model.Admin, error) {
	var a model.Admin
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.IsActive, &a.LastLoginAt, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Admin{}, ErrNotFound
		}
		return model.Admin{}, fmt.Errorf("query admin: %w", err)
	}
	return a, nil
}

func (r *adminRepo) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE admins SET last_login_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch admin last login: %w", err)
	}
	return expectOneRow(result)
}

type MemoryAdminRepo struct {
	mu     sync.RWMutex
	admins map[uuid.UUID]*model.Admin
}

func NewMemoryAdminRepo() *MemoryAdminRepo {
	return &MemoryAdminRepo{admins: make(map[uuid.UUID]*model.Admin)}
}

// Add stores an admin; used for seeding in development and tests.
func (r *MemoryAdminRepo) Add(a model.Admin) model.Admin {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.admins[a.ID] = &a
	return a
}

func (r *MemoryAdminRepo) GetByID(_ context.Context, id uuid.UUID) (model.Admin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.admins[id]
	if !ok {
		return model.Admin{}, ErrNotFound
	}
	return *a, nil
}

func (r *MemoryAdminRepo) GetByEmail(_ context.Context, email string) (model.Admin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.admins {
		if strings.EqualFold(a.Email, email) {
			return *a, nil
		}
	}
	return model.Admin{}, ErrNotFound
}

func (r *MemoryAdminRepo) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.admins[id]
	if !ok {
		return ErrNotFound
	}
	a.LastLoginAt = &at
	return nil
}
