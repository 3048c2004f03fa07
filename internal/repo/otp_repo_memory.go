package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kishan11111/GujaratClassified-sub001/internal/model"
)

// MemoryOtpRepo is an in-process OtpRepo with the same conditional-update semantics
// as the Postgres implementation.
type MemoryOtpRepo struct {
	mu    sync.Mutex
	codes []*model.OneTimeCode
}

func NewMemoryOtpRepo() *MemoryOtpRepo {
	return &MemoryOtpRepo{}
}

func (r *MemoryOtpRepo) Create(_ context.Context, code *model.OneTimeCode, cooldown time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cooldown > 0 {
		for _, c := range r.codes {
			if c.Mobile != code.Mobile || c.Purpose != code.Purpose || c.Used || c.SupersededAt != nil {
				continue
			}
			if code.CreatedAt.Before(c.ExpiresAt) && code.CreatedAt.Sub(c.CreatedAt) < cooldown {
				return &TooSoonError{IssuedAt: c.CreatedAt}
			}
		}
	}

	if code.ID == uuid.Nil {
		code.ID = uuid.New()
	}
	for _, c := range r.codes {
		if c.Mobile == code.Mobile && c.Purpose == code.Purpose && !c.Used && c.SupersededAt == nil {
			at := code.CreatedAt
			c.SupersededAt = &at
		}
	}
	stored := *code
	r.codes = append(r.codes, &stored)
	return nil
}

func (r *MemoryOtpRepo) GetCurrent(_ context.Context, mobile string, purpose model.Purpose) (model.OneTimeCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.codes) - 1; i >= 0; i-- {
		c := r.codes[i]
		if c.Mobile == mobile && c.Purpose == purpose && c.SupersededAt == nil {
			return *c, nil
		}
	}
	return model.OneTimeCode{}, ErrNotFound
}

func (r *MemoryOtpRepo) Consume(_ context.Context, id uuid.UUID, codeHash string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.find(id)
	if c == nil || c.Used || c.SupersededAt != nil || c.CodeHash != codeHash || !c.ExpiresAt.After(now) {
		return false, nil
	}
	c.Used = true
	c.UsedAt = &now
	return true, nil
}

func (r *MemoryOtpRepo) RecordFailedAttempt(_ context.Context, id uuid.UUID, maxAttempts int, now time.Time) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.find(id)
	if c == nil || c.Used || c.SupersededAt != nil {
		return 0, false, ErrNotFound
	}
	c.AttemptCount++
	c.LastAttemptAt = &now
	if c.AttemptCount >= maxAttempts {
		c.Used = true
		c.UsedAt = &now
	}
	return c.AttemptCount, c.Used, nil
}

func (r *MemoryOtpRepo) CountSince(_ context.Context, mobile string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, c := range r.codes {
		if c.Mobile == mobile && !c.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryOtpRepo) find(id uuid.UUID) *model.OneTimeCode {
	for _, c := range r.codes {
		if c.ID == id {
			return c
		}
	}
	return nil
}
