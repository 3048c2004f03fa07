package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kishan11111/GujaratClassified-sub001/internal/model"
)

type MemoryRefreshRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.RefreshSession // by token hash
}

func NewMemoryRefreshRepo() *MemoryRefreshRepo {
	return &MemoryRefreshRepo{sessions: make(map[string]*model.RefreshSession)}
}

func (r *MemoryRefreshRepo) Create(_ context.Context, s *model.RefreshSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.revokeAll(s.SubjectID, s.CreatedAt)
	stored := *s
	r.sessions[s.TokenHash] = &stored
	return nil
}

func (r *MemoryRefreshRepo) Rotate(_ context.Context, oldHash string, next *model.RefreshSession, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.sessions[oldHash]
	if !ok || old.RevokedAt != nil || !old.ExpiresAt.After(now) {
		return ErrNotFound
	}
	if next.ID == uuid.Nil {
		next.ID = uuid.New()
	}
	id := next.ID
	old.RevokedAt = &now
	old.ReplacedBy = &id

	next.SubjectID = old.SubjectID
	next.Role = old.Role
	stored := *next
	r.sessions[next.TokenHash] = &stored
	return nil
}

func (r *MemoryRefreshRepo) FindByTokenHashIncludeRevoked(_ context.Context, tokenHash string) (model.RefreshSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[tokenHash]
	if !ok {
		return model.RefreshSession{}, ErrNotFound
	}
	return *s, nil
}

func (r *MemoryRefreshRepo) RevokeAllForSubject(_ context.Context, subjectID uuid.UUID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revokeAll(subjectID, now)
	return nil
}

// ActiveCount returns the number of unrevoked sessions of a subject.
func (r *MemoryRefreshRepo) ActiveCount(subjectID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.SubjectID == subjectID && s.RevokedAt == nil {
			n++
		}
	}
	return n
}

func (r *MemoryRefreshRepo) revokeAll(subjectID uuid.UUID, at time.Time) {
	for _, s := range r.sessions {
		if s.SubjectID == subjectID && s.RevokedAt == nil {
			t := at
			s.RevokedAt = &t
		}
	}
}
