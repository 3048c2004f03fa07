package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kishan11111/GujaratClassified-sub001/internal/model"
)

// RefreshRepo defines the interface for refresh session repository operations.
// At most one session per subject is active (revoked_at IS NULL) at any time.
type RefreshRepo interface {
	// Create revokes every active session of the subject and stores s as the only active one.
	Create(ctx context.Context, s *model.RefreshSession) error
	// Rotate revokes the active, unexpired session with oldHash, links it to next and stores next
	// for the same subject and role. ErrNotFound if no such session exists.
	Rotate(ctx context.Context, oldHash string, next *model.RefreshSession, now time.Time) error
	FindByTokenHashIncludeRevoked(ctx context.Context, tokenHash string) (model.RefreshSession, error)
	RevokeAllForSubject(ctx context.Context, subjectID uuid.UUID, now time.Time) error
}

type refreshRepo struct {
	db *sql.DB
}

// NewRefreshRepo creates a new RefreshRepo instance
func NewRefreshRepo(db *sql.DB) RefreshRepo {
	return &refreshRepo{db: db}
}

func (r *refreshRepo) Create(ctx context.Context, s *model.RefreshSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(2, hashtext($1))`, s.SubjectID.String())
	if err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE refresh_sessions SET revoked_at = $2 WHERE subject_id = $1 AND revoked_at IS NULL
	`, s.SubjectID, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("revoke previous sessions: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO refresh_sessions (id, subject_id, role, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.SubjectID, string(s.Role), s.TokenHash, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert refresh session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rotate takes the same per-subject advisory lock as Create, so a rotation and a fresh
// login for one subject never both insert an active row. The lock is taken before any row
// lock, matching Create's order. A concurrent rotation of the same token waits on the
// conditional UPDATE, re-checks revoked_at and matches no row.
func (r *refreshRepo) Rotate(ctx context.Context, oldHash string, next *model.RefreshSession, now time.Time) error {
	if next.ID == uuid.Nil {
		next.ID = uuid.New()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var subject uuid.UUID
	err = tx.QueryRowContext(ctx, `SELECT subject_id FROM refresh_sessions WHERE token_hash = $1`, oldHash).Scan(&subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("load rotated session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(2, hashtext($1))`, subject.String())
	if err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}

	var role string
	err = tx.QueryRowContext(ctx, `
		UPDATE refresh_sessions
		SET revoked_at = $2, replaced_by = $3
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
		RETURNING subject_id, role
	`, oldHash, now, next.ID).Scan(&next.SubjectID, &role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("revoke rotated session: %w", err)
	}
	next.Role = model.Role(role)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO refresh_sessions (id, subject_id, role, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, next.ID, next.SubjectID, role, next.TokenHash, next.CreatedAt, next.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert rotated session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// FindByTokenHashIncludeRevoked returns the session regardless of revocation status (used for reuse detection)
func (r *refreshRepo) FindByTokenHashIncludeRevoked(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	var s model.RefreshSession
	var role string
	var replacedBy uuid.NullUUID
	err := r.db.QueryRowContext(ctx, `
		SELECT id, subject_id, role, token_hash, created_at, expires_at, revoked_at, replaced_by
		FROM refresh_sessions
		WHERE token_hash = $1
	`, tokenHash).Scan(
		&s.ID,
		&s.SubjectID,
		&role,
		&s.TokenHash,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.RevokedAt,
		&replacedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RefreshSession{}, ErrNotFound
		}
		return model.RefreshSession{}, fmt.Errorf("find session: %w", err)
	}
	s.Role = model.Role(role)
	if replacedBy.Valid {
		id := replacedBy.UUID
		s.ReplacedBy = &id
	}
	return s, nil
}

// RevokeAllForSubject revokes all active refresh sessions for a subject (logout, password reset, reuse response)
func (r *refreshRepo) RevokeAllForSubject(ctx context.Context, subjectID uuid.UUID, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions SET revoked_at = $2 WHERE subject_id = $1 AND revoked_at IS NULL
	`, subjectID, now)
	if err != nil {
		return fmt.Errorf("revoke all sessions for subject: %w", err)
	}
	return nil
}
