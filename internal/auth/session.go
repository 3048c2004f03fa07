package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kishan11111/GujaratClassified-sub001/internal/model"
	"github.com/kishan11111/GujaratClassified-sub001/internal/repo"
)

// SessionCredential is the token pair returned to a client after authentication.
type SessionCredential struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	TokenType        string    `json:"tokenType"`
	AccessExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

// TokenIssuer mints session credentials and rotates refresh tokens.
type TokenIssuer struct {
	jwt        *JWTService
	sessions   repo.RefreshRepo
	refreshTTL time.Duration
	logger     *logrus.Logger
	now        func() time.Time
}

func NewTokenIssuer(jwt *JWTService, sessions repo.RefreshRepo, refreshTTL time.Duration, logger *logrus.Logger) *TokenIssuer {
	return &TokenIssuer{
		jwt:        jwt,
		sessions:   sessions,
		refreshTTL: refreshTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// IssueSession creates a new refresh session for subject, revoking its previous ones.
func (t *TokenIssuer) IssueSession(ctx context.Context, subjectID uuid.UUID, role model.Role) (*SessionCredential, error) {
	refresh, hash, err := GenerateOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	now := t.now()
	session := &model.RefreshSession{
		SubjectID: subjectID,
		Role:      role,
		TokenHash: hash,
		CreatedAt: now,
		ExpiresAt: now.Add(t.refreshTTL),
	}
	if err := t.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("store refresh session: %w", err)
	}
	return t.credential(subjectID, role, refresh, session.ExpiresAt)
}

// Refresh exchanges a refresh token for a new pair. The presented token is revoked.
// Presenting a token that was already rotated revokes every session of its subject.
func (t *TokenIssuer) Refresh(ctx context.Context, refreshToken string) (*SessionCredential, error) {
	if refreshToken == "" {
		return nil, ErrInvalidOrExpired
	}
	oldHash := HashOpaqueToken(refreshToken)
	next, hash, err := GenerateOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	now := t.now()
	session := &model.RefreshSession{
		TokenHash: hash,
		CreatedAt: now,
		ExpiresAt: now.Add(t.refreshTTL),
	}

	err = t.sessions.Rotate(ctx, oldHash, session, now)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, t.rejectRefresh(ctx, oldHash, now)
	}
	if err != nil {
		return nil, fmt.Errorf("rotate refresh session: %w", err)
	}
	return t.credential(session.SubjectID, session.Role, next, session.ExpiresAt)
}

// Revoke ends every refresh session of subject.
func (t *TokenIssuer) Revoke(ctx context.Context, subjectID uuid.UUID) error {
	if err := t.sessions.RevokeAllForSubject(ctx, subjectID, t.now()); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// VerifyAccessToken validates an access token and returns its claims.
func (t *TokenIssuer) VerifyAccessToken(token string) (*Claims, error) {
	return t.jwt.VerifyToken(token)
}

func (t *TokenIssuer) rejectRefresh(ctx context.Context, oldHash string, now time.Time) error {
	old, err := t.sessions.FindByTokenHashIncludeRevoked(ctx, oldHash)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrInvalidOrExpired
	}
	if err != nil {
		return fmt.Errorf("lookup refresh session: %w", err)
	}
	if old.RevokedAt == nil || old.ReplacedBy == nil {
		return ErrInvalidOrExpired
	}

	t.logger.WithFields(logrus.Fields{
		"subject_id": old.SubjectID,
		"role":       old.Role,
	}).Warn("refresh token reuse detected, revoking all sessions")
	if err := t.sessions.RevokeAllForSubject(ctx, old.SubjectID, now); err != nil {
		return fmt.Errorf("revoke sessions after reuse: %w", err)
	}
	return ErrRefreshTokenReuseDetected
}

func (t *TokenIssuer) credential(subjectID uuid.UUID, role model.Role, refresh string, refreshExpiresAt time.Time) (*SessionCredential, error) {
	access, accessExpiresAt, err := t.jwt.SignAccessToken(subjectID, role)
	if err != nil {
		return nil, err
	}
	return &SessionCredential{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}
