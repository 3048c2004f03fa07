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

// OtpRepo is the code store: persistence for one-time codes keyed by (mobile, purpose).
type OtpRepo interface {
	// Create supersedes every earlier unused code for the pair and stores code as the current one.
	// If the pair's live code was issued less than cooldown before code.CreatedAt, nothing is
	// written and a *TooSoonError is returned.
	Create(ctx context.Context, code *model.OneTimeCode, cooldown time.Duration) error
	// GetCurrent returns the latest non-superseded code for the pair, used or not.
	GetCurrent(ctx context.Context, mobile string, purpose model.Purpose) (model.OneTimeCode, error)
	// Consume marks the code used if, and only if, it is still unused, current,
	// unexpired at now and its hash equals codeHash. It reports whether this call won.
	Consume(ctx context.Context, id uuid.UUID, codeHash string, now time.Time) (bool, error)
	// RecordFailedAttempt increments the attempt counter of an unused current code and
	// burns it when the counter reaches maxAttempts. ErrNotFound if the code is no longer eligible.
	RecordFailedAttempt(ctx context.Context, id uuid.UUID, maxAttempts int, now time.Time) (attempts int, burned bool, err error)
	// CountSince returns how many codes were issued to mobile since the given time.
	CountSince(ctx context.Context, mobile string, since time.Time) (int, error)
}

type otpRepo struct {
	db *sql.DB
}

// NewOtpRepo creates a Postgres-backed OtpRepo.
func NewOtpRepo(db *sql.DB) OtpRepo {
	return &otpRepo{db: db}
}

// Create runs under a per-(mobile, purpose) advisory lock so concurrent issues
// for the same pair serialize and exactly one row ends up current. The cooldown is
// judged inside the lock against the committed current row.
func (r *otpRepo) Create(ctx context.Context, code *model.OneTimeCode, cooldown time.Duration) error {
	if code.ID == uuid.Nil {
		code.ID = uuid.New()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`, code.Mobile, string(code.Purpose))
	if err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}

	if cooldown > 0 {
		var issuedAt time.Time
		err = tx.QueryRowContext(ctx, `
			SELECT created_at FROM otp_codes
			WHERE mobile = $1 AND purpose = $2 AND superseded_at IS NULL AND used = false AND expires_at > $3
			ORDER BY created_at DESC
			LIMIT 1
		`, code.Mobile, string(code.Purpose), code.CreatedAt).Scan(&issuedAt)
		switch {
		case err == nil:
			if code.CreatedAt.Sub(issuedAt) < cooldown {
				return &TooSoonError{IssuedAt: issuedAt}
			}
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("check cooldown: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE otp_codes
		SET superseded_at = $3
		WHERE mobile = $1 AND purpose = $2 AND used = false AND superseded_at IS NULL
	`, code.Mobile, string(code.Purpose), code.CreatedAt)
	if err != nil {
		return fmt.Errorf("supersede codes: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO otp_codes (id, mobile, purpose, code_hash, created_at, expires_at, request_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, code.ID, code.Mobile, string(code.Purpose), code.CodeHash, code.CreatedAt, code.ExpiresAt, code.RequestIP, code.UserAgent)
	if err != nil {
		return fmt.Errorf("insert code: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *otpRepo) GetCurrent(ctx context.Context, mobile string, purpose model.Purpose) (model.OneTimeCode, error) {
	query := `
		SELECT id, mobile, purpose, code_hash, created_at, expires_at, used, used_at,
		       attempt_count, last_attempt_at, superseded_at, request_ip, user_agent
		FROM otp_codes
		WHERE mobile = $1 AND purpose = $2 AND superseded_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`
	var code model.OneTimeCode
	var idStr, purposeStr string
	err := r.db.QueryRowContext(ctx, query, mobile, string(purpose)).Scan(
		&idStr,
		&code.Mobile,
		&purposeStr,
		&code.CodeHash,
		&code.CreatedAt,
		&code.ExpiresAt,
		&code.Used,
		&code.UsedAt,
		&code.AttemptCount,
		&code.LastAttemptAt,
		&code.SupersededAt,
		&code.RequestIP,
		&code.UserAgent,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.OneTimeCode{}, ErrNotFound
		}
		return model.OneTimeCode{}, fmt.Errorf("query code: %w", err)
	}

	code.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.OneTimeCode{}, fmt.Errorf("parse code ID: %w", err)
	}
	code.Purpose = model.Purpose(purposeStr)
	return code, nil
}

func (r *otpRepo) Consume(ctx context.Context, id uuid.UUID, codeHash string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE otp_codes
		SET used = true, used_at = $3
		WHERE id = $1 AND code_hash = $2 AND used = false AND superseded_at IS NULL AND expires_at > $3
	`, id, codeHash, now)
	if err != nil {
		return false, fmt.Errorf("consume code: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume code rows: %w", err)
	}
	return n == 1, nil
}

func (r *otpRepo) RecordFailedAttempt(ctx context.Context, id uuid.UUID, maxAttempts int, now time.Time) (int, bool, error) {
	var attempts int
	var burned bool
	err := r.db.QueryRowContext(ctx, `
		UPDATE otp_codes
		SET attempt_count = attempt_count + 1,
		    last_attempt_at = $3,
		    used = (attempt_count + 1 >= $2),
		    used_at = CASE WHEN attempt_count + 1 >= $2 THEN $3 ELSE used_at END
		WHERE id = $1 AND used = false AND superseded_at IS NULL
		RETURNING attempt_count, used
	`, id, maxAttempts, now).Scan(&attempts, &burned)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, ErrNotFound
		}
		return 0, false, fmt.Errorf("record attempt: %w", err)
	}
	return attempts, burned, nil
}

func (r *otpRepo) CountSince(ctx context.Context, mobile string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM otp_codes
		WHERE mobile = $1 AND created_at >= $2
	`, mobile, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent codes: %w", err)
	}
	return count, nil
}
