package repo

import (
	"errors"
	"time"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when no row matches, or when a conditional update
	// finds no eligible row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("conflict")
)

// TooSoonError is returned by OtpRepo.Create when the pair's live code was issued less
// than the resend cooldown ago.
type TooSoonError struct {
	IssuedAt time.Time
}

func (e *TooSoonError) Error() string {
	return "current code is still within the resend cooldown"
}

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}
