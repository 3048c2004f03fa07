package auth

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Business outcomes. Anything else returned by this package is an internal fault.
var (
	ErrValidation                = errors.New("validation failed")
	ErrRateLimited               = errors.New("otp requested too frequently")
	ErrCodeNotFound              = errors.New("no otp found for this mobile number")
	ErrCodeExpired               = errors.New("otp has expired")
	ErrCodeAlreadyUsed           = errors.New("otp has already been used")
	ErrInvalidCode               = errors.New("invalid otp")
	ErrMaxAttemptsExceeded       = errors.New("maximum otp attempts exceeded")
	ErrUnverified                = errors.New("mobile number is not verified")
	ErrAlreadyRegistered         = errors.New("mobile number is already registered")
	ErrAccountNotFound           = errors.New("account not found")
	ErrInvalidCredentials        = errors.New("invalid credentials")
	ErrAccountInactive           = errors.New("account is inactive")
	ErrConflict                  = errors.New("account was created concurrently")
	ErrInvalidReference          = errors.New("invalid location reference")
	ErrInvalidOrExpired          = errors.New("invalid or expired refresh token")
	ErrRefreshTokenReuseDetected = fmt.Errorf("refresh token reuse detected: %w", ErrInvalidOrExpired)
)

// InvalidCodeError reports a wrong code together with the attempts left before it is burned.
type InvalidCodeError struct {
	Remaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid otp, %d attempt(s) remaining", e.Remaining)
}

func (e *InvalidCodeError) Is(target error) bool { return target == ErrInvalidCode }

// RateLimitError carries how long the caller has to wait before requesting a new code.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("otp requested too frequently, retry in %ds", e.Seconds())
}

// Seconds rounds RetryAfter up to whole seconds.
func (e *RateLimitError) Seconds() int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
