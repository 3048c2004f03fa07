package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kishan11111/GujaratClassified-sub001/internal/model"
	"github.com/kishan11111/GujaratClassified-sub001/internal/repo"
)

// OTPConfig holds the one-time code policy.
type OTPConfig struct {
	Length         int
	Expiry         time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration
	HourlyLimit    int
	Salt           string
	SMSTimeout     time.Duration
	// DevMode echoes generated codes back to the caller.
	DevMode bool
}

// SendRequest is the input of OTPService.Send.
type SendRequest struct {
	Mobile    string
	Purpose   model.Purpose
	IP        string
	UserAgent string
}

// SendResult describes a freshly issued code.
type SendResult struct {
	Mobile      string
	Purpose     model.Purpose
	ExpiresAt   time.Time
	Message     string
	CanResend   bool
	ResendAfter time.Duration
	DevCode     string
}

// OTPService issues and verifies one-time codes bound to (mobile, purpose).
type OTPService struct {
	cfg    OTPConfig
	codes  repo.OtpRepo
	users  repo.UserRepo
	sms    SMSSender
	logger *logrus.Logger

	now      func() time.Time
	generate func(length int) (string, error)
	inflight sync.WaitGroup
}

// NewOTPService creates a new OTP service
func NewOTPService(cfg OTPConfig, codes repo.OtpRepo, users repo.UserRepo, sms SMSSender, logger *logrus.Logger) *OTPService {
	return &OTPService{
		cfg:      cfg,
		codes:    codes,
		users:    users,
		sms:      sms,
		logger:   logger,
		now:      time.Now,
		generate: generateOTPCode,
	}
}

// Send issues a new code for (mobile, purpose), superseding the previous one, and dispatches
// it by SMS in the background. Dispatch failures are logged only; the stored code stays valid.
func (s *OTPService) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	mobile := model.NormalizeMobile(req.Mobile)
	if !model.ValidMobile(mobile) {
		return nil, validationErr("invalid mobile number")
	}
	if !req.Purpose.Valid() {
		return nil, validationErr("invalid purpose")
	}

	if err := s.checkAccountState(ctx, mobile, req.Purpose); err != nil {
		return nil, err
	}

	now := s.now()
	current, err := s.codes.GetCurrent(ctx, mobile, req.Purpose)
	switch {
	case err == nil:
		age := now.Sub(current.CreatedAt)
		if !current.Used && now.Before(current.ExpiresAt) && age < s.cfg.ResendCooldown {
			return nil, &RateLimitError{RetryAfter: s.cfg.ResendCooldown - age}
		}
	case !errors.Is(err, repo.ErrNotFound):
		return nil, fmt.Errorf("load current code: %w", err)
	}

	if s.cfg.HourlyLimit > 0 {
		count, err := s.codes.CountSince(ctx, mobile, now.Add(-time.Hour))
		if err != nil {
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		if count >= s.cfg.HourlyLimit {
			return nil, &RateLimitError{RetryAfter: time.Hour}
		}
	}

	code, err := s.generate(s.cfg.Length)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	row := &model.OneTimeCode{
		Mobile:    mobile,
		Purpose:   req.Purpose,
		CodeHash:  hashOTPHex(mobile, req.Purpose, code, s.cfg.Salt),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.Expiry),
		RequestIP: optional(req.IP),
		UserAgent: optional(req.UserAgent),
	}
	// The read above is a fast path; Create re-checks the cooldown under the pair's lock.
	if err := s.codes.Create(ctx, row, s.cfg.ResendCooldown); err != nil {
		var tooSoon *repo.TooSoonError
		if errors.As(err, &tooSoon) {
			retry := s.cfg.ResendCooldown - now.Sub(tooSoon.IssuedAt)
			if retry > s.cfg.ResendCooldown {
				retry = s.cfg.ResendCooldown
			}
			return nil, &RateLimitError{RetryAfter: retry}
		}
		return nil, fmt.Errorf("store code: %w", err)
	}

	s.dispatch(mobile, req.Purpose, code)

	result := &SendResult{
		Mobile:      mobile,
		Purpose:     req.Purpose,
		ExpiresAt:   row.ExpiresAt,
		Message:     "OTP sent successfully",
		CanResend:   s.cfg.ResendCooldown <= 0,
		ResendAfter: s.cfg.ResendCooldown,
	}
	if s.cfg.DevMode {
		result.DevCode = code
	}
	return result, nil
}

// Verify checks a submitted code against the current code for (mobile, purpose).
// The equality check and the used flag flip happen in one conditional update, so of two
// concurrent submissions of the right code exactly one succeeds.
func (s *OTPService) Verify(ctx context.Context, mobile string, purpose model.Purpose, code string) (model.VerifiedState, error) {
	mobile = model.NormalizeMobile(mobile)
	if !model.ValidMobile(mobile) || !purpose.Valid() || code == "" {
		return model.VerifiedState{}, validationErr("mobile, otp and purpose are required")
	}

	now := s.now()
	current, err := s.codes.GetCurrent(ctx, mobile, purpose)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.VerifiedState{}, ErrCodeNotFound
		}
		return model.VerifiedState{}, fmt.Errorf("load current code: %w", err)
	}

	// Expired codes do not count attempts.
	if !current.ExpiresAt.After(now) {
		return model.VerifiedState{}, ErrCodeExpired
	}
	if current.Used {
		if current.AttemptCount >= s.cfg.MaxAttempts {
			return model.VerifiedState{}, ErrMaxAttemptsExceeded
		}
		return model.VerifiedState{}, ErrCodeAlreadyUsed
	}

	submitted := hashOTPHex(mobile, purpose, code, s.cfg.Salt)
	won, err := s.codes.Consume(ctx, current.ID, submitted, now)
	if err != nil {
		return model.VerifiedState{}, fmt.Errorf("consume code: %w", err)
	}
	if won {
		return model.VerifiedState{Mobile: mobile, Purpose: purpose, VerifiedAt: now}, nil
	}

	if subtle.ConstantTimeCompare([]byte(submitted), []byte(current.CodeHash)) == 1 {
		// Right code, but another request consumed or superseded it first.
		return model.VerifiedState{}, ErrCodeAlreadyUsed
	}

	attempts, burned, err := s.codes.RecordFailedAttempt(ctx, current.ID, s.cfg.MaxAttempts, now)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.VerifiedState{}, ErrCodeAlreadyUsed
		}
		return model.VerifiedState{}, fmt.Errorf("record attempt: %w", err)
	}
	if burned {
		return model.VerifiedState{}, ErrMaxAttemptsExceeded
	}
	return model.VerifiedState{}, &InvalidCodeError{Remaining: s.cfg.MaxAttempts - attempts}
}

// Wait blocks until background SMS dispatches have finished.
func (s *OTPService) Wait() {
	s.inflight.Wait()
}

func (s *OTPService) checkAccountState(ctx context.Context, mobile string, purpose model.Purpose) error {
	_, err := s.users.GetByMobile(ctx, mobile)
	exists := err == nil
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("lookup account: %w", err)
	}
	if purpose == model.PurposeRegister && exists {
		return ErrAlreadyRegistered
	}
	if purpose.RequiresAccount() && !exists {
		return ErrAccountNotFound
	}
	return nil
}

func (s *OTPService) dispatch(mobile string, purpose model.Purpose, code string) {
	message := smsText(purpose, code, s.cfg.Expiry)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SMSTimeout)
		defer cancel()
		if err := s.sms.Send(ctx, mobile, message); err != nil {
			s.logger.WithFields(logrus.Fields{
				"mobile":  model.MaskMobile(mobile),
				"purpose": purpose,
				"error":   err.Error(),
			}).Warn("OTP SMS dispatch failed")
		}
	}()
}

func smsText(purpose model.Purpose, code string, expiry time.Duration) string {
	var action string
	switch purpose {
	case model.PurposeRegister:
		action = "registration"
	case model.PurposeLogin:
		action = "login"
	case model.PurposeForgotPassword:
		action = "password reset"
	}
	return fmt.Sprintf("%s is your Gujarat Classified %s OTP. It is valid for %d minutes. Do not share it with anyone.",
		code, action, int(expiry.Minutes()))
}

// generateOTPCode returns length decimal digits from crypto/rand.
func generateOTPCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("otp length must be positive")
	}
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

// hashOTPHex returns SHA-256(mobile:purpose:code:salt) as hex for storage
func hashOTPHex(mobile string, purpose model.Purpose, code, salt string) string {
	data := fmt.Sprintf("%s:%s:%s:%s", mobile, purpose, code, salt)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
