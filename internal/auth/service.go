package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kishan11111/GujaratClassified-sub001/internal/model"
	"github.com/kishan11111/GujaratClassified-sub001/internal/repo"
)

// AuthResult is returned by every flow that ends in an authenticated session.
type AuthResult struct {
	User      *model.User
	Session   *SessionCredential
	IsNewUser bool
}

// AdminAuthResult is the admin counterpart of AuthResult.
type AdminAuthResult struct {
	Admin   *model.Admin
	Session *SessionCredential
}

// VerifyResult is the outcome of a successful verify-otp call. LOGIN carries a session,
// REGISTER and FORGOT_PASSWORD carry a single-use verification ticket.
type VerifyResult struct {
	Purpose           model.Purpose
	IsNewUser         bool
	User              *model.User
	Session           *SessionCredential
	VerificationToken string
	TicketExpiresAt   time.Time
}

// RegisterRequest holds the profile fields of a new account.
type RegisterRequest struct {
	Mobile            string
	VerificationToken string
	FirstName         string
	LastName          string
	Email             *string
	Password          string
	DistrictID        int64
	TalukaID          int64
	VillageID         *int64
}

// ResetPasswordRequest sets a new password for a mobile verified for FORGOT_PASSWORD.
type ResetPasswordRequest struct {
	Mobile            string
	VerificationToken string
	NewPassword       string
	ConfirmPassword   string
}

// AuthService orchestrates authentication operations
type AuthService struct {
	otp       *OTPService
	tokens    *TokenIssuer
	users     repo.UserRepo
	admins    repo.AdminRepo
	locations repo.LocationRepo
	tickets   repo.TicketStore
	passwords *PasswordHasher
	ticketTTL time.Duration
	logger    *logrus.Logger
	now       func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(
	otp *OTPService,
	tokens *TokenIssuer,
	users repo.UserRepo,
	admins repo.AdminRepo,
	locations repo.LocationRepo,
	tickets repo.TicketStore,
	passwords *PasswordHasher,
	ticketTTL time.Duration,
	logger *logrus.Logger,
) *AuthService {
	return &AuthService{
		otp:       otp,
		tokens:    tokens,
		users:     users,
		admins:    admins,
		locations: locations,
		tickets:   tickets,
		passwords: passwords,
		ticketTTL: ticketTTL,
		logger:    logger,
		now:       time.Now,
	}
}

// VerifyOTP verifies the code and runs the purpose specific continuation.
func (s *AuthService) VerifyOTP(ctx context.Context, mobile, code string, purpose model.Purpose) (*VerifyResult, error) {
	state, err := s.otp.Verify(ctx, mobile, purpose, code)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByMobile(ctx, state.Mobile)
	exists := err == nil
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	switch purpose {
	case model.PurposeLogin:
		if !exists {
			return nil, ErrAccountNotFound
		}
		if !user.IsActive {
			return nil, ErrAccountInactive
		}
		session, err := s.startUserSession(ctx, &user)
		if err != nil {
			return nil, err
		}
		return &VerifyResult{Purpose: purpose, User: &user, Session: session}, nil

	case model.PurposeRegister:
		if exists {
			return nil, ErrAlreadyRegistered
		}
		return s.issueTicket(ctx, state, true)

	case model.PurposeForgotPassword:
		if !exists {
			return nil, ErrAccountNotFound
		}
		return s.issueTicket(ctx, state, false)
	}
	return nil, validationErr("invalid purpose")
}

// Register creates an account for a mobile holding a REGISTER verification ticket.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	mobile := model.NormalizeMobile(req.Mobile)
	if !model.ValidMobile(mobile) {
		return nil, validationErr("invalid mobile number")
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.FirstName == "" || req.LastName == "" {
		return nil, validationErr("first name and last name are required")
	}
	if req.Password != "" {
		if err := validatePassword(req.Password); err != nil {
			return nil, err
		}
	}

	ticketHash, err := s.checkTicket(ctx, req.VerificationToken, mobile, model.PurposeRegister)
	if err != nil {
		return nil, err
	}

	if err := s.locations.Validate(ctx, req.DistrictID, req.TalukaID, req.VillageID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidReference
		}
		return nil, fmt.Errorf("validate location: %w", err)
	}

	if _, err := s.users.GetByMobile(ctx, mobile); err == nil {
		return nil, ErrAlreadyRegistered
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	var passwordHash *string
	if req.Password != "" {
		hash, err := s.passwords.Hash(req.Password)
		if err != nil {
			return nil, err
		}
		passwordHash = &hash
	}

	if _, err := s.tickets.Take(ctx, ticketHash); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUnverified
		}
		return nil, fmt.Errorf("consume verification ticket: %w", err)
	}

	now := s.now()
	user := &model.User{
		Mobile:           mobile,
		Email:            req.Email,
		PasswordHash:     passwordHash,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		DistrictID:       req.DistrictID,
		TalukaID:         req.TalukaID,
		VillageID:        req.VillageID,
		IsMobileVerified: true,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"mobile":  model.MaskMobile(mobile),
	}).Info("account registered")

	session, err := s.startUserSession(ctx, user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Session: session, IsNewUser: true}, nil
}

// Login authenticates a user with mobile and password.
func (s *AuthService) Login(ctx context.Context, mobile, password string) (*AuthResult, error) {
	mobile = model.NormalizeMobile(mobile)
	if !model.ValidMobile(mobile) || password == "" {
		return nil, validationErr("mobile and password are required")
	}

	user, err := s.users.GetByMobile(ctx, mobile)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.passwords.Burn(password)
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if user.PasswordHash == nil {
		s.passwords.Burn(password)
		return nil, ErrInvalidCredentials
	}
	if !s.passwords.Check(password, *user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	session, err := s.startUserSession(ctx, &user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: &user, Session: session}, nil
}

// ResetPassword sets a new password and ends every session of the account.
// No credential is returned; the caller logs in again.
func (s *AuthService) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	mobile := model.NormalizeMobile(req.Mobile)
	if !model.ValidMobile(mobile) {
		return validationErr("invalid mobile number")
	}
	if err := validatePassword(req.NewPassword); err != nil {
		return err
	}
	if req.NewPassword != req.ConfirmPassword {
		return validationErr("new password and confirm password do not match")
	}

	ticketHash, err := s.checkTicket(ctx, req.VerificationToken, mobile, model.PurposeForgotPassword)
	if err != nil {
		return err
	}

	user, err := s.users.GetByMobile(ctx, mobile)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("lookup account: %w", err)
	}

	hash, err := s.passwords.Hash(req.NewPassword)
	if err != nil {
		return err
	}

	if _, err := s.tickets.Take(ctx, ticketHash); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUnverified
		}
		return fmt.Errorf("consume verification ticket: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash, s.now()); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.tokens.Revoke(ctx, user.ID); err != nil {
		// The new password is already stored; old sessions stay live until they expire
		// or the account logs out.
		s.logger.WithFields(logrus.Fields{
			"op":      "reset_password",
			"user_id": user.ID,
			"mobile":  model.MaskMobile(mobile),
			"error":   err.Error(),
		}).Error("password changed but existing sessions were not revoked")
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"mobile":  model.MaskMobile(mobile),
	}).Info("password reset")
	return nil
}

// AdminLogin authenticates a back-office account by email and password.
func (s *AuthService) AdminLogin(ctx context.Context, email, password string) (*AdminAuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, validationErr("email and password are required")
	}

	admin, err := s.admins.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.passwords.Burn(password)
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup admin: %w", err)
	}
	if !s.passwords.Check(password, admin.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !admin.IsActive {
		return nil, ErrAccountInactive
	}

	now := s.now()
	if err := s.admins.TouchLastLogin(ctx, admin.ID, now); err != nil {
		return nil, fmt.Errorf("touch last login: %w", err)
	}
	admin.LastLoginAt = &now

	session, err := s.tokens.IssueSession(ctx, admin.ID, model.RoleAdmin)
	if err != nil {
		return nil, err
	}
	return &AdminAuthResult{Admin: &admin, Session: session}, nil
}

// Refresh rotates a refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*SessionCredential, error) {
	return s.tokens.Refresh(ctx, refreshToken)
}

// Logout revokes every refresh session of the subject.
func (s *AuthService) Logout(ctx context.Context, subjectID uuid.UUID) error {
	return s.tokens.Revoke(ctx, subjectID)
}

// Profile returns the user account for id.
func (s *AuthService) Profile(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	return &user, nil
}

// AdminProfile returns the admin account for id.
func (s *AuthService) AdminProfile(ctx context.Context, id uuid.UUID) (*model.Admin, error) {
	admin, err := s.admins.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup admin: %w", err)
	}
	return &admin, nil
}

func (s *AuthService) startUserSession(ctx context.Context, user *model.User) (*SessionCredential, error) {
	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("touch last login: %w", err)
	}
	user.LastLoginAt = &now
	return s.tokens.IssueSession(ctx, user.ID, model.RoleUser)
}

func (s *AuthService) issueTicket(ctx context.Context, state model.VerifiedState, isNewUser bool) (*VerifyResult, error) {
	token, hash, err := GenerateOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generate verification ticket: %w", err)
	}
	if err := s.tickets.Put(ctx, hash, state, s.ticketTTL); err != nil {
		return nil, fmt.Errorf("store verification ticket: %w", err)
	}
	return &VerifyResult{
		Purpose:           state.Purpose,
		IsNewUser:         isNewUser,
		VerificationToken: token,
		TicketExpiresAt:   state.VerifiedAt.Add(s.ticketTTL),
	}, nil
}

// checkTicket peeks the ticket and returns its hash if it belongs to (mobile, purpose).
func (s *AuthService) checkTicket(ctx context.Context, token, mobile string, purpose model.Purpose) (string, error) {
	if token == "" {
		return "", ErrUnverified
	}
	hash := HashOpaqueToken(token)
	state, err := s.tickets.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrUnverified
		}
		return "", fmt.Errorf("load verification ticket: %w", err)
	}
	if state.Mobile != mobile || state.Purpose != purpose {
		return "", ErrUnverified
	}
	return hash, nil
}
