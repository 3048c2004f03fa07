package handlers

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kishan11111/GujaratClassified-sub001/internal/auth"
	"github.com/kishan11111/GujaratClassified-sub001/internal/middleware"
	"github.com/kishan11111/GujaratClassified-sub001/internal/model"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	otp       *auth.OTPService
	svc       *auth.AuthService
	validator *validator.Validate
	logger    *logrus.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(otp *auth.OTPService, svc *auth.AuthService, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		otp:       otp,
		svc:       svc,
		validator: newValidator(),
		logger:    logger,
	}
}

type sendOTPRequest struct {
	Mobile  string `json:"mobile" validate:"required,mobile"`
	Purpose string `json:"purpose" validate:"required,purpose"`
}

type sendOTPResponse struct {
	Mobile      string        `json:"mobile"`
	Purpose     model.Purpose `json:"purpose"`
	ExpiryTime  time.Time     `json:"expiryTime"`
	Message     string        `json:"message"`
	CanResend   bool          `json:"canResend"`
	ResendAfter int           `json:"resendAfter"`
	DevOTP      string        `json:"devOtp,omitempty"`
}

type verifyOTPRequest struct {
	Mobile  string `json:"mobile" validate:"required,mobile"`
	OTP     string `json:"otp" validate:"required,numeric,min=4,max=8"`
	Purpose string `json:"purpose" validate:"required,purpose"`
}

type verificationResponse struct {
	Mobile                     string        `json:"mobile"`
	Purpose                    model.Purpose `json:"purpose"`
	Verified                   bool          `json:"verified"`
	VerificationToken          string        `json:"verificationToken"`
	VerificationTokenExpiresAt time.Time     `json:"verificationTokenExpiresAt"`
	IsNewUser                  bool          `json:"isNewUser"`
}

type registerRequest struct {
	Mobile            string  `json:"mobile" validate:"required,mobile"`
	VerificationToken string  `json:"verificationToken" validate:"required"`
	FirstName         string  `json:"firstName" validate:"required,max=50"`
	LastName          string  `json:"lastName" validate:"required,max=50"`
	Email             *string `json:"email" validate:"omitempty,email,max=100"`
	Password          string  `json:"password" validate:"omitempty,min=6,max=72"`
	DistrictID        int64   `json:"districtId" validate:"required,gt=0"`
	TalukaID          int64   `json:"talukaId" validate:"required,gt=0"`
	VillageID         *int64  `json:"villageId" validate:"omitempty,gt=0"`
}

type loginRequest struct {
	Mobile   string `json:"mobile" validate:"required,mobile"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type forgotPasswordRequest struct {
	Mobile            string `json:"mobile" validate:"required,mobile"`
	VerificationToken string `json:"verificationToken" validate:"required"`
	NewPassword       string `json:"newPassword" validate:"required,min=6,max=72"`
	ConfirmPassword   string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

type sessionResponse struct {
	AccessToken      string        `json:"accessToken"`
	RefreshToken     string        `json:"refreshToken"`
	TokenType        string        `json:"tokenType"`
	ExpiresAt        time.Time     `json:"expiresAt"`
	RefreshExpiresAt time.Time     `json:"refreshExpiresAt"`
	User             *userResponse `json:"user,omitempty"`
	IsNewUser        bool          `json:"isNewUser"`
}

// userResponse is the user object in API responses
type userResponse struct {
	ID               string     `json:"id"`
	Mobile           string     `json:"mobile"`
	Email            *string    `json:"email,omitempty"`
	FirstName        string     `json:"firstName"`
	LastName         string     `json:"lastName"`
	DistrictID       int64      `json:"districtId"`
	TalukaID         int64      `json:"talukaId"`
	VillageID        *int64     `json:"villageId,omitempty"`
	IsMobileVerified bool       `json:"isMobileVerified"`
	HasPassword      bool       `json:"hasPassword"`
	LastLoginAt      *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

func newUserResponse(u *model.User) *userResponse {
	return &userResponse{
		ID:               u.ID.String(),
		Mobile:           u.Mobile,
		Email:            u.Email,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		DistrictID:       u.DistrictID,
		TalukaID:         u.TalukaID,
		VillageID:        u.VillageID,
		IsMobileVerified: u.IsMobileVerified,
		HasPassword:      u.PasswordHash != nil,
		LastLoginAt:      u.LastLoginAt,
		CreatedAt:        u.CreatedAt,
	}
}

func newSessionResponse(cred *auth.SessionCredential, user *model.User, isNewUser bool) sessionResponse {
	resp := sessionResponse{
		AccessToken:      cred.AccessToken,
		RefreshToken:     cred.RefreshToken,
		TokenType:        cred.TokenType,
		ExpiresAt:        cred.AccessExpiresAt,
		RefreshExpiresAt: cred.RefreshExpiresAt,
		IsNewUser:        isNewUser,
	}
	if user != nil {
		resp.User = newUserResponse(user)
	}
	return resp
}

// HandleSendOTP handles POST /auth/send-otp
func (h *AuthHandler) HandleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if !bindJSON(w, r, h.validator, &req) {
		return
	}
	purpose, _ := model.ParsePurpose(req.Purpose)

	res, err := h.otp.Send(r.Context(), auth.SendRequest{
		Mobile:    req.Mobile,
		Purpose:   purpose,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		respondServiceError(w, r, h.logger, "send_otp", req.Mobile, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"mobile":  model.MaskMobile(res.Mobile),
		"purpose": res.Purpose,
	}).Info("OTP issued")

	respondSuccess(w, r, http.StatusOK, res.Message, sendOTPResponse{
		Mobile:      res.Mobile,
		Purpose:     res.Purpose,
		ExpiryTime:  res.ExpiresAt,
		Message:     res.Message,
		CanResend:   res.CanResend,
		ResendAfter: int(res.ResendAfter.Seconds()),
		DevOTP:      res.DevCode,
	})
}

// HandleVerifyOTP handles POST /auth/verify-otp
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !bindJSON(w, r, h.validator, &req) {
		return
	}
	purpose, _ := model.ParsePurpose(req.Purpose)

	res, err := h.svc.VerifyOTP(r.Context(), req.Mobile, req.OTP, purpose)
	if err != nil {
		respondServiceError(w, r, h.logger, "verify_otp", req.Mobile, err)
		return
	}

	if res.Session != nil {
		respondSuccess(w, r, http.StatusOK, "login successful", newSessionResponse(res.Session, res.User, false))
		return
	}

	respondSuccess(w, r, http.StatusOK, "OTP verified successfully", verificationResponse{
		Mobile:                     model.NormalizeMobile(req.Mobile),
		Purpose:                    res.Purpose,
		Verified:                   true,
		VerificationToken:          res.VerificationToken,
		VerificationTokenExpiresAt: res.TicketExpiresAt,
		IsNewUser:                  res.IsNewUser,
	})
}

// HandleRegister handles POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !bindJSON(w, r, h.validator, &req) {
		return
	}

	var email *string
	if req.Email != nil && strings.TrimSpace(*req.Email) != "" {
		e := strings.ToLower(strings.TrimSpace(*req.Email))
		email = &e
	}

	res, err := h.svc.Register(r.Context(), auth.RegisterRequest{
		Mobile:            req.Mobile,
		VerificationToken: req.VerificationToken,
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		Email:             email,
		Password:          req.Password,
		DistrictID:        req.DistrictID,
		TalukaID:          req.TalukaID,
		VillageID:         req.VillageID,
	})
	if err != nil {
		respondServiceError(w, r, h.logger, "register", req.Mobile, err)
		return
	}

	respondSuccess(w, r, http.StatusCreated, "registration successful", newSessionResponse(res.Session, res.User, true))
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !bindJSON(w, r, h.validator, &req) {
		return
	}

	res, err := h.svc.Login(r.Context(), req.Mobile, req.Password)
	if err != nil {
		// Unknown mobile and wrong password look the same to the caller.
		if errors.Is(err, auth.ErrAccountNotFound) || errors.Is(err, auth.ErrInvalidCredentials) {
			respondWithError(w, r, http.StatusUnauthorized, "invalid mobile number or password", nil)
			return
		}
		respondServiceError(w, r, h.logger, "login", req.Mobile, err)
		return
	}

	respondSuccess(w, r, http.StatusOK, "login successful", newSessionResponse(res.Session, res.User, false))
}

// HandleRefresh handles POST /auth/refresh-token
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !bindJSON(w, r, h.validator, &req) {
		return
	}

	cred, err := h.svc.Refresh(r.Context(), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		if errors.Is(err, auth.ErrRefreshTokenReuseDetected) {
			respondWithError(w, r, http.StatusUnauthorized, "refresh token reuse detected, please login again", nil)
			return
		}
		respondServiceError(w, r, h.logger, "refresh_token", "", err)
		return
	}

	respondSuccess(w, r, http.StatusOK, "token refreshed", newSessionResponse(cred, nil, false))
}

// HandleForgotPassword handles POST /auth/forgot-password
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !bindJSON(w, r, h.validator, &req) {
		return
	}

	err := h.svc.ResetPassword(r.Context(), auth.ResetPasswordRequest{
		Mobile:            req.Mobile,
		VerificationToken: req.VerificationToken,
		NewPassword:       req.NewPassword,
		ConfirmPassword:   req.ConfirmPassword,
	})
	if err != nil {
		respondServiceError(w, r, h.logger, "forgot_password", req.Mobile, err)
		return
	}

	respondSuccess(w, r, http.StatusOK, "password reset successful, please login with your new password", nil)
}

// HandleLogout handles POST /auth/logout (authenticated)
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := middleware.GetSubjectID(r.Context())
	if !ok {
		respondWithError(w, r, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	if err := h.svc.Logout(r.Context(), subjectID); err != nil {
		respondServiceError(w, r, h.logger, "logout", "", err)
		return
	}

	respondSuccess(w, r, http.StatusOK, "logged out", nil)
}

// HandleMe handles GET /auth/me (protected). Returns the authenticated user.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := middleware.GetSubjectID(r.Context())
	if !ok {
		respondWithError(w, r, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	user, err := h.svc.Profile(r.Context(), subjectID)
	if err != nil {
		respondProfileError(w, r, h.logger, "me", subjectID, err)
		return
	}

	respondSuccess(w, r, http.StatusOK, "profile fetched", newUserResponse(user))
}

func respondProfileError(w http.ResponseWriter, r *http.Request, logger *logrus.Logger, op string, subjectID uuid.UUID, err error) {
	if errors.Is(err, auth.ErrAccountNotFound) {
		respondWithError(w, r, http.StatusNotFound, "account not found", nil)
		return
	}
	logger.WithFields(logrus.Fields{"op": op, "subject_id": subjectID, "error": err.Error()}).Error("Request failed")
	respondWithError(w, r, http.StatusInternalServerError, internalErrorMessage, nil)
}

// clientIP returns the caller address. RealIP has already applied proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
