package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/kishan11111/GujaratClassified-sub001/internal/auth"
	"github.com/kishan11111/GujaratClassified-sub001/internal/middleware"
	"github.com/kishan11111/GujaratClassified-sub001/internal/model"
)

// AdminHandler serves the back-office authentication endpoints.
type AdminHandler struct {
	svc       *auth.AuthService
	validator *validator.Validate
	logger    *logrus.Logger
}

func NewAdminHandler(svc *auth.AuthService, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, validator: newValidator(), logger: logger}
}

type adminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type adminResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

type adminSessionResponse struct {
	AccessToken      string        `json:"accessToken"`
	RefreshToken     string        `json:"refreshToken"`
	TokenType        string        `json:"tokenType"`
	ExpiresAt        time.Time     `json:"expiresAt"`
	RefreshExpiresAt time.Time     `json:"refreshExpiresAt"`
	Admin            adminResponse `json:"admin"`
}

func newAdminResponse(a *model.Admin) adminResponse {
	return adminResponse{ID: a.ID.String(), Email: a.Email, Name: a.Name, LastLoginAt: a.LastLoginAt}
}

// HandleLogin handles POST /admin/auth/login
func (h *AdminHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if !bindJSON(w, r, h.validator, &req) {
		return
	}

	res, err := h.svc.AdminLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrAccountNotFound) || errors.Is(err, auth.ErrInvalidCredentials) {
			respondWithError(w, r, http.StatusUnauthorized, "invalid email or password", nil)
			return
		}
		respondServiceError(w, r, h.logger, "admin_login", "", err)
		return
	}

	respondSuccess(w, r, http.StatusOK, "login successful", adminSessionResponse{
		AccessToken:      res.Session.AccessToken,
		RefreshToken:     res.Session.RefreshToken,
		TokenType:        res.Session.TokenType,
		ExpiresAt:        res.Session.AccessExpiresAt,
		RefreshExpiresAt: res.Session.RefreshExpiresAt,
		Admin:            newAdminResponse(res.Admin),
	})
}

// HandleMe handles GET /admin/auth/me
func (h *AdminHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := middleware.GetSubjectID(r.Context())
	if !ok {
		respondWithError(w, r, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	admin, err := h.svc.AdminProfile(r.Context(), subjectID)
	if err != nil {
		respondProfileError(w, r, h.logger, "admin_me", subjectID, err)
		return
	}

	respondSuccess(w, r, http.StatusOK, "profile fetched", newAdminResponse(admin))
}
