package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/kishan11111/GujaratClassified-sub001/internal/auth"
	"github.com/kishan11111/GujaratClassified-sub001/internal/model"
)

const internalErrorMessage = "something went wrong"

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Errors  map[string]any `json:"errors,omitempty"`
}

func respondSuccess(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	render.Status(r, status)
	render.JSON(w, r, successResponse{Success: true, Message: message, Data: data})
}

func respondWithError(w http.ResponseWriter, r *http.Request, status int, message string, fields map[string]any) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Success: false, Message: message, Errors: fields})
}

// newValidator registers the mobile and purpose tags on top of the stock rules.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
		return model.ValidMobile(model.NormalizeMobile(fl.Field().String()))
	})
	_ = v.RegisterValidation("purpose", func(fl validator.FieldLevel) bool {
		_, err := model.ParsePurpose(fl.Field().String())
		return err == nil
	})
	return v
}

// decodeAndValidate returns a field -> rule map when validation fails.
func decodeAndValidate(r *http.Request, v *validator.Validate, dst any) (map[string]any, error) {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		fields := make(map[string]any, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = describeRule(fe)
		}
		return fields, err
	}
	return nil, nil
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "mobile":
		return "must be a valid 10 digit Indian mobile number"
	case "purpose":
		return "must be one of REGISTER, LOGIN, FORGOT_PASSWORD"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "numeric":
		return "must contain digits only"
	case "email":
		return "must be a valid email address"
	case "eqfield":
		return "must match " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	default:
		return "is invalid"
	}
}

// bindJSON decodes and validates, writing the 400 response itself on failure.
func bindJSON(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) bool {
	fields, err := decodeAndValidate(r, v, dst)
	if err == nil {
		return true
	}
	if fields != nil {
		respondWithError(w, r, http.StatusBadRequest, "validation failed", fields)
		return false
	}
	respondWithError(w, r, http.StatusBadRequest, "invalid request body", nil)
	return false
}

// respondServiceError maps auth outcomes to HTTP. Unknown errors are logged and hidden.
func respondServiceError(w http.ResponseWriter, r *http.Request, logger *logrus.Logger, op, mobile string, err error) {
	var invalidCode *auth.InvalidCodeError
	var rateLimited *auth.RateLimitError

	switch {
	case errors.As(err, &rateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(rateLimited.Seconds()))
		respondWithError(w, r, http.StatusTooManyRequests,
			"too many OTP requests, please try again later",
			map[string]any{"retryAfter": rateLimited.Seconds()})
	case errors.As(err, &invalidCode):
		respondWithError(w, r, http.StatusBadRequest,
			fmt.Sprintf("invalid OTP, %d attempt(s) remaining", invalidCode.Remaining),
			map[string]any{"remainingAttempts": invalidCode.Remaining})
	case errors.Is(err, auth.ErrValidation):
		respondWithError(w, r, http.StatusBadRequest, strings.TrimPrefix(err.Error(), auth.ErrValidation.Error()+": "), nil)
	case errors.Is(err, auth.ErrCodeNotFound):
		respondWithError(w, r, http.StatusBadRequest, "no OTP found, please request a new one", nil)
	case errors.Is(err, auth.ErrCodeExpired):
		respondWithError(w, r, http.StatusBadRequest, "OTP has expired, please request a new one", nil)
	case errors.Is(err, auth.ErrCodeAlreadyUsed):
		respondWithError(w, r, http.StatusBadRequest, "OTP has already been used", nil)
	case errors.Is(err, auth.ErrMaxAttemptsExceeded):
		respondWithError(w, r, http.StatusBadRequest, "maximum OTP attempts exceeded, please request a new one", nil)
	case errors.Is(err, auth.ErrUnverified):
		respondWithError(w, r, http.StatusBadRequest, "mobile number is not verified, please verify the OTP first", nil)
	case errors.Is(err, auth.ErrAlreadyRegistered):
		respondWithError(w, r, http.StatusBadRequest, "mobile number is already registered, please login", nil)
	case errors.Is(err, auth.ErrConflict):
		respondWithError(w, r, http.StatusBadRequest, "an account for this mobile number was just created", nil)
	case errors.Is(err, auth.ErrInvalidReference):
		respondWithError(w, r, http.StatusBadRequest, "invalid district, taluka or village", nil)
	case errors.Is(err, auth.ErrAccountNotFound):
		respondWithError(w, r, http.StatusBadRequest, "no account found for this mobile number, please register", nil)
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondWithError(w, r, http.StatusUnauthorized, "invalid credentials", nil)
	case errors.Is(err, auth.ErrAccountInactive):
		respondWithError(w, r, http.StatusUnauthorized, "account is inactive, please contact support", nil)
	case errors.Is(err, auth.ErrInvalidOrExpired):
		respondWithError(w, r, http.StatusUnauthorized, "invalid or expired refresh token", nil)
	default:
		fields := logrus.Fields{"op": op, "error": err.Error()}
		if mobile != "" {
			fields["mobile"] = model.MaskMobile(model.NormalizeMobile(mobile))
		}
		logger.WithFields(fields).Error("Request failed")
		respondWithError(w, r, http.StatusInternalServerError, internalErrorMessage, nil)
	}
}
