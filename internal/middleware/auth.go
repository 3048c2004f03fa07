package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/kishan11111/GujaratClassified-sub001/internal/auth"
	"github.com/kishan11111/GujaratClassified-sub001/internal/model"
)

type contextKey string

const (
	subjectIDKey contextKey = "subject_id"
	roleKey      contextKey = "role"
)

// TokenVerifier validates access tokens. *auth.TokenIssuer implements it.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*auth.Claims, error)
}

// AuthMiddleware validates the bearer access token and attaches subject and role to context.
// The check is stateless; no store is consulted.
func AuthMiddleware(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, r, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				respondWithError(w, r, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				respondWithError(w, r, http.StatusUnauthorized, "missing token")
				return
			}

			claims, err := tokens.VerifyAccessToken(tokenString)
			if err != nil {
				respondWithError(w, r, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			subjectID, err := claims.SubjectID()
			if err != nil {
				respondWithError(w, r, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), subjectIDKey, subjectID)
			ctx = context.WithValue(ctx, roleKey, claims.Role)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated requests whose role claim is not role. Use after AuthMiddleware.
func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := GetRole(r.Context())
			if !ok {
				respondWithError(w, r, http.StatusUnauthorized, "missing token")
				return
			}
			if got != role {
				respondWithError(w, r, http.StatusForbidden, "access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetSubjectID extracts the authenticated subject from context
func GetSubjectID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(subjectIDKey).(uuid.UUID)
	return id, ok
}

// GetRole extracts the role claim from context
func GetRole(ctx context.Context) (model.Role, bool) {
	role, ok := ctx.Value(roleKey).(model.Role)
	return role, ok
}

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	render.Status(r, statusCode)
	render.JSON(w, r, errorBody{Success: false, Message: message})
}
