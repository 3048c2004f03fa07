package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"github.com/kishan11111/GujaratClassified-sub001/internal/http/handlers"
	"github.com/kishan11111/GujaratClassified-sub001/internal/middleware"
	"github.com/kishan11111/GujaratClassified-sub001/internal/model"
)

// Limiters are the per-IP limiters guarding the public auth endpoints. Nil disables a limiter.
type Limiters struct {
	SendOTP   *middleware.RateLimiter
	VerifyOTP *middleware.RateLimiter
	Login     *middleware.RateLimiter
}

// RouterConfig holds everything NewRouter wires together.
type RouterConfig struct {
	Auth     *handlers.AuthHandler
	Admin    *handlers.AdminHandler
	Health   *handlers.HealthHandler
	Tokens   middleware.TokenVerifier
	Limiters Limiters
	Logger   *logrus.Logger
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(chimw.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/health", cfg.Health.ServeHTTP)

	requireAuth := middleware.AuthMiddleware(cfg.Tokens)

	r.Route("/auth", func(r chi.Router) {
		r.With(limit(cfg.Limiters.SendOTP)).Post("/send-otp", cfg.Auth.HandleSendOTP)
		r.With(limit(cfg.Limiters.VerifyOTP)).Post("/verify-otp", cfg.Auth.HandleVerifyOTP)
		r.Post("/register", cfg.Auth.HandleRegister)
		r.With(limit(cfg.Limiters.Login)).Post("/login", cfg.Auth.HandleLogin)
		r.Post("/refresh-token", cfg.Auth.HandleRefresh)
		r.Post("/forgot-password", cfg.Auth.HandleForgotPassword)

		// Protected routes (require valid JWT)
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/logout", cfg.Auth.HandleLogout)
			r.With(middleware.RequireRole(model.RoleUser)).Get("/me", cfg.Auth.HandleMe)
		})
	})

	r.Route("/admin/auth", func(r chi.Router) {
		r.With(limit(cfg.Limiters.Login)).Post("/login", cfg.Admin.HandleLogin)
		r.With(requireAuth, middleware.RequireRole(model.RoleAdmin)).Get("/me", cfg.Admin.HandleMe)
	})

	return r
}

func limit(rl *middleware.RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RateLimitMiddleware(rl, middleware.GetIPKey)
}
