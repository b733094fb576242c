package routes

import (
	"log/slog"

	"github.com/BradenHooton/gradegate/internal/auth"
	"github.com/BradenHooton/gradegate/internal/handlers"
	"github.com/BradenHooton/gradegate/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	sessions auth.SessionValidator,
	rateLimitConfig middleware.RateLimitConfig,
	logger *slog.Logger,
) {
	router.Get("/health", healthHandler.Health)

	router.Route("/auth", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))

		// Public routes
		r.Post("/login", authHandler.Login)
		r.Post("/register", authHandler.Register)
		r.Post("/verify-email", authHandler.VerifyEmail)

		// Session routes
		r.Group(func(r chi.Router) {
			r.Use(auth.SessionMiddleware(sessions, logger))
			r.Get("/session", authHandler.Session)
			r.Post("/logout", authHandler.Logout)
			r.Post("/logout-all", authHandler.LogoutAll)
			r.Post("/password", authHandler.ChangePassword)
		})
	})
}
