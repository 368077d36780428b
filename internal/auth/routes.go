package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Middleware is an interface for HTTP middleware
type Middleware func(http.Handler) http.Handler

// RegisterRoutes registers all authentication routes with the Chi router.
// Public routes: /login. Everything else requires a valid session;
// user management and the on-demand cleanup additionally require an
// admin role.
func RegisterRoutes(r chi.Router, handler *AuthHandler, authenticate, requireAdmin, loginLimiter Middleware) {
	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(loginLimiter)
			r.Post("/login", handler.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/logout", handler.Logout)
			r.Get("/me", handler.GetMe)

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/users", handler.ListUsers)
				r.Post("/users", handler.CreateUser)
				r.Delete("/users/{id}", handler.DeleteUser)
				r.Post("/users/{id}/deactivate", handler.DeactivateUser)
				r.Post("/cleanup", handler.Cleanup)
			})
		})
	})
}
