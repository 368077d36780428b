package report

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Middleware is an interface for HTTP middleware
type Middleware func(http.Handler) http.Handler

// RegisterRoutes mounts the reporting endpoints. All of them require a
// valid session and membership in the instance's country.
func RegisterRoutes(r chi.Router, handler *Handler, authenticate, requireCountry Middleware) {
	r.Route("/reports", func(r chi.Router) {
		r.Use(authenticate)
		r.Use(requireCountry)

		r.Get("/stats", handler.Stats)
		r.Get("/diseases/{disease}/countries", handler.Countries)
		r.Get("/evolution/{disease}/{country}", handler.Evolution)
		r.Get("/top/{disease}", handler.Top)
		r.Get("/recent/{disease}", handler.Recent)
	})
}
