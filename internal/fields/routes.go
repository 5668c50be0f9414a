package fields

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers protected field routes with the Chi router.
// All routes require authentication and are throttled per account.
func RegisterRoutes(r chi.Router, handler *Handler, middlewares ...func(next http.Handler) http.Handler) {
	r.Route("/fields", func(r chi.Router) {
		r.Use(middlewares...)

		r.Get("/", handler.List)
		r.Get("/{name}", handler.Get)
		r.Put("/{name}", handler.Put)
		r.Delete("/{name}", handler.Delete)
	})
}
