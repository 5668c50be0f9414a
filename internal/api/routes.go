package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterCipherRoutes registers the cipher routes.
// All routes require authentication via the given middlewares.
func RegisterCipherRoutes(r chi.Router, handler *CipherHandler, middlewares ...func(next http.Handler) http.Handler) {
	r.Route("/cipher", func(r chi.Router) {
		r.Use(middlewares...)

		r.Post("/encrypt", handler.Encrypt)
		r.Post("/decrypt", handler.Decrypt)
	})
}

// RegisterThrottleRoutes registers the throttle routes
func RegisterThrottleRoutes(r chi.Router, handler *ThrottleHandler, middlewares ...func(next http.Handler) http.Handler) {
	r.Route("/throttle", func(r chi.Router) {
		r.Use(middlewares...)

		r.Post("/check", handler.Check)
	})
}
