package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/charforge/internal/charservice"
)

// AuthOptions configures route protection.
type AuthOptions struct {
	// Enabled turns on bearer checks for the character routes.
	Enabled bool
	// Token is the bearer token of the character routes.
	Token string
	// AdminToken is the bearer token of the admin routes.
	AdminToken string
}

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events inside the user auth group.
func NewRouter(svc *charservice.Service, auth AuthOptions, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(auth.Enabled, auth.Token))

		r.Get("/characters", h.ListCharacters)
		r.Get("/characters/{id}", h.GetCharacter)
		r.Put("/characters/{id}", h.PutCharacter)
		r.Delete("/characters/{id}", h.DeleteCharacter)

		if sseHandler != nil {
			r.Get("/events", sseHandler.ServeHTTP)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(AdminMiddleware(auth.Enabled, auth.AdminToken))

		r.Get("/admin/characters", h.AdminList)
		r.Delete("/admin/characters", h.AdminPurge)
	})

	return r
}
