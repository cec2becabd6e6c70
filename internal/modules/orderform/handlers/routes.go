package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all order-form routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/orderform", func(r chi.Router) {
		r.Post("/preview", h.HandlePreview)
		r.Post("/submit", h.HandleSubmit)
	})
}
