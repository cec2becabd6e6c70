package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all catalog routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/categories", h.HandleGetCategories)
	r.Get("/authors", h.HandleGetAuthors)
	r.Get("/affiliations", h.HandleGetAffiliations)
	r.Get("/events", h.HandleGetEvents)
	r.Get("/event/{id}", h.HandleGetEvent)
	r.Get("/forms/{id}", h.HandleGetForm)
}
