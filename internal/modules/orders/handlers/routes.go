package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all order routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/orders", h.HandleList)
	r.Get("/orders/download", h.HandleDownload)
	r.Put("/orders/{id}/{status}", h.HandleUpdateStatus)

	r.Get("/order/{id}", h.HandleGet)
	r.Delete("/order/{id}", h.HandleDelete)

	r.Post("/order/save", h.HandleCreate)
	r.Put("/order/save/{id}", h.HandleUpdate)
	r.Post("/temp/order/save", h.HandleCreateTemp)
	r.Put("/temp/order/save/{id}", h.HandleUpdateTemp)
}
