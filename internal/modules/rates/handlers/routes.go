package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all rate routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/getGoldPriceInfo", h.HandleGetGoldPriceInfo)
	r.Get("/getExchangeRateInfo", h.HandleGetExchangeRateInfo)

	r.Route("/rates", func(r chi.Router) {
		r.Post("/sync", h.HandleSync)
		r.Get("/history", h.HandleGetHistory)
	})
}
