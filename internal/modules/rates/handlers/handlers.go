// Package handlers provides HTTP handlers for gold price and exchange rate lookups.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aristath/atelier/internal/domain"
	"github.com/aristath/atelier/internal/modules/rates"
	"github.com/rs/zerolog"
)

// RateService is the subset of rates.Service the handlers need
type RateService interface {
	GoldSnapshot(ctx context.Context, date string) (*rates.Snapshot, error)
	ExchangeSnapshot(ctx context.Context, date string) (*rates.Snapshot, error)
	Refresh(ctx context.Context) (*rates.Snapshot, bool, error)
	History(ctx context.Context, limit int) ([]rates.Snapshot, error)
}

// Handler handles rate HTTP requests
type Handler struct {
	service RateService
	log     zerolog.Logger
}

// NewHandler creates a new rates handler
func NewHandler(service RateService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "rates").Logger(),
	}
}

// GoldPriceResponse is the body of GET /getGoldPriceInfo
type GoldPriceResponse struct {
	ResultCode string                 `json:"result_code"`
	ResultMsg  string                 `json:"result_msg"`
	Items      []domain.GoldPriceItem `json:"items"`
}

// ExchangeRateResponse is the body of GET /getExchangeRateInfo
type ExchangeRateResponse struct {
	Items      []domain.ExchangeRateItem `json:"items"`
	SearchDate string                    `json:"search_date"`
}

// HandleGetGoldPriceInfo handles GET /getGoldPriceInfo?bas_dt=YYYYMMDD
func (h *Handler) HandleGetGoldPriceInfo(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("bas_dt")
	if !validDate(date) {
		http.Error(w, "bas_dt must be YYYYMMDD", http.StatusBadRequest)
		return
	}

	snap, err := h.service.GoldSnapshot(r.Context(), date)
	if err != nil {
		h.writeLookupError(w, err, "gold", date)
		return
	}

	h.writeJSON(w, http.StatusOK, GoldPriceResponse{
		ResultCode: "DB",
		ResultMsg:  "Data retrieved from the database",
		Items:      []domain.GoldPriceItem{snap.GoldItem()},
	})
}

// HandleGetExchangeRateInfo handles GET /getExchangeRateInfo?search_date=YYYYMMDD
func (h *Handler) HandleGetExchangeRateInfo(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("search_date")
	if !validDate(date) {
		http.Error(w, "search_date must be YYYYMMDD", http.StatusBadRequest)
		return
	}

	snap, err := h.service.ExchangeSnapshot(r.Context(), date)
	if err != nil {
		h.writeLookupError(w, err, "exchange", date)
		return
	}

	h.writeJSON(w, http.StatusOK, ExchangeRateResponse{
		Items:      snap.ExchangeItems(),
		SearchDate: snap.ExchangeBaseDate,
	})
}

// HandleSync handles POST /rates/sync
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	snap, refreshed, err := h.service.Refresh(r.Context())
	if err != nil {
		h.writeLookupError(w, err, "sync", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"refreshed":       refreshed,
		"gold_bas_dt":     snap.GoldBaseDate,
		"exchange_bas_dt": snap.ExchangeBaseDate,
		"searched_at":     snap.SearchedAt.Unix(),
	})
}

// HandleGetHistory handles GET /rates/history?limit=N
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 30
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 365 {
			http.Error(w, "limit must be between 1 and 365", http.StatusBadRequest)
			return
		}
		limit = n
	}

	history, err := h.service.History(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get rate history")
		http.Error(w, "Failed to get rate history", http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, 0, len(history))
	for i := range history {
		s := &history[i]
		items = append(items, map[string]interface{}{
			"id":              s.ID,
			"gold_bas_dt":     s.GoldBaseDate,
			"gold_24k":        s.Gold24K,
			"exchange_bas_dt": s.ExchangeBaseDate,
			"usd":             s.USD,
			"jpy":             s.JPY,
			"searched_at":     s.SearchedAt.Unix(),
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) writeLookupError(w http.ResponseWriter, err error, kind, date string) {
	if errors.Is(err, domain.ErrRateUnavailable) {
		h.log.Warn().Err(err).Str("kind", kind).Str("date", date).Msg("No rate data")
		http.Error(w, "No data found", http.StatusNotFound)
		return
	}
	h.log.Error().Err(err).Str("kind", kind).Str("date", date).Msg("Rate lookup failed")
	http.Error(w, "Failed to get rates", http.StatusInternalServerError)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// validDate accepts an empty date (latest) or YYYYMMDD.
func validDate(date string) bool {
	if date == "" {
		return true
	}
	if len(date) != len(domain.DateLayout) {
		return false
	}
	_, err := strconv.Atoi(date)
	return err == nil
}
