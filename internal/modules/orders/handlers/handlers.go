// Package handlers provides HTTP handlers for saving, listing and managing orders.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/atelier/internal/domain"
	"github.com/aristath/atelier/internal/modules/orders"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles order HTTP requests
type Handler struct {
	service *orders.Service
	log     zerolog.Logger
}

// NewHandler creates a new order handler
func NewHandler(service *orders.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "orders").Logger(),
	}
}

// HandleCreate handles POST /order/save?is_temp=
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	temp, ok := h.parseTemp(w, r)
	if !ok {
		return
	}
	h.save(w, r, nil, temp)
}

// HandleUpdate handles PUT /order/save/{id}?is_temp=
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	temp, ok := h.parseTemp(w, r)
	if !ok {
		return
	}
	h.save(w, r, &id, temp)
}

// HandleCreateTemp handles POST /temp/order/save
func (h *Handler) HandleCreateTemp(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, nil, true)
}

// HandleUpdateTemp handles PUT /temp/order/save/{id}
func (h *Handler) HandleUpdateTemp(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	h.save(w, r, &id, true)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, id *int64, temp bool) {
	var payload domain.OrderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.SaveOrder(r.Context(), domain.SaveRequest{
		OrderID:   id,
		Temporary: temp,
		Payload:   payload,
	})
	if err != nil {
		h.writeServiceError(w, err, "Failed to save order")
		return
	}

	status := http.StatusOK
	if id == nil {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, result)
}

// HandleGet handles GET /order/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Failed to get order")
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

// HandleList handles GET /orders
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err, "Failed to list orders")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleUpdateStatus handles PUT /orders/{id}/{status}
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	status, err := domain.ParseOrderStatus(chi.URLParam(r, "status"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid order status")
		return
	}

	update, err := h.service.UpdateStatus(r.Context(), id, status)
	if err != nil {
		h.writeServiceError(w, err, "Failed to update order status")
		return
	}
	h.writeJSON(w, http.StatusOK, update)
}

// HandleDelete handles DELETE /order/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "Failed to delete order")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Order and related data deleted",
		"order_id": id,
	})
}

// parseFilter reads the list query parameters. Dates are YYYY-MM-DD or
// RFC 3339; a date-only upper bound covers the whole day.
func parseFilter(r *http.Request) (orders.ListFilter, error) {
	q := r.URL.Query()
	filter := orders.ListFilter{
		EventName: q.Get("event_name"),
		Sort:      q.Get("sort"),
		Search:    q.Get("search"),
	}

	if raw := q.Get("order_date_from"); raw != "" {
		t, _, err := parseDate(raw)
		if err != nil {
			return filter, errors.New("invalid order_date_from")
		}
		filter.From = &t
	}
	if raw := q.Get("order_date_to"); raw != "" {
		t, dateOnly, err := parseDate(raw)
		if err != nil {
			return filter, errors.New("invalid order_date_to")
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Second)
		}
		filter.To = &t
	}
	if raw := q.Get("status"); raw != "" {
		status, err := domain.ParseOrderStatus(raw)
		if err != nil {
			return filter, errors.New("invalid status")
		}
		filter.Status = &status
	}
	if raw := q.Get("is_temp"); raw != "" {
		temp, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errors.New("invalid is_temp")
		}
		filter.IsTemp = &temp
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, errors.New("invalid offset")
		}
		filter.Offset = n
	}
	return filter, nil
}

func parseDate(raw string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	return t, false, err
}

func (h *Handler) parseTemp(w http.ResponseWriter, r *http.Request) (bool, bool) {
	raw := r.URL.Query().Get("is_temp")
	if raw == "" {
		return false, true
	}
	temp, err := strconv.ParseBool(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid is_temp")
		return false, false
	}
	return temp, true
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "Invalid order id")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, msg string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "Order not found")
	default:
		h.log.Error().Err(err).Msg(msg)
		h.writeError(w, http.StatusInternalServerError, msg)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]string{"detail": detail})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
