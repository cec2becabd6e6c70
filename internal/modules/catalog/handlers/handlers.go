// Package handlers provides HTTP handlers for catalog lookups.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aristath/atelier/internal/domain"
	"github.com/aristath/atelier/internal/modules/catalog"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles catalog HTTP requests
type Handler struct {
	service *catalog.Service
	log     zerolog.Logger
}

// NewHandler creates a new catalog handler
func NewHandler(service *catalog.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "catalog").Logger(),
	}
}

// HandleGetCategories handles GET /categories[?form_id=]
func (h *Handler) HandleGetCategories(w http.ResponseWriter, r *http.Request) {
	var formID *int64
	if raw := r.URL.Query().Get("form_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "Invalid form_id", http.StatusBadRequest)
			return
		}
		formID = &id
	}

	categories, err := h.service.Categories(r.Context(), formID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get categories")
		http.Error(w, "Failed to get categories", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, categories)
}

// HandleGetAuthors handles GET /authors
func (h *Handler) HandleGetAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.service.Authors(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get authors")
		http.Error(w, "Failed to get authors", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, authors)
}

// HandleGetAffiliations handles GET /affiliations
func (h *Handler) HandleGetAffiliations(w http.ResponseWriter, r *http.Request) {
	affiliations, err := h.service.Affiliations(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get affiliations")
		http.Error(w, "Failed to get affiliations", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, affiliations)
}

// HandleGetEvents handles GET /events[?in_progress=true]
func (h *Handler) HandleGetEvents(w http.ResponseWriter, r *http.Request) {
	inProgress, _ := strconv.ParseBool(r.URL.Query().Get("in_progress"))

	events, err := h.service.Events(r.Context(), inProgress)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get events")
		http.Error(w, "Failed to get events", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, events)
}

// HandleGetEvent handles GET /event/{id}
func (h *Handler) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	event, err := h.service.Event(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, err, "event", id)
		return
	}
	h.writeJSON(w, http.StatusOK, event)
}

// HandleGetForm handles GET /forms/{id}
func (h *Handler) HandleGetForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	form, err := h.service.Form(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, err, "form", id)
		return
	}
	h.writeJSON(w, http.StatusOK, form)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) writeLookupError(w http.ResponseWriter, err error, kind string, id int64) {
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, kind+" not found", http.StatusNotFound)
		return
	}
	h.log.Error().Err(err).Str("kind", kind).Int64("id", id).Msg("Catalog lookup failed")
	http.Error(w, "Failed to get "+kind, http.StatusInternalServerError)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
