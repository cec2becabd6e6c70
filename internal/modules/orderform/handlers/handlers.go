// Package handlers exposes the order-form engine over HTTP: previewing a
// draft's conversions and totals, and submitting it through the same
// pipeline the form uses.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/aristath/atelier/internal/domain"
	"github.com/aristath/atelier/internal/events"
	"github.com/aristath/atelier/internal/modules/catalog"
	"github.com/aristath/atelier/internal/modules/orderform"
	"github.com/aristath/atelier/internal/querycache"
	"github.com/rs/zerolog"
)

// FormSource looks up the form a draft is filled from.
type FormSource interface {
	Form(ctx context.Context, id int64) (*catalog.Form, error)
	FormForEvent(ctx context.Context, eventID int64) (*catalog.Form, error)
}

// Deps are the handler's collaborators. NewRates is called once per
// request so every request gets its own memo; SaverFor receives the
// caller's bearer token.
type Deps struct {
	Forms         FormSource
	NewRates      func() orderform.RateResolver
	SaverFor      func(token string) domain.OrderSaver
	Cache         *querycache.Cache
	Events        *events.Manager
	LocalCurrency domain.Currency
}

// Handler handles order-form HTTP requests.
type Handler struct {
	deps Deps
	log  zerolog.Logger
}

// NewHandler creates a new order-form handler.
func NewHandler(deps Deps, log zerolog.Logger) *Handler {
	return &Handler{
		deps: deps,
		log:  log.With().Str("handler", "orderform").Logger(),
	}
}

// LooseString accepts a JSON string, number or null as raw form input.
type LooseString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *LooseString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = LooseString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = LooseString(num.String())
	return nil
}

// InstrumentInput is one raw (amount, currency) pair.
type InstrumentInput struct {
	Amount   LooseString `json:"amount"`
	Currency *string     `json:"currency"`
}

// LegInput is one raw payment leg.
type LegInput struct {
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
	PaymentDate   string               `json:"payment_date"`
	Payer         string               `json:"payer"`
	Notes         string               `json:"notes"`
	Cash          *InstrumentInput     `json:"cash"`
	Card          *InstrumentInput     `json:"card"`
	TradeIn       *InstrumentInput     `json:"tradeIn"`
}

// ItemInput is one raw product selection.
type ItemInput struct {
	ProductID    LooseString `json:"product_id"`
	AttributesID LooseString `json:"attributes_id"`
	Quantity     LooseString `json:"quantity"`
}

// DraftRequest is the body of preview and submit.
type DraftRequest struct {
	FormID      *int64                 `json:"form_id"`
	EventID     LooseString            `json:"event_id"`
	OrderID     *int64                 `json:"order_id"`
	AuthorID    LooseString            `json:"author_id"`
	ModifierID  LooseString            `json:"modifier_id"`
	Affiliation LooseString            `json:"affiliation_id"`
	Status      string                 `json:"status"`
	GroomName   string                 `json:"groomName"`
	BrideName   string                 `json:"brideName"`
	Contact     string                 `json:"contact"`
	Address     string                 `json:"address"`
	Collection  string                 `json:"collectionMethod"`
	Notes       string                 `json:"notes"`
	AlterNotes  string                 `json:"alter_notes"`
	Items       []ItemInput            `json:"items"`
	Payments    []LegInput             `json:"payments"`
	Alterations []orderform.Alteration `json:"alteration_details"`
}

// LineError reports a conversion that could not be resolved. The line
// keeps its previous converted amount.
type LineError struct {
	Leg   domain.PaymentMethod `json:"paymentMethod"`
	Line  string               `json:"line"`
	Error string               `json:"error"`
}

// PreviewResponse is the draft after every line was committed.
type PreviewResponse struct {
	Draft      orderform.DraftView `json:"draft"`
	LineErrors []LineError         `json:"line_errors"`
}

// SubmitResponse acknowledges a submitted draft.
type SubmitResponse struct {
	Message     string              `json:"message"`
	OrderID     int64               `json:"order_id"`
	OrderNumber *string             `json:"orderNumber"`
	Temporary   bool                `json:"is_temp"`
	Draft       orderform.DraftView `json:"draft"`
	LineErrors  []LineError         `json:"line_errors"`
}

// HandlePreview handles POST /orderform/preview.
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctrl, lineErrors, err := h.build(r, &req)
	if err != nil {
		h.writeBuildError(w, err)
		return
	}
	defer ctrl.Discard()

	h.writeJSON(w, http.StatusOK, PreviewResponse{Draft: ctrl.View(), LineErrors: lineErrors})
}

// HandleSubmit handles POST /orderform/submit?temp=.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	temporary, _ := strconv.ParseBool(r.URL.Query().Get("temp"))

	var req DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctrl, lineErrors, err := h.build(r, &req)
	if err != nil {
		h.writeBuildError(w, err)
		return
	}

	var result *domain.SaveResult
	if temporary {
		result, err = ctrl.SubmitTemporary(r.Context())
	} else {
		result, err = ctrl.Submit(r.Context())
	}
	if err != nil {
		ctrl.Discard()
		var verr *domain.ValidationError
		var perr *domain.PersistenceError
		switch {
		case errors.As(err, &verr):
			h.writeDetail(w, http.StatusUnprocessableEntity, verr.Error())
		case errors.As(err, &perr):
			h.log.Error().Err(err).Msg("Order form submit failed")
			h.writeDetail(w, http.StatusBadGateway, perr.Message)
		default:
			h.log.Error().Err(err).Msg("Order form submit failed")
			h.writeDetail(w, http.StatusInternalServerError, "Failed to submit order")
		}
		return
	}

	status := http.StatusOK
	if req.OrderID == nil {
		status = http.StatusCreated
	}
	view := ctrl.View()
	ctrl.Discard()

	h.writeJSON(w, status, SubmitResponse{
		Message:     result.Message,
		OrderID:     result.OrderID,
		OrderNumber: result.OrderNumber,
		Temporary:   temporary,
		Draft:       view,
		LineErrors:  lineErrors,
	})
}

// build replays the raw input through a fresh controller the way the form
// does: select, set details, set currency, set amount, commit.
func (h *Handler) build(r *http.Request, req *DraftRequest) (*orderform.Controller, []LineError, error) {
	ctx := r.Context()

	form, err := h.resolveForm(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	ctrl := orderform.NewController(orderform.ControllerConfig{
		Session:       orderform.NewSession(bearerToken(r), h.deps.Cache),
		Rates:         h.deps.NewRates(),
		LocalCurrency: h.deps.LocalCurrency,
		Saver:         h.saver(bearerToken(r)),
		Form:          form,
		Events:        h.deps.Events,
	}, h.log)

	lineErrors, err := h.fill(ctx, ctrl, req)
	if err != nil {
		ctrl.Discard()
		return nil, nil, err
	}
	return ctrl, lineErrors, nil
}

func (h *Handler) saver(token string) domain.OrderSaver {
	if h.deps.SaverFor == nil {
		return nil
	}
	return h.deps.SaverFor(token)
}

func (h *Handler) resolveForm(ctx context.Context, req *DraftRequest) (*catalog.Form, error) {
	if req.FormID != nil {
		return h.deps.Forms.Form(ctx, *req.FormID)
	}
	eventID := orderform.ParseID(string(req.EventID))
	if eventID == nil {
		return nil, domain.NewValidationError("event_id", "form_id or event_id required")
	}
	return h.deps.Forms.FormForEvent(ctx, *eventID)
}

func (h *Handler) fill(ctx context.Context, ctrl *orderform.Controller, req *DraftRequest) ([]LineError, error) {
	if req.OrderID != nil {
		if err := ctrl.Attach(*req.OrderID, nil); err != nil {
			return nil, err
		}
	}

	var status domain.OrderStatus
	if req.Status != "" {
		parsed, err := domain.ParseOrderStatus(req.Status)
		if err != nil {
			return nil, domain.NewValidationError("status", err.Error())
		}
		status = parsed
	}

	err := ctrl.SetMetadata(orderform.Metadata{
		EventID:          orderform.ParseID(string(req.EventID)),
		AuthorID:         orderform.ParseID(string(req.AuthorID)),
		ModifierID:       orderform.ParseID(string(req.ModifierID)),
		AffiliationID:    orderform.ParseID(string(req.Affiliation)),
		Status:           status,
		GroomName:        req.GroomName,
		BrideName:        req.BrideName,
		Contact:          req.Contact,
		Address:          req.Address,
		CollectionMethod: req.Collection,
		Notes:            req.Notes,
		AlterNotes:       req.AlterNotes,
	})
	if err != nil {
		return nil, err
	}

	for _, item := range req.Items {
		productID := orderform.ParseID(string(item.ProductID))
		if productID == nil {
			continue
		}
		quantity, err := orderform.ParseQuantity(string(item.Quantity))
		if err != nil {
			return nil, err
		}
		if err := ctrl.SelectProduct(*productID, orderform.ParseID(string(item.AttributesID)), quantity); err != nil {
			return nil, err
		}
	}

	for _, a := range req.Alterations {
		if err := ctrl.SetAlteration(a); err != nil {
			return nil, err
		}
	}

	var lineErrors []LineError
	for _, in := range req.Payments {
		var leg *orderform.PaymentLeg
		switch in.PaymentMethod {
		case domain.PaymentAdvance:
			leg = ctrl.Advance
		case domain.PaymentBalance:
			leg = ctrl.Balance
		default:
			return nil, domain.NewValidationError("paymentMethod", "must be ADVANCE or BALANCE")
		}
		if err := leg.SetDetails(in.PaymentDate, in.Payer, in.Notes); err != nil {
			return nil, err
		}

		for _, pair := range []struct {
			name  string
			line  *orderform.CurrencyLine
			input *InstrumentInput
		}{
			{"cash", leg.Cash, in.Cash},
			{"card", leg.Card, in.Card},
			{"trade_in", leg.TradeIn, in.TradeIn},
		} {
			lineErr, err := commitInstrument(ctx, pair.line, pair.input)
			if err != nil {
				return nil, err
			}
			if lineErr != nil {
				lineErrors = append(lineErrors, LineError{Leg: leg.Kind, Line: pair.name, Error: lineErr.Error()})
			}
		}
	}
	if lineErrors == nil {
		lineErrors = []LineError{}
	}
	return lineErrors, nil
}

// commitInstrument returns a validation failure as err and a conversion
// failure as lineErr.
func commitInstrument(ctx context.Context, line *orderform.CurrencyLine, in *InstrumentInput) (lineErr, err error) {
	if in == nil {
		return nil, nil
	}

	if in.Currency != nil {
		currency := domain.ParseCurrency(*in.Currency)
		if currency != line.State().Currency {
			if err := line.SetCurrency(ctx, currency); err != nil {
				var verr *domain.ValidationError
				if errors.As(err, &verr) {
					return nil, err
				}
				lineErr = err
			}
		}
	}

	if err := line.SetAmount(string(in.Amount)); err != nil {
		if errors.Is(err, orderform.ErrAmountOutOfRange) {
			return nil, domain.NewValidationError("amount", err.Error())
		}
		return nil, err
	}
	if _, err := line.Commit(ctx); err != nil {
		lineErr = err
	}
	return lineErr, nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func (h *Handler) writeBuildError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeDetail(w, http.StatusUnprocessableEntity, verr.Error())
	case errors.Is(err, domain.ErrNotFound):
		h.writeDetail(w, http.StatusNotFound, err.Error())
	default:
		h.log.Error().Err(err).Msg("Failed to build draft")
		h.writeDetail(w, http.StatusInternalServerError, "Failed to build draft")
	}
}

func (h *Handler) writeDetail(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]string{"detail": detail})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
