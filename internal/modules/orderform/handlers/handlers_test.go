package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aristath/atelier/internal/domain"
	"github.com/aristath/atelier/internal/modules/catalog"
	"github.com/aristath/atelier/internal/modules/orderform"
	"github.com/aristath/atelier/internal/modules/orders"
	"github.com/aristath/atelier/internal/querycache"
	testingpkg "github.com/aristath/atelier/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRates struct{}

func (stubRates) ExchangeRates(ctx context.Context, date string) ([]domain.ExchangeRateItem, error) {
	return []domain.ExchangeRateItem{
		{CurrencyUnit: "USD", DealBaseRate: decimal.RequireFromString("1300")},
		{CurrencyUnit: "JPY(100)", DealBaseRate: decimal.RequireFromString("900")},
	}, nil
}

func (stubRates) GoldPrices(ctx context.Context, date string) ([]domain.GoldPriceItem, error) {
	if date == "20240106" {
		return nil, domain.ErrRateUnavailable
	}
	return []domain.GoldPriceItem{domain.GoldPriceFrom24K(date, decimal.RequireFromString("100000"))}, nil
}

type recordingSaver struct {
	mu     sync.Mutex
	next   domain.OrderSaver
	tokens []string
	err    error
}

func (s *recordingSaver) saverFor(token string) domain.OrderSaver {
	s.mu.Lock()
	s.tokens = append(s.tokens, token)
	s.mu.Unlock()
	return s
}

func (s *recordingSaver) SaveOrder(ctx context.Context, req domain.SaveRequest) (*domain.SaveResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.next.SaveOrder(ctx, req)
}

type fixture struct {
	router *chi.Mux
	store  *orders.Service
	saver  *recordingSaver
}

func newFixture(t *testing.T) *fixture {
	db, cleanup := testingpkg.NewTestDBWithSchema(t, "orders", testingpkg.CatalogFixtures)
	t.Cleanup(cleanup)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	cache := querycache.New(0, log)
	store := orders.NewService(db.Conn(), orders.NewRepository(db.Conn(), log), nil, log)
	store.SetCache(cache)
	saver := &recordingSaver{next: store}

	handler := NewHandler(Deps{
		Forms: catalog.NewService(catalog.NewRepository(db.Conn(), log), cache, log),
		NewRates: func() orderform.RateResolver {
			return orderform.NewRateProvider(stubRates{}, stubRates{}, domain.CurrencyKRW, log)
		},
		SaverFor:      saver.saverFor,
		Cache:         cache,
		LocalCurrency: domain.CurrencyKRW,
	}, log)

	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return &fixture{router: router, store: store, saver: saver}
}

func (f *fixture) post(t *testing.T, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", url, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer secret-token")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

const draftBody = `{
	"event_id": "1",
	"author_id": 1,
	"affiliation_id": "1",
	"groomName": "Kim Minsu",
	"brideName": "Choi Yuna",
	"items": [
		{"product_id": "1", "attributes_id": "1", "quantity": "1"},
		{"product_id": 3, "quantity": "2x"}
	],
	"payments": [
		{
			"paymentMethod": "ADVANCE",
			"payment_date": "2024-01-05",
			"payer": "Kim Minsu",
			"cash": {"amount": "1a00", "currency": "USD"},
			"card": {"amount": 50000, "currency": "KRW"},
			"tradeIn": {"amount": "1", "currency": "14K"}
		}
	],
	"alteration_details": [
		{"form_repair_id": 1, "figure": 92.0},
		{"form_repair_id": 2, "figure": 60}
	]
}`

func TestHandlePreview(t *testing.T) {
	f := newFixture(t)

	w := f.post(t, "/orderform/preview", draftBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp PreviewResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

	assert.Empty(t, resp.LineErrors)
	assert.Equal(t, int64(130000), resp.Draft.Advance.Cash.Converted)
	assert.Equal(t, int64(50000), resp.Draft.Advance.Card.Converted)
	assert.Equal(t, int64(58500), resp.Draft.Advance.TradeIn.Converted)

	// "2x" is not a number, so the norigae quantity defaults to 0.
	assert.Equal(t, orderform.Totals{
		Subtotal:    1200000,
		AdvancePaid: 238500,
		BalancePaid: 0,
		Outstanding: 961500,
	}, resp.Draft.Totals)

	list, err := f.store.List(context.Background(), orders.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, list.Total, "preview never saves")
}

func TestHandlePreview_RateFailureIsPerLine(t *testing.T) {
	f := newFixture(t)

	body := `{
		"form_id": 1,
		"payments": [{
			"paymentMethod": "BALANCE",
			"payment_date": "2024-01-06",
			"cash": {"amount": "100", "currency": "USD"},
			"tradeIn": {"amount": "1", "currency": "18K"}
		}]
	}`
	w := f.post(t, "/orderform/preview", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp PreviewResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.LineErrors, 1)
	assert.Equal(t, domain.PaymentBalance, resp.LineErrors[0].Leg)
	assert.Equal(t, "trade_in", resp.LineErrors[0].Line)
	assert.Zero(t, resp.Draft.Balance.TradeIn.Converted)
	assert.Equal(t, int64(130000), resp.Draft.Totals.BalancePaid)
	assert.Equal(t, int64(-130000), resp.Draft.Totals.Outstanding)
}

func TestHandlePreview_BadInput(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"no form", `{}`, http.StatusUnprocessableEntity},
		{"unknown form", `{"form_id": 99}`, http.StatusNotFound},
		{"event without form", `{"event_id": 3}`, http.StatusUnprocessableEntity},
		{"product not on form", `{"form_id": 1, "items": [{"product_id": 4, "quantity": 1}]}`, http.StatusUnprocessableEntity},
		{"gold as cash", `{"form_id": 1, "payments": [{"paymentMethod": "ADVANCE", "cash": {"amount": "1", "currency": "24K"}}]}`, http.StatusUnprocessableEntity},
		{"unknown leg", `{"form_id": 1, "payments": [{"paymentMethod": "LATER"}]}`, http.StatusUnprocessableEntity},
		{"bad status", `{"form_id": 1, "status": "Lost"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.post(t, "/orderform/preview", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
}

func TestHandleSubmit(t *testing.T) {
	f := newFixture(t)

	w := f.post(t, "/orderform/submit?temp=true", draftBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var temp SubmitResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&temp))
	assert.True(t, temp.Temporary)
	assert.Nil(t, temp.OrderNumber)
	assert.Equal(t, orderform.StateEditing, temp.Draft.State)
	assert.Equal(t, []string{"secret-token"}, f.saver.tokens)

	stored, err := f.store.Get(context.Background(), temp.OrderID)
	require.NoError(t, err)
	assert.True(t, stored.IsTemporary)
	assert.Equal(t, int64(1200000), stored.TotalPrice)
	assert.Equal(t, int64(238500), stored.AdvancePayment)
	require.Len(t, stored.AlterationDetails, 1)
	assert.Equal(t, int64(2), stored.AlterationDetails[0].FormRepairID)
	require.Len(t, stored.Payments, 1)
	assert.Equal(t, "K14", *stored.Payments[0].TradeInCurrency)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(draftBody), &body))
	body["order_id"] = temp.OrderID
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	w = f.post(t, "/orderform/submit", string(raw))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var final SubmitResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&final))
	assert.Equal(t, temp.OrderID, final.OrderID)
	require.NotNil(t, final.OrderNumber)
	assert.Equal(t, orderform.StateSaved, final.Draft.State)

	stored, err = f.store.Get(context.Background(), temp.OrderID)
	require.NoError(t, err)
	assert.False(t, stored.IsTemporary)
	assert.Equal(t, final.OrderNumber, stored.OrderNumber)
}

func TestHandleSubmit_Errors(t *testing.T) {
	f := newFixture(t)

	w := f.post(t, "/orderform/submit", `{"form_id": 1, "items": [{"product_id": 1, "quantity": 1}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "affiliation required")

	f.saver.err = errors.New("connection refused")
	w = f.post(t, "/orderform/submit", draftBody)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "order could not be saved")
}

func TestLooseString(t *testing.T) {
	var in struct {
		A LooseString `json:"a"`
		B LooseString `json:"b"`
		C LooseString `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": "12", "b": 7, "c": null}`), &in))
	assert.Equal(t, LooseString("12"), in.A)
	assert.Equal(t, LooseString("7"), in.B)
	assert.Equal(t, LooseString(""), in.C)
}
