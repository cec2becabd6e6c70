package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/atelier/internal/domain"
	"github.com/aristath/atelier/internal/modules/rates"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	snap       *rates.Snapshot
	err        error
	gotDate    string
	refreshed  bool
	historyLim int
}

func (f *fakeService) GoldSnapshot(ctx context.Context, date string) (*rates.Snapshot, error) {
	f.gotDate = date
	return f.snap, f.err
}

func (f *fakeService) ExchangeSnapshot(ctx context.Context, date string) (*rates.Snapshot, error) {
	f.gotDate = date
	return f.snap, f.err
}

func (f *fakeService) Refresh(ctx context.Context) (*rates.Snapshot, bool, error) {
	return f.snap, f.refreshed, f.err
}

func (f *fakeService) History(ctx context.Context, limit int) ([]rates.Snapshot, error) {
	f.historyLim = limit
	if f.snap == nil {
		return nil, f.err
	}
	return []rates.Snapshot{*f.snap}, f.err
}

func testSnapshot() *rates.Snapshot {
	return &rates.Snapshot{
		ID:               7,
		GoldBaseDate:     "20240105",
		Gold24K:          decimal.NewFromInt(100000),
		Gold18K:          decimal.NewFromInt(75000),
		Gold14K:          decimal.NewFromInt(58500),
		Gold10K:          decimal.NewFromInt(41700),
		ExchangeBaseDate: "20240104",
		USD:              decimal.RequireFromString("1320.5"),
		JPY:              decimal.RequireFromString("912.34"),
		KRW:              decimal.NewFromInt(1),
		SearchedAt:       time.Unix(1704423600, 0),
	}
}

func newRouter(service RateService) *chi.Mux {
	handler := NewHandler(service, zerolog.New(nil).Level(zerolog.Disabled))
	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return router
}

func TestHandleGetGoldPriceInfo(t *testing.T) {
	service := &fakeService{snap: testSnapshot()}
	router := newRouter(service)

	req := httptest.NewRequest("GET", "/getGoldPriceInfo?bas_dt=20240105", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "20240105", service.gotDate)

	var response GoldPriceResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "DB", response.ResultCode)
	require.Len(t, response.Items, 1)
	assert.Equal(t, "20240105", response.Items[0].BaseDate)
	assert.True(t, response.Items[0].Gold14K.Equal(decimal.NewFromInt(58500)))
}

func TestHandleGetExchangeRateInfo(t *testing.T) {
	service := &fakeService{snap: testSnapshot()}
	router := newRouter(service)

	req := httptest.NewRequest("GET", "/getExchangeRateInfo", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", service.gotDate)

	var response ExchangeRateResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "20240104", response.SearchDate)
	require.Len(t, response.Items, 3)
	assert.Equal(t, "USD", response.Items[0].CurrencyUnit)
	assert.True(t, response.Items[0].DealBaseRate.Equal(decimal.RequireFromString("1320.5")))
	assert.Equal(t, "JPY(100)", response.Items[1].CurrencyUnit)
	assert.Equal(t, "KRW", response.Items[2].CurrencyUnit)
}

func TestHandleLookup_Errors(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		err    error
		status int
	}{
		{"gold not found", "/getGoldPriceInfo?bas_dt=20000101", domain.ErrRateUnavailable, http.StatusNotFound},
		{"exchange not found", "/getExchangeRateInfo?search_date=20000101", domain.ErrRateUnavailable, http.StatusNotFound},
		{"storage failure", "/getExchangeRateInfo", errors.New("disk I/O error"), http.StatusInternalServerError},
		{"malformed date", "/getGoldPriceInfo?bas_dt=2024-01-05", nil, http.StatusBadRequest},
		{"short date", "/getExchangeRateInfo?search_date=202401", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(&fakeService{err: tt.err})

			req := httptest.NewRequest("GET", tt.url, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestHandleSync(t *testing.T) {
	router := newRouter(&fakeService{snap: testSnapshot(), refreshed: true})

	req := httptest.NewRequest("POST", "/rates/sync", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, true, response["refreshed"])
	assert.Equal(t, "20240105", response["gold_bas_dt"])
}

func TestHandleGetHistory(t *testing.T) {
	service := &fakeService{snap: testSnapshot()}
	router := newRouter(service)

	req := httptest.NewRequest("GET", "/rates/history?limit=5", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, service.historyLim)

	var response map[string][]map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Len(t, response["items"], 1)
	assert.Equal(t, float64(7), response["items"][0]["id"])

	req = httptest.NewRequest("GET", "/rates/history?limit=0", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
