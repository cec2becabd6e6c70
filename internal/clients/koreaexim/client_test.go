package koreaexim

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/atelier/internal/clientdata"
	testingpkg "github.com/aristath/atelier/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResponse = `[
  {"result":1,"cur_unit":"JPY(100)","ttb":"903.21","tts":"921.46","deal_bas_r":"912.34","cur_nm":"일본 옌"},
  {"result":1,"cur_unit":"KRW","ttb":"0","tts":"0","deal_bas_r":"1","cur_nm":"한국 원"},
  {"result":1,"cur_unit":"USD","ttb":"1,307.29","tts":"1,333.70","deal_bas_r":"1,320.5","cur_nm":"미국 달러"}
]`

func newCacheRepo(t *testing.T) *clientdata.Repository {
	db, cleanup := testingpkg.NewTestDB(t, "client_data")
	t.Cleanup(cleanup)
	return clientdata.NewRepository(db.Conn())
}

func TestFetchRates_ParsesThousandsSeparators(t *testing.T) {
	var gotQuery atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "secret"}, nil, zerolog.Nop())

	items, err := client.FetchRates(context.Background(), "20240105")
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "USD", items[2].CurrencyUnit)
	assert.True(t, items[2].DealBaseRate.Equal(decimal.RequireFromString("1320.5")))
	assert.Equal(t, "JPY(100)", items[0].CurrencyUnit)
	assert.True(t, items[0].DealBaseRate.Equal(decimal.RequireFromString("912.34")))

	q := gotQuery.Load().(interface{ Get(string) string })
	assert.Equal(t, "secret", q.Get("authkey"))
	assert.Equal(t, "20240105", q.Get("searchdate"))
	assert.Equal(t, "AP01", q.Get("data"))
}

func TestFetchRates_EmptyDayIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, nil, zerolog.Nop())

	items, err := client.FetchRates(context.Background(), "20240106")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFetchRates_ResultCodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"result":3}]`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, nil, zerolog.Nop())

	_, err := client.FetchRates(context.Background(), "20240105")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid auth key")
}

func TestFetchRates_UsesFreshCache(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, newCacheRepo(t), zerolog.Nop())

	_, err := client.FetchRates(context.Background(), "20240105")
	require.NoError(t, err)
	items, err := client.FetchRates(context.Background(), "20240105")
	require.NoError(t, err)

	assert.Len(t, items, 3)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchRates_FallsBackToStaleCache(t *testing.T) {
	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer server.Close()

	repo := newCacheRepo(t)
	client := NewClient(Config{BaseURL: server.URL}, repo, zerolog.Nop())
	// Today's data: cached for an hour only
	client.now = func() time.Time { return time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC) }

	_, err := client.FetchRates(context.Background(), "20240105")
	require.NoError(t, err)

	// Expire the entry, then break the upstream
	require.NoError(t, repo.Store(clientdata.TableExchangeRates, "20240105", []rawItem{
		{Result: 1, CurrencyUnit: "USD", DealBaseRate: "1,300", CurrencyName: "미국 달러"},
	}, -time.Minute))
	fail.Store(true)

	items, err := client.FetchRates(context.Background(), "20240105")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].DealBaseRate.Equal(decimal.NewFromInt(1300)))
}

func TestFetchRates_UpstreamFailureWithoutCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, nil, zerolog.Nop())

	_, err := client.FetchRates(context.Background(), "20240105")
	assert.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount(" 1,234,567.89 ")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("1234567.89")))

	_, err = ParseAmount("n/a")
	assert.Error(t, err)
}
