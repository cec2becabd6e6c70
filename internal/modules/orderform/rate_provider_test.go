package orderform

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/atelier/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchangeSource struct {
	mu     sync.Mutex
	byDate map[string][]domain.ExchangeRateItem
	err    error
	calls  []string
	gate   chan struct{}
}

func (f *fakeExchangeSource) ExchangeRates(ctx context.Context, date string) ([]domain.ExchangeRateItem, error) {
	f.mu.Lock()
	f.calls = append(f.calls, date)
	items, err, gate := f.byDate[date], f.err, f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return items, err
}

func (f *fakeExchangeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeGoldSource struct {
	mu     sync.Mutex
	byDate map[string][]domain.GoldPriceItem
	err    error
	calls  []string
}

func (f *fakeGoldSource) GoldPrices(ctx context.Context, date string) ([]domain.GoldPriceItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, date)
	return f.byDate[date], f.err
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newProvider(t *testing.T) (*RateProvider, *fakeExchangeSource, *fakeGoldSource) {
	t.Helper()
	exchange := &fakeExchangeSource{byDate: map[string][]domain.ExchangeRateItem{
		"20240105": {
			{CurrencyUnit: "USD", DealBaseRate: dec("1300"), CurrencyName: "US Dollar"},
			{CurrencyUnit: "JPY(100)", DealBaseRate: dec("912.34"), CurrencyName: "Japanese Yen"},
			{CurrencyUnit: "KRW", DealBaseRate: dec("1"), CurrencyName: "Won"},
		},
		"20240106": {
			{CurrencyUnit: "USD", DealBaseRate: dec("0"), CurrencyName: "US Dollar"},
		},
	}}
	gold := &fakeGoldSource{byDate: map[string][]domain.GoldPriceItem{
		"20240105": {domain.GoldPriceFrom24K("20240105", dec("100000"))},
	}}

	p := NewRateProvider(exchange, gold, "", zerolog.New(nil).Level(zerolog.Disabled))
	p.now = func() time.Time { return time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC) }
	return p, exchange, gold
}

func TestResolveRate_LocalCurrencyNeedsNoFetch(t *testing.T) {
	p, exchange, gold := newProvider(t)

	q, err := p.ResolveRate(context.Background(), domain.CurrencyKRW, "20240105")
	require.NoError(t, err)
	assert.True(t, q.Rate.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, domain.CurrencyKRW, p.LocalCurrency())
	assert.Zero(t, exchange.callCount())
	assert.Empty(t, gold.calls)
}

func TestResolveRate_Exchange(t *testing.T) {
	p, _, _ := newProvider(t)

	usd, err := p.ResolveRate(context.Background(), domain.CurrencyUSD, "20240105")
	require.NoError(t, err)
	assert.True(t, usd.Rate.Equal(dec("1300")))
	assert.Equal(t, "20240105", usd.Date)

	jpy, err := p.ResolveRate(context.Background(), domain.CurrencyJPY, "20240105")
	require.NoError(t, err)
	assert.True(t, jpy.Rate.Equal(dec("9.1234")), "JPY(100) is quoted per 100 yen, got %s", jpy.Rate)
	converted, err := jpy.Convert(1000)
	require.NoError(t, err)
	assert.Equal(t, int64(9123), converted)
}

func TestResolveRate_GoldPurities(t *testing.T) {
	p, _, gold := newProvider(t)

	tests := []struct {
		purity domain.Currency
		want   string
	}{
		{domain.Gold24K, "100000"},
		{domain.Gold18K, "75000"},
		{domain.Gold14K, "58500"},
		{domain.Gold10K, "41700"},
	}
	for _, tt := range tests {
		t.Run(string(tt.purity), func(t *testing.T) {
			q, err := p.ResolveRate(context.Background(), tt.purity, "20240105")
			require.NoError(t, err)
			assert.True(t, q.Rate.Equal(dec(tt.want)), "got %s", q.Rate)
		})
	}
	assert.Len(t, gold.calls, 4, "each purity is memoized separately")
}

func TestResolveRate_DefaultsToToday(t *testing.T) {
	p, exchange, _ := newProvider(t)

	q, err := p.ResolveRate(context.Background(), domain.CurrencyUSD, "")
	require.NoError(t, err)
	assert.Equal(t, "20240105", q.Date)
	assert.Equal(t, []string{"20240105"}, exchange.calls)
}

func TestResolveRate_Memoized(t *testing.T) {
	p, exchange, _ := newProvider(t)

	for i := 0; i < 3; i++ {
		_, err := p.ResolveRate(context.Background(), domain.CurrencyUSD, "20240105")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, exchange.callCount())
}

func TestResolveRate_ConcurrentLookupsShareOneFetch(t *testing.T) {
	p, exchange, _ := newProvider(t)
	gate := make(chan struct{})
	exchange.gate = gate

	var wg sync.WaitGroup
	results := make([]domain.RateQuote, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.ResolveRate(context.Background(), domain.CurrencyUSD, "20240105")
		}(i)
	}

	require.Eventually(t, func() bool { return exchange.callCount() == 1 }, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.True(t, results[i].Rate.Equal(dec("1300")))
	}
	assert.Equal(t, 1, exchange.callCount())
}

func TestResolveRate_Unavailable(t *testing.T) {
	tests := []struct {
		name     string
		currency domain.Currency
		date     string
	}{
		{"no data for date", domain.CurrencyUSD, "20240107"},
		{"zero rate", domain.CurrencyUSD, "20240106"},
		{"no gold for date", domain.Gold18K, "20240106"},
		{"unsupported currency", domain.Currency("EUR"), "20240105"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, _ := newProvider(t)
			_, err := p.ResolveRate(context.Background(), tt.currency, tt.date)
			assert.ErrorIs(t, err, domain.ErrRateUnavailable)
		})
	}
}

func TestResolveRate_SourceFailureIsNotMemoized(t *testing.T) {
	p, exchange, _ := newProvider(t)
	exchange.err = errors.New("connection reset")

	_, err := p.ResolveRate(context.Background(), domain.CurrencyUSD, "20240105")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrRateUnavailable)
	assert.Contains(t, err.Error(), "connection reset")

	exchange.mu.Lock()
	exchange.err = nil
	exchange.mu.Unlock()

	q, err := p.ResolveRate(context.Background(), domain.CurrencyUSD, "20240105")
	require.NoError(t, err)
	assert.True(t, q.Rate.Equal(dec("1300")))
	assert.Equal(t, 2, exchange.callCount())
}
