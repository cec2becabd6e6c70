// Package orderform is the order-total engine behind the order form: rate
// resolution, per-instrument currency conversion, payment leg aggregation,
// order totals and the submit pipeline that turns a draft into a saved
// order.
package orderform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/atelier/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// jpyPer100Unit is how the exchange source quotes the yen.
const jpyPer100Unit = "JPY(100)"

var hundred = decimal.NewFromInt(100)

// RateResolver resolves a currency on a date (YYYYMMDD, empty for today) to
// a quote in the local currency.
type RateResolver interface {
	ResolveRate(ctx context.Context, currency domain.Currency, date string) (domain.RateQuote, error)
}

type quoteKey struct {
	currency domain.Currency
	date     string
}

// RateProvider resolves rates from the exchange and gold sources. One
// provider lives as long as a form session; successful quotes are memoized
// for that lifetime and concurrent identical lookups share one fetch.
type RateProvider struct {
	exchange domain.ExchangeRateSource
	gold     domain.GoldPriceSource
	local    domain.Currency

	mu    sync.RWMutex
	memo  map[quoteKey]domain.RateQuote
	group singleflight.Group

	now func() time.Time
	log zerolog.Logger
}

// NewRateProvider creates a provider. An empty local currency means KRW.
func NewRateProvider(exchange domain.ExchangeRateSource, gold domain.GoldPriceSource, local domain.Currency, log zerolog.Logger) *RateProvider {
	if local.IsNone() {
		local = domain.DefaultLocalCurrency
	}
	return &RateProvider{
		exchange: exchange,
		gold:     gold,
		local:    local,
		memo:     make(map[quoteKey]domain.RateQuote),
		now:      time.Now,
		log:      log.With().Str("component", "rate_provider").Logger(),
	}
}

// LocalCurrency returns the currency quotes are expressed in.
func (p *RateProvider) LocalCurrency() domain.Currency {
	return p.local
}

// ResolveRate returns the quote for currency on date. The local currency
// always resolves to 1 without touching either source.
func (p *RateProvider) ResolveRate(ctx context.Context, currency domain.Currency, date string) (domain.RateQuote, error) {
	if date == "" {
		date = domain.FormatDate(p.now())
	}
	if currency == p.local {
		return domain.RateQuote{Currency: currency, Date: date, Rate: decimal.NewFromInt(1)}, nil
	}
	if !currency.IsFX() && !currency.IsGold() {
		return domain.RateQuote{}, fmt.Errorf("unsupported currency %q: %w", currency, domain.ErrRateUnavailable)
	}

	key := quoteKey{currency: currency, date: date}
	p.mu.RLock()
	q, ok := p.memo[key]
	p.mu.RUnlock()
	if ok {
		return q, nil
	}

	v, err, shared := p.group.Do(string(currency)+"|"+date, func() (interface{}, error) {
		p.mu.RLock()
		q, ok := p.memo[key]
		p.mu.RUnlock()
		if ok {
			return q, nil
		}

		var rate decimal.Decimal
		var err error
		if currency.IsGold() {
			rate, err = p.goldRate(ctx, currency, date)
		} else {
			rate, err = p.exchangeRate(ctx, currency, date)
		}
		if err != nil {
			return nil, err
		}

		q = domain.RateQuote{Currency: currency, Date: date, Rate: rate}
		p.mu.Lock()
		p.memo[key] = q
		p.mu.Unlock()
		return q, nil
	})
	if err != nil {
		p.log.Warn().Err(err).
			Str("currency", currency.String()).
			Str("date", date).
			Msg("Rate lookup failed")
		return domain.RateQuote{}, err
	}

	if shared {
		p.log.Debug().Str("currency", currency.String()).Str("date", date).Msg("Shared in-flight rate lookup")
	}
	return v.(domain.RateQuote), nil
}

func (p *RateProvider) exchangeRate(ctx context.Context, currency domain.Currency, date string) (decimal.Decimal, error) {
	items, err := p.exchange.ExchangeRates(ctx, date)
	if err != nil {
		return decimal.Zero, sourceError("exchange rates", date, err)
	}

	for _, item := range items {
		if item.CurrencyUnit == string(currency) {
			return usableRate(item.DealBaseRate, currency, date)
		}
	}
	if currency == domain.CurrencyJPY {
		for _, item := range items {
			if item.CurrencyUnit == jpyPer100Unit {
				return usableRate(item.DealBaseRate.Div(hundred), currency, date)
			}
		}
	}
	return decimal.Zero, fmt.Errorf("no %s rate for %s: %w", currency, date, domain.ErrRateUnavailable)
}

func (p *RateProvider) goldRate(ctx context.Context, currency domain.Currency, date string) (decimal.Decimal, error) {
	items, err := p.gold.GoldPrices(ctx, date)
	if err != nil {
		return decimal.Zero, sourceError("gold prices", date, err)
	}
	if len(items) == 0 {
		return decimal.Zero, fmt.Errorf("no gold price for %s: %w", date, domain.ErrRateUnavailable)
	}
	return usableRate(items[0].PriceFor(currency), currency, date)
}

// A zero or negative rate would silently zero every conversion.
func usableRate(rate decimal.Decimal, currency domain.Currency, date string) (decimal.Decimal, error) {
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive %s rate for %s: %w", currency, date, domain.ErrRateUnavailable)
	}
	return rate, nil
}

func sourceError(what, date string, err error) error {
	if errors.Is(err, domain.ErrRateUnavailable) {
		return err
	}
	return fmt.Errorf("failed to fetch %s for %s: %w", what, date, err)
}
