// Package rates keeps the daily snapshot of gold prices and exchange rates
// that every payment conversion is resolved against.
package rates

import (
	"time"

	"github.com/aristath/atelier/internal/domain"
	"github.com/shopspring/decimal"
)

// Upstream row codes served by the exchange endpoint.
const (
	UnitUSD    = "USD"
	UnitJPY100 = "JPY(100)"
	UnitKRW    = "KRW"
)

// Snapshot is one stored refresh. Either half may be missing (empty base
// date) when the upstream had nothing and no earlier snapshot existed.
type Snapshot struct {
	ID int64

	GoldBaseDate string
	Gold10K      decimal.Decimal
	Gold14K      decimal.Decimal
	Gold18K      decimal.Decimal
	Gold24K      decimal.Decimal

	ExchangeBaseDate string
	USD              decimal.Decimal // KRW per 1 USD
	JPY              decimal.Decimal // KRW per 100 JPY
	KRW              decimal.Decimal

	SearchedAt time.Time
}

// HasGold reports whether the snapshot carries gold prices.
func (s *Snapshot) HasGold() bool {
	return s.GoldBaseDate != "" && s.Gold24K.IsPositive()
}

// HasExchange reports whether the snapshot carries exchange rates.
func (s *Snapshot) HasExchange() bool {
	return s.ExchangeBaseDate != "" && s.USD.IsPositive()
}

// GoldItem returns the gold half in lookup form.
func (s *Snapshot) GoldItem() domain.GoldPriceItem {
	return domain.GoldPriceItem{
		BaseDate: s.GoldBaseDate,
		Gold24K:  s.Gold24K,
		Gold18K:  s.Gold18K,
		Gold14K:  s.Gold14K,
		Gold10K:  s.Gold10K,
	}
}

// ExchangeItems returns the exchange half in lookup form.
func (s *Snapshot) ExchangeItems() []domain.ExchangeRateItem {
	return []domain.ExchangeRateItem{
		{CurrencyUnit: UnitUSD, DealBaseRate: s.USD, CurrencyName: "US Dollar"},
		{CurrencyUnit: UnitJPY100, DealBaseRate: s.JPY, CurrencyName: "Japanese Yen (100)"},
		{CurrencyUnit: UnitKRW, DealBaseRate: s.KRW, CurrencyName: "South Korean Won"},
	}
}

func (s *Snapshot) setGold(g domain.GoldPriceItem) {
	s.GoldBaseDate = g.BaseDate
	s.Gold24K = g.Gold24K
	s.Gold18K = g.Gold18K
	s.Gold14K = g.Gold14K
	s.Gold10K = g.Gold10K
}

type exchangeHalf struct {
	baseDate      string
	usd, jpy, krw decimal.Decimal
}

func (s *Snapshot) setExchange(e exchangeHalf) {
	s.ExchangeBaseDate = e.baseDate
	s.USD = e.usd
	s.JPY = e.jpy
	s.KRW = e.krw
}
