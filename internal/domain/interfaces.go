package domain

import "context"

// ExchangeRateSource returns every exchange rate published for a date
// (YYYYMMDD).
type ExchangeRateSource interface {
	ExchangeRates(ctx context.Context, date string) ([]ExchangeRateItem, error)
}

// GoldPriceSource returns gold prices for a date (YYYYMMDD). Only the first
// item is meaningful.
type GoldPriceSource interface {
	GoldPrices(ctx context.Context, date string) ([]GoldPriceItem, error)
}

// OrderSaver persists an order payload.
type OrderSaver interface {
	SaveOrder(ctx context.Context, req SaveRequest) (*SaveResult, error)
}
