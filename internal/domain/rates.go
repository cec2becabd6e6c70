package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the YYYYMMDD layout used by every rate lookup.
const DateLayout = "20060102"

// FormatDate formats t as YYYYMMDD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// RateQuote is the resolved conversion rate for one currency on one date,
// expressed as local-currency units per one unit of Currency.
type RateQuote struct {
	Currency Currency        `json:"currency"`
	Date     string          `json:"date"`
	Rate     decimal.Decimal `json:"rate"`
}

// MaxAmount bounds every amount a draft holds, entered or converted, so
// that leg totals and the outstanding balance stay within an int64.
const MaxAmount int64 = 1_000_000_000_000_000

var maxAmount = decimal.NewFromInt(MaxAmount)

// Convert returns round(amount × rate), rounding half away from zero.
// Results outside [0, MaxAmount] are ErrAmountOutOfRange.
func (q RateQuote) Convert(amount int64) (int64, error) {
	converted := decimal.NewFromInt(amount).Mul(q.Rate).Round(0)
	if converted.IsNegative() || converted.GreaterThan(maxAmount) {
		return 0, fmt.Errorf("%w: %d %s at %s", ErrAmountOutOfRange, amount, q.Currency, q.Rate)
	}
	return converted.IntPart(), nil
}

// ExchangeRateItem is one row of an exchange-rate lookup. CurrencyUnit carries
// the upstream code verbatim, e.g. "USD" or "JPY(100)".
type ExchangeRateItem struct {
	CurrencyUnit string          `json:"cur_unit"`
	DealBaseRate decimal.Decimal `json:"deal_bas_r"`
	CurrencyName string          `json:"cur_nm"`
}

// GoldPriceItem is one row of a gold-price lookup, prices per gram in the
// local currency.
type GoldPriceItem struct {
	BaseDate string          `json:"basDt"`
	Gold24K  decimal.Decimal `json:"gold_24k"`
	Gold18K  decimal.Decimal `json:"gold_18k"`
	Gold14K  decimal.Decimal `json:"gold_14k"`
	Gold10K  decimal.Decimal `json:"gold_10k"`
}

// PriceFor returns the price for a purity, or zero for non-gold codes.
func (g GoldPriceItem) PriceFor(c Currency) decimal.Decimal {
	switch c {
	case Gold24K:
		return g.Gold24K
	case Gold18K:
		return g.Gold18K
	case Gold14K:
		return g.Gold14K
	case Gold10K:
		return g.Gold10K
	}
	return decimal.Zero
}

// Purity ratios applied to the 24K closing price.
var (
	Purity18K = decimal.RequireFromString("0.75")
	Purity14K = decimal.RequireFromString("0.585")
	Purity10K = decimal.RequireFromString("0.417")
)

// GoldPriceFrom24K derives every purity from a 24K per-gram price.
func GoldPriceFrom24K(baseDate string, price24K decimal.Decimal) GoldPriceItem {
	return GoldPriceItem{
		BaseDate: baseDate,
		Gold24K:  price24K,
		Gold18K:  price24K.Mul(Purity18K),
		Gold14K:  price24K.Mul(Purity14K),
		Gold10K:  price24K.Mul(Purity10K),
	}
}
