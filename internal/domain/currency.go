// Package domain provides core domain models and types.
package domain

import "strings"

// Currency represents a currency or gold purity code as shown to the user.
type Currency string

const (
	CurrencyKRW Currency = "KRW"
	CurrencyUSD Currency = "USD"
	CurrencyJPY Currency = "JPY"

	Gold10K Currency = "10K"
	Gold14K Currency = "14K"
	Gold18K Currency = "18K"
	Gold24K Currency = "24K"

	// CurrencyNone marks a line with no currency selected.
	CurrencyNone Currency = ""
)

// DefaultLocalCurrency is the currency all converted amounts are expressed in.
const DefaultLocalCurrency = CurrencyKRW

// CashCurrencies are the options offered for cash and card instruments.
var CashCurrencies = []Currency{CurrencyKRW, CurrencyJPY, CurrencyUSD}

// GoldPurities are the options offered for trade-in instruments.
var GoldPurities = []Currency{Gold10K, Gold14K, Gold18K, Gold24K}

// ParseCurrency normalizes user input into a Currency. Unknown codes are
// returned upper-cased; use IsFX/IsGold to classify them.
func ParseCurrency(s string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(s)))
}

// IsGold reports whether c is a gold purity.
func (c Currency) IsGold() bool {
	switch c {
	case Gold10K, Gold14K, Gold18K, Gold24K:
		return true
	}
	return false
}

// IsFX reports whether c is a foreign currency resolved via exchange rates.
func (c Currency) IsFX() bool {
	switch c {
	case CurrencyUSD, CurrencyJPY:
		return true
	}
	return false
}

// IsNone reports whether no currency is selected.
func (c Currency) IsNone() bool {
	return c == CurrencyNone
}

// String implements fmt.Stringer
func (c Currency) String() string {
	return string(c)
}

// wireTradeIn maps purity codes to the codes the order store expects.
var wireTradeIn = map[Currency]string{
	Gold10K: "K10",
	Gold14K: "K14",
	Gold18K: "K18",
	Gold24K: "K24",
}

// WireTradeInCurrency returns the persisted code for a trade-in currency.
// Codes without a mapping pass through unchanged.
func WireTradeInCurrency(c Currency) string {
	if w, ok := wireTradeIn[c]; ok {
		return w
	}
	return string(c)
}

// ParseWireTradeInCurrency is the inverse of WireTradeInCurrency, used when
// hydrating a stored order back into an editable draft.
func ParseWireTradeInCurrency(s string) Currency {
	for c, w := range wireTradeIn {
		if w == s {
			return c
		}
	}
	return ParseCurrency(s)
}

// Contains reports whether c is one of the options.
func Contains(options []Currency, c Currency) bool {
	for _, o := range options {
		if o == c {
			return true
		}
	}
	return false
}
