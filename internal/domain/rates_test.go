package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateQuote_ConvertRoundsHalfAwayFromZero(t *testing.T) {
	convert := func(q RateQuote, amount int64) int64 {
		t.Helper()
		v, err := q.Convert(amount)
		require.NoError(t, err)
		return v
	}

	q := RateQuote{Currency: CurrencyUSD, Rate: decimal.RequireFromString("1320.5")}
	assert.Equal(t, int64(132050), convert(q, 100))
	assert.Equal(t, int64(1321), convert(q, 1)) // 1320.5 rounds up

	jpy := RateQuote{Currency: CurrencyJPY, Rate: decimal.RequireFromString("9.1234")}
	assert.Equal(t, int64(912), convert(jpy, 100)) // 912.34
	assert.Equal(t, int64(0), convert(jpy, 0))
}

func TestRateQuote_ConvertRejectsResultsAboveMaxAmount(t *testing.T) {
	q := RateQuote{Currency: CurrencyUSD, Rate: decimal.NewFromInt(1300)}

	_, err := q.Convert(9_000_000_000_000_000_000)
	assert.ErrorIs(t, err, ErrAmountOutOfRange)

	_, err = q.Convert(MaxAmount/1300 + 1)
	assert.ErrorIs(t, err, ErrAmountOutOfRange)

	v, err := q.Convert(MaxAmount / 1300)
	require.NoError(t, err)
	assert.LessOrEqual(t, v, MaxAmount)

	negative := RateQuote{Currency: CurrencyUSD, Rate: decimal.NewFromInt(-1)}
	_, err = negative.Convert(10)
	assert.ErrorIs(t, err, ErrAmountOutOfRange)
}

func TestGoldPriceFrom24K(t *testing.T) {
	g := GoldPriceFrom24K("20240105", decimal.NewFromInt(100000))

	assert.True(t, g.Gold24K.Equal(decimal.NewFromInt(100000)))
	assert.True(t, g.Gold18K.Equal(decimal.NewFromInt(75000)))
	assert.True(t, g.Gold14K.Equal(decimal.NewFromInt(58500)))
	assert.True(t, g.Gold10K.Equal(decimal.NewFromInt(41700)))

	assert.True(t, g.PriceFor(Gold18K).Equal(g.Gold18K))
	assert.True(t, g.PriceFor(CurrencyUSD).IsZero())
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "20240307", FormatDate(time.Date(2024, 3, 7, 23, 0, 0, 0, time.UTC)))
}
