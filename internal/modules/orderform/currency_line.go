package orderform

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/aristath/atelier/internal/domain"
	"github.com/rs/zerolog"
)

var (
	// ErrLineBusy rejects edits while a conversion is in flight.
	ErrLineBusy = errors.New("conversion in progress")
	// ErrAmountOutOfRange rejects amounts, entered or converted, above
	// domain.MaxAmount.
	ErrAmountOutOfRange = domain.ErrAmountOutOfRange
	// ErrLineDisposed is returned once the line's form has been discarded.
	ErrLineDisposed = errors.New("line disposed")
	// ErrSuperseded means a later edit made the fetched result stale; the
	// result was dropped.
	ErrSuperseded = errors.New("conversion superseded")
)

// LineState is a point-in-time view of a CurrencyLine.
type LineState struct {
	Amount    int64           `json:"amount"`
	HasAmount bool            `json:"has_amount"`
	Currency  domain.Currency `json:"currency"`
	Converted int64           `json:"converted"`
	Loading   bool            `json:"loading"`
}

// Contributes reports whether the line counts towards its leg total.
func (s LineState) Contributes() bool {
	return s.Amount > 0 && !s.Currency.IsNone()
}

type triple struct {
	date     string
	amount   int64
	currency domain.Currency
}

// CurrencyLine is one editable (currency, amount) pair and its amount
// converted to the local currency. Converted always reflects the last
// successfully resolved (date, amount, currency); while a fetch is in flight
// the previous value is kept.
type CurrencyLine struct {
	name       string
	rates      RateResolver
	local      domain.Currency
	options    []domain.Currency
	allowEmpty bool

	mu        sync.Mutex
	date      string
	amount    int64
	hasAmount bool
	currency  domain.Currency
	converted int64
	loading   bool
	disposed  bool

	// seq identifies the most recently issued fetch.
	seq uint64
	// last is the triple of the last successful commit.
	last *triple
	// initial forces the next commit to fetch even if it repeats last.
	initial bool

	log zerolog.Logger
}

// LineConfig describes which currencies a line accepts.
type LineConfig struct {
	Name       string
	Options    []domain.Currency
	Initial    domain.Currency
	AllowEmpty bool
}

// NewCurrencyLine creates a line with no amount.
func NewCurrencyLine(cfg LineConfig, rates RateResolver, local domain.Currency, log zerolog.Logger) *CurrencyLine {
	return &CurrencyLine{
		name:       cfg.Name,
		rates:      rates,
		local:      local,
		options:    cfg.Options,
		allowEmpty: cfg.AllowEmpty,
		currency:   cfg.Initial,
		log:        log.With().Str("line", cfg.Name).Logger(),
	}
}

// State returns a copy of the line's current state.
func (l *CurrencyLine) State() LineState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateLocked()
}

func (l *CurrencyLine) stateLocked() LineState {
	return LineState{
		Amount:    l.amount,
		HasAmount: l.hasAmount,
		Currency:  l.currency,
		Converted: l.converted,
		Loading:   l.loading,
	}
}

// SetAmount keeps only the digits of raw. Empty input unsets the amount.
// No conversion happens until Commit.
func (l *CurrencyLine) SetAmount(raw string) error {
	amount, ok, err := SanitizeAmount(raw)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return ErrLineDisposed
	}
	if l.loading {
		return ErrLineBusy
	}
	l.amount = amount
	l.hasAmount = ok
	return nil
}

// SanitizeAmount drops every non-digit of raw. ok is false when nothing is
// left.
func SanitizeAmount(raw string) (amount int64, ok bool, err error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false, nil
	}
	amount, err = strconv.ParseInt(b.String(), 10, 64)
	if err != nil || amount > domain.MaxAmount {
		return 0, false, fmt.Errorf("%w: %s", ErrAmountOutOfRange, b.String())
	}
	return amount, true, nil
}

// SetDate changes the effective rate date (YYYYMMDD, empty for today). An
// in-flight fetch for the old date is superseded.
func (l *CurrencyLine) SetDate(date string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return ErrLineDisposed
	}
	if date == l.date {
		return nil
	}
	l.date = date
	if l.loading {
		l.seq++
		l.loading = false
	}
	return nil
}

// SetCurrency switches the line's currency. The local currency converts
// the current amount immediately. A foreign currency zeroes the converted
// amount and fetches a reference quote; the amount itself is converted on
// the next Commit, which always fetches.
func (l *CurrencyLine) SetCurrency(ctx context.Context, c domain.Currency) error {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return ErrLineDisposed
	}

	switch {
	case c.IsNone():
		if !l.allowEmpty {
			l.mu.Unlock()
			return domain.NewValidationError("currency", l.name+" requires a currency")
		}
		l.currency = c
		l.converted = 0
		l.supersedeLocked()
		l.mu.Unlock()
		return nil

	case len(l.options) > 0 && !domain.Contains(l.options, c):
		l.mu.Unlock()
		return domain.NewValidationError("currency", fmt.Sprintf("%s does not accept %q", l.name, c))

	case c == l.local:
		l.currency = c
		l.converted = l.amount
		l.supersedeLocked()
		l.mu.Unlock()
		return nil
	}

	l.currency = c
	l.converted = 0
	l.initial = true
	l.last = nil
	l.seq++
	l.loading = true
	issued := l.seq
	ref := triple{date: l.date, amount: 0, currency: c}
	l.mu.Unlock()

	_, err := l.rates.ResolveRate(ctx, c, ref.date)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return ErrLineDisposed
	}
	if issued != l.seq {
		return ErrSuperseded
	}
	l.loading = false
	if err != nil {
		return fmt.Errorf("%s: %w", l.name, err)
	}
	return nil
}

// supersedeLocked drops any in-flight fetch and the suppression state.
func (l *CurrencyLine) supersedeLocked() {
	l.seq++
	l.loading = false
	l.initial = false
	l.last = nil
}

// Commit converts the current amount. Local currency converts
// synchronously. Repeating the last successful (date, amount, currency)
// is a no-op unless the currency was just changed. On failure the converted
// amount keeps its previous value.
func (l *CurrencyLine) Commit(ctx context.Context) (int64, error) {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return 0, ErrLineDisposed
	}
	if l.loading {
		converted := l.converted
		l.mu.Unlock()
		return converted, ErrLineBusy
	}

	switch {
	case l.currency.IsNone():
		l.converted = 0
		l.mu.Unlock()
		return 0, nil
	case l.currency == l.local:
		l.converted = l.amount
		converted := l.converted
		l.mu.Unlock()
		return converted, nil
	}

	t := triple{date: l.date, amount: l.amount, currency: l.currency}
	if !l.initial && l.last != nil && *l.last == t {
		converted := l.converted
		l.mu.Unlock()
		return converted, nil
	}

	l.seq++
	l.loading = true
	issued := l.seq
	l.mu.Unlock()

	q, err := l.rates.ResolveRate(ctx, t.currency, t.date)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return 0, ErrLineDisposed
	}
	current := triple{date: l.date, amount: l.amount, currency: l.currency}
	if issued != l.seq || current != t {
		l.log.Debug().
			Str("currency", t.currency.String()).
			Int64("amount", t.amount).
			Msg("Dropping stale conversion")
		return l.converted, ErrSuperseded
	}
	l.loading = false
	if err != nil {
		return l.converted, fmt.Errorf("%s: %w", l.name, err)
	}

	converted, err := q.Convert(t.amount)
	if err != nil {
		l.log.Warn().
			Str("currency", t.currency.String()).
			Int64("amount", t.amount).
			Msg("Conversion out of range")
		return l.converted, fmt.Errorf("%s: %w", l.name, err)
	}
	l.converted = converted
	l.last = &t
	l.initial = false
	return l.converted, nil
}

// Hydrate loads persisted values. The stored converted amount is trusted;
// the next Commit re-resolves the rate.
func (l *CurrencyLine) Hydrate(amount int64, currency domain.Currency, converted int64) error {
	if err := l.checkHydrate(amount, currency, converted); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return ErrLineDisposed
	}
	l.seq++
	l.loading = false
	l.amount = amount
	l.hasAmount = amount > 0
	l.currency = currency
	l.converted = converted
	l.last = nil
	l.initial = !currency.IsNone() && currency != l.local
	return nil
}

// checkHydrate reports whether Hydrate would accept the values.
func (l *CurrencyLine) checkHydrate(amount int64, currency domain.Currency, converted int64) error {
	if amount < 0 || amount > domain.MaxAmount || converted < 0 || converted > domain.MaxAmount {
		return fmt.Errorf("%s: %w", l.name, ErrAmountOutOfRange)
	}
	if currency.IsNone() {
		if !l.allowEmpty {
			return domain.NewValidationError("currency", l.name+" requires a currency")
		}
		return nil
	}
	if len(l.options) > 0 && !domain.Contains(l.options, currency) {
		return domain.NewValidationError("currency", fmt.Sprintf("%s does not accept %q", l.name, currency))
	}
	return nil
}

// Dispose discards the line. Fetches that resolve afterwards change nothing.
func (l *CurrencyLine) Dispose() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disposed = true
	l.loading = false
	l.seq++
}
