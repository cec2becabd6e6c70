package orderform

import (
	"strings"
	"sync"
	"time"

	"github.com/aristath/atelier/internal/domain"
	"github.com/rs/zerolog"
)

// PaymentLeg is one payment phase of an order with its three instruments.
type PaymentLeg struct {
	Kind    domain.PaymentMethod
	Cash    *CurrencyLine
	Card    *CurrencyLine
	TradeIn *CurrencyLine

	mu    sync.RWMutex
	date  string
	payer string
	notes string
}

// NewPaymentLeg creates an empty leg. Cash and card start in the local
// currency; trade-in starts with no purity selected.
func NewPaymentLeg(kind domain.PaymentMethod, rates RateResolver, local domain.Currency, log zerolog.Logger) *PaymentLeg {
	legLog := log.With().Str("leg", string(kind)).Logger()
	cashOptions := append([]domain.Currency(nil), domain.CashCurrencies...)
	if !domain.Contains(cashOptions, local) {
		cashOptions = append(cashOptions, local)
	}
	return &PaymentLeg{
		Kind: kind,
		Cash: NewCurrencyLine(LineConfig{
			Name: "cash", Options: cashOptions, Initial: local,
		}, rates, local, legLog),
		Card: NewCurrencyLine(LineConfig{
			Name: "card", Options: cashOptions, Initial: local,
		}, rates, local, legLog),
		TradeIn: NewCurrencyLine(LineConfig{
			Name: "trade_in", Options: domain.GoldPurities, AllowEmpty: true,
		}, rates, local, legLog),
	}
}

// Lines returns the instruments in display order.
func (l *PaymentLeg) Lines() []*CurrencyLine {
	return []*CurrencyLine{l.Cash, l.Card, l.TradeIn}
}

// SetDetails sets the payment date (YYYY-MM-DD or YYYYMMDD), payer and
// notes. The date becomes every instrument's rate date.
func (l *PaymentLeg) SetDetails(date, payer, notes string) error {
	rateDate, err := RateDate(date)
	if err != nil {
		return err
	}
	for _, line := range l.Lines() {
		if err := line.SetDate(rateDate); err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.date = strings.TrimSpace(date)
	l.payer = payer
	l.notes = notes
	l.mu.Unlock()
	return nil
}

// Details returns the payment date, payer and notes.
func (l *PaymentLeg) Details() (date, payer, notes string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.date, l.payer, l.notes
}

// Dispose discards every instrument.
func (l *PaymentLeg) Dispose() {
	for _, line := range l.Lines() {
		line.Dispose()
	}
}

// RateDate turns a payment date into the YYYYMMDD rate date. Empty means
// today.
func RateDate(date string) (string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return "", nil
	}
	for _, layout := range []string{"2006-01-02", domain.DateLayout} {
		if t, err := time.Parse(layout, date); err == nil {
			return domain.FormatDate(t), nil
		}
	}
	if t, err := time.Parse(time.RFC3339, date); err == nil {
		return domain.FormatDate(t), nil
	}
	return "", domain.NewValidationError("payment_date", "expected YYYY-MM-DD")
}

// LegTotal sums the converted amounts of the instruments that contribute:
// amount above zero and a currency selected.
func LegTotal(leg *PaymentLeg) int64 {
	if leg == nil {
		return 0
	}
	return legTotal(leg.Cash.State(), leg.Card.State(), leg.TradeIn.State())
}

func legTotal(states ...LineState) int64 {
	var total int64
	for _, s := range states {
		if s.Contributes() {
			total += s.Converted
		}
	}
	return total
}

// LegView is the read model of a leg returned to callers.
type LegView struct {
	Kind    domain.PaymentMethod `json:"kind"`
	Date    string               `json:"payment_date"`
	Payer   string               `json:"payer"`
	Notes   string               `json:"notes"`
	Cash    LineState            `json:"cash"`
	Card    LineState            `json:"card"`
	TradeIn LineState            `json:"trade_in"`
	Total   int64                `json:"total"`
}

// View captures the leg and its total.
func (l *PaymentLeg) View() LegView {
	date, payer, notes := l.Details()
	v := LegView{
		Kind:    l.Kind,
		Date:    date,
		Payer:   payer,
		Notes:   notes,
		Cash:    l.Cash.State(),
		Card:    l.Card.State(),
		TradeIn: l.TradeIn.State(),
	}
	v.Total = legTotal(v.Cash, v.Card, v.TradeIn)
	return v
}

// Payload serializes the leg for the order store. Instruments are included
// only when their amount is above zero; trade-in purities are written in
// the store's vocabulary. ok is false for a leg with nothing to persist.
func (v LegView) Payload() (p domain.PaymentPayload, ok bool) {
	p = domain.PaymentPayload{
		Payer:         v.Payer,
		PaymentDate:   v.Date,
		PaymentMethod: v.Kind,
		Notes:         v.Notes,
	}

	if v.Cash.Contributes() {
		p.CashAmount, p.CashCurrency, p.CashConversion = instrument(v.Cash, string(v.Cash.Currency))
	}
	if v.Card.Contributes() {
		p.CardAmount, p.CardCurrency, p.CardConversion = instrument(v.Card, string(v.Card.Currency))
	}
	if v.TradeIn.Contributes() {
		p.TradeInAmount, p.TradeInCurrency, p.TradeInConversion = instrument(v.TradeIn, domain.WireTradeInCurrency(v.TradeIn.Currency))
	}

	ok = p.CashAmount != nil || p.CardAmount != nil || p.TradeInAmount != nil ||
		v.Date != "" || v.Payer != "" || v.Notes != ""
	return p, ok
}

func instrument(s LineState, currency string) (*int64, *string, *int64) {
	amount, converted := s.Amount, s.Converted
	return &amount, &currency, &converted
}
