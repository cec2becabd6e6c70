package orderform

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aristath/atelier/internal/domain"
)

// ParseID parses an identifier from form input. Anything that is not a
// positive integer is treated as no selection.
func ParseID(raw string) *int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

// ParseQuantity parses a quantity from form input. Blank, malformed or
// negative input means 0; anything above MaxQuantity is a ValidationError.
func ParseQuantity(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	q, err := strconv.ParseInt(raw, 10, 64)
	switch {
	case errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(raw, "-"):
		return 0, errQuantityTooLarge()
	case err != nil || q < 0:
		return 0, nil
	case q > MaxQuantity:
		return 0, errQuantityTooLarge()
	}
	return q, nil
}

func errQuantityTooLarge() error {
	return domain.NewValidationError("quantity", fmt.Sprintf("must not exceed %d", MaxQuantity))
}

// Alteration is one measurement entered against a form's baseline.
type Alteration struct {
	FormRepairID     int64    `json:"form_repair_id"`
	Figure           *float64 `json:"figure"`
	AlterationFigure *float64 `json:"alterationFigure"`
}

// differsFrom reports whether the measurement changes anything relative to
// the baseline.
func (a Alteration) differsFrom(baseline *float64) bool {
	if a.AlterationFigure != nil {
		return true
	}
	if a.Figure == nil {
		return false
	}
	return baseline == nil || *a.Figure != *baseline
}

func (a Alteration) payload() domain.AlterationPayload {
	return domain.AlterationPayload{
		FormRepairID:     a.FormRepairID,
		Figure:           copyFloat(a.Figure),
		AlterationFigure: copyFloat(a.AlterationFigure),
	}
}

// Metadata is the customer and order information of a draft.
type Metadata struct {
	EventID          *int64             `json:"event_id"`
	AuthorID         *int64             `json:"author_id"`
	ModifierID       *int64             `json:"modifier_id"`
	AffiliationID    *int64             `json:"affiliation_id"`
	Status           domain.OrderStatus `json:"status"`
	GroomName        string             `json:"groomName"`
	BrideName        string             `json:"brideName"`
	Contact          string             `json:"contact"`
	Address          string             `json:"address"`
	CollectionMethod string             `json:"collectionMethod"`
	Notes            string             `json:"notes"`
	AlterNotes       string             `json:"alter_notes"`
}

func (m Metadata) clone() Metadata {
	m.EventID = copyInt(m.EventID)
	m.AuthorID = copyInt(m.AuthorID)
	m.ModifierID = copyInt(m.ModifierID)
	m.AffiliationID = copyInt(m.AffiliationID)
	return m
}

// buildPayload assembles what the order store persists from a consistent
// view of the draft.
func buildPayload(meta Metadata, items []OrderItemSelection, advance, balance LegView, alterations []domain.AlterationPayload) domain.OrderPayload {
	totals := ComputeTotals(items, advance, balance)

	p := domain.OrderPayload{
		EventID:           copyInt(meta.EventID),
		AuthorID:          copyInt(meta.AuthorID),
		ModifierID:        copyInt(meta.ModifierID),
		AffiliationID:     copyInt(meta.AffiliationID),
		Status:            meta.Status,
		GroomName:         meta.GroomName,
		BrideName:         meta.BrideName,
		Contact:           meta.Contact,
		Address:           meta.Address,
		CollectionMethod:  meta.CollectionMethod,
		Notes:             meta.Notes,
		AlterNotes:        meta.AlterNotes,
		TotalPrice:        totals.Subtotal,
		AdvancePayment:    totals.AdvancePaid,
		BalancePayment:    totals.BalancePaid,
		OrderItems:        make([]domain.OrderItemPayload, 0, len(items)),
		Payments:          []domain.PaymentPayload{},
		AlterationDetails: alterations,
	}
	if p.ModifierID == nil {
		p.ModifierID = copyInt(meta.AuthorID)
	}
	if p.AlterationDetails == nil {
		p.AlterationDetails = []domain.AlterationPayload{}
	}

	for _, item := range items {
		p.OrderItems = append(p.OrderItems, domain.OrderItemPayload{
			ProductID:    item.ProductID,
			AttributesID: copyInt(item.AttributeID),
			Quantity:     item.Quantity,
			Price:        item.LinePrice(),
		})
	}
	for _, leg := range []LegView{advance, balance} {
		if pay, ok := leg.Payload(); ok {
			p.Payments = append(p.Payments, pay)
		}
	}
	return p
}

func copyInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
