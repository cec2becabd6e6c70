// Package orders stores customer orders with their product lines, payment
// legs and alteration measurements.
package orders

import (
	"time"

	"github.com/aristath/atelier/internal/domain"
	"github.com/aristath/atelier/internal/modules/catalog"
)

// Sort orders for List
const (
	SortDateAsc  = "order_date_asc"
	SortDateDesc = "order_date_desc"
)

// Default and maximum page sizes for List
const (
	DefaultLimit = 10
	MaxLimit     = 500
)

// ProductRef is the product summary embedded in an order line.
type ProductRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// OrderItem is a stored product line. Price is unit price × quantity.
type OrderItem struct {
	Product    ProductRef          `json:"product"`
	Price      int64               `json:"price"`
	Quantity   int64               `json:"quantity"`
	Attributes []catalog.Attribute `json:"attributes"`
}

// Order is a stored order with everything attached to it.
type Order struct {
	ID              int64              `json:"id"`
	OrderNumber     *string            `json:"orderNumber"`
	EventID         *int64             `json:"event_id"`
	EventName       *string            `json:"event_name"`
	FormName        *string            `json:"form_name"`
	AuthorID        *int64             `json:"author_id"`
	AuthorName      *string            `json:"author_name"`
	ModifierID      *int64             `json:"modifier_id"`
	ModifierName    *string            `json:"modifier_name"`
	AffiliationID   *int64             `json:"affiliation_id"`
	AffiliationName *string            `json:"affiliation_name"`
	Status          domain.OrderStatus `json:"status"`

	GroomName        string `json:"groomName"`
	BrideName        string `json:"brideName"`
	Contact          string `json:"contact"`
	Address          string `json:"address"`
	CollectionMethod string `json:"collectionMethod"`
	Notes            string `json:"notes"`
	AlterNotes       string `json:"alter_notes"`

	TotalPrice     int64 `json:"totalPrice"`
	AdvancePayment int64 `json:"advancePayment"`
	BalancePayment int64 `json:"balancePayment"`
	IsTemporary    bool  `json:"isTemporary"`

	OrderItems        []OrderItem                `json:"orderItems"`
	Payments          []domain.PaymentPayload    `json:"payments"`
	AlterationDetails []domain.AlterationPayload `json:"alteration_details"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilter narrows List. Zero values mean "no filter".
type ListFilter struct {
	EventName string
	From      *time.Time
	To        *time.Time
	Sort      string
	Search    string
	Status    *domain.OrderStatus
	IsTemp    *bool
	Limit     int
	Offset    int
}

// ListResult is one page of orders plus the unpaged total.
type ListResult struct {
	Orders []Order `json:"orders"`
	Total  int     `json:"total"`
}

// StatusUpdate acknowledges a status change.
type StatusUpdate struct {
	ID        int64              `json:"id"`
	Status    domain.OrderStatus `json:"status"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ApplyPayload overwrites the fields a save would change. Items keep their
// product names where the product is still ordered.
func (o *Order) ApplyPayload(p domain.OrderPayload, temporary bool) {
	o.EventID = p.EventID
	o.AuthorID = p.AuthorID
	o.ModifierID = p.ModifierID
	o.AffiliationID = p.AffiliationID
	if p.Status != "" {
		o.Status = p.Status
	}
	o.GroomName = p.GroomName
	o.BrideName = p.BrideName
	o.Contact = p.Contact
	o.Address = p.Address
	o.CollectionMethod = p.CollectionMethod
	o.Notes = p.Notes
	o.AlterNotes = p.AlterNotes
	o.TotalPrice = p.TotalPrice
	o.AdvancePayment = p.AdvancePayment
	o.BalancePayment = p.BalancePayment
	o.IsTemporary = temporary

	known := make(map[int64]ProductRef, len(o.OrderItems))
	for _, item := range o.OrderItems {
		known[item.Product.ID] = item.Product
	}
	items := make([]OrderItem, 0, len(p.OrderItems))
	for _, item := range p.OrderItems {
		ref, ok := known[item.ProductID]
		if !ok {
			ref = ProductRef{ID: item.ProductID}
		}
		items = append(items, OrderItem{Product: ref, Price: item.Price, Quantity: item.Quantity})
	}
	o.OrderItems = items

	payments := make(map[domain.PaymentMethod]domain.PaymentPayload, len(o.Payments))
	for _, pay := range o.Payments {
		payments[pay.PaymentMethod] = pay
	}
	for _, pay := range p.Payments {
		payments[pay.PaymentMethod] = pay
	}
	o.Payments = o.Payments[:0]
	for _, method := range []domain.PaymentMethod{domain.PaymentAdvance, domain.PaymentBalance} {
		if pay, ok := payments[method]; ok {
			o.Payments = append(o.Payments, pay)
		}
	}

	alterations := make(map[int64]int, len(o.AlterationDetails))
	for i, a := range o.AlterationDetails {
		alterations[a.FormRepairID] = i
	}
	for _, a := range p.AlterationDetails {
		if i, ok := alterations[a.FormRepairID]; ok {
			o.AlterationDetails[i] = a
			continue
		}
		o.AlterationDetails = append(o.AlterationDetails, a)
	}
}
