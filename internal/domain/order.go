package domain

import (
	"fmt"
	"strings"
)

// OrderStatus is the fulfilment stage of an order.
type OrderStatus string

const (
	StatusOrderCompleted     OrderStatus = "Order Completed"
	StatusPackagingCompleted OrderStatus = "Packaging Completed"
	StatusRepairReceived     OrderStatus = "Repair Received"
	StatusRepairCompleted    OrderStatus = "Repair Completed"
	StatusInDelivery         OrderStatus = "In delivery"
	StatusDeliveryCompleted  OrderStatus = "Delivery completed"
	StatusReceiptCompleted   OrderStatus = "Receipt completed"
	StatusAccommodation      OrderStatus = "Accommodation"
	StatusCounsel            OrderStatus = "Counsel"
)

// OrderStatuses lists every status in workflow order.
var OrderStatuses = []OrderStatus{
	StatusOrderCompleted,
	StatusPackagingCompleted,
	StatusRepairReceived,
	StatusRepairCompleted,
	StatusInDelivery,
	StatusDeliveryCompleted,
	StatusReceiptCompleted,
	StatusAccommodation,
	StatusCounsel,
}

// ParseOrderStatus accepts either the display value ("Order Completed") or
// the URL form ("Order_Completed").
func ParseOrderStatus(s string) (OrderStatus, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(s), "_", " ")
	for _, st := range OrderStatuses {
		if strings.EqualFold(string(st), normalized) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// PaymentMethod identifies a payment leg.
type PaymentMethod string

const (
	PaymentAdvance PaymentMethod = "ADVANCE"
	PaymentBalance PaymentMethod = "BALANCE"
)

// OrderPayload is the normalized body sent to the order store on save.
type OrderPayload struct {
	EventID           *int64              `json:"event_id"`
	AuthorID          *int64              `json:"author_id"`
	ModifierID        *int64              `json:"modifier_id"`
	AffiliationID     *int64              `json:"affiliation_id"`
	Status            OrderStatus         `json:"status"`
	GroomName         string              `json:"groomName"`
	BrideName         string              `json:"brideName"`
	Contact           string              `json:"contact"`
	Address           string              `json:"address"`
	CollectionMethod  string              `json:"collectionMethod"`
	Notes             string              `json:"notes"`
	AlterNotes        string              `json:"alter_notes"`
	TotalPrice        int64               `json:"totalPrice"`
	AdvancePayment    int64               `json:"advancePayment"`
	BalancePayment    int64               `json:"balancePayment"`
	OrderItems        []OrderItemPayload  `json:"orderItems"`
	Payments          []PaymentPayload    `json:"payments"`
	AlterationDetails []AlterationPayload `json:"alteration_details"`
}

// OrderItemPayload is one persisted product line. Price is unit price × quantity.
type OrderItemPayload struct {
	ProductID    int64  `json:"product_id"`
	AttributesID *int64 `json:"attributes_id"`
	Quantity     int64  `json:"quantity"`
	Price        int64  `json:"price"`
}

// PaymentPayload is one persisted payment leg. Instrument fields are nil
// when the instrument was not used.
type PaymentPayload struct {
	Payer             string        `json:"payer"`
	PaymentDate       string        `json:"payment_date"`
	PaymentMethod     PaymentMethod `json:"paymentMethod"`
	Notes             string        `json:"notes"`
	CashAmount        *int64        `json:"cashAmount"`
	CashCurrency      *string       `json:"cashCurrency"`
	CashConversion    *int64        `json:"cashConversion"`
	CardAmount        *int64        `json:"cardAmount"`
	CardCurrency      *string       `json:"cardCurrency"`
	CardConversion    *int64        `json:"cardConversion"`
	TradeInAmount     *int64        `json:"tradeInAmount"`
	TradeInCurrency   *string       `json:"tradeInCurrency"`
	TradeInConversion *int64        `json:"tradeInConversion"`
}

// AlterationPayload is one alteration measurement that differs from the
// form's baseline.
type AlterationPayload struct {
	FormRepairID     int64    `json:"form_repair_id"`
	Figure           *float64 `json:"figure"`
	AlterationFigure *float64 `json:"alterationFigure"`
}

// SaveRequest asks the order store to create (OrderID nil) or update an order.
type SaveRequest struct {
	OrderID   *int64
	Temporary bool
	Payload   OrderPayload
}

// SaveResult is the store's acknowledgment.
type SaveResult struct {
	Message     string  `json:"message"`
	OrderID     int64   `json:"order_id"`
	OrderNumber *string `json:"orderNumber"`
}
