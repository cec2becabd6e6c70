package orderform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aristath/atelier/internal/domain"
	"github.com/aristath/atelier/internal/events"
	"github.com/aristath/atelier/internal/modules/catalog"
	"github.com/aristath/atelier/internal/modules/orders"
	"github.com/aristath/atelier/internal/querycache"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the submit state of a draft.
type State int

const (
	StateEditing State = iota
	StateValidating
	StateSubmitting
	StateSaved
)

func (s State) String() string {
	switch s {
	case StateEditing:
		return "EDITING"
	case StateValidating:
		return "VALIDATING"
	case StateSubmitting:
		return "SUBMITTING"
	case StateSaved:
		return "SAVED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	// ErrSubmitInFlight rejects a submit or edit while a submit is running.
	ErrSubmitInFlight = errors.New("submit already in progress")
	// ErrDraftClosed rejects changes to a saved or discarded draft.
	ErrDraftClosed = errors.New("draft closed")
)

// ControllerConfig holds a controller's collaborators. Form supplies the
// products and alteration baselines; Events may be nil.
type ControllerConfig struct {
	Session       *Session
	Rates         RateResolver
	LocalCurrency domain.Currency
	Saver         domain.OrderSaver
	Form          *catalog.Form
	Events        *events.Manager
}

// Controller owns one order draft: its selections, payment legs and
// alterations, and the pipeline that saves it.
type Controller struct {
	id       string
	session  *Session
	saver    domain.OrderSaver
	events   *events.Manager
	repairs  map[int64]catalog.FormRepair
	products map[int64]catalog.Product
	log      zerolog.Logger

	Advance *PaymentLeg
	Balance *PaymentLeg

	mu          sync.Mutex
	state       State
	closed      bool
	orderID     *int64
	orderNumber *string
	meta        Metadata
	items       map[int64]OrderItemSelection // by category
	alterations map[int64]Alteration         // by form repair
}

// NewController creates a controller with an empty draft.
func NewController(cfg ControllerConfig, log zerolog.Logger) *Controller {
	local := cfg.LocalCurrency
	if local.IsNone() {
		local = domain.DefaultLocalCurrency
	}
	session := cfg.Session
	if session == nil {
		session = NewSession("", nil)
	}

	id := uuid.NewString()
	ctrlLog := log.With().
		Str("component", "orderform").
		Str("draft_id", id).
		Str("session_id", session.ID()).
		Logger()

	c := &Controller{
		id:          id,
		session:     session,
		saver:       cfg.Saver,
		events:      cfg.Events,
		repairs:     map[int64]catalog.FormRepair{},
		products:    map[int64]catalog.Product{},
		log:         ctrlLog,
		Advance:     NewPaymentLeg(domain.PaymentAdvance, cfg.Rates, local, ctrlLog),
		Balance:     NewPaymentLeg(domain.PaymentBalance, cfg.Rates, local, ctrlLog),
		items:       make(map[int64]OrderItemSelection),
		alterations: make(map[int64]Alteration),
	}
	if cfg.Form != nil {
		c.repairs = cfg.Form.RepairByID()
		c.products = cfg.Form.ProductByID()
	}
	return c
}

// ID identifies the draft.
func (c *Controller) ID() string {
	return c.id
}

// State returns the current submit state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OrderID returns the stored order id and number, nil for a new draft.
func (c *Controller) OrderID() (*int64, *string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyInt(c.orderID), c.orderNumber
}

// Attach points the draft at a stored order so the next submit updates it.
func (c *Controller) Attach(orderID int64, orderNumber *string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	id := orderID
	c.orderID = &id
	c.orderNumber = orderNumber
	return nil
}

func (c *Controller) editableLocked() error {
	if c.closed || c.state == StateSaved {
		return ErrDraftClosed
	}
	if c.state != StateEditing {
		return ErrSubmitInFlight
	}
	return nil
}

// SetMetadata replaces the customer and order information.
func (c *Controller) SetMetadata(m Metadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	c.meta = m.clone()
	return nil
}

// Metadata returns a copy of the customer and order information.
func (c *Controller) Metadata() Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta.clone()
}

// SelectProduct selects productID for its category, replacing any earlier
// choice in that category. The product's current price is captured.
func (c *Controller) SelectProduct(productID int64, attributeID *int64, quantity int64) error {
	product, ok := c.products[productID]
	if !ok {
		return domain.NewValidationError("product", fmt.Sprintf("product %d is not offered by this form", productID))
	}
	if quantity < 0 {
		return domain.NewValidationError("quantity", "must not be negative")
	}
	if attributeID != nil && !hasAttribute(product, *attributeID) {
		return domain.NewValidationError("attribute", fmt.Sprintf("attribute %d does not belong to product %d", *attributeID, productID))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	return c.putItemLocked(OrderItemSelection{
		CategoryID:  product.CategoryID,
		ProductID:   product.ID,
		AttributeID: copyInt(attributeID),
		Quantity:    quantity,
		UnitPrice:   product.Price,
	})
}

// putItemLocked stores item unless the resulting subtotal is out of range.
func (c *Controller) putItemLocked(item OrderItemSelection) error {
	next := make(map[int64]OrderItemSelection, len(c.items)+1)
	for k, v := range c.items {
		next[k] = v
	}
	next[item.CategoryID] = item
	if err := checkSubtotal(next); err != nil {
		return err
	}
	c.items = next
	return nil
}

func hasAttribute(p catalog.Product, id int64) bool {
	for _, a := range p.Attributes {
		if a.ID == id {
			return true
		}
	}
	return false
}

// SetQuantity changes the quantity selected in a category. Unparseable
// input means 0.
func (c *Controller) SetQuantity(categoryID int64, raw string) error {
	quantity, err := ParseQuantity(raw)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	item, ok := c.items[categoryID]
	if !ok {
		return domain.NewValidationError("quantity", fmt.Sprintf("nothing selected in category %d", categoryID))
	}
	item.Quantity = quantity
	return c.putItemLocked(item)
}

// ClearCategory removes the selection of a category.
func (c *Controller) ClearCategory(categoryID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	delete(c.items, categoryID)
	return nil
}

// Items returns the selections ordered by category.
func (c *Controller) Items() []OrderItemSelection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.itemsLocked()
}

func (c *Controller) itemsLocked() []OrderItemSelection {
	items := make([]OrderItemSelection, 0, len(c.items))
	for _, item := range c.items {
		item.AttributeID = copyInt(item.AttributeID)
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CategoryID < items[j].CategoryID })
	return items
}

// SetAlteration records a measurement for one of the form's repairs.
func (c *Controller) SetAlteration(a Alteration) error {
	repair, ok := c.repairs[a.FormRepairID]
	if !ok {
		return domain.NewValidationError("form_repair_id", fmt.Sprintf("repair %d is not part of this form", a.FormRepairID))
	}
	if a.AlterationFigure != nil && !repair.IsAlterable {
		return domain.NewValidationError("alterationFigure", repair.Information+" cannot be altered")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	a.Figure = copyFloat(a.Figure)
	a.AlterationFigure = copyFloat(a.AlterationFigure)
	c.alterations[a.FormRepairID] = a
	return nil
}

// alterationPayloadLocked keeps only measurements that differ from the
// form's baseline, in the form's display order.
func (c *Controller) alterationPayloadLocked() []domain.AlterationPayload {
	kept := make([]Alteration, 0, len(c.alterations))
	for id, a := range c.alterations {
		if a.differsFrom(c.repairs[id].Standards) {
			kept = append(kept, a)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		ri, rj := c.repairs[kept[i].FormRepairID], c.repairs[kept[j].FormRepairID]
		if ri.IndexNumber != rj.IndexNumber {
			return ri.IndexNumber < rj.IndexNumber
		}
		return ri.ID < rj.ID
	})

	out := make([]domain.AlterationPayload, 0, len(kept))
	for _, a := range kept {
		out = append(out, a.payload())
	}
	return out
}

// Totals derives the draft's totals from its current state.
func (c *Controller) Totals() Totals {
	c.mu.Lock()
	items := c.itemsLocked()
	c.mu.Unlock()
	return ComputeTotals(items, c.Advance.View(), c.Balance.View())
}

// DraftView is a consistent read of the whole draft.
type DraftView struct {
	ID          string               `json:"draft_id"`
	State       State                `json:"state"`
	OrderID     *int64               `json:"order_id"`
	OrderNumber *string              `json:"orderNumber"`
	Metadata    Metadata             `json:"metadata"`
	Items       []OrderItemSelection `json:"items"`
	Advance     LegView              `json:"advance"`
	Balance     LegView              `json:"balance"`
	Totals      Totals               `json:"totals"`
}

// View returns the draft and its totals.
func (c *Controller) View() DraftView {
	c.mu.Lock()
	v := DraftView{
		ID:          c.id,
		State:       c.state,
		OrderID:     copyInt(c.orderID),
		OrderNumber: c.orderNumber,
		Metadata:    c.meta.clone(),
		Items:       c.itemsLocked(),
	}
	c.mu.Unlock()

	v.Advance = c.Advance.View()
	v.Balance = c.Balance.View()
	v.Totals = ComputeTotals(v.Items, v.Advance, v.Balance)
	return v
}

// Payload assembles the body the order store would receive now.
func (c *Controller) Payload() domain.OrderPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payloadLocked()
}

func (c *Controller) payloadLocked() domain.OrderPayload {
	return buildPayload(c.meta, c.itemsLocked(), c.Advance.View(), c.Balance.View(), c.alterationPayloadLocked())
}

// Submit saves the draft. A missing affiliation fails before anything is
// sent. On success the draft is SAVED and closed; on any failure it is back
// in EDITING with every field as it was.
func (c *Controller) Submit(ctx context.Context) (*domain.SaveResult, error) {
	return c.submit(ctx, false)
}

// SubmitTemporary saves the draft as a temporary order. The draft stays
// editable and remembers the stored order id for the next save.
func (c *Controller) SubmitTemporary(ctx context.Context) (*domain.SaveResult, error) {
	return c.submit(ctx, true)
}

func (c *Controller) submit(ctx context.Context, temporary bool) (*domain.SaveResult, error) {
	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	c.state = StateValidating
	if c.meta.AffiliationID == nil {
		c.state = StateEditing
		c.mu.Unlock()
		return nil, domain.NewValidationError("affiliation", "affiliation required")
	}

	req := domain.SaveRequest{
		OrderID:   copyInt(c.orderID),
		Temporary: temporary,
		Payload:   c.payloadLocked(),
	}
	c.state = StateSubmitting
	c.mu.Unlock()

	result, invalidated, err := c.save(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateEditing
		c.log.Warn().Err(err).Bool("temporary", temporary).Msg("Order save failed")
		var pe *domain.PersistenceError
		if errors.As(err, &pe) {
			return nil, pe
		}
		return nil, domain.NewPersistenceError(err)
	}

	id := result.OrderID
	c.orderID = &id
	if result.OrderNumber != nil {
		number := *result.OrderNumber
		c.orderNumber = &number
	}
	if temporary {
		c.state = StateEditing
	} else {
		c.state = StateSaved
	}

	c.log.Info().
		Int64("order_id", id).
		Bool("temporary", temporary).
		Msg("Order submitted")

	if c.events != nil {
		c.events.EmitTyped(events.CacheInvalidated, "orderform", &events.CacheInvalidatedData{
			Keys:   invalidated,
			Source: c.id,
		})
	}
	return result, nil
}

// save runs the save through the shared cache when the session has one.
// Updates write the expected order into the cache first and put the
// previous entries back if the save fails.
func (c *Controller) save(ctx context.Context, req domain.SaveRequest) (*domain.SaveResult, []string, error) {
	if c.saver == nil {
		return nil, nil, errors.New("no order store configured")
	}

	cache := c.session.Cache()
	keys := []string{querycache.KeyOrders}
	if req.OrderID != nil {
		keys = append(keys, querycache.OrderKey(*req.OrderID))
	}
	if cache == nil {
		result, err := c.saver.SaveOrder(ctx, req)
		if err != nil {
			return nil, nil, err
		}
		if req.OrderID == nil {
			keys = append(keys, querycache.OrderKey(result.OrderID))
		}
		return result, keys, nil
	}

	res := querycache.Mutate(ctx, cache, querycache.Mutation[*domain.SaveResult]{
		Keys: keys,
		Optimistic: func(qc *querycache.Cache) error {
			if req.OrderID == nil {
				return nil
			}
			return applyOptimistic(qc, *req.OrderID, req)
		},
		Run: func(ctx context.Context) (*domain.SaveResult, error) {
			return c.saver.SaveOrder(ctx, req)
		},
	})
	if !res.OK() {
		cache.Restore(res.Previous)
		return nil, nil, res.Err
	}

	if req.OrderID == nil {
		keys = append(keys, querycache.OrderKey(res.Data.OrderID))
		cache.Invalidate(querycache.OrderKey(res.Data.OrderID))
	}
	return res.Data, keys, nil
}

func applyOptimistic(qc *querycache.Cache, id int64, req domain.SaveRequest) error {
	key := querycache.OrderKey(id)
	var cached orders.Order
	ok, err := qc.Get(key, &cached)
	if err != nil || !ok {
		return err
	}
	cached.ApplyPayload(req.Payload, req.Temporary)
	return qc.Set(key, &cached)
}

// Hydrate loads a stored order into the draft for editing. Item unit prices
// are recovered from the stored line price. The whole order is checked
// before anything is applied, so a rejected order leaves the draft as it was.
func (c *Controller) Hydrate(orderID int64, orderNumber *string, p domain.OrderPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}

	items := make(map[int64]OrderItemSelection, len(p.OrderItems))
	for _, item := range p.OrderItems {
		product, ok := c.products[item.ProductID]
		if !ok {
			return domain.NewValidationError("product", fmt.Sprintf("product %d is not offered by this form", item.ProductID))
		}
		unit := product.Price
		if item.Quantity > 0 {
			unit = item.Price / item.Quantity
		}
		items[product.CategoryID] = OrderItemSelection{
			CategoryID:  product.CategoryID,
			ProductID:   item.ProductID,
			AttributeID: copyInt(item.AttributesID),
			Quantity:    item.Quantity,
			UnitPrice:   unit,
		}
	}
	if err := checkSubtotal(items); err != nil {
		return err
	}

	alterations := make(map[int64]Alteration, len(p.AlterationDetails))
	for _, a := range p.AlterationDetails {
		alterations[a.FormRepairID] = Alteration{
			FormRepairID:     a.FormRepairID,
			Figure:           copyFloat(a.Figure),
			AlterationFigure: copyFloat(a.AlterationFigure),
		}
	}

	var legs []legHydration
	for _, pay := range p.Payments {
		var leg *PaymentLeg
		switch pay.PaymentMethod {
		case domain.PaymentAdvance:
			leg = c.Advance
		case domain.PaymentBalance:
			leg = c.Balance
		default:
			continue
		}
		h, err := planLeg(leg, pay)
		if err != nil {
			return err
		}
		legs = append(legs, h)
	}

	for _, h := range legs {
		if err := h.apply(); err != nil {
			return err
		}
	}

	id := orderID
	c.orderID = &id
	c.orderNumber = orderNumber
	c.meta = Metadata{
		EventID:          copyInt(p.EventID),
		AuthorID:         copyInt(p.AuthorID),
		ModifierID:       copyInt(p.ModifierID),
		AffiliationID:    copyInt(p.AffiliationID),
		Status:           p.Status,
		GroomName:        p.GroomName,
		BrideName:        p.BrideName,
		Contact:          p.Contact,
		Address:          p.Address,
		CollectionMethod: p.CollectionMethod,
		Notes:            p.Notes,
		AlterNotes:       p.AlterNotes,
	}
	c.items = items
	c.alterations = alterations
	return nil
}

// legHydration is a stored payment checked against its leg and ready to apply.
type legHydration struct {
	leg     *PaymentLeg
	payment domain.PaymentPayload
	lines   []lineHydration
}

type lineHydration struct {
	line      *CurrencyLine
	amount    int64
	currency  domain.Currency
	converted int64
}

func planLeg(leg *PaymentLeg, pay domain.PaymentPayload) (legHydration, error) {
	h := legHydration{leg: leg, payment: pay}
	if _, err := RateDate(pay.PaymentDate); err != nil {
		return h, err
	}

	stored := []struct {
		line      *CurrencyLine
		amount    *int64
		currency  *string
		converted *int64
		parse     func(string) domain.Currency
	}{
		{leg.Cash, pay.CashAmount, pay.CashCurrency, pay.CashConversion, domain.ParseCurrency},
		{leg.Card, pay.CardAmount, pay.CardCurrency, pay.CardConversion, domain.ParseCurrency},
		{leg.TradeIn, pay.TradeInAmount, pay.TradeInCurrency, pay.TradeInConversion, domain.ParseWireTradeInCurrency},
	}
	for _, s := range stored {
		if s.amount == nil || s.currency == nil {
			continue
		}
		lh := lineHydration{line: s.line, amount: *s.amount, currency: s.parse(*s.currency)}
		if s.converted != nil {
			lh.converted = *s.converted
		}
		if err := lh.line.checkHydrate(lh.amount, lh.currency, lh.converted); err != nil {
			return h, err
		}
		h.lines = append(h.lines, lh)
	}
	return h, nil
}

// apply only fails once the draft has been discarded.
func (h legHydration) apply() error {
	if err := h.leg.SetDetails(h.payment.PaymentDate, h.payment.Payer, h.payment.Notes); err != nil {
		return err
	}
	for _, lh := range h.lines {
		if err := lh.line.Hydrate(lh.amount, lh.currency, lh.converted); err != nil {
			return err
		}
	}
	return nil
}

// Discard closes the draft without saving. Conversions still in flight are
// dropped when they resolve.
func (c *Controller) Discard() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.Advance.Dispose()
	c.Balance.Dispose()
	c.log.Debug().Msg("Draft discarded")
}
