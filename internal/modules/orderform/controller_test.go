package orderform

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aristath/atelier/internal/domain"
	"github.com/aristath/atelier/internal/events"
	"github.com/aristath/atelier/internal/modules/catalog"
	"github.com/aristath/atelier/internal/modules/orders"
	"github.com/aristath/atelier/internal/querycache"
	testingpkg "github.com/aristath/atelier/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSaver struct {
	mu       sync.Mutex
	requests []domain.SaveRequest
	err      error
	nextID   int64
	onSave   func(req domain.SaveRequest)
	started  chan struct{}
	release  chan struct{}
}

func (f *fakeSaver) SaveOrder(ctx context.Context, req domain.SaveRequest) (*domain.SaveResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	err, onSave, started, release := f.err, f.onSave, f.started, f.release
	f.mu.Unlock()

	if onSave != nil {
		onSave(req)
	}
	if release != nil {
		started <- struct{}{}
		<-release
	}
	if err != nil {
		return nil, err
	}

	id := f.nextID
	if req.OrderID != nil {
		id = *req.OrderID
	}
	result := &domain.SaveResult{Message: "Order saved successfully!", OrderID: id}
	if !req.Temporary {
		number := "240105-001"
		result.OrderNumber = &number
	}
	return result, nil
}

func (f *fakeSaver) saved() []domain.SaveRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SaveRequest(nil), f.requests...)
}

func i64(v int64) *int64     { return &v }
func f64(v float64) *float64 { return &v }

func testForm() *catalog.Form {
	return &catalog.Form{
		ID:   1,
		Name: "Hanbok Wedding",
		Repairs: []catalog.FormRepair{
			{ID: 1, FormID: 1, Information: "Chest", Unit: "cm", IsAlterable: true, Standards: f64(92), IndexNumber: 1},
			{ID: 2, FormID: 1, Information: "Sleeve length", Unit: "cm", IsAlterable: false, Standards: f64(58), IndexNumber: 2},
			{ID: 3, FormID: 1, Information: "Skirt length", Unit: "cm", IsAlterable: true, IndexNumber: 3},
		},
		Categories: []catalog.Category{
			{ID: 1, Name: "Hanbok", Products: []catalog.Product{
				{ID: 1, CategoryID: 1, Name: "Bride Hanbok", Price: 500000, Attributes: []catalog.Attribute{{ID: 1, Value: "Red"}, {ID: 2, Value: "Blue"}}},
				{ID: 2, CategoryID: 1, Name: "Groom Hanbok", Price: 450000},
			}},
			{ID: 2, Name: "Accessories", Products: []catalog.Product{
				{ID: 3, CategoryID: 2, Name: "Norigae", Price: 250000},
			}},
		},
	}
}

type controllerFixture struct {
	ctrl    *Controller
	saver   *fakeSaver
	rates   *fakeRates
	cache   *querycache.Cache
	emitted []*events.Event
}

func newControllerFixture(t *testing.T, form *catalog.Form) *controllerFixture {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)
	bus := events.NewBus(log)

	f := &controllerFixture{
		saver: &fakeSaver{nextID: 41},
		rates: newFakeRates(),
		cache: querycache.New(0, log),
	}
	bus.Subscribe(events.CacheInvalidated, func(e *events.Event) { f.emitted = append(f.emitted, e) })

	f.ctrl = NewController(ControllerConfig{
		Session:       NewSession("token-1", f.cache),
		Rates:         f.rates,
		LocalCurrency: domain.CurrencyKRW,
		Saver:         f.saver,
		Form:          form,
		Events:        events.NewManager(bus, log),
	}, log)
	return f
}

// fillScenario selects two products, pays 100 USD cash in advance and trades
// in 2 don of 14K gold.
func (f *controllerFixture) fillScenario(t *testing.T) {
	t.Helper()
	require.NoError(t, f.ctrl.SetMetadata(Metadata{
		EventID:       i64(1),
		AuthorID:      i64(1),
		AffiliationID: i64(2),
		GroomName:     "Kim Minsu",
		BrideName:     "Choi Yuna",
		Contact:       "010-1234-5678",
	}))
	require.NoError(t, f.ctrl.SelectProduct(1, i64(1), 2))
	require.NoError(t, f.ctrl.SelectProduct(3, nil, 0))
	require.NoError(t, f.ctrl.SetQuantity(2, "1"))

	require.NoError(t, f.ctrl.Advance.SetDetails("2024-01-05", "Kim Minsu", "deposit"))
	commitLine(t, f.ctrl.Advance.Cash, domain.CurrencyUSD, "100")
}

func TestSubmit_RequiresAffiliation(t *testing.T) {
	f := newControllerFixture(t, testForm())
	require.NoError(t, f.ctrl.SelectProduct(1, nil, 1))

	_, err := f.ctrl.Submit(context.Background())

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "affiliation", verr.Field)
	assert.Equal(t, "affiliation required", verr.Message)
	assert.Empty(t, f.saver.saved())
	assert.Equal(t, StateEditing, f.ctrl.State())
	assert.Len(t, f.ctrl.Items(), 1)
}

func TestTotals_Scenario(t *testing.T) {
	f := newControllerFixture(t, testForm())
	f.fillScenario(t)

	assert.Equal(t, Totals{
		Subtotal:    1250000,
		AdvancePaid: 130000,
		BalancePaid: 0,
		Outstanding: 1120000,
	}, f.ctrl.Totals())

	v := f.ctrl.View()
	assert.Equal(t, f.ctrl.ID(), v.ID)
	assert.Equal(t, StateEditing, v.State)
	assert.Equal(t, int64(130000), v.Advance.Total)
	assert.Equal(t, int64(1120000), v.Totals.Outstanding)
}

func TestSubmit_SendsNormalizedPayload(t *testing.T) {
	f := newControllerFixture(t, testForm())
	f.fillScenario(t)
	commitLine(t, f.ctrl.Advance.TradeIn, domain.Gold14K, "2")

	require.NoError(t, f.ctrl.SetAlteration(Alteration{FormRepairID: 1, Figure: f64(92)}))
	require.NoError(t, f.ctrl.SetAlteration(Alteration{FormRepairID: 3, Figure: f64(101.5)}))
	require.NoError(t, f.ctrl.SetAlteration(Alteration{FormRepairID: 2, Figure: f64(60)}))

	result, err := f.ctrl.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(41), result.OrderID)

	saved := f.saver.saved()
	require.Len(t, saved, 1)
	req := saved[0]
	assert.Nil(t, req.OrderID)
	assert.False(t, req.Temporary)

	p := req.Payload
	assert.Equal(t, i64(2), p.AffiliationID)
	assert.Equal(t, i64(1), p.ModifierID, "modifier defaults to the author")
	assert.Equal(t, "Kim Minsu", p.GroomName)
	assert.Equal(t, int64(1250000), p.TotalPrice)
	assert.Equal(t, int64(130000+117000), p.AdvancePayment)
	assert.Zero(t, p.BalancePayment)

	assert.Equal(t, []domain.OrderItemPayload{
		{ProductID: 1, AttributesID: i64(1), Quantity: 2, Price: 1000000},
		{ProductID: 3, Quantity: 1, Price: 250000},
	}, p.OrderItems)

	require.Len(t, p.Payments, 1, "the untouched balance leg is not sent")
	pay := p.Payments[0]
	assert.Equal(t, domain.PaymentAdvance, pay.PaymentMethod)
	assert.Equal(t, "deposit", pay.Notes)
	assert.Equal(t, "USD", *pay.CashCurrency)
	assert.Equal(t, int64(130000), *pay.CashConversion)
	assert.Nil(t, pay.CardAmount)
	assert.Equal(t, "K14", *pay.TradeInCurrency)

	require.Len(t, p.AlterationDetails, 2, "the chest figure equals its baseline")
	assert.Equal(t, int64(2), p.AlterationDetails[0].FormRepairID)
	assert.Equal(t, int64(3), p.AlterationDetails[1].FormRepairID)
	assert.Equal(t, 101.5, *p.AlterationDetails[1].Figure)
}

func TestSubmit_SuccessClosesDraftAndInvalidates(t *testing.T) {
	f := newControllerFixture(t, testForm())
	f.fillScenario(t)
	require.NoError(t, f.cache.Set(querycache.KeyOrders, []int64{1, 2}))
	require.NoError(t, f.cache.Set(querycache.OrderKey(41), "stale"))

	result, err := f.ctrl.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.OrderNumber)

	assert.Equal(t, StateSaved, f.ctrl.State())
	id, number := f.ctrl.OrderID()
	assert.Equal(t, i64(41), id)
	assert.Equal(t, "240105-001", *number)
	assert.Zero(t, f.cache.Len())

	require.Len(t, f.emitted, 1)
	assert.Equal(t, events.CacheInvalidated, f.emitted[0].Type)
	assert.Equal(t, []interface{}{"orders", "order/41"}, f.emitted[0].Data["keys"])
	assert.Equal(t, f.ctrl.ID(), f.emitted[0].Data["source"])

	assert.ErrorIs(t, f.ctrl.SetMetadata(Metadata{}), ErrDraftClosed)
	_, err = f.ctrl.Submit(context.Background())
	assert.ErrorIs(t, err, ErrDraftClosed)
}

func TestSubmit_FailureKeepsDraftEditable(t *testing.T) {
	f := newControllerFixture(t, testForm())
	f.fillScenario(t)
	f.saver.err = errors.New("502 bad gateway")

	before := f.ctrl.View()
	_, err := f.ctrl.Submit(context.Background())

	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "order could not be saved, please try again", perr.Message)
	assert.Equal(t, StateEditing, f.ctrl.State())
	assert.Equal(t, before, f.ctrl.View())
	assert.Empty(t, f.emitted)

	f.saver.mu.Lock()
	f.saver.err = nil
	f.saver.mu.Unlock()

	_, err = f.ctrl.Submit(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.saver.saved(), 2)
	assert.Equal(t, before.Advance, f.ctrl.View().Advance)
}

func TestSubmit_UpdateRollsBackOptimisticWrite(t *testing.T) {
	f := newControllerFixture(t, testForm())
	f.fillScenario(t)
	require.NoError(t, f.ctrl.Hydrate(7, nil, f.ctrl.Payload()))

	require.NoError(t, f.cache.Set(querycache.OrderKey(7), &orders.Order{ID: 7, GroomName: "Kim Minsu"}))
	require.NoError(t, f.cache.Set(querycache.KeyOrders, []int64{7}))

	meta := f.ctrl.Metadata()
	meta.GroomName = "Kim Minsoo"
	require.NoError(t, f.ctrl.SetMetadata(meta))

	var during orders.Order
	f.saver.onSave = func(req domain.SaveRequest) {
		ok, err := f.cache.Get(querycache.OrderKey(7), &during)
		require.NoError(t, err)
		require.True(t, ok)
	}
	f.saver.err = errors.New("timeout")

	_, err := f.ctrl.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Kim Minsoo", during.GroomName, "optimistic write visible while saving")
	assert.Equal(t, int64(1250000), during.TotalPrice)

	var after orders.Order
	ok, err := f.cache.Get(querycache.OrderKey(7), &after)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Kim Minsu", after.GroomName)

	var list []int64
	ok, err = f.cache.Get(querycache.KeyOrders, &list)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int64{7}, list)

	saved := f.saver.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, i64(7), saved[0].OrderID)
}

func TestSubmit_SingleFlight(t *testing.T) {
	f := newControllerFixture(t, testForm())
	f.fillScenario(t)
	f.saver.started = make(chan struct{}, 1)
	f.saver.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Submit(context.Background())
		done <- err
	}()
	<-f.saver.started

	assert.Equal(t, StateSubmitting, f.ctrl.State())
	_, err := f.ctrl.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitInFlight)
	_, err = f.ctrl.SubmitTemporary(context.Background())
	assert.ErrorIs(t, err, ErrSubmitInFlight)
	assert.ErrorIs(t, f.ctrl.SelectProduct(2, nil, 1), ErrSubmitInFlight)

	close(f.saver.release)
	require.NoError(t, <-done)
	assert.Len(t, f.saver.saved(), 1)
	assert.Equal(t, StateSaved, f.ctrl.State())
}

func TestSubmitTemporary_StaysEditable(t *testing.T) {
	f := newControllerFixture(t, testForm())
	f.fillScenario(t)

	result, err := f.ctrl.SubmitTemporary(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result.OrderNumber)
	assert.Equal(t, StateEditing, f.ctrl.State())

	id, number := f.ctrl.OrderID()
	assert.Equal(t, i64(41), id)
	assert.Nil(t, number)

	require.NoError(t, f.ctrl.SetQuantity(1, "3"))
	_, err = f.ctrl.Submit(context.Background())
	require.NoError(t, err)

	saved := f.saver.saved()
	require.Len(t, saved, 2)
	assert.True(t, saved[0].Temporary)
	assert.Nil(t, saved[0].OrderID)
	assert.False(t, saved[1].Temporary)
	assert.Equal(t, i64(41), saved[1].OrderID)
	assert.Equal(t, int64(1500000+250000), saved[1].Payload.TotalPrice)
}

func TestSelectProduct(t *testing.T) {
	form := testForm()
	f := newControllerFixture(t, form)

	// Later catalog edits do not reach an existing draft.
	form.Categories[0].Products[0].Price = 1

	require.NoError(t, f.ctrl.SelectProduct(1, i64(2), 1))
	assert.Equal(t, int64(500000), f.ctrl.Items()[0].UnitPrice)

	require.NoError(t, f.ctrl.SelectProduct(2, nil, 1))
	items := f.ctrl.Items()
	require.Len(t, items, 1, "one product per category")
	assert.Equal(t, int64(2), items[0].ProductID)

	var verr *domain.ValidationError
	assert.ErrorAs(t, f.ctrl.SelectProduct(99, nil, 1), &verr)
	assert.ErrorAs(t, f.ctrl.SelectProduct(1, i64(9), 1), &verr)
	assert.ErrorAs(t, f.ctrl.SelectProduct(1, nil, -1), &verr)
	assert.ErrorAs(t, f.ctrl.SetQuantity(2, "1"), &verr)

	require.NoError(t, f.ctrl.SetQuantity(1, "abc"))
	assert.Zero(t, f.ctrl.Items()[0].Quantity)

	require.NoError(t, f.ctrl.ClearCategory(1))
	assert.Empty(t, f.ctrl.Items())
}

func TestSelectProduct_BoundsQuantity(t *testing.T) {
	f := newControllerFixture(t, testForm())

	var verr *domain.ValidationError
	assert.ErrorAs(t, f.ctrl.SelectProduct(1, nil, MaxQuantity+1), &verr)
	assert.Empty(t, f.ctrl.Items())

	require.NoError(t, f.ctrl.SelectProduct(1, nil, 2))
	assert.ErrorAs(t, f.ctrl.SetQuantity(1, "99999999999999999"), &verr)
	assert.ErrorAs(t, f.ctrl.SetQuantity(1, "99999999999999999999"), &verr)

	items := f.ctrl.Items()
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].Quantity)
	assert.Equal(t, int64(1000000), f.ctrl.Totals().Subtotal)

	require.NoError(t, f.ctrl.SetQuantity(1, "-5"))
	assert.Zero(t, f.ctrl.Items()[0].Quantity)
}

func TestSetAlteration_Validation(t *testing.T) {
	f := newControllerFixture(t, testForm())

	var verr *domain.ValidationError
	assert.ErrorAs(t, f.ctrl.SetAlteration(Alteration{FormRepairID: 99, Figure: f64(1)}), &verr)
	assert.ErrorAs(t, f.ctrl.SetAlteration(Alteration{FormRepairID: 2, AlterationFigure: f64(55)}), &verr)
	require.NoError(t, f.ctrl.SetAlteration(Alteration{FormRepairID: 1, AlterationFigure: f64(94)}))

	p := f.ctrl.Payload()
	require.Len(t, p.AlterationDetails, 1)
	assert.Nil(t, p.AlterationDetails[0].Figure)
	assert.Equal(t, 94.0, *p.AlterationDetails[0].AlterationFigure)
}

func TestHydrate_RoundTrip(t *testing.T) {
	stored := domain.OrderPayload{
		EventID:       i64(1),
		AuthorID:      i64(1),
		ModifierID:    i64(2),
		AffiliationID: i64(1),
		Status:        domain.StatusRepairReceived,
		GroomName:     "Kim Minsu",
		TotalPrice:    1250000,
		OrderItems: []domain.OrderItemPayload{
			{ProductID: 1, AttributesID: i64(2), Quantity: 2, Price: 900000},
			{ProductID: 3, Quantity: 1, Price: 250000},
		},
		Payments: []domain.PaymentPayload{{
			PaymentDate:       "2024-01-05",
			PaymentMethod:     domain.PaymentBalance,
			TradeInAmount:     i64(2),
			TradeInCurrency:   strPtr("K14"),
			TradeInConversion: i64(110000),
		}},
		AlterationDetails: []domain.AlterationPayload{{FormRepairID: 3, Figure: f64(101)}},
	}

	f := newControllerFixture(t, testForm())
	number := "240101-004"
	require.NoError(t, f.ctrl.Hydrate(12, &number, stored))

	items := f.ctrl.Items()
	require.Len(t, items, 2)
	assert.Equal(t, int64(450000), items[0].UnitPrice, "unit price comes from the stored line price")

	v := f.ctrl.View()
	assert.Equal(t, domain.Gold14K, v.Balance.TradeIn.Currency)
	assert.Equal(t, int64(110000), v.Totals.BalancePaid)
	assert.Equal(t, int64(1150000-110000), v.Totals.Outstanding)
	assert.Zero(t, f.rates.callCount())

	p := f.ctrl.Payload()
	assert.Equal(t, stored.OrderItems, p.OrderItems)
	assert.Equal(t, stored.AlterationDetails, p.AlterationDetails)
	require.Len(t, p.Payments, 1)
	assert.Equal(t, "K14", *p.Payments[0].TradeInCurrency)
	assert.Equal(t, domain.StatusRepairReceived, p.Status)

	id, gotNumber := f.ctrl.OrderID()
	assert.Equal(t, i64(12), id)
	assert.Equal(t, "240101-004", *gotNumber)
}

func TestHydrate_RejectedOrderLeavesDraftUnchanged(t *testing.T) {
	valid := domain.PaymentPayload{
		PaymentDate:    "2024-01-06",
		PaymentMethod:  domain.PaymentAdvance,
		CashAmount:     i64(200),
		CashCurrency:   strPtr("USD"),
		CashConversion: i64(260000),
	}

	tests := []struct {
		name  string
		order domain.OrderPayload
	}{
		{
			name: "bad payment date on a later leg",
			order: domain.OrderPayload{Payments: []domain.PaymentPayload{valid, {
				PaymentDate:   "not-a-date",
				PaymentMethod: domain.PaymentBalance,
			}}},
		},
		{
			name: "unknown trade-in purity",
			order: domain.OrderPayload{Payments: []domain.PaymentPayload{valid, {
				PaymentMethod:   domain.PaymentBalance,
				TradeInAmount:   i64(1),
				TradeInCurrency: strPtr("K99"),
			}}},
		},
		{
			name: "stored conversion out of range",
			order: domain.OrderPayload{Payments: []domain.PaymentPayload{valid, {
				PaymentMethod:  domain.PaymentBalance,
				CardAmount:     i64(1),
				CardCurrency:   strPtr("KRW"),
				CardConversion: i64(domain.MaxAmount + 1),
			}}},
		},
		{
			name: "line price out of range",
			order: domain.OrderPayload{
				OrderItems: []domain.OrderItemPayload{{ProductID: 1, Quantity: 1, Price: domain.MaxAmount + 1}},
				Payments:   []domain.PaymentPayload{valid},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newControllerFixture(t, testForm())
			f.fillScenario(t)
			before := f.ctrl.View()

			assert.Error(t, f.ctrl.Hydrate(12, nil, tt.order))

			after := f.ctrl.View()
			assert.Equal(t, before.Items, after.Items)
			assert.Equal(t, before.Metadata, after.Metadata)
			assert.Equal(t, before.Advance, after.Advance)
			assert.Equal(t, before.Balance, after.Balance)
			assert.Equal(t, before.Totals, after.Totals)
			assert.Nil(t, after.OrderID)
			assert.Equal(t, StateEditing, after.State)
		})
	}
}

func TestDiscard(t *testing.T) {
	f := newControllerFixture(t, testForm())
	f.fillScenario(t)

	f.ctrl.Discard()
	assert.ErrorIs(t, f.ctrl.SetMetadata(Metadata{}), ErrDraftClosed)
	assert.ErrorIs(t, f.ctrl.Advance.Cash.SetAmount("1"), ErrLineDisposed)
	_, err := f.ctrl.Submit(context.Background())
	assert.ErrorIs(t, err, ErrDraftClosed)
	assert.Empty(t, f.saver.saved())
}

func TestSubmit_AgainstOrderStore(t *testing.T) {
	db, cleanup := testingpkg.NewTestDBWithSchema(t, "orders", testingpkg.CatalogFixtures)
	t.Cleanup(cleanup)
	log := zerolog.New(nil).Level(zerolog.Disabled)
	ctx := context.Background()

	form, err := catalog.NewRepository(db.Conn(), log).Form(ctx, 1)
	require.NoError(t, err)

	cache := querycache.New(0, log)
	store := orders.NewService(db.Conn(), orders.NewRepository(db.Conn(), log), nil, log)
	store.SetCache(cache)

	ctrl := NewController(ControllerConfig{
		Session: NewSession("", cache),
		Rates:   newFakeRates(),
		Saver:   store,
		Form:    form,
	}, log)

	require.NoError(t, ctrl.SetMetadata(Metadata{EventID: i64(1), AuthorID: i64(1), AffiliationID: i64(1), GroomName: "Kim Minsu"}))
	require.NoError(t, ctrl.SelectProduct(1, i64(1), 1))
	require.NoError(t, ctrl.Advance.SetDetails("2024-01-05", "Kim Minsu", ""))
	commitLine(t, ctrl.Advance.Cash, domain.CurrencyUSD, "100")
	commitLine(t, ctrl.Advance.TradeIn, domain.Gold14K, "1")

	result, err := ctrl.SubmitTemporary(ctx)
	require.NoError(t, err)
	assert.Nil(t, result.OrderNumber)

	stored, err := store.Get(ctx, result.OrderID)
	require.NoError(t, err)
	assert.True(t, stored.IsTemporary)
	assert.Equal(t, int64(1200000), stored.TotalPrice)
	assert.Equal(t, int64(130000+58500), stored.AdvancePayment)
	require.Len(t, stored.Payments, 1)
	assert.Equal(t, "K14", *stored.Payments[0].TradeInCurrency)

	result, err = ctrl.Submit(ctx)
	require.NoError(t, err)
	require.NotNil(t, result.OrderNumber)

	stored, err = store.Get(ctx, result.OrderID)
	require.NoError(t, err)
	assert.False(t, stored.IsTemporary)
	assert.Equal(t, result.OrderNumber, stored.OrderNumber)
}

func strPtr(s string) *string { return &s }
