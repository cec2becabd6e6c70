package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/atelier/internal/domain"
	"github.com/aristath/atelier/internal/modules/catalog"
	"github.com/rs/zerolog"
)

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repository handles order persistence in the orders database
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new order repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "orders").Logger(),
	}
}

// OrderNumberPrefix is the YYMMDD day prefix of order numbers, in UTC.
func OrderNumberPrefix(now time.Time) string {
	return now.UTC().Format("060102")
}

// NextOrderNumber returns the next YYMMDD-NNN number for now's UTC day.
// Sequences past 999 widen rather than wrap.
func (r *Repository) NextOrderNumber(ctx context.Context, q querier, now time.Time) (string, error) {
	prefix := OrderNumberPrefix(now)

	var latest string
	err := q.QueryRowContext(ctx, `
		SELECT order_number FROM orders
		WHERE order_number LIKE ? || '-%'
		ORDER BY LENGTH(order_number) DESC, order_number DESC
		LIMIT 1`, prefix).Scan(&latest)
	if errors.Is(err, sql.ErrNoRows) {
		return prefix + "-001", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query latest order number: %w", err)
	}

	seq, err := strconv.Atoi(strings.TrimPrefix(latest, prefix+"-"))
	if err != nil {
		return "", fmt.Errorf("malformed order number %q: %w", latest, err)
	}
	return fmt.Sprintf("%s-%03d", prefix, seq+1), nil
}

// Insert stores a new order header and returns its id
func (r *Repository) Insert(ctx context.Context, q querier, p *domain.OrderPayload, number *string, temporary bool, now time.Time) (int64, error) {
	result, err := q.ExecContext(ctx, `
		INSERT INTO orders (order_number, event_id, author_id, modifier_id, affiliation_id, status,
			groom_name, bride_name, contact, address, collection_method, notes, alter_notes,
			total_price, advance_payment, balance_payment, is_temporary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		strArg(number), intArg(p.EventID), intArg(p.AuthorID), intArg(p.ModifierID), intArg(p.AffiliationID), string(p.Status),
		p.GroomName, p.BrideName, p.Contact, p.Address, p.CollectionMethod, p.Notes, p.AlterNotes,
		p.TotalPrice, p.AdvancePayment, p.BalancePayment, temporary, now.Unix(), now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert order: %w", err)
	}
	return result.LastInsertId()
}

// OrderNumber returns the stored order number (nil when unassigned), or
// domain.ErrNotFound
func (r *Repository) OrderNumber(ctx context.Context, q querier, id int64) (*string, error) {
	var number sql.NullString
	err := q.QueryRowContext(ctx, "SELECT order_number FROM orders WHERE id = ?", id).Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order number: %w", err)
	}
	if !number.Valid {
		return nil, nil
	}
	return &number.String, nil
}

// UpdateHeader overwrites every order header field. number is only written
// when the order has none yet.
func (r *Repository) UpdateHeader(ctx context.Context, q querier, id int64, p *domain.OrderPayload, number *string, temporary bool, now time.Time) error {
	result, err := q.ExecContext(ctx, `
		UPDATE orders SET
			order_number = COALESCE(order_number, ?),
			event_id = ?, author_id = ?, modifier_id = ?, affiliation_id = ?, status = ?,
			groom_name = ?, bride_name = ?, contact = ?, address = ?, collection_method = ?,
			notes = ?, alter_notes = ?,
			total_price = ?, advance_payment = ?, balance_payment = ?,
			is_temporary = ?, updated_at = ?
		WHERE id = ?`,
		strArg(number), intArg(p.EventID), intArg(p.AuthorID), intArg(p.ModifierID), intArg(p.AffiliationID), string(p.Status),
		p.GroomName, p.BrideName, p.Contact, p.Address, p.CollectionMethod,
		p.Notes, p.AlterNotes,
		p.TotalPrice, p.AdvancePayment, p.BalancePayment,
		temporary, now.Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	return requireAffected(result, id)
}

func requireAffected(result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ReplaceItems deletes the order's product lines and inserts items
func (r *Repository) ReplaceItems(ctx context.Context, q querier, orderID int64, items []domain.OrderItemPayload) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM order_items WHERE order_id = ?", orderID); err != nil {
		return fmt.Errorf("failed to clear order items: %w", err)
	}
	for _, item := range items {
		_, err := q.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, attribute_id, quantity, price)
			VALUES (?, ?, ?, ?, ?)`,
			orderID, item.ProductID, intArg(item.AttributesID), item.Quantity, item.Price)
		if err != nil {
			return fmt.Errorf("failed to insert order item for product %d: %w", item.ProductID, err)
		}
	}
	return nil
}

// UpsertPayments writes each payment leg, replacing an existing leg with
// the same payment method. Legs not in payments are kept.
func (r *Repository) UpsertPayments(ctx context.Context, q querier, orderID int64, payments []domain.PaymentPayload) error {
	for _, p := range payments {
		_, err := q.ExecContext(ctx, `
			INSERT INTO payments (order_id, payment_method, payer, payment_date, notes,
				cash_amount, cash_currency, cash_conversion,
				card_amount, card_currency, card_conversion,
				trade_in_amount, trade_in_currency, trade_in_conversion)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (order_id, payment_method) DO UPDATE SET
				payer = excluded.payer,
				payment_date = excluded.payment_date,
				notes = excluded.notes,
				cash_amount = excluded.cash_amount,
				cash_currency = excluded.cash_currency,
				cash_conversion = excluded.cash_conversion,
				card_amount = excluded.card_amount,
				card_currency = excluded.card_currency,
				card_conversion = excluded.card_conversion,
				trade_in_amount = excluded.trade_in_amount,
				trade_in_currency = excluded.trade_in_currency,
				trade_in_conversion = excluded.trade_in_conversion`,
			orderID, string(p.PaymentMethod), p.Payer, p.PaymentDate, p.Notes,
			intArg(p.CashAmount), strArg(p.CashCurrency), intArg(p.CashConversion),
			intArg(p.CardAmount), strArg(p.CardCurrency), intArg(p.CardConversion),
			intArg(p.TradeInAmount), strArg(p.TradeInCurrency), intArg(p.TradeInConversion))
		if err != nil {
			return fmt.Errorf("failed to save %s payment: %w", p.PaymentMethod, err)
		}
	}
	return nil
}

// UpsertAlterations writes each alteration, replacing an existing row for
// the same form repair.
func (r *Repository) UpsertAlterations(ctx context.Context, q querier, orderID int64, alterations []domain.AlterationPayload) error {
	for _, a := range alterations {
		_, err := q.ExecContext(ctx, `
			INSERT INTO alteration_details (order_id, form_repair_id, figure, alteration_figure)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (order_id, form_repair_id) DO UPDATE SET
				figure = excluded.figure,
				alteration_figure = excluded.alteration_figure`,
			orderID, a.FormRepairID, floatArg(a.Figure), floatArg(a.AlterationFigure))
		if err != nil {
			return fmt.Errorf("failed to save alteration for form repair %d: %w", a.FormRepairID, err)
		}
	}
	return nil
}

// UpdateStatus sets the order's status
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE orders SET status = ?, updated_at = ? WHERE id = ?", string(status), now.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return requireAffected(result, id)
}

// Delete removes the order and everything attached to it
func (r *Repository) Delete(ctx context.Context, q querier, id int64) error {
	for _, table := range []string{"order_items", "payments", "alteration_details"} {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE order_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete %s: %w", table, err)
		}
	}
	result, err := q.ExecContext(ctx, "DELETE FROM orders WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	return requireAffected(result, id)
}

const orderSelect = `
	SELECT o.id, o.order_number, o.event_id, e.name, f.name,
		o.author_id, a.name, o.modifier_id, m.name, o.affiliation_id, af.name, o.status,
		o.groom_name, o.bride_name, o.contact, o.address, o.collection_method,
		o.notes, o.alter_notes, o.total_price, o.advance_payment, o.balance_payment,
		o.is_temporary, o.created_at, o.updated_at`

const orderFrom = `
	FROM orders o
	LEFT JOIN events e ON e.id = o.event_id
	LEFT JOIN forms f ON f.id = e.form_id
	LEFT JOIN authors a ON a.id = o.author_id
	LEFT JOIN authors m ON m.id = o.modifier_id
	LEFT JOIN affiliations af ON af.id = o.affiliation_id`

// Get returns one order with its lines, payments and alterations, or
// domain.ErrNotFound
func (r *Repository) Get(ctx context.Context, id int64) (*Order, error) {
	row := r.db.QueryRowContext(ctx, orderSelect+orderFrom+" WHERE o.id = ?", id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	list := []Order{*o}
	if err := r.loadChildren(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// List returns one page of orders matching filter and the total number of
// matches.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	where, args := buildWhere(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*)"+orderFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	direction := "ASC"
	if filter.Sort == SortDateDesc {
		direction = "DESC"
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := orderSelect + orderFrom + where +
		fmt.Sprintf(" ORDER BY o.created_at %s, o.id %s LIMIT ? OFFSET ?", direction, direction)
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query orders: %w", err)
	}

	orders := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		orders = append(orders, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate orders: %w", err)
	}

	if err := r.loadChildren(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func buildWhere(f ListFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if f.EventName != "" {
		conds = append(conds, "e.name = ?")
		args = append(args, f.EventName)
	}
	if f.From != nil {
		conds = append(conds, "o.created_at >= ?")
		args = append(args, f.From.Unix())
	}
	if f.To != nil {
		conds = append(conds, "o.created_at <= ?")
		args = append(args, f.To.Unix())
	}
	if f.Search != "" {
		pattern := "%" + escapeLike(f.Search) + "%"
		fields := []string{"o.groom_name", "o.bride_name", "o.address", "o.contact",
			"o.notes", "o.alter_notes", "a.name", "af.name"}
		var likes []string
		for _, field := range fields {
			likes = append(likes, field+` LIKE ? ESCAPE '\'`)
			args = append(args, pattern)
		}
		conds = append(conds, "("+strings.Join(likes, " OR ")+")")
	}
	if f.Status != nil {
		conds = append(conds, "o.status = ?")
		args = append(args, string(*f.Status))
	}
	if f.IsTemp != nil {
		conds = append(conds, "o.is_temporary = ?")
		args = append(args, *f.IsTemp)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row scanner) (*Order, error) {
	var (
		o                                    Order
		number, eventName, formName          sql.NullString
		authorName, modifierName, affName    sql.NullString
		eventID, authorID, modifierID, affID sql.NullInt64
		status                               string
		createdAt, updatedAt                 int64
	)
	err := row.Scan(&o.ID, &number, &eventID, &eventName, &formName,
		&authorID, &authorName, &modifierID, &modifierName, &affID, &affName, &status,
		&o.GroomName, &o.BrideName, &o.Contact, &o.Address, &o.CollectionMethod,
		&o.Notes, &o.AlterNotes, &o.TotalPrice, &o.AdvancePayment, &o.BalancePayment,
		&o.IsTemporary, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	o.OrderNumber = nullString(number)
	o.EventName = nullString(eventName)
	o.FormName = nullString(formName)
	o.AuthorName = nullString(authorName)
	o.ModifierName = nullString(modifierName)
	o.AffiliationName = nullString(affName)
	o.EventID = nullInt(eventID)
	o.AuthorID = nullInt(authorID)
	o.ModifierID = nullInt(modifierID)
	o.AffiliationID = nullInt(affID)
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = time.Unix(createdAt, 0).UTC()
	o.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	o.OrderItems = []OrderItem{}
	o.Payments = []domain.PaymentPayload{}
	o.AlterationDetails = []domain.AlterationPayload{}

	return &o, nil
}

// Nullable columns are bound as untyped nil or the plain value.
func intArg(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func strArg(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func floatArg(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullInt(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func nullFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

// loadChildren fills lines, payments and alterations for orders in place.
func (r *Repository) loadChildren(ctx context.Context, orders []Order) error {
	if len(orders) == 0 {
		return nil
	}
	index := make(map[int64]int, len(orders))
	ids := make([]interface{}, len(orders))
	for i, o := range orders {
		index[o.ID] = i
		ids[i] = o.ID
	}
	in := "(" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")"

	if err := r.loadItems(ctx, orders, index, in, ids); err != nil {
		return err
	}
	if err := r.loadPayments(ctx, orders, index, in, ids); err != nil {
		return err
	}
	return r.loadAlterations(ctx, orders, index, in, ids)
}

func (r *Repository) loadItems(ctx context.Context, orders []Order, index map[int64]int, in string, ids []interface{}) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT oi.order_id, oi.product_id, p.name, p.price, oi.price, oi.quantity, at.id, at.value
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		LEFT JOIN attributes at ON at.id = oi.attribute_id
		WHERE oi.order_id IN `+in+` ORDER BY oi.id`, ids...)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID   int64
			item      OrderItem
			attrID    sql.NullInt64
			attrValue sql.NullString
		)
		if err := rows.Scan(&orderID, &item.Product.ID, &item.Product.Name, &item.Product.Price,
			&item.Price, &item.Quantity, &attrID, &attrValue); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		item.Attributes = []catalog.Attribute{}
		if attrID.Valid {
			item.Attributes = append(item.Attributes, catalog.Attribute{ID: attrID.Int64, Value: attrValue.String})
		}
		i := index[orderID]
		orders[i].OrderItems = append(orders[i].OrderItems, item)
	}
	return rows.Err()
}

func (r *Repository) loadPayments(ctx context.Context, orders []Order, index map[int64]int, in string, ids []interface{}) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, payment_method, payer, payment_date, notes,
			cash_amount, cash_currency, cash_conversion,
			card_amount, card_currency, card_conversion,
			trade_in_amount, trade_in_currency, trade_in_conversion
		FROM payments WHERE order_id IN `+in+` ORDER BY id`, ids...)
	if err != nil {
		return fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID                       int64
			method                        string
			p                             domain.PaymentPayload
			cashAmt, cardAmt, tradeAmt    sql.NullInt64
			cashConv, cardConv, tradeConv sql.NullInt64
			cashCur, cardCur, tradeCur    sql.NullString
		)
		if err := rows.Scan(&orderID, &method, &p.Payer, &p.PaymentDate, &p.Notes,
			&cashAmt, &cashCur, &cashConv,
			&cardAmt, &cardCur, &cardConv,
			&tradeAmt, &tradeCur, &tradeConv); err != nil {
			return fmt.Errorf("failed to scan payment: %w", err)
		}
		p.PaymentMethod = domain.PaymentMethod(method)
		p.CashAmount, p.CashCurrency, p.CashConversion = nullInt(cashAmt), nullString(cashCur), nullInt(cashConv)
		p.CardAmount, p.CardCurrency, p.CardConversion = nullInt(cardAmt), nullString(cardCur), nullInt(cardConv)
		p.TradeInAmount, p.TradeInCurrency, p.TradeInConversion = nullInt(tradeAmt), nullString(tradeCur), nullInt(tradeConv)

		i := index[orderID]
		orders[i].Payments = append(orders[i].Payments, p)
	}
	return rows.Err()
}

func (r *Repository) loadAlterations(ctx context.Context, orders []Order, index map[int64]int, in string, ids []interface{}) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, form_repair_id, figure, alteration_figure
		FROM alteration_details WHERE order_id IN `+in+` ORDER BY form_repair_id`, ids...)
	if err != nil {
		return fmt.Errorf("failed to query alteration details: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID          int64
			a                domain.AlterationPayload
			figure, alterFig sql.NullFloat64
		)
		if err := rows.Scan(&orderID, &a.FormRepairID, &figure, &alterFig); err != nil {
			return fmt.Errorf("failed to scan alteration detail: %w", err)
		}
		a.Figure = nullFloat(figure)
		a.AlterationFigure = nullFloat(alterFig)

		i := index[orderID]
		orders[i].AlterationDetails = append(orders[i].AlterationDetails, a)
	}
	return rows.Err()
}
