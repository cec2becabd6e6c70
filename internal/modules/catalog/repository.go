package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/atelier/internal/domain"
	"github.com/rs/zerolog"
)

// Repository reads catalog tables from the orders database
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new catalog repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "catalog").Logger(),
	}
}

// Authors returns every author ordered by name
func (r *Repository) Authors(ctx context.Context) ([]Author, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name FROM authors ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query authors: %w", err)
	}
	defer rows.Close()

	authors := []Author{}
	for rows.Next() {
		var a Author
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("failed to scan author: %w", err)
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

// Affiliations returns every affiliation ordered by name
func (r *Repository) Affiliations(ctx context.Context) ([]Affiliation, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name FROM affiliations ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query affiliations: %w", err)
	}
	defer rows.Close()

	affiliations := []Affiliation{}
	for rows.Next() {
		var a Affiliation
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("failed to scan affiliation: %w", err)
		}
		affiliations = append(affiliations, a)
	}
	return affiliations, rows.Err()
}

// Categories returns every category with its products and their
// attributes. A non-nil formID limits the result to the form's categories.
func (r *Repository) Categories(ctx context.Context, formID *int64) ([]Category, error) {
	query := "SELECT c.id, c.name, c.index_number FROM categories c"
	var args []interface{}
	if formID != nil {
		query += " JOIN form_categories fc ON fc.category_id = c.id WHERE fc.form_id = ?"
		args = append(args, *formID)
	}
	query += " ORDER BY c.index_number, c.id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}

	categories := []Category{}
	index := make(map[int64]int)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.IndexNumber); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		c.Products = []Product{}
		index[c.ID] = len(categories)
		categories = append(categories, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	if len(categories) == 0 {
		return categories, nil
	}

	products, err := r.productsIn(ctx, categoryIDs(categories))
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		i := index[p.CategoryID]
		categories[i].Products = append(categories[i].Products, p)
	}

	return categories, nil
}

func categoryIDs(categories []Category) []interface{} {
	ids := make([]interface{}, len(categories))
	for i, c := range categories {
		ids[i] = c.ID
	}
	return ids
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (r *Repository) productsIn(ctx context.Context, categoryIDs []interface{}) ([]Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, category_id, name, price FROM products
		WHERE category_id IN (`+placeholders(len(categoryIDs))+`)
		ORDER BY id`, categoryIDs...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}

	var products []Product
	index := make(map[int64]int)
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Price); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.Attributes = []Attribute{}
		index[p.ID] = len(products)
		products = append(products, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	if len(products) == 0 {
		return products, nil
	}

	ids := make([]interface{}, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	attrRows, err := r.db.QueryContext(ctx, `
		SELECT pa.product_id, a.id, a.value
		FROM product_attributes pa JOIN attributes a ON a.id = pa.attribute_id
		WHERE pa.product_id IN (`+placeholders(len(ids))+`)
		ORDER BY a.id`, ids...)
	if err != nil {
		return nil, fmt.Errorf("failed to query product attributes: %w", err)
	}
	defer attrRows.Close()

	for attrRows.Next() {
		var productID int64
		var a Attribute
		if err := attrRows.Scan(&productID, &a.ID, &a.Value); err != nil {
			return nil, fmt.Errorf("failed to scan product attribute: %w", err)
		}
		i := index[productID]
		products[i].Attributes = append(products[i].Attributes, a)
	}
	if err := attrRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate product attributes: %w", err)
	}

	return products, nil
}

// Events returns events, newest first. inProgressOnly drops finished ones.
func (r *Repository) Events(ctx context.Context, inProgressOnly bool) ([]Event, error) {
	query := eventSelect
	if inProgressOnly {
		query += " WHERE e.in_progress = 1"
	}
	query += " ORDER BY e.id DESC"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// Event returns one event, or domain.ErrNotFound
func (r *Repository) Event(ctx context.Context, id int64) (*Event, error) {
	row := r.db.QueryRowContext(ctx, eventSelect+" WHERE e.id = ?", id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %d: %w", id, domain.ErrNotFound)
	}
	return e, err
}

const eventSelect = `
	SELECT e.id, e.name, e.form_id, f.name, COALESCE(e.start_date, ''), COALESCE(e.end_date, ''), e.in_progress
	FROM events e LEFT JOIN forms f ON f.id = e.form_id`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner) (*Event, error) {
	var (
		e        Event
		formID   sql.NullInt64
		formName sql.NullString
	)
	err := row.Scan(&e.ID, &e.Name, &formID, &formName, &e.StartDate, &e.EndDate, &e.InProgress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	if formID.Valid {
		e.FormID = &formID.Int64
	}
	if formName.Valid {
		e.FormName = &formName.String
	}
	return &e, nil
}

// Form returns a form with its alteration baselines and offered
// categories, or domain.ErrNotFound
func (r *Repository) Form(ctx context.Context, id int64) (*Form, error) {
	var f Form
	err := r.db.QueryRowContext(ctx, "SELECT id, name FROM forms WHERE id = ?", id).Scan(&f.ID, &f.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("form %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query form: %w", err)
	}

	f.Repairs, err = r.formRepairs(ctx, id)
	if err != nil {
		return nil, err
	}

	f.Categories, err = r.Categories(ctx, &id)
	if err != nil {
		return nil, err
	}

	return &f, nil
}

func (r *Repository) formRepairs(ctx context.Context, formID int64) ([]FormRepair, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, form_id, information, unit, is_alterable, standards, index_number
		FROM form_repairs WHERE form_id = ?
		ORDER BY index_number, id`, formID)
	if err != nil {
		return nil, fmt.Errorf("failed to query form repairs: %w", err)
	}
	defer rows.Close()

	repairs := []FormRepair{}
	for rows.Next() {
		var (
			fr        FormRepair
			standards sql.NullFloat64
		)
		if err := rows.Scan(&fr.ID, &fr.FormID, &fr.Information, &fr.Unit, &fr.IsAlterable, &standards, &fr.IndexNumber); err != nil {
			return nil, fmt.Errorf("failed to scan form repair: %w", err)
		}
		if standards.Valid {
			fr.Standards = &standards.Float64
		}
		repairs = append(repairs, fr)
	}
	return repairs, rows.Err()
}
