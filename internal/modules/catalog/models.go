// Package catalog serves the read-only reference data an order form is
// filled from: events, forms and their alteration baselines, products,
// authors and affiliations.
package catalog

// Author is staff who writes or modifies orders.
type Author struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Affiliation is the shop an order is taken for.
type Affiliation struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Attribute is a selectable product variant (size, colour).
type Attribute struct {
	ID    int64  `json:"id"`
	Value string `json:"value"`
}

// Product is a sellable item. Price is in local currency minor-free units.
type Product struct {
	ID         int64       `json:"id"`
	CategoryID int64       `json:"category_id"`
	Name       string      `json:"name"`
	Price      int64       `json:"price"`
	Attributes []Attribute `json:"attributes"`
}

// Category groups products.
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	IndexNumber int       `json:"indexNumber"`
	Products    []Product `json:"products"`
}

// FormRepair is one alteration baseline measurement of a form.
type FormRepair struct {
	ID          int64    `json:"id"`
	FormID      int64    `json:"form_id"`
	Information string   `json:"information"`
	Unit        string   `json:"unit"`
	IsAlterable bool     `json:"isAlterable"`
	Standards   *float64 `json:"standards"`
	IndexNumber int      `json:"indexNumber"`
}

// Form is an order form template: which categories are offered and which
// measurements can be altered.
type Form struct {
	ID         int64        `json:"id"`
	Name       string       `json:"name"`
	Repairs    []FormRepair `json:"form_repairs"`
	Categories []Category   `json:"categories"`
}

// Event is a sales event orders are taken at.
type Event struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	FormID     *int64  `json:"form_id"`
	FormName   *string `json:"form_name"`
	StartDate  string  `json:"start_date"`
	EndDate    string  `json:"end_date"`
	InProgress bool    `json:"in_progress"`
}

// RepairByID indexes the form's alteration baselines.
func (f *Form) RepairByID() map[int64]FormRepair {
	m := make(map[int64]FormRepair, len(f.Repairs))
	for _, r := range f.Repairs {
		m[r.ID] = r
	}
	return m
}

// ProductByID indexes every product offered by the form.
func (f *Form) ProductByID() map[int64]Product {
	m := make(map[int64]Product)
	for _, c := range f.Categories {
		for _, p := range c.Products {
			m[p.ID] = p
		}
	}
	return m
}
