// Package clientdata caches upstream rate responses in client_data.db.
// Entries are JSON blobs keyed by base date with an expiration timestamp:
// clients serve fresh entries without calling upstream and fall back to
// expired ones when the upstream call fails.
package clientdata

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Table is one cache table in client_data.db.
type Table string

const (
	TableExchangeRates Table = "exchange_rates"
	TableGoldPrices    Table = "gold_prices"
)

// AllTables lists every cache table, in cleanup order.
var AllTables = []Table{TableExchangeRates, TableGoldPrices}

// valid guards table names interpolated into queries.
func (t Table) valid() error {
	for _, known := range AllTables {
		if t == known {
			return nil
		}
	}
	return fmt.Errorf("invalid client data table: %q", string(t))
}

// Repository reads and writes cached upstream responses.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new client data repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Store replaces the entry for date with data, expiring after ttl.
func (r *Repository) Store(table Table, date string, data interface{}, ttl time.Duration) error {
	if err := table.valid(); err != nil {
		return err
	}

	blob, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", table, date, err)
	}

	_, err = r.db.Exec(
		"INSERT INTO "+string(table)+` (bas_dt, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(bas_dt) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at`,
		date, string(blob), r.now().Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store %s/%s: %w", table, date, err)
	}
	return nil
}

// Load decodes the entry for date into out. found is false when there is
// no entry; fresh is false once it has expired. Expired entries are still
// decoded so callers can use them as a fallback.
func (r *Repository) Load(table Table, date string, out interface{}) (found, fresh bool, err error) {
	if err := table.valid(); err != nil {
		return false, false, err
	}

	var blob string
	var expiresAt int64
	err = r.db.QueryRow("SELECT data, expires_at FROM "+string(table)+" WHERE bas_dt = ?", date).
		Scan(&blob, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to read %s/%s: %w", table, date, err)
	}

	if err := json.Unmarshal([]byte(blob), out); err != nil {
		return false, false, fmt.Errorf("failed to decode %s/%s: %w", table, date, err)
	}
	return true, expiresAt > r.now().Unix(), nil
}

// DeleteExpired removes the expired rows of table and returns how many
// were removed.
func (r *Repository) DeleteExpired(table Table) (int64, error) {
	if err := table.valid(); err != nil {
		return 0, err
	}

	result, err := r.db.Exec("DELETE FROM "+string(table)+" WHERE expires_at < ?", r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge %s: %w", table, err)
	}
	return result.RowsAffected()
}

// DeleteAllExpired purges every table. On error the counts of the tables
// already purged are returned with it.
func (r *Repository) DeleteAllExpired() (map[Table]int64, error) {
	results := make(map[Table]int64, len(AllTables))
	for _, table := range AllTables {
		n, err := r.DeleteExpired(table)
		if err != nil {
			return results, err
		}
		results[table] = n
	}
	return results, nil
}
