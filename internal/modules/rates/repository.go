package rates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const snapshotColumns = `id, gold_bas_dt, gold_10k, gold_14k, gold_18k, gold_24k,
	exchange_bas_dt, usd, jpy, krw, search_dt`

// Repository stores rate snapshots in rates.db (rate table).
// Decimal values are stored as strings so no precision is lost.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new rate snapshot repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "rates").Logger(),
	}
}

// Insert stores a snapshot and returns its id
func (r *Repository) Insert(ctx context.Context, s *Snapshot) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO rate (gold_bas_dt, gold_10k, gold_14k, gold_18k, gold_24k,
			exchange_bas_dt, usd, jpy, krw, search_dt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.GoldBaseDate, s.Gold10K.String(), s.Gold14K.String(), s.Gold18K.String(), s.Gold24K.String(),
		s.ExchangeBaseDate, s.USD.String(), s.JPY.String(), s.KRW.String(), s.SearchedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert rate snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get rate snapshot id: %w", err)
	}
	s.ID = id

	r.log.Debug().
		Int64("id", id).
		Str("gold_bas_dt", s.GoldBaseDate).
		Str("exchange_bas_dt", s.ExchangeBaseDate).
		Msg("Stored rate snapshot")

	return id, nil
}

// Latest returns the most recently searched snapshot, or nil when none exist.
func (r *Repository) Latest(ctx context.Context) (*Snapshot, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+snapshotColumns+" FROM rate ORDER BY search_dt DESC, id DESC LIMIT 1")
	return scanOptional(row)
}

// LatestForExchangeDate returns the newest snapshot whose exchange base date
// is on or before date (YYYYMMDD), or nil.
func (r *Repository) LatestForExchangeDate(ctx context.Context, date string) (*Snapshot, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+snapshotColumns+` FROM rate
		WHERE exchange_bas_dt != '' AND exchange_bas_dt <= ?
		ORDER BY exchange_bas_dt DESC, search_dt DESC, id DESC LIMIT 1`, date)
	return scanOptional(row)
}

// LatestForGoldDate returns the newest snapshot whose gold base date is on
// or before date (YYYYMMDD), or nil.
func (r *Repository) LatestForGoldDate(ctx context.Context, date string) (*Snapshot, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+snapshotColumns+` FROM rate
		WHERE gold_bas_dt != '' AND gold_bas_dt <= ?
		ORDER BY gold_bas_dt DESC, search_dt DESC, id DESC LIMIT 1`, date)
	return scanOptional(row)
}

// History returns up to limit snapshots, newest first
func (r *Repository) History(ctx context.Context, limit int) ([]Snapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+snapshotColumns+" FROM rate ORDER BY search_dt DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rate history: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rate history: %w", err)
	}
	return snapshots, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOptional(row *sql.Row) (*Snapshot, error) {
	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func scanSnapshot(row scanner) (*Snapshot, error) {
	var (
		s                  Snapshot
		g10, g14, g18, g24 string
		usd, jpy, krw      string
		searchedAt         int64
	)
	err := row.Scan(&s.ID, &s.GoldBaseDate, &g10, &g14, &g18, &g24,
		&s.ExchangeBaseDate, &usd, &jpy, &krw, &searchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rate snapshot: %w", err)
	}

	fields := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{g10, &s.Gold10K}, {g14, &s.Gold14K}, {g18, &s.Gold18K}, {g24, &s.Gold24K},
		{usd, &s.USD}, {jpy, &s.JPY}, {krw, &s.KRW},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt rate value %q in snapshot %d: %w", f.raw, s.ID, err)
		}
		*f.dst = d
	}
	s.SearchedAt = time.Unix(searchedAt, 0)

	return &s, nil
}
