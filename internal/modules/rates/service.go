package rates

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/atelier/internal/clients/goldprice"
	"github.com/aristath/atelier/internal/domain"
	"github.com/aristath/atelier/internal/events"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ExchangeFetcher fetches raw exchange rates for a base date.
type ExchangeFetcher interface {
	FetchRates(ctx context.Context, date string) ([]domain.ExchangeRateItem, error)
}

// GoldFetcher fetches the 24K closing price for a base date.
type GoldFetcher interface {
	FetchPrice(ctx context.Context, date string) (*goldprice.Price, error)
}

// Config controls when and how far back a refresh looks.
type Config struct {
	LookbackDays int
	RefreshHour  int
	Location     *time.Location
}

// Service refreshes and serves rate snapshots. It implements
// domain.ExchangeRateSource and domain.GoldPriceSource.
type Service struct {
	repo     *Repository
	exchange ExchangeFetcher
	gold     GoldFetcher
	events   *events.Manager
	cfg      Config
	now      func() time.Time
	mu       sync.Mutex // serializes refreshes
	log      zerolog.Logger
}

// NewService creates a rate service. eventManager may be nil.
func NewService(repo *Repository, exchange ExchangeFetcher, gold GoldFetcher, eventManager *events.Manager, cfg Config, log zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.LookbackDays < 1 {
		cfg.LookbackDays = 5
	}
	return &Service{
		repo:     repo,
		exchange: exchange,
		gold:     gold,
		events:   eventManager,
		cfg:      cfg,
		now:      time.Now,
		log:      log.With().Str("service", "rates").Logger(),
	}
}

// Refresh stores a new snapshot unless the latest one is still current.
// Returns the snapshot in effect and whether a new one was stored.
//
// The latest snapshot is current when it was taken today and either it was
// taken after the refresh hour or it is still before the refresh hour now:
// upstream publishes the day's rates late in the morning.
func (s *Service) Refresh(ctx context.Context) (*Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest, err := s.repo.Latest(ctx)
	if err != nil {
		return nil, false, err
	}

	now := s.now().In(s.cfg.Location)
	if latest != nil && s.isCurrent(latest, now) {
		return latest, false, nil
	}

	gold, exchange := s.search(ctx, now)

	snap := &Snapshot{SearchedAt: now}
	goldFallback, exchangeFallback := false, false

	switch {
	case gold != nil:
		snap.setGold(*gold)
	case latest != nil:
		snap.setGold(latest.GoldItem())
		goldFallback = true
	}

	switch {
	case exchange != nil:
		snap.setExchange(*exchange)
	case latest != nil:
		snap.setExchange(exchangeHalf{baseDate: latest.ExchangeBaseDate, usd: latest.USD, jpy: latest.JPY, krw: latest.KRW})
		exchangeFallback = true
	}

	if gold == nil && exchange == nil && latest == nil {
		return nil, false, fmt.Errorf("no rates published in the last %d days: %w", s.cfg.LookbackDays, domain.ErrRateUnavailable)
	}

	if _, err := s.repo.Insert(ctx, snap); err != nil {
		return nil, false, err
	}

	s.log.Info().
		Str("gold_bas_dt", snap.GoldBaseDate).
		Str("exchange_bas_dt", snap.ExchangeBaseDate).
		Bool("gold_fallback", goldFallback).
		Bool("exchange_fallback", exchangeFallback).
		Msg("Rate snapshot refreshed")

	if s.events != nil {
		s.events.EmitTyped(events.RatesSynced, "rates", &events.RatesSyncedData{
			GoldBaseDate:     snap.GoldBaseDate,
			ExchangeBaseDate: snap.ExchangeBaseDate,
			GoldFallback:     goldFallback,
			ExchangeFallback: exchangeFallback,
		})
	}

	return snap, true, nil
}

func (s *Service) isCurrent(latest *Snapshot, now time.Time) bool {
	searched := latest.SearchedAt.In(s.cfg.Location)
	sy, sm, sd := searched.Date()
	ny, nm, nd := now.Date()
	if sy != ny || sm != nm || sd != nd {
		return false
	}
	return searched.Hour() >= s.cfg.RefreshHour || now.Hour() < s.cfg.RefreshHour
}

// search walks back day by day until both halves are found or the lookback
// is exhausted. Gold and exchange are fetched concurrently for each day.
func (s *Service) search(ctx context.Context, now time.Time) (*domain.GoldPriceItem, *exchangeHalf) {
	var (
		gold     *domain.GoldPriceItem
		exchange *exchangeHalf
	)

	for i := 0; i < s.cfg.LookbackDays; i++ {
		if ctx.Err() != nil {
			break
		}
		date := domain.FormatDate(now.AddDate(0, 0, -i))

		var g errgroup.Group
		if gold == nil && s.gold != nil {
			g.Go(func() error {
				found, err := s.fetchGold(ctx, date)
				if err != nil {
					return err
				}
				gold = found
				return nil
			})
		}
		if exchange == nil && s.exchange != nil {
			g.Go(func() error {
				found, err := s.fetchExchange(ctx, date)
				if err != nil {
					return err
				}
				exchange = found
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			s.log.Warn().Err(err).Str("date", date).Msg("Rate lookup failed")
		}

		if gold != nil && exchange != nil {
			break
		}
	}

	return gold, exchange
}

func (s *Service) fetchGold(ctx context.Context, date string) (*domain.GoldPriceItem, error) {
	price, err := s.gold.FetchPrice(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("gold price for %s: %w", date, err)
	}
	if price == nil || !price.ClosingPrice.IsPositive() {
		return nil, nil
	}
	baseDate := price.BaseDate
	if baseDate == "" {
		baseDate = date
	}
	item := domain.GoldPriceFrom24K(baseDate, price.ClosingPrice)
	return &item, nil
}

func (s *Service) fetchExchange(ctx context.Context, date string) (*exchangeHalf, error) {
	items, err := s.exchange.FetchRates(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("exchange rates for %s: %w", date, err)
	}

	half := exchangeHalf{baseDate: date, krw: decimal.NewFromInt(1)}
	for _, item := range items {
		switch item.CurrencyUnit {
		case UnitUSD:
			half.usd = item.DealBaseRate
		case UnitJPY100:
			half.jpy = item.DealBaseRate
		case UnitKRW:
			half.krw = item.DealBaseRate
		}
	}
	if !half.usd.IsPositive() || !half.jpy.IsPositive() {
		return nil, nil
	}
	return &half, nil
}

// ExchangeRates serves the snapshot in effect on date (latest when empty).
func (s *Service) ExchangeRates(ctx context.Context, date string) ([]domain.ExchangeRateItem, error) {
	snap, err := s.snapshotFor(ctx, date, s.repo.LatestForExchangeDate)
	if err != nil {
		return nil, err
	}
	if snap == nil || !snap.HasExchange() {
		return nil, fmt.Errorf("no exchange rates on or before %q: %w", date, domain.ErrRateUnavailable)
	}
	return snap.ExchangeItems(), nil
}

// GoldPrices serves the gold prices in effect on date (latest when empty).
func (s *Service) GoldPrices(ctx context.Context, date string) ([]domain.GoldPriceItem, error) {
	snap, err := s.snapshotFor(ctx, date, s.repo.LatestForGoldDate)
	if err != nil {
		return nil, err
	}
	if snap == nil || !snap.HasGold() {
		return nil, fmt.Errorf("no gold prices on or before %q: %w", date, domain.ErrRateUnavailable)
	}
	return []domain.GoldPriceItem{snap.GoldItem()}, nil
}

// ExchangeSnapshot returns the snapshot serving date, for handlers that need
// the base date alongside the items.
func (s *Service) ExchangeSnapshot(ctx context.Context, date string) (*Snapshot, error) {
	snap, err := s.snapshotFor(ctx, date, s.repo.LatestForExchangeDate)
	if err != nil {
		return nil, err
	}
	if snap == nil || !snap.HasExchange() {
		return nil, domain.ErrRateUnavailable
	}
	return snap, nil
}

// GoldSnapshot is ExchangeSnapshot for gold prices.
func (s *Service) GoldSnapshot(ctx context.Context, date string) (*Snapshot, error) {
	snap, err := s.snapshotFor(ctx, date, s.repo.LatestForGoldDate)
	if err != nil {
		return nil, err
	}
	if snap == nil || !snap.HasGold() {
		return nil, domain.ErrRateUnavailable
	}
	return snap, nil
}

func (s *Service) snapshotFor(ctx context.Context, date string, byDate func(context.Context, string) (*Snapshot, error)) (*Snapshot, error) {
	if _, _, err := s.Refresh(ctx); err != nil {
		// Stored snapshots are still served when the refresh fails.
		s.log.Warn().Err(err).Msg("Rate refresh failed, serving stored snapshot")
	}

	if date == "" {
		return s.repo.Latest(ctx)
	}
	return byDate(ctx, date)
}

// History returns the most recent snapshots, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]Snapshot, error) {
	return s.repo.History(ctx, limit)
}
