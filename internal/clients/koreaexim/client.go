// Package koreaexim fetches daily exchange rates published by the
// Export-Import Bank of Korea.
package koreaexim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aristath/atelier/internal/clientdata"
	"github.com/aristath/atelier/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Upstream result codes
const (
	resultOK           = 1
	resultDataError    = 2
	resultAuthError    = 3
	resultLimitReached = 4
)

// Config configures the upstream endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client for the koreaexim exchangeJSON endpoint
type Client struct {
	baseURL   string
	apiKey    string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
	now       func() time.Time
}

// NewClient creates a new koreaexim client
// cacheRepo is optional - if nil, caching is disabled
func NewClient(cfg Config, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		client:    &http.Client{Timeout: timeout},
		log:       log.With().Str("client", "koreaexim").Logger(),
		cacheRepo: cacheRepo,
		now:       time.Now,
	}
}

// rawItem is one upstream row. Numbers arrive as strings with thousands
// separators ("1,320.5"). It is also the cached representation.
type rawItem struct {
	Result       int    `json:"result"`
	CurrencyUnit string `json:"cur_unit"`
	DealBaseRate string `json:"deal_bas_r"`
	CurrencyName string `json:"cur_nm"`
}

// FetchRates returns every exchange rate published for date (YYYYMMDD).
// An empty slice means nothing was published (weekend, holiday, or not yet
// published today); it is not an error.
func (c *Client) FetchRates(ctx context.Context, date string) ([]domain.ExchangeRateItem, error) {
	if c.cacheRepo != nil {
		var cached []rawItem
		found, fresh, err := c.cacheRepo.Load(clientdata.TableExchangeRates, date, &cached)
		if err == nil && found && fresh {
			c.log.Debug().Str("date", date).Int("items", len(cached)).Msg("Cache hit")
			return toItems(cached)
		}
	}

	raw, err := c.fetch(ctx, date)
	if err != nil {
		if stale, ok := c.getStaleFromCache(date); ok {
			c.log.Warn().Err(err).Str("date", date).Msg("API failed, using stale cached rates")
			return toItems(stale)
		}
		return nil, err
	}

	items, err := toItems(raw)
	if err != nil {
		return nil, err
	}

	if c.cacheRepo != nil {
		ttl := clientdata.TTLForDate(date, c.now())
		if len(raw) == 0 {
			ttl = clientdata.TTLEmpty
		}
		if err := c.cacheRepo.Store(clientdata.TableExchangeRates, date, raw, ttl); err != nil {
			c.log.Warn().Err(err).Str("date", date).Msg("Failed to cache exchange rates")
		}
	}

	c.log.Info().Str("date", date).Int("items", len(items)).Msg("Fetched exchange rates")

	return items, nil
}

func (c *Client) fetch(ctx context.Context, date string) ([]rawItem, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	q.Set("authkey", c.apiKey)
	q.Set("searchdate", date)
	q.Set("data", "AP01")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var raw []rawItem
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(raw) > 0 && raw[0].Result != resultOK {
		return nil, fmt.Errorf("API returned result code %d (%s)", raw[0].Result, describeResult(raw[0].Result))
	}

	return raw, nil
}

// getStaleFromCache retrieves cached rates even if expired.
func (c *Client) getStaleFromCache(date string) ([]rawItem, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}
	var cached []rawItem
	found, _, err := c.cacheRepo.Load(clientdata.TableExchangeRates, date, &cached)
	if err != nil || !found {
		return nil, false
	}
	return cached, true
}

func toItems(raw []rawItem) ([]domain.ExchangeRateItem, error) {
	items := make([]domain.ExchangeRateItem, 0, len(raw))
	for _, r := range raw {
		rate, err := ParseAmount(r.DealBaseRate)
		if err != nil {
			return nil, fmt.Errorf("invalid deal_bas_r for %s: %w", r.CurrencyUnit, err)
		}
		items = append(items, domain.ExchangeRateItem{
			CurrencyUnit: r.CurrencyUnit,
			DealBaseRate: rate,
			CurrencyName: r.CurrencyName,
		})
	}
	return items, nil
}

// ParseAmount parses an upstream number, dropping thousands separators.
func ParseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
}

func describeResult(code int) string {
	switch code {
	case resultDataError:
		return "invalid data code"
	case resultAuthError:
		return "invalid auth key"
	case resultLimitReached:
		return "daily request limit reached"
	default:
		return "unknown"
	}
}
