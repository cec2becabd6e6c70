// Package ratesapi reads gold prices and exchange rates from a remote
// atelier rates service.
package ratesapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aristath/atelier/internal/domain"
	"github.com/rs/zerolog"
)

// Client implements domain.ExchangeRateSource and domain.GoldPriceSource
// over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a client for the service rooted at baseURL
// (e.g. "http://rates.local:8001/api").
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("client", "ratesapi").Logger(),
	}
}

type exchangeResponse struct {
	Items      []domain.ExchangeRateItem `json:"items"`
	SearchDate string                    `json:"search_date"`
}

type goldResponse struct {
	ResultCode string                 `json:"result_code"`
	ResultMsg  string                 `json:"result_msg"`
	Items      []domain.GoldPriceItem `json:"items"`
}

// ExchangeRates returns the exchange rates in effect on date.
func (c *Client) ExchangeRates(ctx context.Context, date string) ([]domain.ExchangeRateItem, error) {
	var resp exchangeResponse
	if err := c.get(ctx, "/getExchangeRateInfo", "search_date", date, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("no exchange rates for %s: %w", date, domain.ErrRateUnavailable)
	}
	return resp.Items, nil
}

// GoldPrices returns the gold prices in effect on date.
func (c *Client) GoldPrices(ctx context.Context, date string) ([]domain.GoldPriceItem, error) {
	var resp goldResponse
	if err := c.get(ctx, "/getGoldPriceInfo", "bas_dt", date, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("no gold prices for %s: %w", date, domain.ErrRateUnavailable)
	}
	return resp.Items, nil
}

func (c *Client) get(ctx context.Context, path, param, date string, out interface{}) error {
	u := c.baseURL + path
	if date != "" {
		u += "?" + url.Values{param: []string{date}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("rates request failed: %w", err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("path", path).
		Str("date", date).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Rates request")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s for %q: %w", path, date, domain.ErrRateUnavailable)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("rates service returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse rates response: %w", err)
	}
	return nil
}
