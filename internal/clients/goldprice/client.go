// Package goldprice fetches KRX gold closing prices from the public data
// portal (data.go.kr getGoldPriceInfo).
package goldprice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/aristath/atelier/internal/clientdata"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Config configures the upstream endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Price is the 24K per-gram closing price for a base date.
type Price struct {
	BaseDate     string          `json:"basDt"`
	ItemName     string          `json:"itmsNm"`
	ClosingPrice decimal.Decimal `json:"clpr"`
}

// Client for the gold price endpoint
type Client struct {
	baseURL   string
	apiKey    string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
	now       func() time.Time
}

// NewClient creates a new gold price client
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
		log:       log.With().Str("client", "goldprice").Logger(),
		cacheRepo: cacheRepo,
		now:       time.Now,
	}
}

// cachedPrice is stored in client_data; Found=false records an empty day.
type cachedPrice struct {
	Found bool   `json:"found"`
	Price *Price `json:"price,omitempty"`
}

// FetchPrice returns the closing price for date (YYYYMMDD), or nil when the
// market published nothing for that day.
func (c *Client) FetchPrice(ctx context.Context, date string) (*Price, error) {
	if c.cacheRepo != nil {
		var cached cachedPrice
		found, fresh, err := c.cacheRepo.Load(clientdata.TableGoldPrices, date, &cached)
		if err == nil && found && fresh {
			c.log.Debug().Str("date", date).Bool("found", cached.Found).Msg("Cache hit")
			return cached.Price, nil
		}
	}

	price, err := c.fetch(ctx, date)
	if err != nil {
		if stale, ok := c.getStaleFromCache(date); ok {
			c.log.Warn().Err(err).Str("date", date).Msg("API failed, using stale cached gold price")
			return stale.Price, nil
		}
		return nil, err
	}

	if c.cacheRepo != nil {
		ttl := clientdata.TTLForDate(date, c.now())
		if price == nil {
			ttl = clientdata.TTLEmpty
		}
		entry := cachedPrice{Found: price != nil, Price: price}
		if err := c.cacheRepo.Store(clientdata.TableGoldPrices, date, entry, ttl); err != nil {
			c.log.Warn().Err(err).Str("date", date).Msg("Failed to cache gold price")
		}
	}

	if price != nil {
		c.log.Info().
			Str("date", date).
			Str("clpr", price.ClosingPrice.String()).
			Msg("Fetched gold price")
	}

	return price, nil
}

type apiResponse struct {
	Response struct {
		Header struct {
			ResultCode string `json:"resultCode"`
			ResultMsg  string `json:"resultMsg"`
		} `json:"header"`
		Body *struct {
			TotalCount int             `json:"totalCount"`
			Items      json.RawMessage `json:"items"`
		} `json:"body"`
	} `json:"response"`
}

type apiItem struct {
	BaseDate     string      `json:"basDt"`
	ItemName     string      `json:"itmsNm"`
	ClosingPrice json.Number `json:"clpr"`
}

func (c *Client) fetch(ctx context.Context, date string) (*Price, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	q.Set("serviceKey", c.apiKey)
	q.Set("pageNo", "1")
	q.Set("numOfRows", "1")
	q.Set("resultType", "json")
	q.Set("basDt", date)
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

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var parsed apiResponse
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if code := parsed.Response.Header.ResultCode; code != "" && code != "00" {
		return nil, fmt.Errorf("API returned result code %s: %s", code, parsed.Response.Header.ResultMsg)
	}

	item, ok, err := firstItem(parsed)
	if err != nil || !ok {
		return nil, err
	}

	clpr, err := decimal.NewFromString(item.ClosingPrice.String())
	if err != nil {
		return nil, fmt.Errorf("invalid clpr %q: %w", item.ClosingPrice, err)
	}

	return &Price{BaseDate: item.BaseDate, ItemName: item.ItemName, ClosingPrice: clpr}, nil
}

// firstItem extracts body.items.item[0]. The portal sends "items": "" when a
// day has no data, so anything that is not an object counts as empty.
func firstItem(resp apiResponse) (apiItem, bool, error) {
	body := resp.Response.Body
	if body == nil || len(body.Items) == 0 || !bytes.HasPrefix(bytes.TrimSpace(body.Items), []byte("{")) {
		return apiItem{}, false, nil
	}

	var items struct {
		Item []apiItem `json:"item"`
	}
	if err := json.Unmarshal(body.Items, &items); err != nil {
		return apiItem{}, false, fmt.Errorf("failed to parse items: %w", err)
	}
	if len(items.Item) == 0 {
		return apiItem{}, false, nil
	}
	return items.Item[0], true, nil
}

// getStaleFromCache retrieves the cached price even if expired.
func (c *Client) getStaleFromCache(date string) (cachedPrice, bool) {
	if c.cacheRepo == nil {
		return cachedPrice{}, false
	}
	var cached cachedPrice
	found, _, err := c.cacheRepo.Load(clientdata.TableGoldPrices, date, &cached)
	if err != nil || !found {
		return cachedPrice{}, false
	}
	return cached, true
}
