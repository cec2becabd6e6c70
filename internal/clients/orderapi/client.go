// Package orderapi saves order payloads to a remote atelier order store.
package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/atelier/internal/domain"
	"github.com/rs/zerolog"
)

// Config configures the order store endpoint.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client implements domain.OrderSaver over HTTP.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new order store client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("client", "orderapi").Logger(),
	}
}

// WithToken returns a client that authenticates as token. The HTTP
// transport is shared.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// SaveOrder creates (req.OrderID nil) or updates an order. Every failure is
// returned as a *domain.PersistenceError.
func (c *Client) SaveOrder(ctx context.Context, req domain.SaveRequest) (*domain.SaveResult, error) {
	method, path := http.MethodPost, "/order/save"
	if req.Temporary {
		path = "/temp/order/save"
	}
	if req.OrderID != nil {
		method = http.MethodPut
		path = fmt.Sprintf("%s/%d", path, *req.OrderID)
	}

	body, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, domain.NewPersistenceError(fmt.Errorf("failed to encode order: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewPersistenceError(fmt.Errorf("creating request failed: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, domain.NewPersistenceError(fmt.Errorf("order request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("Order save rejected")
		return nil, domain.NewPersistenceError(fmt.Errorf("order store returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(detail))))
	}

	var result domain.SaveResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, domain.NewPersistenceError(fmt.Errorf("failed to parse save response: %w", err))
	}

	c.log.Info().
		Int64("order_id", result.OrderID).
		Bool("temporary", req.Temporary).
		Bool("created", req.OrderID == nil).
		Msg("Order saved")

	return &result, nil
}
