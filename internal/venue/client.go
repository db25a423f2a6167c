// client.go is the venue REST client: paginated market catalog reads, order
// placement, balance and position queries. Every request is paced under the
// venue's category limits and retried on 5xx; portfolio requests (balance,
// positions, orders) are signed through the Signer oracle, catalog reads are
// sent unsigned.
package venue

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/brabsmit/kalshi-arb/internal/config"
)

// Market is one contract row from the venue catalog. Price fields arrive as
// fixed-point dollar strings ("0.5600"); Cents converts them.
type Market struct {
	Ticker                 string `json:"ticker"`
	EventTicker            string `json:"event_ticker"`
	Title                  string `json:"title"`
	Status                 string `json:"status"`
	YesBid                 string `json:"yes_bid"`
	YesAsk                 string `json:"yes_ask"`
	CloseTime              string `json:"close_time"`
	ExpectedExpirationTime string `json:"expected_expiration_time"`
}

// ExpirationParsed returns the expected expiration, falling back to close
// time. The market index converts this into the game date.
func (m *Market) ExpirationParsed() (time.Time, error) {
	if m.ExpectedExpirationTime != "" {
		return time.Parse(time.RFC3339, m.ExpectedExpirationTime)
	}
	return time.Parse(time.RFC3339, m.CloseTime)
}

type marketsResponse struct {
	Markets []Market `json:"markets"`
	Cursor  string   `json:"cursor"`
}

// Balance is the portfolio cash balance in cents.
type Balance struct {
	BalanceCents int `json:"balance"`
}

// Position is one open venue position.
type Position struct {
	Ticker   string `json:"ticker"`
	Quantity int    `json:"position"`
	Exposure string `json:"market_exposure"` // dollar string
}

// OrderRequest places one order. Prices are integer cents.
type OrderRequest struct {
	Ticker    string `json:"ticker"`
	Side      string `json:"side"`   // "yes" | "no"
	Action    string `json:"action"` // "buy" | "sell"
	Type      string `json:"type"`   // "limit"
	Count     int    `json:"count"`
	YesPrice  int    `json:"yes_price,omitempty"`
	NoPrice   int    `json:"no_price,omitempty"`
	ClientID  string `json:"client_order_id"`
	TimeInFor string `json:"time_in_force,omitempty"`
}

// Order is the venue's record of a placed order.
type Order struct {
	OrderID string `json:"order_id"`
	Ticker  string `json:"ticker"`
	Status  string `json:"status"`
}

type orderResponse struct {
	Order Order `json:"order"`
}

// Cents converts a fixed-point dollar string to integer cents by
// round(100·x). Missing or empty values map to 0 ("unknown").
func Cents(s string) int {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return int(d.Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}

// Client is the venue REST API client. It wraps a resty HTTP client with
// request pacing, retry, and signing.
type Client struct {
	http     *resty.Client
	signer   Signer
	pace     *Pacing
	signBase string // URL path prefix included in signatures, e.g. "/trade-api/v2"
	logger   *slog.Logger
}

// NewClient creates a REST client. The signer may be nil for simulation-only
// runs; signed endpoints then fail fast with a clear error.
func NewClient(cfg config.VenueConfig, signer Signer, logger *slog.Logger) (*Client, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing venue base URL: %w", err)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:     httpClient,
		signer:   signer,
		pace:     NewPacing(),
		signBase: parsed.Path,
		logger:   logger.With("component", "venue"),
	}, nil
}

func (c *Client) authHeaders(method, path string) (map[string]string, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("no signer configured")
	}
	return c.signer.Headers(method, c.signBase+path)
}

// GetMarkets pages through the catalog for one series, filtered by status.
func (c *Client) GetMarkets(ctx context.Context, seriesTicker, status string) ([]Market, error) {
	var all []Market
	cursor := ""

	for {
		if err := c.pace.Read.Wait(ctx); err != nil {
			return nil, err
		}

		req := c.http.R().
			SetContext(ctx).
			SetQueryParam("series_ticker", seriesTicker).
			SetQueryParam("limit", "200")
		if status != "" {
			req.SetQueryParam("status", status)
		}
		if cursor != "" {
			req.SetQueryParam("cursor", cursor)
		}

		var page marketsResponse
		resp, err := req.SetResult(&page).Get("/markets")
		if err != nil {
			return nil, fmt.Errorf("get markets: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("get markets: status %d: %s", resp.StatusCode(), resp.String())
		}

		all = append(all, page.Markets...)
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	return all, nil
}

// GetBalance fetches the portfolio cash balance.
func (c *Client) GetBalance(ctx context.Context) (*Balance, error) {
	if err := c.pace.Read.Wait(ctx); err != nil {
		return nil, err
	}
	headers, err := c.authHeaders("GET", "/portfolio/balance")
	if err != nil {
		return nil, err
	}

	var result Balance
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get("/portfolio/balance")
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get balance: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// GetPositions fetches open positions.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	if err := c.pace.Read.Wait(ctx); err != nil {
		return nil, err
	}
	headers, err := c.authHeaders("GET", "/portfolio/positions")
	if err != nil {
		return nil, err
	}

	var result struct {
		MarketPositions []Position `json:"market_positions"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get("/portfolio/positions")
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get positions: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result.MarketPositions, nil
}

// CreateOrder submits a limit order.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := c.pace.Write.Wait(ctx); err != nil {
		return nil, err
	}
	headers, err := c.authHeaders("POST", "/portfolio/orders")
	if err != nil {
		return nil, err
	}

	var result orderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(req).
		SetResult(&result).
		Post("/portfolio/orders")
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return nil, fmt.Errorf("create order: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.logger.Info("order placed",
		"ticker", req.Ticker,
		"count", req.Count,
		"yes_price", req.YesPrice,
		"order_id", result.Order.OrderID,
	)
	return &result.Order, nil
}

// CancelRegistry records orders that would need cancellation. Automated
// cancellation is deliberately not implemented; the registry exists so a kill
// switch can surface what is still resting on the venue.
type CancelRegistry struct {
	mu     sync.Mutex
	orders map[string]string // orderID → ticker
}

// NewCancelRegistry creates an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{orders: make(map[string]string)}
}

// Track records a live order.
func (r *CancelRegistry) Track(orderID, ticker string) {
	r.mu.Lock()
	r.orders[orderID] = ticker
	r.mu.Unlock()
}

// Untrack removes a filled or manually-cancelled order.
func (r *CancelRegistry) Untrack(orderID string) {
	r.mu.Lock()
	delete(r.orders, orderID)
	r.mu.Unlock()
}

// Outstanding lists order IDs still considered live.
func (r *CancelRegistry) Outstanding() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.orders))
	for id := range r.orders {
		out = append(out, id)
	}
	return out
}
