// Package feed implements the two external data sources: the sportsbook
// odds API (moneylines for devigging) and the live score providers (inputs
// to the win-probability model) with automatic failover.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/brabsmit/kalshi-arb/internal/config"
)

// Outcome is one moneyline price. Price is American odds.
type Outcome struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// MarketOdds is one odds market (only "h2h" is consumed).
type MarketOdds struct {
	Key      string    `json:"key"`
	Outcomes []Outcome `json:"outcomes"`
}

// Bookmaker is one book's odds for an event.
type Bookmaker struct {
	Key     string       `json:"key"`
	Markets []MarketOdds `json:"markets"`
}

// OddsEvent is one fixture from the odds source.
type OddsEvent struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	CommenceTime time.Time   `json:"commence_time"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	Bookmakers   []Bookmaker `json:"bookmakers"`
}

// Moneyline extracts (home, away, draw) American odds from the h2h market of
// the named bookmaker, or the first bookmaker carrying h2h when the filter
// is empty or absent. hasDraw reports a 3-way market.
func (e OddsEvent) Moneyline(bookmaker string) (home, away, draw float64, hasDraw, ok bool) {
	for _, bm := range e.Bookmakers {
		if bookmaker != "" && bm.Key != bookmaker {
			continue
		}
		for _, m := range bm.Markets {
			if m.Key != "h2h" {
				continue
			}
			var haveHome, haveAway bool
			for _, o := range m.Outcomes {
				switch o.Name {
				case e.HomeTeam:
					home, haveHome = o.Price, true
				case e.AwayTeam:
					away, haveAway = o.Price, true
				case "Draw", "Tie":
					draw, hasDraw = o.Price, true
				}
			}
			if haveHome && haveAway {
				return home, away, draw, hasDraw, true
			}
		}
		if bookmaker != "" {
			// The requested book exists but has no usable h2h market.
			return 0, 0, 0, false, false
		}
	}
	return 0, 0, 0, false, false
}

// Quota is the API usage reported opportunistically in response headers.
type Quota struct {
	Used      int
	Remaining int
	FetchedAt time.Time
}

// BurnRatePerHour estimates requests per hour given the previous quota
// reading. Zero when no baseline exists yet.
func (q Quota) BurnRatePerHour(prev Quota) float64 {
	if prev.FetchedAt.IsZero() || !q.FetchedAt.After(prev.FetchedAt) {
		return 0
	}
	hours := q.FetchedAt.Sub(prev.FetchedAt).Hours()
	if hours <= 0 {
		return 0
	}
	return float64(q.Used-prev.Used) / hours
}

// HoursLeft estimates hours until the quota runs out at the given burn rate.
func (q Quota) HoursLeft(burnPerHour float64) float64 {
	if burnPerHour <= 0 {
		return 0
	}
	return float64(q.Remaining) / burnPerHour
}

// OddsClient polls one named odds source.
type OddsClient struct {
	name   string
	cfg    config.OddsSourceConfig
	http   *resty.Client
	logger *slog.Logger
}

// NewOddsClient creates a client for one configured odds source.
func NewOddsClient(name string, cfg config.OddsSourceConfig, logger *slog.Logger) *OddsClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(300 * time.Millisecond)

	return &OddsClient{
		name:   name,
		cfg:    cfg,
		http:   httpClient,
		logger: logger.With("component", "odds", "source", name),
	}
}

// Name returns the configured source name.
func (c *OddsClient) Name() string { return c.name }

// Bookmaker returns the configured bookmaker filter.
func (c *OddsClient) Bookmaker() string { return c.cfg.Bookmaker }

// GetEvents fetches h2h odds for one upstream sport key and parses the
// rate-limit headers when present.
func (c *OddsClient) GetEvents(ctx context.Context, sportKey string) ([]OddsEvent, Quota, error) {
	var events []OddsEvent
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"apiKey":     c.cfg.APIKey,
			"markets":    "h2h",
			"oddsFormat": "american",
		}).
		SetResult(&events).
		Get(fmt.Sprintf("/sports/%s/odds", sportKey))
	if err != nil {
		return nil, Quota{}, fmt.Errorf("fetch odds: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, Quota{}, fmt.Errorf("fetch odds: status %d: %s", resp.StatusCode(), resp.String())
	}

	quota := parseQuota(resp.Header(), time.Now())
	if c.cfg.QuotaWarnRemaining > 0 && quota.Remaining > 0 && quota.Remaining < c.cfg.QuotaWarnRemaining {
		c.logger.Warn("odds API quota running low", "remaining", quota.Remaining)
	}

	return events, quota, nil
}

func parseQuota(h http.Header, now time.Time) Quota {
	q := Quota{FetchedAt: now}
	if v := h.Get("X-Requests-Used"); v != "" {
		q.Used, _ = strconv.Atoi(v)
	}
	if v := h.Get("X-Requests-Remaining"); v != "" {
		q.Remaining, _ = strconv.Atoi(v)
	}
	return q
}
