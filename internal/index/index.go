// Package index builds the in-memory catalog of tradeable contracts, keyed
// by (sport, game date, team pair).
//
// The index is populated once at startup by paginating the venue catalog for
// every enabled sport's series and is read-only afterwards — pipelines look
// games up without locking. Duplicate keys caused by normalised-name
// collisions are tolerated but logged.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brabsmit/kalshi-arb/internal/config"
	"github.com/brabsmit/kalshi-arb/internal/match"
	"github.com/brabsmit/kalshi-arb/internal/venue"
	"github.com/brabsmit/kalshi-arb/pkg/types"
)

// CatalogClient is the slice of the venue client the index needs.
type CatalogClient interface {
	GetMarkets(ctx context.Context, seriesTicker, status string) ([]venue.Market, error)
}

// Game is one indexed fixture with up to three side contracts.
type Game struct {
	Key  match.GameKey
	Home *types.Contract
	Away *types.Contract
	Draw *types.Contract // 3-way sports only
}

// Sides returns the non-nil side contracts in evaluation order.
func (g *Game) Sides() []*types.Contract {
	out := make([]*types.Contract, 0, 3)
	if g.Home != nil {
		out = append(out, g.Home)
	}
	if g.Away != nil {
		out = append(out, g.Away)
	}
	if g.Draw != nil {
		out = append(out, g.Draw)
	}
	return out
}

// Index is the immutable game catalog.
type Index struct {
	games    map[match.GameKey]*Game
	byTicker map[string]*types.Contract
}

// Build paginates the catalog for every enabled sport and keys each open
// contract under its canonical game.
func Build(ctx context.Context, client CatalogClient, cfg *config.Config, logger *slog.Logger) (*Index, error) {
	loc, err := time.LoadLocation(cfg.Venue.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading market timezone: %w", err)
	}

	log := logger.With("component", "index")
	idx := &Index{
		games:    make(map[match.GameKey]*Game),
		byTicker: make(map[string]*types.Contract),
	}

	for _, sportID := range cfg.SortedSportIDs() {
		sport := cfg.Sports[sportID]
		if !sport.Enabled {
			continue
		}

		markets, err := client.GetMarkets(ctx, sport.SeriesPrefix, "open")
		if err != nil {
			return nil, fmt.Errorf("catalog for %s: %w", sportID, err)
		}

		added := 0
		for _, m := range markets {
			if idx.addMarket(sportID, sport, m, loc, log) {
				added++
			}
		}
		log.Info("sport indexed", "sport", sportID, "markets", len(markets), "contracts", added)
	}

	return idx, nil
}

func (idx *Index) addMarket(sportID string, sport config.SportConfig, m venue.Market, loc *time.Location, log *slog.Logger) bool {
	away, home, err := match.ParseTitle(m.Title)
	if err != nil {
		log.Debug("skipping unparseable title", "ticker", m.Ticker, "error", err)
		return false
	}
	if sport.MMA {
		away = match.LastName(away)
		home = match.LastName(home)
	}

	exp, err := m.ExpirationParsed()
	if err != nil {
		log.Warn("skipping market with bad expiration", "ticker", m.Ticker, "error", err)
		return false
	}
	date := exp.In(loc).Format("2006-01-02")

	parts, err := match.ParseTicker(m.Ticker)
	if err != nil {
		log.Warn("skipping undecodable ticker", "ticker", m.Ticker, "error", err)
		return false
	}

	key := match.GenerateKey(sportID, date, away, home)
	game, ok := idx.games[key]
	if !ok {
		game = &Game{Key: key}
		idx.games[key] = game
	}

	contract := &types.Contract{
		Ticker:      m.Ticker,
		EventTicker: m.EventTicker,
		Title:       m.Title,
		Status:      m.Status,
		CloseTime:   exp,
		YesBid:      venue.Cents(m.YesBid),
		YesAsk:      venue.Cents(m.YesAsk),
		Side:        parts.Side,
	}

	switch parts.Side {
	case types.SideAway:
		if game.Away != nil {
			log.Warn("duplicate away side for game key", "key", fmt.Sprintf("%v", key), "ticker", m.Ticker)
		}
		game.Away = contract
	case types.SideHome:
		if game.Home != nil {
			log.Warn("duplicate home side for game key", "key", fmt.Sprintf("%v", key), "ticker", m.Ticker)
		}
		game.Home = contract
	case types.SideDraw:
		if !sport.ThreeWay {
			log.Warn("draw ticker for a 2-way sport", "ticker", m.Ticker)
			return false
		}
		if game.Draw != nil {
			log.Warn("duplicate draw side for game key", "key", fmt.Sprintf("%v", key), "ticker", m.Ticker)
		}
		game.Draw = contract
	}

	idx.byTicker[m.Ticker] = contract
	return true
}

// Lookup finds a game by key.
func (idx *Index) Lookup(key match.GameKey) (*Game, bool) {
	g, ok := idx.games[key]
	return g, ok
}

// Contract finds one contract by ticker.
func (idx *Index) Contract(ticker string) (*types.Contract, bool) {
	c, ok := idx.byTicker[ticker]
	return c, ok
}

// Tickers lists every indexed ticker (for WebSocket subscription).
func (idx *Index) Tickers() []string {
	out := make([]string, 0, len(idx.byTicker))
	for t := range idx.byTicker {
		out = append(out, t)
	}
	return out
}

// Len returns the number of indexed games.
func (idx *Index) Len() int { return len(idx.games) }
