// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the engine — contract metadata,
// trade signals, simulated positions, and WebSocket event payloads. It has no
// dependencies on internal packages, so it can be imported by any layer.
//
// All prices are integer cents in [0, 100] where 0 means "unknown". A YES
// contract settles at 100 cents if the outcome occurs, 0 otherwise.
package types

import (
	"encoding/json"
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Action is the decision produced by the strategy evaluator for one contract.
type Action string

const (
	ActionSkip     Action = "SKIP"      // no trade this tick
	ActionTakerBuy Action = "TAKER_BUY" // cross the spread at the ask
	ActionMakerBuy Action = "MAKER_BUY" // rest a bid one tick above best bid
)

// FairValueMethod identifies which estimator produced a fair value.
type FairValueMethod string

const (
	MethodScoreFeed FairValueMethod = "score-feed" // win-probability model over a live score
	MethodOddsFeed  FairValueMethod = "odds-feed"  // devigged sportsbook moneylines
)

// GameStatus is the normalised lifecycle phase of an external fixture.
type GameStatus int

const (
	StatusPreGame GameStatus = iota
	StatusLive
	StatusHalftime
	StatusFinished
)

func (s GameStatus) String() string {
	switch s {
	case StatusPreGame:
		return "pregame"
	case StatusLive:
		return "live"
	case StatusHalftime:
		return "halftime"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// MarketSide distinguishes the outcomes a fixture can settle to.
type MarketSide string

const (
	SideHome MarketSide = "home"
	SideAway MarketSide = "away"
	SideDraw MarketSide = "draw" // 3-way sports only
)

// ————————————————————————————————————————————————————————————————————————
// Contracts
// ————————————————————————————————————————————————————————————————————————

// Contract is a single YES/NO binary instrument on the venue.
// Owned by the market index; pipelines and the depth book refer to it only
// by ticker.
type Contract struct {
	Ticker      string     // opaque venue ticker, e.g. "KXNBAGAME-25DEC25LALBOS-LAL"
	EventTicker string     // groups the sides of one fixture
	Title       string     // venue display title, e.g. "Lakers at Celtics Winner?"
	Status      string     // "open" | "closed"
	CloseTime   time.Time  // scheduled close
	YesBid      int        // last-known best bid in cents, 0 = unknown
	YesAsk      int        // last-known best ask in cents, 0 = unknown
	Side        MarketSide // which outcome this ticker pays on
	Inverse     bool       // true when the ticker is the NO convention of its event
}

// ————————————————————————————————————————————————————————————————————————
// Signals and traces
// ————————————————————————————————————————————————————————————————————————

// Signal is the output of the strategy evaluator for one contract, possibly
// transformed by the momentum gate before execution.
type Signal struct {
	Action   Action
	Price    int // cents; entry price for buys, 0 for skip
	Quantity int // contracts
	Edge     int // fair − ask at decision time, cents
	EstNet   int // estimated net profit after fees, cents
}

// ScoreInputs records the raw score-feed state behind a fair value.
type ScoreInputs struct {
	HomeScore      int `json:"home_score"`
	AwayScore      int `json:"away_score"`
	Period         int `json:"period"`
	ElapsedSeconds int `json:"elapsed_seconds"`
}

// OddsInputs records the raw sportsbook odds behind a fair value.
type OddsInputs struct {
	Bookmaker    string  `json:"bookmaker"`
	HomeAmerican float64 `json:"home_american"`
	AwayAmerican float64 `json:"away_american"`
	DrawAmerican float64 `json:"draw_american,omitempty"`
	Devigged     float64 `json:"devigged"` // fair probability for this side, 0–1
}

// SignalTrace is the immutable provenance record attached to every simulated
// or live order — enough to reconstruct why the engine acted.
type SignalTrace struct {
	Sport     string          `json:"sport"`
	Ticker    string          `json:"ticker"`
	Timestamp time.Time       `json:"timestamp"`
	Method    FairValueMethod `json:"method"`
	Source    string          `json:"source"` // odds source or score provider name
	Fair      int             `json:"fair"`

	Score *ScoreInputs `json:"score,omitempty"` // exactly one of Score / Odds is set
	Odds  *OddsInputs  `json:"odds,omitempty"`

	BestBid  int    `json:"best_bid"`
	BestAsk  int    `json:"best_ask"`
	Edge     int    `json:"edge"`
	Action   Action `json:"action"`
	EstNet   int    `json:"est_net"`
	Quantity int    `json:"quantity"`
	Momentum int    `json:"momentum"` // composite score 0–100
	Gated    bool   `json:"gated"`    // true if the momentum gate modified the action
}

// ————————————————————————————————————————————————————————————————————————
// Positions and orders
// ————————————————————————————————————————————————————————————————————————

// SimPosition is an open simulated position created by a successful fill.
type SimPosition struct {
	ID          string      `json:"id"`
	Ticker      string      `json:"ticker"`
	Quantity    int         `json:"quantity"`
	EntryPrice  int         `json:"entry_price"`  // actual fill price after latency + slippage
	ObservedAsk int         `json:"observed_ask"` // ask when the signal fired (slippage accounting)
	EntryFee    int         `json:"entry_fee"`    // cents
	SellTarget  int         `json:"sell_target"`  // cents; maker exit trigger
	FilledAt    time.Time   `json:"filled_at"`
	Trace       SignalTrace `json:"trace"`
}

// CostCents is the gross entry cost plus entry fee.
func (p SimPosition) CostCents() int {
	return p.EntryPrice*p.Quantity + p.EntryFee
}

// PendingOrder is a submitted-but-unfilled entry. At most one exists per
// ticker, which prevents double-submission while latency elapses.
type PendingOrder struct {
	ID          string      `json:"id"`
	Ticker      string      `json:"ticker"`
	Quantity    int         `json:"quantity"`
	Price       int         `json:"price"`
	Taker       bool        `json:"taker"`
	SubmittedAt time.Time   `json:"submitted_at"`
	Trace       SignalTrace `json:"trace"`
}

// ————————————————————————————————————————————————————————————————————————
// WebSocket messages
// ————————————————————————————————————————————————————————————————————————
// These structs map 1:1 to the JSON messages on the venue WebSocket.
// Every message carries a monotonic sequence number; a gap forces a full
// resubscribe rather than partial repair.

// WSEnvelope is the outer frame of every incoming venue message.
type WSEnvelope struct {
	Type string          `json:"type"` // "orderbook_snapshot" | "orderbook_delta" | "error"
	Seq  int64           `json:"seq"`
	Msg  json.RawMessage `json:"msg"`
}

// WSOrderbookSnapshot replaces the full book for one ticker.
// Levels are [price, quantity] pairs in cents/contracts.
type WSOrderbookSnapshot struct {
	Ticker string  `json:"market_ticker"`
	Yes    [][]int `json:"yes"`
	No     [][]int `json:"no"`
}

// WSOrderbookDelta is an incremental signed-quantity change at one price.
type WSOrderbookDelta struct {
	Ticker string `json:"market_ticker"`
	Price  int    `json:"price"`
	Delta  int    `json:"delta"`
	Side   string `json:"side"` // "yes" or "no"
}

// WSError is a venue-reported subscription or protocol error.
type WSError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// WSCommand is the outgoing subscribe/unsubscribe frame.
type WSCommand struct {
	ID     int      `json:"id"`
	Cmd    string   `json:"cmd"` // "subscribe" | "unsubscribe"
	Params WSParams `json:"params"`
}

// WSParams selects channels and tickers for a WSCommand.
type WSParams struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers"`
}
