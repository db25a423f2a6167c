// Package sim advances virtual positions through a realistic execution
// model: latency-delayed entries with adverse slippage, probabilistic maker
// fills, break-even validation before any position opens, and forced taker
// exits on timeout.
//
// The simulator is tick-driven. Submit records a pending entry; Advance,
// called once per scheduler iteration (and on book updates), re-checks
// quotes after the configured latency has virtually elapsed and rolls fills.
// All state lives behind one mutex; the RNG is seeded so tests are
// deterministic.
package sim

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brabsmit/kalshi-arb/internal/fees"
	"github.com/brabsmit/kalshi-arb/pkg/types"
)

// ErrDuplicateEntry reports an entry attempt on a ticker that already has a
// pending order or an open position.
var ErrDuplicateEntry = errors.New("entry already pending or open for ticker")

const (
	maxSlipCents  = 3  // adverse slippage clamp
	maxSellTarget = 95 // break-even above this aborts the entry
)

// Config tunes the execution realism.
type Config struct {
	LatencyMs                int     // signal → exchange delay
	TakerFillRate            float64 // probability a taker entry fills after latency
	MakerFillRate            float64 // probability a resting order fills per opportunity
	SlipMean                 float64 // adverse slippage distribution, cents
	SlipStd                  float64
	MaxHoldSeconds           int  // forced taker exit after this hold time
	MakerRequirePriceThrough bool // exit needs bid strictly through the target
}

// Counters aggregate execution outcomes for the state snapshot.
type Counters struct {
	EntriesAttempted   int `json:"entries_attempted"`
	EntriesFilled      int `json:"entries_filled"`
	EntriesMissed      int `json:"entries_missed"`
	EntriesRejected    int `json:"entries_rejected"`
	ExitsFilled        int `json:"exits_filled"`
	ExitsTimedOut      int `json:"exits_timed_out"`
	ExitsPending       int `json:"exits_pending"`
	EntrySlippageCents int `json:"entry_slippage_cents"`
	ExitSlippageCents  int `json:"exit_slippage_cents"`
	RealizedPnLCents   int `json:"realized_pnl_cents"`
}

// EventKind labels one execution outcome.
type EventKind string

const (
	EventEntryFilled   EventKind = "entry_filled"
	EventEntryMissed   EventKind = "entry_missed"
	EventEntryRejected EventKind = "entry_rejected"
	EventExitFilled    EventKind = "exit_filled"
	EventExitTimedOut  EventKind = "exit_timed_out"
)

// Event is emitted by Advance for each completed transition.
type Event struct {
	Kind       EventKind
	Ticker     string
	Price      int // fill price (entries) or exit price (exits)
	EntryPrice int // exits: the position's original entry price
	Quantity   int
	PnL        int // cents, exits only
	Trace      types.SignalTrace
}

// QuoteFunc returns the current best YES bid/ask for a ticker (0 = unknown).
type QuoteFunc func(ticker string) (bid, ask int)

// Simulator owns all virtual positions and pending orders.
type Simulator struct {
	cfg Config
	rng *rand.Rand

	mu        sync.Mutex
	pending   map[string]types.PendingOrder
	positions map[string]types.SimPosition
	counters  Counters
	balance   int // simulated bankroll, cents
}

// New creates a simulator with a seeded RNG and a starting bankroll.
func New(cfg Config, seed int64, startingBalanceCents int) *Simulator {
	return &Simulator{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(seed)),
		pending:   make(map[string]types.PendingOrder),
		positions: make(map[string]types.SimPosition),
		balance:   startingBalanceCents,
	}
}

// Submit records a pending entry for a buy signal. At most one entry may be
// in flight or open per ticker.
func (s *Simulator) Submit(now time.Time, sig types.Signal, trace types.SignalTrace) error {
	if sig.Action != types.ActionTakerBuy && sig.Action != types.ActionMakerBuy {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[trace.Ticker]; ok {
		return ErrDuplicateEntry
	}
	if _, ok := s.positions[trace.Ticker]; ok {
		return ErrDuplicateEntry
	}

	s.counters.EntriesAttempted++
	s.pending[trace.Ticker] = types.PendingOrder{
		ID:          uuid.NewString(),
		Ticker:      trace.Ticker,
		Quantity:    sig.Quantity,
		Price:       sig.Price,
		Taker:       sig.Action == types.ActionTakerBuy,
		SubmittedAt: now,
		Trace:       trace,
	}
	return nil
}

// Advance processes pending entries whose latency has elapsed and checks
// every open position for a maker or forced exit. Returns the events that
// occurred.
func (s *Simulator) Advance(now time.Time, quotes QuoteFunc) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []Event
	latency := time.Duration(s.cfg.LatencyMs) * time.Millisecond
	maxHold := time.Duration(s.cfg.MaxHoldSeconds) * time.Second

	// Snapshot open positions first: an entry settling this call must not be
	// exit-checked until the next book update.
	open := make([]types.SimPosition, 0, len(s.positions))
	for _, pos := range s.positions {
		open = append(open, pos)
	}

	for ticker, order := range s.pending {
		if now.Sub(order.SubmittedAt) < latency {
			continue
		}
		if order.Taker {
			events = append(events, s.settleTakerEntry(now, ticker, order, quotes))
			continue
		}
		if evt, done := s.settleMakerEntry(now, ticker, order, maxHold); done {
			events = append(events, evt)
		}
	}

	for _, pos := range open {
		if _, still := s.positions[pos.Ticker]; !still {
			continue
		}
		bid, _ := quotes(pos.Ticker)
		if evt, done := s.tryExit(now, pos.Ticker, pos, bid, maxHold); done {
			events = append(events, evt)
		}
	}

	return events
}

// settleTakerEntry re-checks the ask after latency. A move past fair means
// the opportunity is gone; otherwise the fill rolls at TakerFillRate with
// adverse slippage added to the current ask.
func (s *Simulator) settleTakerEntry(now time.Time, ticker string, order types.PendingOrder, quotes QuoteFunc) Event {
	delete(s.pending, ticker)

	_, ask := quotes(ticker)
	if ask == 0 || ask > order.Trace.Fair {
		s.counters.EntriesMissed++
		return Event{Kind: EventEntryMissed, Ticker: ticker, Price: ask, Quantity: order.Quantity, Trace: order.Trace}
	}
	if s.rng.Float64() > s.cfg.TakerFillRate {
		s.counters.EntriesMissed++
		return Event{Kind: EventEntryMissed, Ticker: ticker, Price: ask, Quantity: order.Quantity, Trace: order.Trace}
	}

	slip := s.adverseSlip()
	fillPrice := ask + slip
	if fillPrice > 99 {
		fillPrice = 99
	}
	entryFee := fees.Taker(fillPrice, order.Quantity)

	return s.openPosition(now, ticker, order, fillPrice, entryFee, fillPrice-order.Price)
}

// settleMakerEntry rolls a resting order each opportunity. Unfilled orders
// stay pending until they fill or age out as missed.
func (s *Simulator) settleMakerEntry(now time.Time, ticker string, order types.PendingOrder, maxHold time.Duration) (Event, bool) {
	if maxHold > 0 && now.Sub(order.SubmittedAt) > maxHold {
		delete(s.pending, ticker)
		s.counters.EntriesMissed++
		return Event{Kind: EventEntryMissed, Ticker: ticker, Price: order.Price, Quantity: order.Quantity, Trace: order.Trace}, true
	}
	if s.rng.Float64() > s.cfg.MakerFillRate {
		return Event{}, false
	}

	delete(s.pending, ticker)
	entryFee := fees.Maker(order.Price, order.Quantity)
	return s.openPosition(now, ticker, order, order.Price, entryFee, 0), true
}

// openPosition validates break-even (taker-exit assumption) and records the
// position. Break-even failure or a solution above 95 cents aborts.
func (s *Simulator) openPosition(now time.Time, ticker string, order types.PendingOrder, fillPrice, entryFee, slip int) Event {
	cost := fillPrice*order.Quantity + entryFee
	breakEven, ok := fees.BreakEven(cost, order.Quantity, fees.ExitTaker)
	if !ok || breakEven > maxSellTarget {
		s.counters.EntriesRejected++
		return Event{Kind: EventEntryRejected, Ticker: ticker, Price: fillPrice, Quantity: order.Quantity, Trace: order.Trace}
	}

	target := order.Trace.Fair
	if target < breakEven {
		target = breakEven
	}

	s.positions[ticker] = types.SimPosition{
		ID:          uuid.NewString(),
		Ticker:      ticker,
		Quantity:    order.Quantity,
		EntryPrice:  fillPrice,
		ObservedAsk: order.Price,
		EntryFee:    entryFee,
		SellTarget:  target,
		FilledAt:    now,
		Trace:       order.Trace,
	}
	s.counters.EntriesFilled++
	s.counters.EntrySlippageCents += slip
	s.balance -= cost

	return Event{Kind: EventEntryFilled, Ticker: ticker, Price: fillPrice, Quantity: order.Quantity, Trace: order.Trace}
}

// tryExit checks the maker exit trigger, then the hold-time limit.
func (s *Simulator) tryExit(now time.Time, ticker string, pos types.SimPosition, bid int, maxHold time.Duration) (Event, bool) {
	crossed := bid >= pos.SellTarget
	if s.cfg.MakerRequirePriceThrough {
		crossed = bid > pos.SellTarget
	}

	if bid > 0 && crossed && s.rng.Float64() <= s.cfg.MakerFillRate {
		proceeds := pos.SellTarget*pos.Quantity - fees.Maker(pos.SellTarget, pos.Quantity)
		pnl := proceeds - pos.CostCents()
		delete(s.positions, ticker)
		s.counters.ExitsFilled++
		s.counters.RealizedPnLCents += pnl
		s.balance += proceeds
		return Event{Kind: EventExitFilled, Ticker: ticker, Price: pos.SellTarget, EntryPrice: pos.EntryPrice, Quantity: pos.Quantity, PnL: pnl, Trace: pos.Trace}, true
	}

	if maxHold > 0 && now.Sub(pos.FilledAt) > maxHold && bid > 0 {
		slip := s.adverseSlip()
		price := bid - slip
		if price < 1 {
			price = 1
		}
		proceeds := price*pos.Quantity - fees.Taker(price, pos.Quantity)
		pnl := proceeds - pos.CostCents()
		delete(s.positions, ticker)
		s.counters.ExitsTimedOut++
		s.counters.ExitSlippageCents += bid - price
		s.counters.RealizedPnLCents += pnl
		s.balance += proceeds
		return Event{Kind: EventExitTimedOut, Ticker: ticker, Price: price, EntryPrice: pos.EntryPrice, Quantity: pos.Quantity, PnL: pnl, Trace: pos.Trace}, true
	}

	return Event{}, false
}

// adverseSlip draws clamp(Normal(μ, σ), 0, 3) rounded to whole cents.
func (s *Simulator) adverseSlip() int {
	v := s.rng.NormFloat64()*s.cfg.SlipStd + s.cfg.SlipMean
	if v < 0 {
		v = 0
	}
	if v > maxSlipCents {
		v = maxSlipCents
	}
	return int(v + 0.5)
}

// HasExposure reports whether a ticker has a pending entry or open position.
func (s *Simulator) HasExposure(ticker string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, pending := s.pending[ticker]
	_, open := s.positions[ticker]
	return pending || open
}

// Positions returns a copy of all open positions.
func (s *Simulator) Positions() []types.SimPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.SimPosition, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out
}

// Counters returns the counter snapshot; ExitsPending reflects the number of
// currently open positions.
func (s *Simulator) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counters
	c.ExitsPending = len(s.positions)
	return c
}

// Balance returns the simulated bankroll in cents.
func (s *Simulator) Balance() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}
