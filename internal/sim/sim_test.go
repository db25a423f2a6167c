package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/brabsmit/kalshi-arb/pkg/types"
)

func certainFills() Config {
	return Config{
		LatencyMs:      500,
		TakerFillRate:  1.0,
		MakerFillRate:  1.0,
		SlipMean:       0,
		SlipStd:        0,
		MaxHoldSeconds: 300,
	}
}

func takerSignal(price, qty int) types.Signal {
	return types.Signal{Action: types.ActionTakerBuy, Price: price, Quantity: qty, Edge: 10}
}

func trace(ticker string, fair int) types.SignalTrace {
	return types.SignalTrace{
		Sport:  "NBA",
		Ticker: ticker,
		Method: types.MethodScoreFeed,
		Fair:   fair,
	}
}

func fixedQuotes(bid, ask int) QuoteFunc {
	return func(string) (int, int) { return bid, ask }
}

func TestTakerEntryFills(t *testing.T) {
	t.Parallel()
	s := New(certainFills(), 1, 100_000)
	now := time.Now()

	if err := s.Submit(now, takerSignal(60, 5), trace("T1", 70)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Before latency elapses nothing settles.
	if evts := s.Advance(now.Add(100*time.Millisecond), fixedQuotes(55, 60)); len(evts) != 0 {
		t.Fatalf("settled before latency: %v", evts)
	}

	evts := s.Advance(now.Add(time.Second), fixedQuotes(55, 60))
	if len(evts) != 1 || evts[0].Kind != EventEntryFilled {
		t.Fatalf("events = %+v, want one entry_filled", evts)
	}

	c := s.Counters()
	if c.EntriesAttempted != 1 || c.EntriesFilled != 1 {
		t.Errorf("counters = %+v", c)
	}
	if got := len(s.Positions()); got != 1 {
		t.Errorf("open positions = %d, want 1", got)
	}
	if s.Balance() >= 100_000 {
		t.Error("balance should decrease after a fill")
	}
}

func TestTakerEntryMissedWhenAskMovesPastFair(t *testing.T) {
	t.Parallel()
	s := New(certainFills(), 1, 100_000)
	now := time.Now()

	// Signal fired at ask 60 with fair 61; after latency the ask is 62.
	if err := s.Submit(now, takerSignal(60, 5), trace("T1", 61)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	evts := s.Advance(now.Add(time.Second), fixedQuotes(55, 62))
	if len(evts) != 1 || evts[0].Kind != EventEntryMissed {
		t.Fatalf("events = %+v, want entry_missed", evts)
	}

	c := s.Counters()
	if c.EntriesMissed != 1 || c.EntriesFilled != 0 {
		t.Errorf("counters = %+v", c)
	}
	if len(s.Positions()) != 0 {
		t.Error("no position should open on a miss")
	}
}

func TestDuplicateEntryRejected(t *testing.T) {
	t.Parallel()
	s := New(certainFills(), 1, 100_000)
	now := time.Now()

	if err := s.Submit(now, takerSignal(60, 5), trace("T1", 70)); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := s.Submit(now, takerSignal(60, 5), trace("T1", 70)); !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("second submit err = %v, want ErrDuplicateEntry", err)
	}

	// Also rejected while a position is open.
	s.Advance(now.Add(time.Second), fixedQuotes(55, 60))
	if err := s.Submit(now.Add(2*time.Second), takerSignal(60, 5), trace("T1", 70)); !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("submit with open position err = %v", err)
	}
}

func TestBreakEvenRejection(t *testing.T) {
	t.Parallel()
	s := New(certainFills(), 1, 100_000)
	now := time.Now()

	// Entry at 99 cents: break-even would exceed the 95-cent cap.
	if err := s.Submit(now, takerSignal(99, 5), trace("T1", 99)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	evts := s.Advance(now.Add(time.Second), fixedQuotes(98, 99))
	if len(evts) != 1 || evts[0].Kind != EventEntryRejected {
		t.Fatalf("events = %+v, want entry_rejected", evts)
	}
	if c := s.Counters(); c.EntriesRejected != 1 {
		t.Errorf("counters = %+v", c)
	}
}

func TestMakerEntryFillsAtIntendedPrice(t *testing.T) {
	t.Parallel()
	s := New(certainFills(), 1, 100_000)
	now := time.Now()

	sig := types.Signal{Action: types.ActionMakerBuy, Price: 53, Quantity: 10}
	if err := s.Submit(now, sig, trace("T1", 58)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	evts := s.Advance(now.Add(time.Second), fixedQuotes(52, 54))
	if len(evts) != 1 || evts[0].Kind != EventEntryFilled {
		t.Fatalf("events = %+v", evts)
	}
	pos := s.Positions()[0]
	if pos.EntryPrice != 53 {
		t.Errorf("maker fill price = %d, want 53 (no slippage)", pos.EntryPrice)
	}
	if c := s.Counters(); c.EntrySlippageCents != 0 {
		t.Errorf("maker entry slippage = %d, want 0", c.EntrySlippageCents)
	}
}

func TestMakerExitAtTarget(t *testing.T) {
	t.Parallel()
	s := New(certainFills(), 1, 100_000)
	now := time.Now()

	s.Submit(now, takerSignal(60, 5), trace("T1", 70))
	s.Advance(now.Add(time.Second), fixedQuotes(55, 60))
	pos := s.Positions()[0]

	// Bid reaches the sell target → maker exit fills.
	evts := s.Advance(now.Add(2*time.Second), fixedQuotes(pos.SellTarget, pos.SellTarget+2))
	if len(evts) != 1 || evts[0].Kind != EventExitFilled {
		t.Fatalf("events = %+v, want exit_filled", evts)
	}
	if evts[0].PnL <= 0 {
		t.Errorf("exit at target should profit, pnl = %d", evts[0].PnL)
	}
	c := s.Counters()
	if c.ExitsFilled != 1 || c.ExitsPending != 0 {
		t.Errorf("counters = %+v", c)
	}
	if c.RealizedPnLCents != evts[0].PnL {
		t.Errorf("realized = %d, want %d", c.RealizedPnLCents, evts[0].PnL)
	}
}

func TestMakerExitRequiresPriceThrough(t *testing.T) {
	t.Parallel()
	cfg := certainFills()
	cfg.MakerRequirePriceThrough = true
	s := New(cfg, 1, 100_000)
	now := time.Now()

	s.Submit(now, takerSignal(60, 5), trace("T1", 70))
	s.Advance(now.Add(time.Second), fixedQuotes(55, 60))
	pos := s.Positions()[0]

	// Bid exactly at target: not through, no exit.
	if evts := s.Advance(now.Add(2*time.Second), fixedQuotes(pos.SellTarget, 0)); len(evts) != 0 {
		t.Fatalf("exit fired without price-through: %+v", evts)
	}
	// One cent through: exit.
	if evts := s.Advance(now.Add(3*time.Second), fixedQuotes(pos.SellTarget+1, 0)); len(evts) != 1 {
		t.Fatal("exit should fire one cent through target")
	}
}

func TestForcedExitOnTimeout(t *testing.T) {
	t.Parallel()
	s := New(certainFills(), 1, 100_000)
	now := time.Now()

	s.Submit(now, takerSignal(60, 5), trace("T1", 70))
	s.Advance(now.Add(time.Second), fixedQuotes(55, 60))

	// Bid never reaches target; past max hold the position is dumped at bid.
	late := now.Add(time.Duration(certainFills().MaxHoldSeconds+10) * time.Second)
	evts := s.Advance(late, fixedQuotes(58, 61))
	if len(evts) != 1 || evts[0].Kind != EventExitTimedOut {
		t.Fatalf("events = %+v, want exit_timed_out", evts)
	}
	if evts[0].PnL >= 0 {
		t.Errorf("forced exit below entry should lose, pnl = %d", evts[0].PnL)
	}
	if c := s.Counters(); c.ExitsTimedOut != 1 {
		t.Errorf("counters = %+v", c)
	}
}

func TestZeroFillRateMisses(t *testing.T) {
	t.Parallel()
	cfg := certainFills()
	cfg.TakerFillRate = 0
	s := New(cfg, 1, 100_000)
	now := time.Now()

	s.Submit(now, takerSignal(60, 5), trace("T1", 70))
	evts := s.Advance(now.Add(time.Second), fixedQuotes(55, 60))
	if len(evts) != 1 || evts[0].Kind != EventEntryMissed {
		t.Fatalf("events = %+v, want entry_missed with zero fill rate", evts)
	}
}
