package strategy

import (
	"testing"

	"github.com/brabsmit/kalshi-arb/pkg/types"
)

func defaultThresholds() Thresholds {
	return Thresholds{TakerEdge: 5, MakerEdge: 2, MinNet: 1}
}

func baseInputs() Inputs {
	return Inputs{
		BankrollCents: 100_000, // $1000
		KellyFraction: 0.25,
		MaxContracts:  100,
	}
}

func TestEvaluateSkipsUnknownQuote(t *testing.T) {
	t.Parallel()
	in := baseInputs()
	in.Fair = 57
	in.Bid, in.Ask = 0, 0
	if sig := Evaluate(in, defaultThresholds()); sig.Action != types.ActionSkip {
		t.Errorf("unknown ask: action = %v, want skip", sig.Action)
	}

	in.Fair = 0
	in.Bid, in.Ask = 50, 55
	if sig := Evaluate(in, defaultThresholds()); sig.Action != types.ActionSkip {
		t.Errorf("unknown fair: action = %v, want skip", sig.Action)
	}
}

func TestEvaluateSkipsBelowMakerEdge(t *testing.T) {
	t.Parallel()
	in := baseInputs()
	in.Fair, in.Bid, in.Ask = 55, 53, 54
	sig := Evaluate(in, defaultThresholds())
	if sig.Action != types.ActionSkip {
		t.Errorf("edge 1: action = %v, want skip", sig.Action)
	}
	if sig.Edge != 1 {
		t.Errorf("edge = %d, want 1", sig.Edge)
	}
}

func TestEvaluateTakerPath(t *testing.T) {
	t.Parallel()
	// Score-feed scenario: home fair 95, bid 50 / ask 60 → TakerBuy at 60
	// with at least 20 contracts and positive net.
	in := baseInputs()
	in.Fair, in.Bid, in.Ask = 95, 50, 60
	sig := Evaluate(in, defaultThresholds())

	if sig.Action != types.ActionTakerBuy {
		t.Fatalf("action = %v, want taker buy", sig.Action)
	}
	if sig.Price != 60 {
		t.Errorf("price = %d, want 60", sig.Price)
	}
	if sig.Quantity < 20 {
		t.Errorf("quantity = %d, want >= 20", sig.Quantity)
	}
	if sig.EstNet <= 0 {
		t.Errorf("net = %d, want > 0", sig.EstNet)
	}
	if sig.Edge != 35 {
		t.Errorf("edge = %d, want 35", sig.Edge)
	}
}

func TestEvaluateMakerPath(t *testing.T) {
	t.Parallel()
	// Odds-feed NHL scenario: home fair 58, bid 52 / ask 54 → edge 4 below
	// the taker threshold, MakerBuy at bid+1 = 53.
	in := baseInputs()
	in.Fair, in.Bid, in.Ask = 58, 52, 54
	sig := Evaluate(in, defaultThresholds())

	if sig.Action != types.ActionMakerBuy {
		t.Fatalf("action = %v, want maker buy", sig.Action)
	}
	if sig.Price != 53 {
		t.Errorf("price = %d, want 53", sig.Price)
	}
	if sig.Quantity < 1 {
		t.Errorf("quantity = %d, want >= 1", sig.Quantity)
	}
}

func TestEvaluateMakerBidCappedAt99(t *testing.T) {
	t.Parallel()
	in := baseInputs()
	in.Fair, in.Bid, in.Ask = 99, 99, 97
	sig := Evaluate(in, defaultThresholds())
	if sig.Action == types.ActionMakerBuy && sig.Price > 99 {
		t.Errorf("maker price = %d, want <= 99", sig.Price)
	}
}

func TestEvaluateQuantityCapped(t *testing.T) {
	t.Parallel()
	in := baseInputs()
	in.Fair, in.Bid, in.Ask = 95, 50, 60
	in.MaxContracts = 7
	sig := Evaluate(in, defaultThresholds())
	if sig.Quantity != 7 {
		t.Errorf("quantity = %d, want cap 7", sig.Quantity)
	}
}

func TestEvaluateNetBelowMinSkips(t *testing.T) {
	t.Parallel()
	// Tiny bankroll forces qty 1; a 2-cent gross edge at mid prices cannot
	// clear fees plus a large MinNet.
	in := baseInputs()
	in.Fair, in.Bid, in.Ask = 52, 49, 50
	in.BankrollCents = 100
	th := defaultThresholds()
	th.MinNet = 50
	if sig := Evaluate(in, th); sig.Action != types.ActionSkip {
		t.Errorf("action = %v, want skip when net below MinNet", sig.Action)
	}
}
