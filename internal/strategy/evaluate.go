// Package strategy turns a fair value and a quote into an action.
//
// The evaluator compares the engine's fair value against the venue's best
// bid/ask, sizes the position with fractional Kelly, and nets out both legs
// of fees before deciding between crossing the spread (TakerBuy), resting a
// bid one tick above the current best (MakerBuy), or doing nothing.
package strategy

import (
	"github.com/brabsmit/kalshi-arb/internal/fees"
	"github.com/brabsmit/kalshi-arb/internal/prob"
	"github.com/brabsmit/kalshi-arb/pkg/types"
)

// Thresholds are the minimum edges, in cents, for each path.
type Thresholds struct {
	TakerEdge int // gross edge required to cross the spread
	MakerEdge int // gross edge required to rest a bid
	MinNet    int // net profit after fees required for any trade
}

// Inputs is everything the evaluator needs for one contract.
type Inputs struct {
	Fair          int // cents, 0 = unknown
	Bid           int // best YES bid, 0 = unknown
	Ask           int // best YES ask, 0 = unknown
	BankrollCents int
	KellyFraction float64
	MaxContracts  int // per-market cap applied to the Kelly size
}

// Evaluate selects TakerBuy, MakerBuy, or Skip.
//
// The taker path assumes a maker exit at fair; the maker path pays maker
// fees on both legs. Both paths must clear MinNet after fees; the taker path
// additionally needs edge ≥ TakerEdge, the maker path edge ≥ MakerEdge.
func Evaluate(in Inputs, th Thresholds) types.Signal {
	if in.Ask == 0 || in.Fair == 0 {
		return types.Signal{Action: types.ActionSkip}
	}

	edge := in.Fair - in.Ask
	if edge < th.MakerEdge {
		return types.Signal{Action: types.ActionSkip, Edge: edge}
	}

	qtyT := capQty(prob.KellySize(in.Fair, in.Ask, in.BankrollCents, in.KellyFraction), in.MaxContracts)
	netT := (in.Fair-in.Ask)*qtyT - fees.Taker(in.Ask, qtyT) - fees.Maker(in.Fair, qtyT)

	bidUp := in.Bid + 1
	if bidUp > 99 {
		bidUp = 99
	}
	qtyM := capQty(prob.KellySize(in.Fair, bidUp, in.BankrollCents, in.KellyFraction), in.MaxContracts)
	netM := (in.Fair-bidUp)*qtyM - fees.Maker(bidUp, qtyM) - fees.Maker(in.Fair, qtyM)

	switch {
	case edge >= th.TakerEdge && netT >= th.MinNet:
		return types.Signal{
			Action:   types.ActionTakerBuy,
			Price:    in.Ask,
			Quantity: qtyT,
			Edge:     edge,
			EstNet:   netT,
		}
	case edge >= th.MakerEdge && netM >= th.MinNet:
		return types.Signal{
			Action:   types.ActionMakerBuy,
			Price:    bidUp,
			Quantity: qtyM,
			Edge:     edge,
			EstNet:   netM,
		}
	default:
		return types.Signal{Action: types.ActionSkip, Edge: edge}
	}
}

func capQty(qty, max int) int {
	if max > 0 && qty > max {
		return max
	}
	return qty
}
