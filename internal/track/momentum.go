package track

import "github.com/brabsmit/kalshi-arb/pkg/types"

// MomentumConfig weights the composite score and sets the gating thresholds.
type MomentumConfig struct {
	VelocityWeight float64 // default 0.6
	BookWeight     float64 // default 0.4
	TakerThreshold int     // score below this downgrades TakerBuy to MakerBuy
	MakerThreshold int     // score below this vetoes the trade entirely
	Bypass         bool    // score-feed sports: force 100, skip gating
}

// Composite combines the velocity and book-pressure scores into one 0–100
// momentum score. With Bypass set the score is pinned to 100: for score-feed
// sports the score itself is the fast signal, and sportsbook velocity mostly
// indicates the arb window is closing.
func (c MomentumConfig) Composite(velocityScore, bookScore int) int {
	if c.Bypass {
		return 100
	}
	s := c.VelocityWeight*float64(velocityScore) + c.BookWeight*float64(bookScore)
	return clampScore(s)
}

// Gate transforms an evaluated signal by momentum confirmation:
//
//   - Skip passes through.
//   - MakerBuy below MakerThreshold becomes Skip.
//   - TakerBuy below MakerThreshold becomes Skip; below TakerThreshold it is
//     downgraded to a MakerBuy one cent under the taker price.
//
// The second return reports whether the gate modified the action.
func (c MomentumConfig) Gate(sig types.Signal, score int) (types.Signal, bool) {
	switch sig.Action {
	case types.ActionMakerBuy:
		if score < c.MakerThreshold {
			return types.Signal{Action: types.ActionSkip, Edge: sig.Edge}, true
		}
		return sig, false

	case types.ActionTakerBuy:
		if score < c.MakerThreshold {
			return types.Signal{Action: types.ActionSkip, Edge: sig.Edge}, true
		}
		if score < c.TakerThreshold {
			price := sig.Price - 1
			if price < 1 {
				price = 1
			}
			downgraded := sig
			downgraded.Action = types.ActionMakerBuy
			downgraded.Price = price
			return downgraded, true
		}
		return sig, false

	default:
		return sig, false
	}
}
