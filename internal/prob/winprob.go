// Package prob holds the fair-value estimators: the in-game win-probability
// model for score-feed sports, the devig conversion for odds-feed sports, and
// the fractional-Kelly position sizer.
package prob

import "math"

// WinProbParams configures the logistic win-probability model for one sport.
// The steepness k(t) ramps from KStart to KStart+KRange over the regulation
// period: early on a lead means little, late it is nearly decisive.
type WinProbParams struct {
	HomeAdvantage     float64 // points added to the home score differential
	KStart            float64 // logistic steepness at tip-off
	KRange            float64 // additional steepness gained by end of regulation
	RegulationSeconds int     // e.g. 2880 for NBA
	OTKStart          float64 // steepness at the start of each overtime
	OTKRange          float64 // additional steepness gained over one OT period
	OTSeconds         int     // overtime period length, usually 300
}

// DefaultBasketball returns parameters calibrated for NBA-length games.
// A tied game at tip-off resolves to the configured home-court advantage
// (roughly 55–60 cents for the home side).
func DefaultBasketball() WinProbParams {
	return WinProbParams{
		HomeAdvantage:     3.0,
		KStart:            0.08,
		KRange:            0.72,
		RegulationSeconds: 2880,
		OTKStart:          0.80,
		OTKRange:          1.60,
		OTSeconds:         300,
	}
}

// FairValue maps a score differential and elapsed game time to a
// (home, away) fair-value pair in cents. home + away = 100 always, each
// clamped to [1, 99].
func (p WinProbParams) FairValue(scoreDiff, elapsedSeconds int) (home, away int) {
	k := p.steepness(elapsedSeconds)
	x := k * (float64(scoreDiff) + p.HomeAdvantage)
	ph := logistic(x)

	home = clampCents(int(math.Round(ph * 100)))
	away = 100 - home
	return home, away
}

// steepness evaluates k(t). Regulation uses a cubic ramp from KStart to
// KStart+KRange; each overtime ramps separately from OTKStart over OTSeconds.
// Monotone non-decreasing in elapsed time within each phase.
func (p WinProbParams) steepness(elapsed int) float64 {
	reg := p.RegulationSeconds
	if reg <= 0 {
		return p.KStart
	}
	if elapsed <= reg {
		frac := float64(elapsed) / float64(reg)
		return p.KStart + p.KRange*frac*frac*frac
	}

	ot := p.OTSeconds
	if ot <= 0 {
		ot = 300
	}
	into := (elapsed - reg) % ot
	frac := float64(into) / float64(ot)
	return p.OTKStart + p.OTKRange*frac*frac*frac
}

func logistic(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func clampCents(c int) int {
	if c < 1 {
		return 1
	}
	if c > 99 {
		return 99
	}
	return c
}
