package match

import (
	"fmt"
	"strings"

	"github.com/brabsmit/kalshi-arb/pkg/types"
)

const (
	mmaLead  = "the "
	mmaTail  = " professional MMA fight"
	mmaSplit = " vs "
)

// ParseTitle extracts the (away, home) team names from a venue market title.
// Three forms are recognised, tried in order:
//
//  1. "X at Y Winner?"  → away=X, home=Y
//  2. "X vs Y Winner?"  → away=X, home=Y
//  3. "Will <fighter> win the A vs B professional MMA fight …" → A, B
func ParseTitle(title string) (away, home string, err error) {
	t := strings.TrimSpace(title)

	if base, ok := strings.CutSuffix(t, " Winner?"); ok {
		if a, h, found := strings.Cut(base, " at "); found {
			return strings.TrimSpace(a), strings.TrimSpace(h), nil
		}
		if a, h, found := strings.Cut(base, " vs "); found {
			return strings.TrimSpace(a), strings.TrimSpace(h), nil
		}
	}

	if strings.Contains(t, mmaTail) {
		start := strings.Index(t, mmaLead)
		end := strings.Index(t, mmaTail)
		if start >= 0 && end > start {
			pair := t[start+len(mmaLead) : end]
			if a, b, found := strings.Cut(pair, mmaSplit); found {
				return strings.TrimSpace(a), strings.TrimSpace(b), nil
			}
		}
	}

	return "", "", fmt.Errorf("unrecognised market title %q", title)
}

// TickerParts is the decoded form of a venue game ticker
// "PREFIX-YYMMMDDAABBB-WINNER", where AABBB concatenates the away and home
// team codes and WINNER names the side this ticker pays on.
type TickerParts struct {
	Prefix   string
	Date     string // YYMMMDD as encoded, e.g. "25DEC25"
	AwayCode string
	HomeCode string
	Winner   string
	Side     types.MarketSide
}

const tickerDateLen = 7 // YYMMMDD

// ParseTicker decodes a game ticker into its parts. The side rule: a WINNER
// code that is a prefix of the teams segment is the away side; a suffix is
// the home side; the literal "TIE" designates the draw market.
func ParseTicker(ticker string) (TickerParts, error) {
	segs := strings.Split(ticker, "-")
	if len(segs) != 3 {
		return TickerParts{}, fmt.Errorf("ticker %q: want 3 dash-separated segments, got %d", ticker, len(segs))
	}
	if len(segs[1]) <= tickerDateLen {
		return TickerParts{}, fmt.Errorf("ticker %q: event segment too short", ticker)
	}

	parts := TickerParts{
		Prefix: segs[0],
		Date:   segs[1][:tickerDateLen],
		Winner: segs[2],
	}
	teams := segs[1][tickerDateLen:]

	switch {
	case parts.Winner == "TIE":
		parts.Side = types.SideDraw
		// Team codes are unrecoverable from a TIE ticker alone; AwayCode
		// and HomeCode stay empty.
	case strings.HasPrefix(teams, parts.Winner):
		parts.Side = types.SideAway
		parts.AwayCode = parts.Winner
		parts.HomeCode = teams[len(parts.Winner):]
	case strings.HasSuffix(teams, parts.Winner):
		parts.Side = types.SideHome
		parts.HomeCode = parts.Winner
		parts.AwayCode = teams[:len(teams)-len(parts.Winner)]
	default:
		return TickerParts{}, fmt.Errorf("ticker %q: winner %q is neither prefix nor suffix of %q", ticker, parts.Winner, teams)
	}

	return parts, nil
}

// TeamsSegment re-encodes the date and team codes into the middle ticker
// segment. ParseTicker followed by TeamsSegment recovers the original.
func (p TickerParts) TeamsSegment() string {
	return p.Date + p.AwayCode + p.HomeCode
}
