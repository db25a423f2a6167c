// Package match normalises team names and venue ticker encodings so that
// fixtures from the sportsbook feed and contracts from the venue catalog key
// to the same canonical game.
package match

import (
	"strings"
)

const maxNormalizedLen = 20

// mascotSuffixes are trailing school suffixes removed during normalisation.
// Multi-word entries must be matched before their single-word tails — when
// several suffixes match, the longest wins ("GOLDEN EAGLES" beats "EAGLES").
var mascotSuffixes = []string{
	"GOLDEN EAGLES",
	"GOLDEN GOPHERS",
	"GOLDEN KNIGHTS",
	"SCARLET KNIGHTS",
	"FIGHTING IRISH",
	"FIGHTING ILLINI",
	"CRIMSON TIDE",
	"TAR HEELS",
	"BLUE DEVILS",
	"BLUE JAYS",
	"BLUE RAIDERS",
	"RED RAIDERS",
	"RED STORM",
	"DEMON DEACONS",
	"YELLOW JACKETS",
	"HORNED FROGS",
	"NITTANY LIONS",
	"RAGIN CAJUNS",
	"MEAN GREEN",
	"EAGLES",
	"TIGERS",
	"BULLDOGS",
	"WILDCATS",
	"BEARS",
	"LIONS",
	"PANTHERS",
	"HUSKIES",
	"GATORS",
	"SPARTANS",
	"TROJANS",
	"BRUINS",
	"BADGERS",
	"BUCKEYES",
	"HOOSIERS",
	"JAYHAWKS",
	"CAVALIERS",
	"MUSTANGS",
	"AGGIES",
	"RAMS",
	"OWLS",
	"CARDINALS",
	"CARDINAL",
	"KNIGHTS",
	"WOLVERINES",
	"GOPHERS",
	"BEARCATS",
	"VOLUNTEERS",
	"RAZORBACKS",
	"SOONERS",
	"COWBOYS",
	"HURRICANES",
	"SEMINOLES",
	"GAMECOCKS",
	"CORNHUSKERS",
	"MOUNTAINEERS",
	"UTES",
	"REBELS",
	"BILLIKENS",
	"SALUKIS",
	"SHOCKERS",
	"RAMBLERS",
	"FLYERS",
	"EXPLORERS",
	"DUKES",
	"PATRIOTS",
	"MINUTEMEN",
	"TERRAPINS",
	"COUGARS",
	"FALCONS",
	"HAWKS",
	"REDHAWKS",
	"WARHAWKS",
	"LANCERS",
	"PIRATES",
	"PRIVATEERS",
	"COMMODORES",
	"CRUSADERS",
	"HIGHLANDERS",
	"PALADINS",
	"CATAMOUNTS",
	"HILLTOPPERS",
	"CHIPPEWAS",
	"HURONS",
	"ZIPS",
	"ROCKETS",
	"VIKINGS",
	"NORSE",
	"PHOENIX",
	"GRIZZLIES",
	"LUMBERJACKS",
	"ANTEATERS",
	"GAUCHOS",
	"TRITONS",
	"MATADORS",
	"TOREROS",
	"DONS",
	"GAELS",
	"PILOTS",
	"ZAGS",
}

// NormalizeTeam canonicalises a team name for key generation:
// uppercase, "Saint"→"ST", "&"→"AND", punctuation stripped, trailing mascot
// removed (longest suffix wins), then all remaining spaces and
// non-alphanumerics removed and the result truncated to 20 characters.
// "A of B" inverts to "B A" first so possessive school forms key identically.
func NormalizeTeam(name string) string {
	s := strings.ToUpper(strings.TrimSpace(name))
	if s == "" {
		return ""
	}

	if i := strings.Index(s, " OF "); i > 0 {
		s = s[i+len(" OF "):] + " " + s[:i]
	}

	s = expandPrefixes(s)
	s = strings.ReplaceAll(s, "&", "AND")
	s = stripPunct(s)
	s = stripMascot(s)

	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > maxNormalizedLen {
		out = out[:maxNormalizedLen]
	}
	return out
}

func expandPrefixes(s string) string {
	switch {
	case strings.HasPrefix(s, "SAINT "):
		return "ST " + s[len("SAINT "):]
	case strings.HasPrefix(s, "MOUNT "):
		return "MT " + s[len("MOUNT "):]
	}
	return s
}

// stripPunct replaces punctuation with nothing but keeps spaces so mascot
// suffix matching still sees word boundaries.
func stripPunct(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// stripMascot removes the longest matching trailing suffix. Removal never
// produces an empty name — a bare mascot ("Eagles") stays as-is.
func stripMascot(s string) string {
	best := ""
	for _, suffix := range mascotSuffixes {
		if len(suffix) <= len(best) {
			continue
		}
		if strings.HasSuffix(s, " "+suffix) {
			best = suffix
		}
	}
	if best == "" {
		return s
	}
	trimmed := strings.TrimSpace(strings.TrimSuffix(s, best))
	if trimmed == "" {
		return s
	}
	return trimmed
}

// LastName returns the final space-separated token of a fighter name,
// normalised. MMA contracts abbreviate fighters to last names only.
func LastName(name string) string {
	fields := strings.Fields(strings.TrimSpace(name))
	if len(fields) == 0 {
		return ""
	}
	return NormalizeTeam(fields[len(fields)-1])
}
