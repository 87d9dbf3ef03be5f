package nrcs

import (
	"context"
	"log/slog"
	"strings"
)

// StateCodes are the states probed when a site name is not in the static table.
var StateCodes = []string{"CO", "UT", "WY", "NM", "AZ"}

// KnownStations maps report site names to AWDB station ids that probing
// cannot derive from the name.
var KnownStations = map[string]string{
	"BERTHOUD SUMMIT":   "CO:335",
	"COPPER MOUNTAIN":   "CO:415",
	"FREMONT PASS":      "CO:485",
	"HOOSIER PASS":      "CO:531",
	"LOVELAND BASIN":    "CO:602",
	"MOLAS LAKE":        "CO:632",
	"RED MOUNTAIN PASS": "CO:713",
	"VAIL MOUNTAIN":     "CO:842",
	"WOLF CREEK SUMMIT": "CO:874",
}

const maxCandidates = 10

var nameSuffixes = []string{" SUMMIT", " PASS", " LAKE", " CREEK", " RIVER", " PARK", " BASIN", " MOUNTAIN", " MTN", " PEAK"}

// MetadataLookup fetches station metadata for a triplet.
type MetadataLookup interface {
	StationMetadata(ctx context.Context, triplet string) (*StationMetadata, error)
}

// Resolver maps a report site name to an "ST:ID" station id. Most lookups
// fail: AWDB offers no name search, so ids are guessed from the name.
type Resolver struct {
	lookup MetadataLookup
	static map[string]string
	states []string
	logger *slog.Logger
}

// NewResolver creates a Resolver over the static table and AWDB probing.
func NewResolver(lookup MetadataLookup, static map[string]string, logger *slog.Logger) *Resolver {
	return &Resolver{lookup: lookup, static: static, states: StateCodes, logger: logger}
}

// ResolveStationID returns the station id for name, or false when neither
// the static table nor any probed candidate matches.
func (r *Resolver) ResolveStationID(ctx context.Context, name string) (string, bool) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if id, ok := r.static[upper]; ok {
		return id, true
	}

	candidates := StationCandidates(name)
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	for _, state := range r.states {
		for _, cand := range candidates {
			if ctx.Err() != nil {
				return "", false
			}
			triplet := state + ":" + cand + ":" + ElementSWE
			md, err := r.lookup.StationMetadata(ctx, triplet)
			if err != nil || md == nil {
				continue
			}
			if namesMatch(upper, strings.ToUpper(md.Name)) {
				id := state + ":" + cand
				r.logger.Info("resolved station", "site", name, "site_id", id, "station_name", md.Name)
				return id, true
			}
		}
	}
	r.logger.Debug("no station id found", "site", name, "states", r.states)
	return "", false
}

// StationCandidates guesses AWDB station ids from a site name: the first
// word, the first eight letters, word initials and short prefixes, with
// common geographic words removed. Order is kept and duplicates dropped.
func StationCandidates(name string) []string {
	clean := strings.ToUpper(name)
	for _, s := range nameSuffixes {
		clean = strings.ReplaceAll(clean, s, "")
	}
	words := strings.Fields(clean)
	joined := strings.Join(words, "")

	var out []string
	if len(words) > 0 && len(words[0]) <= 8 {
		out = append(out, words[0])
	}
	if len(joined) >= 6 {
		out = append(out, prefix(joined, 8))
	}
	if len(words) > 1 {
		var b strings.Builder
		for _, w := range words {
			b.WriteByte(w[0])
		}
		if abbrev := prefix(b.String(), 6); len(abbrev) >= 3 {
			out = append(out, abbrev)
		}
	}
	out = append(out, prefix(joined, 6), prefix(joined, 4))

	seen := map[string]bool{}
	uniq := out[:0]
	for _, c := range out {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		uniq = append(uniq, c)
	}
	return uniq
}

func prefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// namesMatch accepts equal names, either containing the other, or a shared
// significant word among the site name's first three.
func namesMatch(site, station string) bool {
	if station == "" {
		return false
	}
	if site == station || strings.Contains(station, site) || strings.Contains(site, station) {
		return true
	}
	words := strings.Fields(site)
	if len(words) > 3 {
		words = words[:3]
	}
	for _, w := range words {
		if len(w) > 3 && strings.Contains(station, w) {
			return true
		}
	}
	return false
}
