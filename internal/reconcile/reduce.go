package reconcile

import (
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/domain"
)

// Reduce keeps one candidate per key. The candidate with the highest rank
// wins; among equal ranks the one seen first is kept, so the result only
// depends on input order when ranks tie.
func Reduce[T any](candidates []T, key func(T) time.Time, rank func(T) int) map[time.Time]T {
	type best struct {
		value T
		rank  int
	}
	winners := make(map[time.Time]best, len(candidates))
	for _, c := range candidates {
		k := key(c)
		r := rank(c)
		if cur, ok := winners[k]; ok && cur.rank >= r {
			continue
		}
		winners[k] = best{value: c, rank: r}
	}

	out := make(map[time.Time]T, len(winners))
	for k, b := range winners {
		out[k] = b.value
	}
	return out
}

// midnightRank ranks a reading taken at 00:00:00 above any other reading of
// the same day.
func midnightRank(r Reading) int {
	if domain.IsMidnight(r.Timestamp) {
		return 1
	}
	return 0
}

// Daily reduces readings to one value per calendar date, preferring the
// midnight reading.
func Daily(readings []Reading) map[time.Time]float64 {
	winners := Reduce(readings, Reading.Date, midnightRank)
	out := make(map[time.Time]float64, len(winners))
	for d, r := range winners {
		out[d] = r.Value
	}
	return out
}
