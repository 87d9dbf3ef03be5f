package reconcile

import (
	"sort"

	"github.com/couchcryptid/lake-powell-etl/internal/domain"
)

// ParamRank summarises how well one parameter id covers a range.
type ParamRank struct {
	Param    string
	Midnight int
	Total    int
}

// RankParameters orders the parameter ids present in readings by midnight
// reading count, then total reading count, both descending. Ties are broken
// by id so the order is deterministic.
func RankParameters(readings []Reading) []ParamRank {
	byParam := map[string]*ParamRank{}
	for _, r := range readings {
		pr, ok := byParam[r.Param]
		if !ok {
			pr = &ParamRank{Param: r.Param}
			byParam[r.Param] = pr
		}
		pr.Total++
		if domain.IsMidnight(r.Timestamp) {
			pr.Midnight++
		}
	}

	ranks := make([]ParamRank, 0, len(byParam))
	for _, pr := range byParam {
		ranks = append(ranks, *pr)
	}
	sort.Slice(ranks, func(i, j int) bool {
		a, b := ranks[i], ranks[j]
		if a.Midnight != b.Midnight {
			return a.Midnight > b.Midnight
		}
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.Param < b.Param
	})
	return ranks
}

// SelectParameter keeps only the readings of the best-ranked parameter id so
// two physically different series are never mixed within one range.
func SelectParameter(readings []Reading) ([]Reading, string) {
	ranks := RankParameters(readings)
	if len(ranks) <= 1 {
		if len(ranks) == 1 {
			return readings, ranks[0].Param
		}
		return readings, ""
	}
	top := ranks[0].Param
	out := make([]Reading, 0, ranks[0].Total)
	for _, r := range readings {
		if r.Param == top {
			out = append(out, r)
		}
	}
	return out, top
}
