package reconcile

import (
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/domain"
)

// Merge joins per-metric daily values into records. Elevation is the anchor:
// a date without elevation produces no record, while missing content, inflow
// or outflow default to 0. Change is the rounded difference from the previous
// emitted record and nil for the first one.
func Merge(daily map[Metric]map[time.Time]float64) []domain.WaterRecord {
	elev := daily[Elevation]
	if len(elev) == 0 {
		return nil
	}

	dates := sortedDates(elev)
	out := make([]domain.WaterRecord, 0, len(dates))
	var prev *float64
	for _, d := range dates {
		e := elev[d]
		rec := domain.WaterRecord{
			Date:      d,
			Elevation: e,
			Content:   int64(daily[Content][d]),
			Inflow:    int64(daily[Inflow][d]),
			Outflow:   int64(daily[Outflow][d]),
		}
		if prev != nil {
			rec.Change = domain.Float(domain.Round(e-*prev, 2))
		}
		prev = domain.Float(e)
		out = append(out, rec)
	}
	return out
}

// RecomputeChange fills Change on records already sorted by date, leaving the
// first record nil.
func RecomputeChange(recs []domain.WaterRecord) {
	for i := range recs {
		if i == 0 {
			recs[i].Change = nil
			continue
		}
		recs[i].Change = domain.Float(domain.Round(recs[i].Elevation-recs[i-1].Elevation, 2))
	}
}
