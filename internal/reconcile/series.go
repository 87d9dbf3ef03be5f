// Package reconcile merges daily reservoir readings from several upstream
// sources into one record per calendar date.
package reconcile

import (
	"sort"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/domain"
)

// Metric names one of the four daily reservoir series.
type Metric string

const (
	Elevation Metric = "elevation"
	Content   Metric = "content"
	Inflow    Metric = "inflow"
	Outflow   Metric = "outflow"
)

// Metrics lists every metric in merge order.
var Metrics = []Metric{Elevation, Content, Inflow, Outflow}

// Reading is one candidate value as reported by a provider.
type Reading struct {
	Timestamp time.Time
	Value     float64
	Source    string
	// Param is the provider parameter id when a catalog item multiplexes several series.
	Param string
}

// Date returns the calendar date the reading belongs to.
func (r Reading) Date() time.Time {
	return domain.DateOf(r.Timestamp)
}

// Series groups candidate readings by metric.
type Series map[Metric][]Reading

// Add appends a reading for m.
func (s Series) Add(m Metric, r Reading) {
	s[m] = append(s[m], r)
}

// Append adds every reading of other to s.
func (s Series) Append(other Series) {
	for m, rs := range other {
		s[m] = append(s[m], rs...)
	}
}

// Empty reports whether the series has no elevation readings.
func (s Series) Empty() bool {
	return len(s[Elevation]) == 0
}

// Within returns the readings whose calendar date falls in [start, end].
func (s Series) Within(start, end time.Time) Series {
	start, end = domain.DateOf(start), domain.DateOf(end)
	out := Series{}
	for m, rs := range s {
		for _, r := range rs {
			d := r.Date()
			if d.Before(start) || d.After(end) {
				continue
			}
			out.Add(m, r)
		}
	}
	return out
}

// SeriesFromRecords turns already-daily records into midnight readings so
// they can pass through the same reconciliation path as raw provider data.
func SeriesFromRecords(source string, recs []domain.WaterRecord) Series {
	s := Series{}
	for _, rec := range recs {
		ts := domain.DateOf(rec.Date)
		s.Add(Elevation, Reading{Timestamp: ts, Value: rec.Elevation, Source: source})
		s.Add(Content, Reading{Timestamp: ts, Value: float64(rec.Content), Source: source})
		s.Add(Inflow, Reading{Timestamp: ts, Value: float64(rec.Inflow), Source: source})
		s.Add(Outflow, Reading{Timestamp: ts, Value: float64(rec.Outflow), Source: source})
	}
	return s
}

func sortedDates[V any](m map[time.Time]V) []time.Time {
	dates := make([]time.Time, 0, len(m))
	for d := range m {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
