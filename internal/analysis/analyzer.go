// Package analysis summarises each water year's runoff cycle: the winter low,
// the start of the spring rise, the peak, flow totals and how the rise relates
// to that winter's snowpack.
package analysis

import (
	"sort"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"gonum.org/v1/gonum/floats"
)

const (
	// MinDays is the fewest elevation-bearing days a water year needs.
	MinDays = 30

	cfsDayToAcreFeet = 1.983
	riseThreshold    = 0.5 // ft over riseWindow days
	riseWindow       = 7
	minRunoffGain    = 2.0
)

// Analyze computes the runoff cycle of water year wy from its daily records
// and the basin-plot rows of that year. It reports false when the year has
// fewer than MinDays of data.
func Analyze(wy int, days []domain.WaterRecord, snow []domain.SnowpackRecord) (*domain.WaterYearAnalysis, bool) {
	start, end := domain.WaterYearBounds(wy)
	data := within(days, start, end)
	if len(data) < MinDays {
		return nil, false
	}

	out := &domain.WaterYearAnalysis{WaterYear: wy}
	cycle(out, wy, data)
	flows(out, wy, data)
	snowpack(out, wy, snow)
	correlate(out)
	return out, true
}

func within(days []domain.WaterRecord, start, end time.Time) []domain.WaterRecord {
	out := make([]domain.WaterRecord, 0, len(days))
	for _, d := range days {
		if !d.Date.Before(start) && !d.Date.After(end) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func elevations(data []domain.WaterRecord) []float64 {
	out := make([]float64, len(data))
	for i, d := range data {
		out[i] = d.Elevation
	}
	return out
}

func cycle(out *domain.WaterYearAnalysis, wy int, data []domain.WaterRecord) {
	elev := elevations(data)

	lowIdx := winterLow(wy, data, elev)
	low := data[lowIdx]
	out.PreRunoffLowDate = datePtr(low.Date)
	out.PreRunoffLowElevation = domain.Float(low.Elevation)

	startIdx := -1
	for i := lowIdx; i+riseWindow < len(elev); i++ {
		if elev[i+riseWindow]-elev[i] >= riseThreshold {
			startIdx = i
			break
		}
	}
	if startIdx >= 0 {
		out.RunoffStartDate = datePtr(data[startIdx].Date)
		out.RunoffStartElevation = domain.Float(data[startIdx].Elevation)
	}

	peakIdx := lowIdx + floats.MaxIdx(elev[lowIdx:])
	peak := data[peakIdx]
	out.PeakDate = datePtr(peak.Date)
	out.PeakElevation = domain.Float(peak.Elevation)
	out.EndOfYearElevation = domain.Float(data[len(data)-1].Elevation)

	gain := peak.Elevation - low.Elevation
	out.RunoffGainFt = domain.Float(domain.Round(gain, 2))
	out.HadRunoffRise = gain >= minRunoffGain

	if startIdx >= 0 {
		out.DaysOfRise = max(0, int(peak.Date.Sub(data[startIdx].Date).Hours()/24))
	}
}

// winterLow returns the index of the lowest elevation between Dec 1 and
// Apr 30, or within the first half of the data when that window is empty.
func winterLow(wy int, data []domain.WaterRecord, elev []float64) int {
	from := time.Date(wy-1, time.December, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(wy, time.April, 30, 0, 0, 0, 0, time.UTC)

	lo, hi := -1, -1
	for i, d := range data {
		if d.Date.Before(from) || d.Date.After(to) {
			continue
		}
		if lo < 0 {
			lo = i
		}
		hi = i
	}
	if lo < 0 {
		lo, hi = 0, max(0, len(data)/2-1)
	}
	return lo + floats.MinIdx(elev[lo:hi+1])
}

func flows(out *domain.WaterYearAnalysis, wy int, data []domain.WaterRecord) {
	seasonStart := time.Date(wy, time.April, 1, 0, 0, 0, 0, time.UTC)
	seasonEnd := time.Date(wy, time.August, 31, 0, 0, 0, 0, time.UTC)

	var in, outflow, seasonIn, seasonOut []float64
	for _, d := range data {
		in = append(in, float64(d.Inflow))
		outflow = append(outflow, float64(d.Outflow))
		if !d.Date.Before(seasonStart) && !d.Date.After(seasonEnd) {
			seasonIn = append(seasonIn, float64(d.Inflow))
			seasonOut = append(seasonOut, float64(d.Outflow))
		}
	}

	totalIn, totalOut := floats.Sum(in), floats.Sum(outflow)
	runIn, runOut := floats.Sum(seasonIn), floats.Sum(seasonOut)
	out.TotalInflowAF = acreFeet(totalIn)
	out.TotalOutflowAF = acreFeet(totalOut)
	out.NetFlowAF = acreFeet(totalIn - totalOut)
	out.RunoffInflowAF = acreFeet(runIn)
	out.RunoffOutflowAF = acreFeet(runOut)
	out.RunoffNetAF = acreFeet(runIn - runOut)
}

func acreFeet(cfsDays float64) int64 {
	return int64(domain.Round(cfsDays*cfsDayToAcreFeet, 0))
}

// snowpack fills the peak and April 1 SWE fields from the basin-plot rows of
// the water year. Rows for other years are ignored.
func snowpack(out *domain.WaterYearAnalysis, wy int, snow []domain.SnowpackRecord) {
	rows := make([]domain.SnowpackRecord, 0, len(snow))
	for _, r := range snow {
		if r.Year == wy && r.SWE != nil {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].WaterYearDate.Before(rows[j].WaterYearDate) })

	peak := rows[0]
	for _, r := range rows[1:] {
		if *r.SWE > *peak.SWE {
			peak = r
		}
	}
	out.PeakSWE = domain.Float(*peak.SWE)
	out.PeakSWEDate = datePtr(peak.WaterYearDate)
	out.PeakSWEPercentOfMedian = percentOf(peak.SWE, peak.Median9120)

	april1 := time.Date(wy, time.April, 1, 0, 0, 0, 0, time.UTC)
	for _, r := range rows {
		if r.WaterYearDate.Before(april1) {
			continue
		}
		if *r.SWE != 0 {
			out.April1SWE = domain.Float(*r.SWE)
		}
		out.April1PercentOfMedian = percentOf(r.SWE, r.Median9120)
		break
	}
}

func percentOf(v, median *float64) *float64 {
	if v == nil || median == nil || *v == 0 || *median == 0 {
		return nil
	}
	return domain.Float(domain.Round(*v / *median * 100, 1))
}

func correlate(out *domain.WaterYearAnalysis) {
	if out.PeakSWE == nil || *out.PeakSWE <= 0 {
		return
	}
	peak := *out.PeakSWE
	if out.RunoffInflowAF != 0 {
		out.InflowPerInchSWE = domain.Int(int64(domain.Round(float64(out.RunoffInflowAF)/peak, 0)))
	}
	if out.RunoffGainFt != nil {
		out.FtGainedPerInchSWE = domain.Float(domain.Round(*out.RunoffGainFt/peak, 2))
	}
}

func datePtr(t time.Time) *time.Time {
	d := domain.DateOf(t)
	return &d
}
