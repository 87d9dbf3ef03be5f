// Package capacity derives the reservoir's elevation-storage curve from the
// recorded water history.
package capacity

import (
	"sort"

	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"gonum.org/v1/gonum/stat"
)

const (
	outlierPasses = 3
	outlierLow    = 0.5
	outlierHigh   = 2.0
	smoothRadius  = 2
	smoothMinimum = 3

	// The top of the pool is sparsely sampled. Per-foot values at or above
	// topFloor may not fall below topTolerance of the mean of the reference band.
	referenceLow  = 3690
	referenceHigh = 3700
	topFloor      = 3700
	topTolerance  = 0.95
)

type band struct {
	elevation int
	storage   int64
	perFoot   *int64
}

// Build turns the maximum recorded content per integer elevation into the
// per-foot capacity table. Floors at or below the dead pool and non-positive
// content are ignored. Storage is the running maximum of recorded content, so
// it never decreases with elevation.
func Build(maxContent map[int]int64, deadPool int, fullPool int64) []domain.CapacityEntry {
	floors := make([]int, 0, len(maxContent))
	for e, c := range maxContent {
		if e > deadPool && c > 0 {
			floors = append(floors, e)
		}
	}
	if len(floors) == 0 {
		return nil
	}
	sort.Ints(floors)

	bands := initialBands(floors, maxContent, deadPool)
	bands = rejectOutliers(bands)
	bands = movingAverage(bands)
	fixTopEdge(bands)
	return entries(bands, fullPool)
}

// initialBands anchors zero storage at the dead pool. The gap between the dead
// pool and the first recorded floor gets the average rate across that gap;
// consecutive floors get their exact difference and gapped floors get nil.
func initialBands(floors []int, maxContent map[int]int64, deadPool int) []band {
	first := floors[0]
	deadPoolRate := domain.Int(maxContent[first] / int64(first-deadPool))

	out := make([]band, 0, len(floors)+1)
	out = append(out, band{elevation: deadPool, storage: 0, perFoot: deadPoolRate})

	prevElev, prevStorage := deadPool, int64(0)
	for _, e := range floors {
		content := maxContent[e]
		var pf *int64
		switch {
		case e == prevElev+1:
			pf = domain.Int(content - prevStorage)
		case prevElev == deadPool:
			pf = deadPoolRate
		}
		out = append(out, band{elevation: e, storage: content, perFoot: pf})
		prevElev, prevStorage = e, content
	}
	return out
}

// rejectOutliers replaces per-foot values below half or above double the mean
// of both neighbours. Each pass reads the previous pass's values; passes stop
// once nothing changes.
func rejectOutliers(bands []band) []band {
	cur := bands
	for pass := 0; pass < outlierPasses; pass++ {
		next := append([]band(nil), cur...)
		changes := 0
		for i, b := range cur {
			if b.perFoot == nil {
				continue
			}
			left, right := neighbour(cur, i-1), neighbour(cur, i+1)
			if left == nil || right == nil {
				continue
			}
			avg := (float64(*left) + float64(*right)) / 2
			v := float64(*b.perFoot)
			if v < avg*outlierLow || v > avg*outlierHigh {
				next[i].perFoot = domain.Int(int64(avg))
				changes++
			}
		}
		cur = next
		if changes == 0 {
			break
		}
	}
	return cur
}

// neighbour returns the per-foot value at i when it exists and is non-zero.
func neighbour(bands []band, i int) *int64 {
	if i < 0 || i >= len(bands) {
		return nil
	}
	pf := bands[i].perFoot
	if pf == nil || *pf == 0 {
		return nil
	}
	return pf
}

// movingAverage applies a centred five-point mean over non-nil per-foot
// values, leaving values with fewer than three points in the window alone.
func movingAverage(bands []band) []band {
	out := append([]band(nil), bands...)
	for i, b := range bands {
		if b.perFoot == nil {
			continue
		}
		var window []float64
		for j := max(0, i-smoothRadius); j <= min(len(bands)-1, i+smoothRadius); j++ {
			if pf := bands[j].perFoot; pf != nil {
				window = append(window, float64(*pf))
			}
		}
		if len(window) >= smoothMinimum {
			out[i].perFoot = domain.Int(int64(stat.Mean(window, nil)))
		}
	}
	return out
}

func fixTopEdge(bands []band) {
	var ref []float64
	for _, b := range bands {
		if b.elevation >= referenceLow && b.elevation <= referenceHigh && b.perFoot != nil && *b.perFoot != 0 {
			ref = append(ref, float64(*b.perFoot))
		}
	}
	if len(ref) == 0 {
		return
	}
	reference := int64(stat.Mean(ref, nil))
	for i, b := range bands {
		if b.elevation < topFloor || b.perFoot == nil || *b.perFoot == 0 {
			continue
		}
		if float64(*b.perFoot) < float64(reference)*topTolerance {
			bands[i].perFoot = domain.Int(reference)
		}
	}
}

func entries(bands []band, fullPool int64) []domain.CapacityEntry {
	out := make([]domain.CapacityEntry, len(bands))
	var storage int64
	for i, b := range bands {
		storage = max(storage, b.storage)
		e := domain.CapacityEntry{
			Elevation:          b.elevation,
			StorageAtElevation: storage,
			StoragePerFoot:     b.perFoot,
			PercentOfFull:      domain.Round(float64(storage)/float64(fullPool)*100, 2),
		}
		if b.perFoot != nil && *b.perFoot != 0 {
			e.PercentPerFoot = domain.Float(domain.Round(float64(*b.perFoot)/float64(fullPool)*100, 3))
		}
		out[i] = e
	}
	return out
}
