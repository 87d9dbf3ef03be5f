package pipeline

import (
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/domain"
)

// DetectGaps lists the dates strictly after dbLatest up to and including
// sourceLatest. An empty store yields no gaps: the first load belongs to the
// historical importer, not the daily collector.
func DetectGaps(dbLatest *time.Time, sourceLatest time.Time) []time.Time {
	if dbLatest == nil {
		return nil
	}
	last := domain.DateOf(*dbLatest)
	until := domain.DateOf(sourceLatest)
	if !last.Before(until) {
		return nil
	}
	return domain.DateRange(last.AddDate(0, 0, 1), until)
}
