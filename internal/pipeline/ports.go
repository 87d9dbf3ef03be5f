package pipeline

import (
	"context"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/domain"
)

// RangeFetcher returns reconciled daily records for an inclusive date range
// and the name of the acquisition path that produced them.
type RangeFetcher interface {
	FetchRange(ctx context.Context, start, end time.Time) ([]domain.WaterRecord, string, error)
}

// WeatherFetcher returns the weather record for a date, or nil when the
// provider has nothing for it.
type WeatherFetcher interface {
	Fetch(ctx context.Context, d time.Time) (*domain.WeatherRecord, error)
}

// WaterStore persists daily reservoir records.
type WaterStore interface {
	LatestWaterDate(ctx context.Context) (*time.Time, error)
	UpsertWater(ctx context.Context, rec domain.WaterRecord, overwrite bool) error
	BulkUpsertWater(ctx context.Context, recs []domain.WaterRecord, overwrite bool) (inserted, updated int, err error)
	ExistingWaterDates(ctx context.Context, start, end time.Time) (map[time.Time]bool, error)
}

// WeatherStore persists daily weather records. InsertWeather never overwrites
// and reports whether a row was created.
type WeatherStore interface {
	LatestWeatherDate(ctx context.Context) (*time.Time, error)
	InsertWeather(ctx context.Context, rec domain.WeatherRecord) (bool, error)
}

// RecordPublisher forwards reconciled records to a downstream sink.
type RecordPublisher interface {
	PublishBatch(ctx context.Context, runID string, recs []domain.WaterRecord) error
}
