package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LatestWeatherDate returns the newest stored weather date, or nil when empty.
func (s *Store) LatestWeatherDate(ctx context.Context) (*time.Time, error) {
	return s.maxDate(ctx, &domain.WeatherRecord{})
}

// InsertWeather stores rec unless its date already exists, reporting whether
// a row was created.
func (s *Store) InsertWeather(ctx context.Context, rec domain.WeatherRecord) (bool, error) {
	rec.ID = 0
	rec.Date = domain.DateOf(rec.Date)
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "date"}}, DoNothing: true}).
		Create(&rec)
	if res.Error != nil {
		return false, fmt.Errorf("insert weather %s: %w", rec.Date.Format(time.DateOnly), res.Error)
	}
	return res.RowsAffected == 1, nil
}

var snowpackUpdateColumns = []string{
	"date_str", "swe_value",
	"percentile_10", "percentile_30", "percentile_70", "percentile_90",
	"min_value", "median_91_20", "median_por", "max_value", "median_peak_swe",
	"updated_at",
}

// UpsertSnowpack writes basin-plot rows keyed by (water_year_date, year) and
// returns the number of rows inserted or changed.
func (s *Store) UpsertSnowpack(ctx context.Context, recs []domain.SnowpackRecord, overwrite bool) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	rows := make([]domain.SnowpackRecord, len(recs))
	for i, r := range recs {
		r.ID = 0
		rows[i] = r
	}
	res := s.db.WithContext(ctx).
		Clauses(conflict([]string{"water_year_date", "year"}, overwrite, snowpackUpdateColumns...)).
		CreateInBatches(&rows, s.batchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("upsert %d snowpack rows: %w", len(rows), res.Error)
	}
	return int(res.RowsAffected), nil
}

// SnowpackForYear returns the basin-plot rows of one water year ordered by
// water-year date.
func (s *Store) SnowpackForYear(ctx context.Context, year int) ([]domain.SnowpackRecord, error) {
	var recs []domain.SnowpackRecord
	err := s.db.WithContext(ctx).
		Where("year = ?", year).
		Order("water_year_date ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("snowpack for %d: %w", year, err)
	}
	return recs, nil
}

// UpsertSnotelSites writes station rows keyed by site id.
func (s *Store) UpsertSnotelSites(ctx context.Context, sites []domain.SnotelSite, overwrite bool) (int, error) {
	if len(sites) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Clauses(conflict([]string{"site_id"}, overwrite,
			"name", "elevation", "basin", "state", "latitude", "longitude", "updated_at")).
		CreateInBatches(&sites, s.batchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("upsert %d snotel sites: %w", len(sites), res.Error)
	}
	return int(res.RowsAffected), nil
}

// UpsertSnotelMeasurements writes station days keyed by (site_id, date).
func (s *Store) UpsertSnotelMeasurements(ctx context.Context, ms []domain.SnotelMeasurement, overwrite bool) (int, error) {
	if len(ms) == 0 {
		return 0, nil
	}
	rows := make([]domain.SnotelMeasurement, len(ms))
	for i, m := range ms {
		m.Date = domain.DateOf(m.Date)
		rows[i] = m
	}
	res := s.db.WithContext(ctx).
		Clauses(conflict([]string{"site_id", "date"}, overwrite,
			"snow_water_equivalent", "snow_depth", "precipitation",
			"temperature_max", "temperature_min", "temperature_avg", "updated_at")).
		CreateInBatches(&rows, s.batchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("upsert %d snotel measurements: %w", len(rows), res.Error)
	}
	return int(res.RowsAffected), nil
}

// ReplaceCapacity swaps the whole capacity table for entries in one
// transaction.
func (s *Store) ReplaceCapacity(ctx context.Context, entries []domain.CapacityEntry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.CapacityEntry{}).Error; err != nil {
			return fmt.Errorf("clear capacity: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&entries, s.batchSize).Error; err != nil {
			return fmt.Errorf("insert %d capacity rows: %w", len(entries), err)
		}
		return nil
	})
}

// UpsertWaterYearAnalysis writes a with every column replaced on conflict.
func (s *Store) UpsertWaterYearAnalysis(ctx context.Context, a *domain.WaterYearAnalysis) error {
	if a == nil {
		return errors.New("nil water year analysis")
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "water_year"}}, UpdateAll: true}).
		Create(a).Error
	if err != nil {
		return fmt.Errorf("upsert water year %d: %w", a.WaterYear, err)
	}
	return nil
}

// UpsertRamp writes a ramp keyed by name.
func (s *Store) UpsertRamp(ctx context.Context, r domain.Ramp) error {
	r.ID = 0
	err := s.db.WithContext(ctx).
		Clauses(conflict([]string{"name"}, true, "min_safe_elevation", "min_usable_elevation", "location")).
		Create(&r).Error
	if err != nil {
		return fmt.Errorf("upsert ramp %q: %w", r.Name, err)
	}
	return nil
}
