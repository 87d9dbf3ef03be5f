package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"gorm.io/gorm"
)

var waterUpdateColumns = []string{"elevation", "change", "content", "inflow", "outflow", "updated_at"}

// LatestWaterDate returns the newest stored water date, or nil when empty.
func (s *Store) LatestWaterDate(ctx context.Context) (*time.Time, error) {
	return s.maxDate(ctx, &domain.WaterRecord{})
}

// EarliestWaterDate returns the oldest stored water date, or nil when empty.
func (s *Store) EarliestWaterDate(ctx context.Context) (*time.Time, error) {
	return s.minDate(ctx, &domain.WaterRecord{})
}

// UpsertWater writes one record keyed by date. Without overwrite an existing
// row is left untouched.
func (s *Store) UpsertWater(ctx context.Context, rec domain.WaterRecord, overwrite bool) error {
	rec.ID = 0
	rec.Date = domain.DateOf(rec.Date)
	err := s.db.WithContext(ctx).
		Clauses(conflict([]string{"date"}, overwrite, waterUpdateColumns...)).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert water %s: %w", rec.Date.Format(time.DateOnly), err)
	}
	return nil
}

// BulkUpsertWater writes recs in batches inside one transaction and reports
// how many dates were new and how many existing rows were overwritten.
// Duplicate dates in recs collapse to the last occurrence.
func (s *Store) BulkUpsertWater(ctx context.Context, recs []domain.WaterRecord, overwrite bool) (inserted, updated int, err error) {
	rows := dedupeWater(recs)
	if len(rows) == 0 {
		return 0, 0, nil
	}

	existing, err := s.ExistingWaterDates(ctx, rows[0].Date, rows[len(rows)-1].Date)
	if err != nil {
		return 0, 0, err
	}
	for _, r := range rows {
		switch {
		case !existing[r.Date]:
			inserted++
		case overwrite:
			updated++
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(conflict([]string{"date"}, overwrite, waterUpdateColumns...)).
			CreateInBatches(&rows, s.batchSize).Error
	})
	if err != nil {
		return 0, 0, fmt.Errorf("bulk upsert %d water records: %w", len(rows), err)
	}
	return inserted, updated, nil
}

func dedupeWater(recs []domain.WaterRecord) []domain.WaterRecord {
	byDate := make(map[time.Time]domain.WaterRecord, len(recs))
	for _, r := range recs {
		r.ID = 0
		r.Date = domain.DateOf(r.Date)
		byDate[r.Date] = r
	}
	rows := make([]domain.WaterRecord, 0, len(byDate))
	for _, r := range byDate {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows
}

// ExistingWaterDates returns the stored dates within [start, end].
func (s *Store) ExistingWaterDates(ctx context.Context, start, end time.Time) (map[time.Time]bool, error) {
	var dates []time.Time
	err := s.db.WithContext(ctx).Model(&domain.WaterRecord{}).
		Where("date BETWEEN ? AND ?", domain.DateOf(start), domain.DateOf(end)).
		Pluck("date", &dates).Error
	if err != nil {
		return nil, fmt.Errorf("existing water dates: %w", err)
	}
	out := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		out[domain.DateOf(d)] = true
	}
	return out, nil
}

// WaterRange returns the records within [start, end] in ascending date order.
func (s *Store) WaterRange(ctx context.Context, start, end time.Time) ([]domain.WaterRecord, error) {
	var recs []domain.WaterRecord
	err := s.db.WithContext(ctx).
		Where("date BETWEEN ? AND ?", domain.DateOf(start), domain.DateOf(end)).
		Order("date ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("water range: %w", err)
	}
	for i := range recs {
		recs[i].Date = domain.DateOf(recs[i].Date)
	}
	return recs, nil
}

// MaxContentByFloor returns the largest positive content observed at each
// whole-foot elevation floor.
func (s *Store) MaxContentByFloor(ctx context.Context) (map[int]int64, error) {
	var rows []struct {
		Floor   int
		Content int64
	}
	err := s.db.WithContext(ctx).Model(&domain.WaterRecord{}).
		Select("FLOOR(elevation)::INTEGER AS floor, MAX(content) AS content").
		Where("content > 0").
		Group("FLOOR(elevation)::INTEGER").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("max content by floor: %w", err)
	}
	out := make(map[int]int64, len(rows))
	for _, r := range rows {
		out[r.Floor] = r.Content
	}
	return out, nil
}

// ClearWater deletes every water record and returns the number removed.
func (s *Store) ClearWater(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.WaterRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("clear water: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CorrectBankStorage adds offset to the content of rows at or above
// minElevation whose positive content is still below maxContent, and returns
// the number of rows changed.
func (s *Store) CorrectBankStorage(ctx context.Context, offset int64, minElevation float64, maxContent int64) (int64, error) {
	res := s.db.WithContext(ctx).Model(&domain.WaterRecord{}).
		Where("elevation >= ? AND content > 0 AND content < ?", minElevation, maxContent).
		Updates(map[string]any{
			"content":    gorm.Expr("content + ?", offset),
			"updated_at": domain.Now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("correct bank storage: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountBankStorageCandidates counts the rows CorrectBankStorage would change.
func (s *Store) CountBankStorageCandidates(ctx context.Context, minElevation float64, maxContent int64) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.WaterRecord{}).
		Where("elevation >= ? AND content > 0 AND content < ?", minElevation, maxContent).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count bank storage candidates: %w", err)
	}
	return n, nil
}
