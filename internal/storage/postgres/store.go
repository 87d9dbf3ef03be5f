// Package postgres is the gorm-backed persistence gateway for water, weather,
// snowpack, capacity, analysis, and ramp tables.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const defaultBatchSize = 50

// Store implements the pipeline, capacity, and analysis store interfaces.
type Store struct {
	db        *gorm.DB
	batchSize int
	logger    *slog.Logger
}

// Open connects to Postgres. gorm's own logging goes through logger at warn
// level, with slow queries reported after one second.
func Open(dsn string, batchSize int, log *slog.Logger) (*Store, error) {
	gormLogger := logger.New(
		slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return New(db, batchSize, log), nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, batchSize int, log *slog.Logger) *Store {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Store{db: db, batchSize: batchSize, logger: log}
}

// Migrate creates or alters every table the service writes.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&domain.WaterRecord{},
		&domain.WeatherRecord{},
		&domain.SnowpackRecord{},
		&domain.SnotelSite{},
		&domain.SnotelMeasurement{},
		&domain.CapacityEntry{},
		&domain.WaterYearAnalysis{},
		&domain.Ramp{},
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// maxDate returns the newest date of a table, or nil when it is empty.
func (s *Store) maxDate(ctx context.Context, model any) (*time.Time, error) {
	return s.dateAggregate(ctx, model, "MAX(date)")
}

func (s *Store) minDate(ctx context.Context, model any) (*time.Time, error) {
	return s.dateAggregate(ctx, model, "MIN(date)")
}

func (s *Store) dateAggregate(ctx context.Context, model any, expr string) (*time.Time, error) {
	var t sql.NullTime
	if err := s.db.WithContext(ctx).Model(model).Select(expr).Row().Scan(&t); err != nil {
		return nil, err
	}
	if !t.Valid {
		return nil, nil
	}
	d := domain.DateOf(t.Time)
	return &d, nil
}

// conflict builds the ON CONFLICT clause of an upsert: update the listed
// columns when overwrite is set, leave the existing row alone otherwise.
func conflict(keys []string, overwrite bool, updates ...string) clause.OnConflict {
	cols := make([]clause.Column, len(keys))
	for i, k := range keys {
		cols[i] = clause.Column{Name: k}
	}
	if !overwrite {
		return clause.OnConflict{Columns: cols, DoNothing: true}
	}
	return clause.OnConflict{Columns: cols, DoUpdates: clause.AssignmentColumns(updates)}
}
