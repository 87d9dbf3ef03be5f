package capacity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"github.com/couchcryptid/lake-powell-etl/internal/observability"
)

// Store reads the water history and replaces the capacity table.
type Store interface {
	MaxContentByFloor(ctx context.Context) (map[int]int64, error)
	ReplaceCapacity(ctx context.Context, entries []domain.CapacityEntry) error
}

// Builder regenerates the capacity table from the current water history.
type Builder struct {
	store   Store
	res     domain.Reservoir
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewBuilder creates a Builder for the reservoir profile.
func NewBuilder(store Store, res domain.Reservoir, logger *slog.Logger, metrics *observability.Metrics) *Builder {
	return &Builder{store: store, res: res, logger: logger, metrics: metrics}
}

// Rebuild recomputes the whole curve and replaces the stored table. It never
// patches rows in place.
func (b *Builder) Rebuild(ctx context.Context) ([]domain.CapacityEntry, error) {
	maxContent, err := b.store.MaxContentByFloor(ctx)
	if err != nil {
		return nil, fmt.Errorf("load max content by floor: %w", err)
	}
	entries := Build(maxContent, b.res.DeadPoolElevation, b.res.FullPoolAcreFeet)
	if len(entries) == 0 {
		b.logger.Warn("no water history to build a capacity curve from")
		return nil, nil
	}

	if err := b.store.ReplaceCapacity(ctx, entries); err != nil {
		return nil, fmt.Errorf("replace capacity table: %w", err)
	}
	b.metrics.RecordsWritten.WithLabelValues("capacity").Add(float64(len(entries)))

	last := entries[len(entries)-1]
	b.logger.Info("capacity curve rebuilt",
		"rows", len(entries),
		"min_elevation", entries[0].Elevation,
		"max_elevation", last.Elevation,
		"max_storage", last.StorageAtElevation,
	)
	return entries, nil
}
