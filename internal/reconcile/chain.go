package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/domain"
)

// ErrNoData is returned when no strategy produced a usable elevation series.
var ErrNoData = errors.New("no usable data from any source")

// FetchFunc fetches candidate readings for the inclusive date range.
type FetchFunc func(ctx context.Context, start, end time.Time) (Series, error)

// Strategy is one way of acquiring a whole range of data.
type Strategy struct {
	Name  string
	Fetch FetchFunc
}

// Chain tries strategies in order and keeps the first one that yields at
// least one valid elevation. Later strategies are not consulted, so series
// from different acquisition paths are never mixed within a range.
type Chain struct {
	strategies []Strategy
	engine     *Engine
	logger     *slog.Logger
}

// NewChain creates a Chain over the given strategies.
func NewChain(engine *Engine, logger *slog.Logger, strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, engine: engine, logger: logger}
}

// Strategies returns the strategy names in order.
func (c *Chain) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name
	}
	return names
}

// FetchRange returns reconciled records for [start, end] and the name of the
// strategy that produced them.
func (c *Chain) FetchRange(ctx context.Context, start, end time.Time) ([]domain.WaterRecord, string, error) {
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		series, err := s.Fetch(ctx, start, end)
		if err != nil {
			c.logger.Warn("strategy failed",
				"strategy", s.Name,
				"start", start.Format(time.DateOnly),
				"end", end.Format(time.DateOnly),
				"error", err,
			)
			continue
		}
		if series == nil || series.Empty() {
			c.logger.Info("strategy returned no elevation data", "strategy", s.Name)
			continue
		}

		recs := c.engine.Reconcile(series.Within(start, end))
		if len(recs) == 0 {
			c.logger.Info("strategy returned no valid elevation data", "strategy", s.Name)
			continue
		}
		c.logger.Info("strategy succeeded", "strategy", s.Name, "records", len(recs))
		return recs, s.Name, nil
	}
	return nil, "", ErrNoData
}
