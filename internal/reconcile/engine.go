package reconcile

import (
	"log/slog"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"github.com/couchcryptid/lake-powell-etl/internal/observability"
)

// Engine validates and merges candidate readings into daily records.
type Engine struct {
	bounds  map[Metric]domain.Bounds
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewEngine builds an Engine using the validation bounds of the reservoir profile.
func NewEngine(res domain.Reservoir, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		bounds: map[Metric]domain.Bounds{
			Elevation: res.Elevation,
			Content:   res.Content,
			Inflow:    res.Flow,
			Outflow:   res.Flow,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// Validate drops readings outside the metric's bounds, logging each rejection.
func (e *Engine) Validate(m Metric, readings []Reading) []Reading {
	b, ok := e.bounds[m]
	if !ok {
		return readings
	}
	out := readings[:0:0]
	for _, r := range readings {
		if b.Contains(r.Value) {
			out = append(out, r)
			continue
		}
		e.logger.Warn("rejected out-of-range reading",
			"metric", string(m),
			"date", r.Date().Format(time.DateOnly),
			"value", r.Value,
			"source", r.Source,
			"param", r.Param,
		)
		e.metrics.RecordsRejected.WithLabelValues(string(m)).Inc()
	}
	return out
}

// Reconcile produces one record per date present in the elevation series.
func (e *Engine) Reconcile(s Series) []domain.WaterRecord {
	daily := make(map[Metric]map[time.Time]float64, len(Metrics))
	for _, m := range Metrics {
		valid := e.Validate(m, s[m])
		if len(valid) == 0 {
			continue
		}
		selected, param := SelectParameter(valid)
		if len(selected) != len(valid) {
			e.logger.Info("selected parameter series",
				"metric", string(m), "param", param,
				"kept", len(selected), "dropped", len(valid)-len(selected))
		}
		daily[m] = Daily(selected)
	}
	return Merge(daily)
}
