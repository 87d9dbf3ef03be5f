package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"github.com/couchcryptid/lake-powell-etl/internal/observability"
	"github.com/couchcryptid/lake-powell-etl/internal/reconcile"
	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"github.com/google/uuid"
)

// Wait after a failed daily run before trying again; doubles up to the run interval.
const initialRetryWait = time.Minute

// CollectorStore is the persistence the daily collector needs.
type CollectorStore interface {
	WaterStore
	WeatherStore
}

// Collector keeps the store current: it fills the gap between the newest
// stored date and today, then refreshes today's values.
type Collector struct {
	water    RangeFetcher
	weather  WeatherFetcher
	store    CollectorStore
	sink     RecordPublisher
	logger   *slog.Logger
	metrics  *observability.Metrics
	interval time.Duration
	ready    atomic.Bool

	mu     sync.Mutex
	status Status
}

// Status summarizes the most recent daily run.
type Status struct {
	Ready       bool       `json:"ready"`
	LastRunID   string     `json:"last_run_id,omitempty"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// NewCollector wires a Collector. weather and sink may be nil, which disables
// weather collection and record publication respectively.
func NewCollector(water RangeFetcher, weather WeatherFetcher, store CollectorStore, sink RecordPublisher, logger *slog.Logger, metrics *observability.Metrics, interval time.Duration) *Collector {
	return &Collector{
		water:    water,
		weather:  weather,
		store:    store,
		sink:     sink,
		logger:   logger,
		metrics:  metrics,
		interval: interval,
	}
}

// CheckReadiness returns nil once a daily run has completed.
func (c *Collector) CheckReadiness(_ context.Context) error {
	if !c.ready.Load() {
		return errors.New("collector has not completed a daily run yet")
	}
	return nil
}

// Status returns a snapshot of the collector's run history.
func (c *Collector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.status
	st.Ready = c.ready.Load()
	return st
}

func (c *Collector) recordRun(runID string, at time.Time, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.LastRunID = runID
	c.status.LastRun = &at
	if err != nil {
		c.status.LastError = err.Error()
		return
	}
	c.status.LastError = ""
	c.status.LastSuccess = &at
}

// Run executes the daily collection every interval until ctx is cancelled.
// A failed run is retried sooner than the regular interval.
func (c *Collector) Run(ctx context.Context) error {
	c.logger.Info("collector started", "interval", c.interval)
	c.metrics.CollectorRunning.Set(1)
	defer c.metrics.CollectorRunning.Set(0)

	retryWait := initialRetryWait
	for {
		wait := c.interval
		if err := c.RunDaily(ctx); err != nil {
			if ctx.Err() != nil {
				c.logger.Info("collector stopping", "reason", ctx.Err())
				return nil
			}
			wait = min(retryWait, c.interval)
			c.logger.Error("daily run failed", "error", err, "retry_in", wait)
			retryWait = sharedretry.NextBackoff(retryWait, c.interval)
		} else {
			retryWait = initialRetryWait
		}

		if !sharedretry.SleepWithContext(ctx, wait) {
			c.logger.Info("collector stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// RunDaily fills water gaps, fills weather gaps, then refreshes today's water
// and weather values. A failing step is logged and the remaining steps still
// run; the joined step errors are returned so callers can exit non-zero.
func (c *Collector) RunDaily(ctx context.Context) error {
	runID := uuid.NewString()
	ctx = withRunID(ctx, runID)
	logger := c.log(ctx)
	start := time.Now()
	logger.Info("daily collection started")

	var errs []error
	step := func(name string, fn func(context.Context) (int, error)) {
		n, err := fn(ctx)
		if err != nil {
			logger.Error("daily step failed", "step", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		logger.Info("daily step complete", "step", name, "records", n)
	}

	step("water_gaps", c.FillWaterGaps)
	step("weather_gaps", c.FillWeatherGaps)
	step("water_today", c.RefreshWater)
	step("weather_today", c.RefreshWeather)

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		c.recordRun(runID, domain.Now(), err)
		return err
	}

	c.metrics.RunDuration.Observe(time.Since(start).Seconds())
	c.metrics.LastSuccess.SetToCurrentTime()
	c.ready.Store(true)
	c.recordRun(runID, domain.Now(), nil)
	logger.Info("daily collection complete", "duration", time.Since(start))
	return nil
}

// FillWaterGaps fetches every date between the newest stored water record and
// today in one range request and upserts the results one by one. It returns
// the number of records written.
func (c *Collector) FillWaterGaps(ctx context.Context) (int, error) {
	logger := c.log(ctx)
	latest, err := c.store.LatestWaterDate(ctx)
	if err != nil {
		return 0, fmt.Errorf("latest water date: %w", err)
	}

	gaps := DetectGaps(latest, domain.Today())
	if len(gaps) == 0 {
		logger.Info("no water gaps detected")
		return 0, nil
	}
	first, last := gaps[0], gaps[len(gaps)-1]
	c.metrics.GapDays.WithLabelValues("water").Add(float64(len(gaps)))
	logger.Info("water gaps detected",
		"days", len(gaps),
		"start", first.Format(time.DateOnly),
		"end", last.Format(time.DateOnly),
	)

	recs, source, err := c.water.FetchRange(ctx, first, last)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		logger.Warn("no water data for gap, will retry next run", "error", err)
		return 0, nil
	}
	logger.Info("fetched gap records", "source", source, "records", len(recs))
	return c.writeWater(ctx, recs)
}

// RefreshWater fetches and upserts today's water record.
func (c *Collector) RefreshWater(ctx context.Context) (int, error) {
	logger := c.log(ctx)
	today := domain.Today()

	recs, source, err := c.water.FetchRange(ctx, today, today)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		logger.Warn("no water data available for today", "date", today.Format(time.DateOnly), "error", err)
		return 0, nil
	}

	var todays []domain.WaterRecord
	for _, rec := range recs {
		if rec.Date.Equal(today) {
			todays = append(todays, rec)
		}
	}
	if len(todays) == 0 {
		logger.Warn("no water data available for today", "date", today.Format(time.DateOnly), "source", source)
		return 0, nil
	}
	return c.writeWater(ctx, todays)
}

// FillWeatherGaps requests every date between the newest stored weather
// record and today. The provider only serves current conditions, so past
// dates normally come back empty.
func (c *Collector) FillWeatherGaps(ctx context.Context) (int, error) {
	if c.weather == nil {
		return 0, nil
	}
	logger := c.log(ctx)
	latest, err := c.store.LatestWeatherDate(ctx)
	if err != nil {
		return 0, fmt.Errorf("latest weather date: %w", err)
	}

	gaps := DetectGaps(latest, domain.Today())
	if len(gaps) == 0 {
		logger.Info("no weather gaps detected")
		return 0, nil
	}
	c.metrics.GapDays.WithLabelValues("weather").Add(float64(len(gaps)))

	inserted := 0
	for _, d := range gaps {
		ok, err := c.fetchWeather(ctx, d)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// RefreshWeather fetches and stores today's weather.
func (c *Collector) RefreshWeather(ctx context.Context) (int, error) {
	if c.weather == nil {
		return 0, nil
	}
	ok, err := c.fetchWeather(ctx, domain.Today())
	if err != nil || !ok {
		return 0, err
	}
	return 1, nil
}

// fetchWeather stores the weather for d. Provider failures are logged and
// reported as "nothing inserted"; only context cancellation is returned.
func (c *Collector) fetchWeather(ctx context.Context, d time.Time) (bool, error) {
	logger := c.log(ctx).With("date", d.Format(time.DateOnly))
	rec, err := c.weather.Fetch(ctx, d)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		logger.Warn("weather fetch failed", "error", err)
		return false, nil
	}
	if rec == nil {
		logger.Debug("no weather data for date")
		return false, nil
	}

	created, err := c.store.InsertWeather(ctx, *rec)
	if err != nil {
		logger.Warn("weather insert failed", "error", err)
		return false, nil
	}
	if created {
		c.metrics.RecordsWritten.WithLabelValues("weather").Inc()
		logger.Info("inserted weather data")
	}
	return created, nil
}

// writeWater upserts records individually so one bad row does not sink the
// rest, then publishes the written ones.
func (c *Collector) writeWater(ctx context.Context, recs []domain.WaterRecord) (int, error) {
	logger := c.log(ctx)
	written := make([]domain.WaterRecord, 0, len(recs))
	failed := 0
	for _, rec := range recs {
		if err := c.store.UpsertWater(ctx, rec, true); err != nil {
			if ctx.Err() != nil {
				return len(written), ctx.Err()
			}
			logger.Warn("water upsert failed", "date", rec.Date.Format(time.DateOnly), "error", err)
			failed++
			continue
		}
		written = append(written, rec)
	}
	c.metrics.RecordsWritten.WithLabelValues("water").Add(float64(len(written)))
	if failed > 0 {
		logger.Warn("some water records were not written", "failed", failed, "written", len(written))
	}

	c.publish(ctx, written)
	return len(written), nil
}

func (c *Collector) publish(ctx context.Context, recs []domain.WaterRecord) {
	if c.sink == nil || len(recs) == 0 {
		return
	}
	if err := c.sink.PublishBatch(ctx, runIDFrom(ctx), recs); err != nil {
		c.log(ctx).Warn("publish records failed", "error", err, "records", len(recs))
	}
}

func (c *Collector) log(ctx context.Context) *slog.Logger {
	if id := runIDFrom(ctx); id != "" {
		return c.logger.With("run_id", id)
	}
	return c.logger
}

type runIDKey struct{}

func withRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

func runIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

var _ RangeFetcher = (*reconcile.Chain)(nil)
