package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"github.com/couchcryptid/lake-powell-etl/internal/observability"
	"github.com/couchcryptid/lake-powell-etl/internal/reconcile"
)

const progressEvery = 1000

// ImporterConfig tunes historical imports.
type ImporterConfig struct {
	HistoricalStart time.Time
	ChunkDays       int
	BatchSize       int
}

// ImportOptions selects the range and conflict behaviour of an import.
// Zero Start and End default to the historical start and today.
type ImportOptions struct {
	Start        time.Time
	End          time.Time
	Overwrite    bool
	SkipExisting bool
}

// ImportResult summarises an import run.
type ImportResult struct {
	Start        time.Time
	End          time.Time
	Source       string
	Inserted     int
	Updated      int
	Skipped      int
	Failed       int
	FailedChunks int
	// Missing counts days inside successful chunks that no record covered.
	Missing int
}

// LogValue renders the result as a single structured log group.
func (r ImportResult) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("start", r.Start.Format(time.DateOnly)),
		slog.String("end", r.End.Format(time.DateOnly)),
		slog.String("source", r.Source),
		slog.Int("inserted", r.Inserted),
		slog.Int("updated", r.Updated),
		slog.Int("skipped", r.Skipped),
		slog.Int("failed", r.Failed),
		slog.Int("failed_chunks", r.FailedChunks),
		slog.Int("missing", r.Missing),
	)
}

// Importer loads long runs of history into the water store.
type Importer struct {
	fetcher RangeFetcher
	engine  *reconcile.Engine
	store   WaterStore
	logger  *slog.Logger
	metrics *observability.Metrics
	cfg     ImporterConfig
}

// NewImporter creates an Importer. Non-positive chunk and batch sizes fall
// back to one year and 50 rows.
func NewImporter(fetcher RangeFetcher, engine *reconcile.Engine, store WaterStore, logger *slog.Logger, metrics *observability.Metrics, cfg ImporterConfig) *Importer {
	if cfg.ChunkDays <= 0 {
		cfg.ChunkDays = 365
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Importer{
		fetcher: fetcher,
		engine:  engine,
		store:   store,
		logger:  logger,
		metrics: metrics,
		cfg:     cfg,
	}
}

// ImportHistorical walks [Start, End] in chunks of ChunkDays, strictly in
// order, fetching each through the fetcher. A chunk that yields nothing is
// counted and skipped; days a successful chunk leaves uncovered are counted
// as missing.
func (im *Importer) ImportHistorical(ctx context.Context, opts ImportOptions) (ImportResult, error) {
	start, end, err := im.resolveRange(opts)
	if err != nil {
		return ImportResult{}, err
	}
	res := ImportResult{Start: start, End: end}
	im.logger.Info("historical import started",
		"start", start.Format(time.DateOnly),
		"end", end.Format(time.DateOnly),
		"chunk_days", im.cfg.ChunkDays,
	)

	existing, err := im.existing(ctx, start, end, opts)
	if err != nil {
		return res, err
	}

	if err := im.importChunks(ctx, start, end, opts, existing, &res); err != nil {
		return res, err
	}
	im.logger.Info("historical import complete", "result", res)
	return res, nil
}

func (im *Importer) importChunks(ctx context.Context, start, end time.Time, opts ImportOptions, existing map[time.Time]bool, res *ImportResult) error {
	total := len(domain.DateRange(start, end))
	done := 0
	for cs := start; !cs.After(end); {
		ce := cs.AddDate(0, 0, im.cfg.ChunkDays-1)
		if ce.After(end) {
			ce = end
		}
		days := len(domain.DateRange(cs, ce))
		done += days
		logger := im.logger.With("chunk_start", cs.Format(time.DateOnly), "chunk_end", ce.Format(time.DateOnly))

		recs, source, err := im.fetcher.FetchRange(ctx, cs, ce)
		switch {
		case err == nil:
			res.Source = source
			if err := im.load(ctx, recs, opts, existing, res); err != nil {
				return err
			}
			if missing := days - covered(recs, cs, ce); missing > 0 {
				res.Missing += missing
				logger.Warn("chunk incomplete", "source", source, "missing_days", missing)
			}
			logger.Info("chunk imported",
				"source", source,
				"records", len(recs),
				"progress_pct", fmt.Sprintf("%.1f", float64(done)/float64(total)*100),
			)
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			res.FailedChunks++
			res.Failed += days
			logger.Warn("chunk failed, continuing", "error", err)
		}
		cs = ce.AddDate(0, 0, 1)
	}
	return nil
}

// covered counts the distinct dates of recs within [start, end].
func covered(recs []domain.WaterRecord, start, end time.Time) int {
	seen := make(map[time.Time]bool, len(recs))
	for _, r := range recs {
		d := domain.DateOf(r.Date)
		if !d.Before(start) && !d.After(end) {
			seen[d] = true
		}
	}
	return len(seen)
}

// ImportRecords loads already-daily records, such as a parsed CSV export,
// through validation and change computation before writing them.
func (im *Importer) ImportRecords(ctx context.Context, source string, recs []domain.WaterRecord, opts ImportOptions) (ImportResult, error) {
	res := ImportResult{Source: source}
	clean := im.engine.Reconcile(reconcile.SeriesFromRecords(source, recs))
	if len(clean) == 0 {
		return res, reconcile.ErrNoData
	}
	res.Start, res.End = clean[0].Date, clean[len(clean)-1].Date
	res.Failed = len(recs) - len(clean)

	existing, err := im.existing(ctx, res.Start, res.End, opts)
	if err != nil {
		return res, err
	}
	if err := im.load(ctx, clean, opts, existing, &res); err != nil {
		return res, err
	}
	im.logger.Info("record import complete", "result", res)
	return res, nil
}

func (im *Importer) resolveRange(opts ImportOptions) (time.Time, time.Time, error) {
	start, end := opts.Start, opts.End
	if start.IsZero() {
		start = im.cfg.HistoricalStart
	}
	today := domain.Today()
	if end.IsZero() || end.After(today) {
		end = today
	}
	start, end = domain.DateOf(start), domain.DateOf(end)
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("import range: start %s is after end %s",
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return start, end, nil
}

func (im *Importer) existing(ctx context.Context, start, end time.Time, opts ImportOptions) (map[time.Time]bool, error) {
	if !opts.SkipExisting {
		return nil, nil
	}
	dates, err := im.store.ExistingWaterDates(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("existing water dates: %w", err)
	}
	im.logger.Info("found existing dates", "count", len(dates))
	return dates, nil
}

// load writes recs in batches, skipping dates already present when asked to.
// A failed batch counts every row in it as failed and the load continues.
func (im *Importer) load(ctx context.Context, recs []domain.WaterRecord, opts ImportOptions, existing map[time.Time]bool, res *ImportResult) error {
	pending := make([]domain.WaterRecord, 0, len(recs))
	for _, rec := range recs {
		if existing[rec.Date] {
			res.Skipped++
			continue
		}
		pending = append(pending, rec)
	}

	processed := 0
	for i := 0; i < len(pending); i += im.cfg.BatchSize {
		batch := pending[i:min(i+im.cfg.BatchSize, len(pending))]
		inserted, updated, err := im.store.BulkUpsertWater(ctx, batch, opts.Overwrite)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			im.logger.Warn("batch upsert failed",
				"first", batch[0].Date.Format(time.DateOnly),
				"rows", len(batch),
				"error", err,
			)
			res.Failed += len(batch)
		} else {
			res.Inserted += inserted
			res.Updated += updated
			res.Skipped += len(batch) - inserted - updated
			im.metrics.RecordsWritten.WithLabelValues("water").Add(float64(inserted + updated))
			if existing != nil {
				for _, rec := range batch {
					existing[rec.Date] = true
				}
			}
		}

		before := processed
		processed += len(batch)
		if processed/progressEvery > before/progressEvery {
			im.logger.Info("import progress", "processed", processed, "total", len(pending))
		}
	}
	return nil
}
