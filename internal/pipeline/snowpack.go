package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"github.com/couchcryptid/lake-powell-etl/internal/observability"
	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
)

// BasinPlotsFetcher returns the basin-wide SWE climatology table.
type BasinPlotsFetcher interface {
	FetchBasinPlots(ctx context.Context) ([]domain.SnowpackRecord, error)
}

// SnotelReporter returns the station rows of the SNOTEL situation report.
type SnotelReporter interface {
	FetchReport(ctx context.Context) ([]domain.ReportSite, error)
}

// StationResolver maps a report site name to an AWDB "ST:ID" site id.
type StationResolver interface {
	ResolveStationID(ctx context.Context, name string) (string, bool)
}

// StationHistory returns daily measurements for a resolved site.
type StationHistory interface {
	FetchHistory(ctx context.Context, siteID string, start, end time.Time) ([]domain.SnotelMeasurement, error)
}

// SnowpackStore persists climatology and SNOTEL rows.
type SnowpackStore interface {
	UpsertSnowpack(ctx context.Context, recs []domain.SnowpackRecord, overwrite bool) (int, error)
	UpsertSnotelSites(ctx context.Context, sites []domain.SnotelSite, overwrite bool) (int, error)
	UpsertSnotelMeasurements(ctx context.Context, ms []domain.SnotelMeasurement, overwrite bool) (int, error)
}

// SnotelOptions selects the history window of a SNOTEL import. Zero Start
// defaults to ten years before End; zero End defaults to today.
type SnotelOptions struct {
	Start      time.Time
	End        time.Time
	Overwrite  bool
	LimitSites int
}

// SnotelResult summarises a SNOTEL import.
type SnotelResult struct {
	Sites        int
	Resolved     int
	Measurements int
	// Duplicates counts report rows naming a site already imported in the
	// same run, such as a station listed under two basins.
	Duplicates int
}

// SnowpackImporter loads basin climatology and SNOTEL station history.
type SnowpackImporter struct {
	plots    BasinPlotsFetcher
	report   SnotelReporter
	resolver StationResolver
	history  StationHistory
	store    SnowpackStore
	logger   *slog.Logger
	metrics  *observability.Metrics
	delay    time.Duration
}

// NewSnowpackImporter wires a SnowpackImporter. delay is the pause between
// per-site history requests.
func NewSnowpackImporter(plots BasinPlotsFetcher, report SnotelReporter, resolver StationResolver, history StationHistory, store SnowpackStore, logger *slog.Logger, metrics *observability.Metrics, delay time.Duration) *SnowpackImporter {
	return &SnowpackImporter{
		plots:    plots,
		report:   report,
		resolver: resolver,
		history:  history,
		store:    store,
		logger:   logger,
		metrics:  metrics,
		delay:    delay,
	}
}

// ImportBasinPlots fetches the climatology table and upserts it.
func (s *SnowpackImporter) ImportBasinPlots(ctx context.Context, overwrite bool) (int, error) {
	recs, err := s.plots.FetchBasinPlots(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch basin plots: %w", err)
	}
	if len(recs) == 0 {
		s.logger.Warn("basin plots returned no rows")
		return 0, nil
	}

	n, err := s.store.UpsertSnowpack(ctx, recs, overwrite)
	if err != nil {
		return 0, fmt.Errorf("upsert basin plots: %w", err)
	}
	s.metrics.RecordsWritten.WithLabelValues("snowpack").Add(float64(n))
	s.logger.Info("basin plots imported", "rows", len(recs), "written", n)
	return n, nil
}

// ImportSnotel parses the situation report, resolves each site against AWDB
// and loads its daily history. Unresolved sites are kept under a placeholder
// id with the report's current values stored for End.
func (s *SnowpackImporter) ImportSnotel(ctx context.Context, opts SnotelOptions) (SnotelResult, error) {
	var res SnotelResult
	end := opts.End
	if end.IsZero() {
		end = domain.Today()
	}
	end = domain.DateOf(end)
	start := opts.Start
	if start.IsZero() {
		start = end.AddDate(-10, 0, 0)
	}
	start = domain.DateOf(start)

	report, err := s.report.FetchReport(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch snotel report: %w", err)
	}
	if len(report) == 0 {
		return res, errors.New("snotel report contained no sites")
	}
	if opts.LimitSites > 0 && len(report) > opts.LimitSites {
		report = report[:opts.LimitSites]
	}
	s.logger.Info("snotel import started",
		"sites", len(report),
		"start", start.Format(time.DateOnly),
		"end", end.Format(time.DateOnly),
	)

	sites := make([]domain.SnotelSite, 0, len(report))
	seen := make(map[string]bool, len(report))
	var measurements []domain.SnotelMeasurement
	for i, rs := range report {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		logger := s.logger.With("site", rs.Name, "n", i+1, "of", len(report))

		site := domain.SnotelSite{Name: rs.Name, Basin: rs.Basin}
		if rs.Elevation > 0 {
			elev := rs.Elevation
			site.Elevation = &elev
		}

		id, ok := s.resolver.ResolveStationID(ctx, rs.Name)
		site.SiteID = id
		if !ok {
			site.SiteID = domain.PlaceholderSiteID(rs.Name, rs.Basin)
		}
		if seen[site.SiteID] {
			res.Duplicates++
			logger.Debug("site already imported in this run", "site_id", site.SiteID)
			continue
		}
		seen[site.SiteID] = true

		if !ok {
			sites = append(sites, site)
			logger.Warn("could not resolve station id", "placeholder", site.SiteID)
			if rs.SWECurrent != nil {
				measurements = append(measurements, domain.SnotelMeasurement{
					SiteID:        site.SiteID,
					Date:          end,
					SWE:           rs.SWECurrent,
					Precipitation: rs.PrecipCurrent,
				})
			}
			continue
		}

		res.Resolved++
		site.State = domain.StateOf(id)
		sites = append(sites, site)

		history, err := s.history.FetchHistory(ctx, id, start, end)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			logger.Warn("station history fetch failed", "site_id", id, "error", err)
			continue
		}
		logger.Info("fetched station history", "site_id", id, "dates", len(history))
		measurements = append(measurements, history...)

		if !sharedretry.SleepWithContext(ctx, s.delay) {
			return res, ctx.Err()
		}
	}

	// Sites go first: measurements reference them.
	n, err := s.store.UpsertSnotelSites(ctx, sites, opts.Overwrite)
	if err != nil {
		return res, fmt.Errorf("upsert snotel sites: %w", err)
	}
	res.Sites = n
	s.metrics.RecordsWritten.WithLabelValues("snotel_site").Add(float64(n))

	if len(measurements) > 0 {
		m, err := s.store.UpsertSnotelMeasurements(ctx, measurements, opts.Overwrite)
		if err != nil {
			return res, fmt.Errorf("upsert snotel measurements: %w", err)
		}
		res.Measurements = m
		s.metrics.RecordsWritten.WithLabelValues("snotel").Add(float64(m))
	}

	s.logger.Info("snotel import complete",
		"sites", res.Sites,
		"resolved", res.Resolved,
		"measurements", res.Measurements,
		"duplicates", res.Duplicates,
	)
	return res, nil
}
