// Package app wires configuration, storage, and upstream sources into the
// components the commands run.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/lake-powell-etl/internal/adapter/nrcs"
	"github.com/couchcryptid/lake-powell-etl/internal/adapter/rise"
	"github.com/couchcryptid/lake-powell-etl/internal/adapter/upstream"
	"github.com/couchcryptid/lake-powell-etl/internal/adapter/usbr"
	"github.com/couchcryptid/lake-powell-etl/internal/adapter/usgs"
	"github.com/couchcryptid/lake-powell-etl/internal/config"
	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"github.com/couchcryptid/lake-powell-etl/internal/observability"
	"github.com/couchcryptid/lake-powell-etl/internal/pipeline"
	"github.com/couchcryptid/lake-powell-etl/internal/reconcile"
	"github.com/couchcryptid/lake-powell-etl/internal/storage/postgres"
)

// Env is the shared runtime of every command.
type Env struct {
	Config    *config.Config
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	Reservoir domain.Reservoir
	Store     *postgres.Store
}

// Setup loads configuration, builds the logger and metrics, connects to the
// database, and migrates the schema.
func Setup(ctx context.Context) (*Env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg)
	slog.SetDefault(logger)

	store, err := postgres.Open(cfg.DatabaseURL, cfg.BatchSize, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Env{
		Config:    cfg,
		Logger:    logger,
		Metrics:   observability.NewMetrics(),
		Reservoir: domain.LakePowell(),
		Store:     store,
	}, nil
}

func (e *Env) Close() {
	if err := e.Store.Close(); err != nil {
		e.Logger.Error("database close error", "error", err)
	}
}

// Engine returns a reconciliation engine for the reservoir profile.
func (e *Env) Engine() *reconcile.Engine {
	return reconcile.NewEngine(e.Reservoir, e.Logger, e.Metrics)
}

// WaterChain builds the ordered acquisition paths for daily reservoir data:
// RISE bulk download, USBR dashboard, RISE catalog, RISE legacy, USGS, then
// the USBR 40-day page. Every path but the last is retried on transient
// failures; the legacy page retries per date itself.
func (e *Env) WaterChain() *reconcile.Chain {
	cfg := e.Config
	retry := func(s reconcile.Strategy) reconcile.Strategy {
		return pipeline.RetryStrategy(s, cfg.RetryAttempts, cfg.RetryBaseDelay, upstream.IsTransient, e.Logger)
	}

	riseClient := rise.NewClient(e.Reservoir, rise.Options{Timeout: cfg.HTTPTimeout, BulkTimeout: cfg.BulkTimeout}, e.Logger, e.Metrics)
	download, catalog, legacy := riseClient.Strategies()
	dashboard := usbr.NewDashboardClient(e.Reservoir, cfg.HTTPTimeout, e.Logger, e.Metrics)
	nwis := usgs.NewClient(e.Reservoir, cfg.HTTPTimeout, e.Logger, e.Metrics)
	page := usbr.NewLegacyClient(e.Reservoir, usbr.LegacyOptions{
		Timeout:   cfg.HTTPTimeout,
		Delay:     cfg.RequestDelay,
		Attempts:  cfg.RetryAttempts,
		RetryBase: cfg.RetryBaseDelay,
	}, e.Logger, e.Metrics)

	return reconcile.NewChain(e.Engine(), e.Logger,
		retry(download),
		retry(dashboard.Strategy()),
		retry(catalog),
		retry(legacy),
		retry(nwis.Strategy()),
		page.Strategy(),
	)
}

// SnowpackImporter wires the NRCS sources. Station resolution goes through
// the static table, then AWDB probing, behind an in-process cache that
// collapses names the report repeats under several basins.
func (e *Env) SnowpackImporter() *pipeline.SnowpackImporter {
	cfg := e.Config
	awdb := nrcs.NewAWDBClient(cfg.BulkTimeout, e.Logger, e.Metrics)
	resolver := nrcs.NewCachedResolver(nrcs.NewResolver(awdb, nrcs.KnownStations, e.Logger), cfg.StationCacheSize)
	return pipeline.NewSnowpackImporter(
		nrcs.NewBasinPlotsClient(cfg.HTTPTimeout, e.Logger, e.Metrics),
		nrcs.NewReportClient(cfg.HTTPTimeout, e.Logger, e.Metrics),
		resolver,
		awdb,
		e.Store,
		e.Logger,
		e.Metrics,
		cfg.RequestDelay,
	)
}
