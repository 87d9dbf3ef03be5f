//go:build integration

package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/analysis"
	"github.com/couchcryptid/lake-powell-etl/internal/capacity"
	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"github.com/couchcryptid/lake-powell-etl/internal/observability"
	"github.com/couchcryptid/lake-powell-etl/internal/pipeline"
	"github.com/couchcryptid/lake-powell-etl/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func TestStore_WaterUpserts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startStore(ctx, t)

	recs := []domain.WaterRecord{
		{Date: day(2024, 4, 1), Elevation: 3560.2, Content: 6400000, Inflow: 9000, Outflow: 8000},
		{Date: day(2024, 4, 2), Elevation: 3560.8, Change: ptr(0.6), Content: 6500000, Inflow: 9100, Outflow: 8000},
		{Date: day(2024, 4, 3), Elevation: 3561.1, Change: ptr(0.3), Content: 6550000, Inflow: 9200, Outflow: 8000},
	}
	inserted, updated, err := store.BulkUpsertWater(ctx, recs, false)
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)
	assert.Zero(t, updated)

	recs[1].Inflow = 9999
	inserted, updated, err = store.BulkUpsertWater(ctx, recs, true)
	require.NoError(t, err)
	assert.Zero(t, inserted)
	assert.Equal(t, 3, updated)

	// without overwrite existing rows keep their values
	require.NoError(t, store.UpsertWater(ctx, domain.WaterRecord{Date: day(2024, 4, 2), Elevation: 3500, Content: 1}, false))

	got, err := store.WaterRange(ctx, day(2024, 4, 1), day(2024, 4, 3))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, day(2024, 4, 2), got[1].Date)
	assert.Equal(t, 3560.8, got[1].Elevation)
	assert.Equal(t, int64(9999), got[1].Inflow)
	require.NotNil(t, got[1].Change)
	assert.Equal(t, 0.6, *got[1].Change)
	assert.Nil(t, got[0].Change)

	earliest, err := store.EarliestWaterDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 4, 1), *earliest)
	latest, err := store.LatestWaterDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 4, 3), *latest)

	existing, err := store.ExistingWaterDates(ctx, day(2024, 4, 2), day(2024, 4, 10))
	require.NoError(t, err)
	assert.Equal(t, map[time.Time]bool{day(2024, 4, 2): true, day(2024, 4, 3): true}, existing)

	floors, err := store.MaxContentByFloor(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]int64{3560: 6500000, 3561: 6550000}, floors)

	n, err := store.ClearWater(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	latest, err = store.LatestWaterDate(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestStore_CorrectBankStorage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startStore(ctx, t)
	res := domain.LakePowell()

	_, _, err := store.BulkUpsertWater(ctx, []domain.WaterRecord{
		{Date: day(2023, 3, 1), Elevation: 3539.5, Content: 4600000},
		{Date: day(2023, 3, 2), Elevation: 3539.6, Content: 6400000},
		{Date: day(2023, 3, 3), Elevation: 3510.0, Content: 4000000},
	}, false)
	require.NoError(t, err)

	count, err := store.CountBankStorageCandidates(ctx, res.BankStorageMinElevation, res.BankStorageMaxContent)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	n, err := store.CorrectBankStorage(ctx, res.BankStorageOffset, res.BankStorageMinElevation, res.BankStorageMaxContent)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.WaterRange(ctx, day(2023, 3, 1), day(2023, 3, 3))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(6396204), got[0].Content)
	assert.Equal(t, int64(6400000), got[1].Content)
	assert.Equal(t, int64(4000000), got[2].Content)

	n, err = store.CorrectBankStorage(ctx, res.BankStorageOffset, res.BankStorageMinElevation, res.BankStorageMaxContent)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_WeatherInsertOrIgnore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startStore(ctx, t)

	created, err := store.InsertWeather(ctx, domain.WeatherRecord{Date: day(2025, 7, 4), HighTemp: ptr(101.3), LowTemp: ptr(88.1)})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.InsertWeather(ctx, domain.WeatherRecord{Date: day(2025, 7, 4), HighTemp: ptr(60.0)})
	require.NoError(t, err)
	assert.False(t, created)

	latest, err := store.LatestWeatherDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, day(2025, 7, 4), *latest)
}

func TestStore_SnowpackAndSnotel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startStore(ctx, t)

	rows := []domain.SnowpackRecord{
		{DateStr: "04-01", WaterYearDate: day(2024, 4, 1), Year: 2024, SWE: ptr(18.2), Median9120: ptr(16.0)},
		{DateStr: "04-02", WaterYearDate: day(2024, 4, 2), Year: 2024, SWE: ptr(18.4), Median9120: ptr(16.1)},
		{DateStr: "04-01", WaterYearDate: day(2024, 4, 1), Year: 2023, SWE: ptr(25.0), Median9120: ptr(16.0)},
	}
	n, err := store.UpsertSnowpack(ctx, rows, false)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	changed := []domain.SnowpackRecord{{DateStr: "04-01", WaterYearDate: day(2024, 4, 1), Year: 2024, SWE: ptr(1.0)}}
	n, err = store.UpsertSnowpack(ctx, changed, false)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := store.SnowpackForYear(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 18.2, *got[0].SWE)

	n, err = store.UpsertSnowpack(ctx, changed, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err = store.SnowpackForYear(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, 1.0, *got[0].SWE)
	assert.Nil(t, got[0].Median9120)

	sites := []domain.SnotelSite{
		{SiteID: "CO:335", Name: "Berthoud Summit", Elevation: ptr(11300), Basin: "UPPER COLORADO", State: "CO"},
		{SiteID: domain.PlaceholderSiteID("Nowhere Pass", "GUNNISON"), Name: "Nowhere Pass", Basin: "GUNNISON"},
	}
	n, err = store.UpsertSnotelSites(ctx, sites, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ms := []domain.SnotelMeasurement{
		{SiteID: "CO:335", Date: day(2024, 4, 1), SWE: ptr(20.1), SnowDepth: ptr(64.0)},
		{SiteID: "CO:335", Date: day(2024, 4, 2), SWE: ptr(20.3)},
	}
	n, err = store.UpsertSnotelMeasurements(ctx, ms, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.UpsertSnotelMeasurements(ctx, ms[:1], false)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_RampsAreKeyedByName(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startStore(ctx, t)

	for _, r := range domain.DefaultRamps() {
		require.NoError(t, store.UpsertRamp(ctx, r))
	}
	ramp := domain.DefaultRamps()[0]
	ramp.MinSafeElevation = 3530
	require.NoError(t, store.UpsertRamp(ctx, ramp))
}

// TestHistoryToAnalysis imports a synthetic water year through the importer,
// rebuilds the capacity curve from it, and analyses the year.
func TestHistoryToAnalysis(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	store := startStore(ctx, t)
	res := domain.LakePowell()
	metrics := observability.NewMetricsForTesting()
	logger := discardLogger()

	var recs []domain.WaterRecord
	for i, d := range domain.DateRange(day(2023, 10, 1), day(2024, 9, 30)) {
		elev := 3540.0 + float64(i)*0.05
		recs = append(recs, domain.WaterRecord{
			Date:      d,
			Elevation: elev,
			Content:   int64(5000000 + i*20000),
			Inflow:    10000,
			Outflow:   8000,
		})
	}

	engine := reconcile.NewEngine(res, logger, metrics)
	importer := pipeline.NewImporter(nil, engine, store, logger, metrics, pipeline.ImporterConfig{BatchSize: 100})
	result, err := importer.ImportRecords(ctx, "csv", recs, pipeline.ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, len(recs), result.Inserted)
	assert.Zero(t, result.Failed)

	stored, err := store.WaterRange(ctx, day(2023, 10, 1), day(2024, 9, 30))
	require.NoError(t, err)
	require.Len(t, stored, len(recs))
	require.NotNil(t, stored[1].Change)
	assert.Equal(t, 0.05, *stored[1].Change)

	entries, err := capacity.NewBuilder(store, res, logger, metrics).Rebuild(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, res.DeadPoolElevation, entries[0].Elevation)
	for i := 1; i < len(entries); i++ {
		assert.GreaterOrEqual(t, entries[i].StorageAtElevation, entries[i-1].StorageAtElevation)
	}

	sum, err := analysis.NewRunner(store, logger, metrics).AnalyzeAll(ctx, analysis.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Analyzed)

	// a second pass rewrites the same row
	sum, err = analysis.NewRunner(store, logger, metrics).AnalyzeAll(ctx, analysis.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Analyzed)
}
