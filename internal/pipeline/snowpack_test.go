package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/adapter/nrcs"
	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"github.com/couchcryptid/lake-powell-etl/internal/observability"
	"github.com/couchcryptid/lake-powell-etl/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPlots struct {
	recs []domain.SnowpackRecord
	err  error
}

func (s stubPlots) FetchBasinPlots(context.Context) ([]domain.SnowpackRecord, error) {
	return s.recs, s.err
}

type stubReport []domain.ReportSite

func (s stubReport) FetchReport(context.Context) ([]domain.ReportSite, error) {
	return s, nil
}

type stubResolver map[string]string

func (s stubResolver) ResolveStationID(_ context.Context, name string) (string, bool) {
	id, ok := s[name]
	return id, ok
}

type stubHistory struct {
	calls []string
	start time.Time
	end   time.Time
}

func (h *stubHistory) FetchHistory(_ context.Context, siteID string, start, end time.Time) ([]domain.SnotelMeasurement, error) {
	h.calls = append(h.calls, siteID)
	h.start, h.end = start, end
	if siteID == "UT:BROKEN" {
		return nil, errors.New("soap fault")
	}
	return []domain.SnotelMeasurement{
		{SiteID: siteID, Date: day(2025, 1, 1), SWE: domain.Float(9.5)},
		{SiteID: siteID, Date: day(2025, 1, 2), SWE: domain.Float(9.7)},
	}, nil
}

type snowStore struct {
	snowpack     []domain.SnowpackRecord
	sites        []domain.SnotelSite
	measurements []domain.SnotelMeasurement
	overwrite    bool
}

func (s *snowStore) UpsertSnowpack(_ context.Context, recs []domain.SnowpackRecord, overwrite bool) (int, error) {
	s.snowpack = append(s.snowpack, recs...)
	s.overwrite = overwrite
	return len(recs), nil
}

func (s *snowStore) UpsertSnotelSites(_ context.Context, sites []domain.SnotelSite, _ bool) (int, error) {
	s.sites = append(s.sites, sites...)
	return len(sites), nil
}

func (s *snowStore) UpsertSnotelMeasurements(_ context.Context, ms []domain.SnotelMeasurement, _ bool) (int, error) {
	if len(s.sites) == 0 {
		return 0, errors.New("foreign key violation")
	}
	s.measurements = append(s.measurements, ms...)
	return len(ms), nil
}

func TestSnowpackImporter_ImportBasinPlots(t *testing.T) {
	store := &snowStore{}
	plots := stubPlots{recs: []domain.SnowpackRecord{
		{DateStr: "04-01", WaterYearDate: day(2024, 4, 1), Year: 2024, SWE: domain.Float(14.2)},
	}}
	imp := pipeline.NewSnowpackImporter(plots, nil, nil, nil, store, discardLogger(), observability.NewMetricsForTesting(), 0)

	n, err := imp.ImportBasinPlots(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, store.overwrite)

	imp = pipeline.NewSnowpackImporter(stubPlots{err: errors.New("404")}, nil, nil, nil, store, discardLogger(), observability.NewMetricsForTesting(), 0)
	_, err = imp.ImportBasinPlots(context.Background(), true)
	assert.Error(t, err)
}

func TestSnowpackImporter_ImportSnotel(t *testing.T) {
	freezeClock(t, time.Date(2025, 2, 15, 9, 0, 0, 0, time.UTC))

	report := stubReport{
		{Name: "Tower", Elevation: 10500, Basin: "YAMPA RIVER BASIN", SWECurrent: domain.Float(22.1)},
		{Name: "Mystery Ridge Meadows Station", Elevation: 9800, Basin: "SAN JUAN", SWECurrent: domain.Float(11.3), PrecipCurrent: domain.Float(14.0)},
		{Name: "Broken Site", Elevation: 9000, Basin: "PRICE"},
		{Name: "No Values", Elevation: 8000, Basin: "PRICE"},
	}
	resolver := stubResolver{"Tower": "CO:TOWER", "Broken Site": "UT:BROKEN"}
	history := &stubHistory{}
	store := &snowStore{}

	imp := pipeline.NewSnowpackImporter(nil, report, resolver, history, store, discardLogger(), observability.NewMetricsForTesting(), 0)
	res, err := imp.ImportSnotel(context.Background(), pipeline.SnotelOptions{Overwrite: true})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Sites)
	assert.Equal(t, 2, res.Resolved)
	assert.Equal(t, 3, res.Measurements)
	assert.Equal(t, []string{"CO:TOWER", "UT:BROKEN"}, history.calls)
	assert.Equal(t, day(2015, 2, 15), history.start)
	assert.Equal(t, day(2025, 2, 15), history.end)

	require.Len(t, store.sites, 4)
	assert.Equal(t, "CO", store.sites[0].State)
	assert.True(t, store.sites[0].Resolved())

	placeholder := store.sites[1]
	assert.False(t, placeholder.Resolved())
	assert.Equal(t, "UNKNOWN:MYSTERY_RIDGE_MEADOW:SAN JUAN", placeholder.SiteID)
	assert.Empty(t, placeholder.State)

	last := store.measurements[len(store.measurements)-1]
	assert.Equal(t, placeholder.SiteID, last.SiteID)
	assert.Equal(t, day(2025, 2, 15), last.Date)
	assert.Equal(t, 11.3, *last.SWE)
	assert.Equal(t, 14.0, *last.Precipitation)
}

func TestSnowpackImporter_ImportSnotel_LimitSites(t *testing.T) {
	freezeClock(t, time.Date(2025, 2, 15, 9, 0, 0, 0, time.UTC))

	report := stubReport{
		{Name: "Tower", Elevation: 10500, Basin: "YAMPA"},
		{Name: "Other", Elevation: 9500, Basin: "YAMPA"},
	}
	store := &snowStore{}
	imp := pipeline.NewSnowpackImporter(nil, report, stubResolver{}, &stubHistory{}, store, discardLogger(), observability.NewMetricsForTesting(), 0)

	res, err := imp.ImportSnotel(context.Background(), pipeline.SnotelOptions{LimitSites: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sites)
	assert.Zero(t, res.Measurements)
}

type countingResolver struct {
	ids   map[string]string
	calls int
}

func (r *countingResolver) ResolveStationID(_ context.Context, name string) (string, bool) {
	r.calls++
	id, ok := r.ids[name]
	return id, ok
}

func TestSnowpackImporter_ImportSnotel_SiteListedUnderTwoBasins(t *testing.T) {
	freezeClock(t, time.Date(2025, 2, 15, 9, 0, 0, 0, time.UTC))

	report := stubReport{
		{Name: "Tower", Elevation: 10500, Basin: "YAMPA RIVER BASIN"},
		{Name: "Tower", Elevation: 10500, Basin: "UPPER COLORADO"},
		{Name: "Lost Lake", Elevation: 9000, Basin: "GUNNISON", SWECurrent: domain.Float(8.0)},
		{Name: "Lost Lake", Elevation: 9000, Basin: "GUNNISON", SWECurrent: domain.Float(8.0)},
	}
	inner := &countingResolver{ids: map[string]string{"Tower": "CO:TOWER"}}
	history := &stubHistory{}
	store := &snowStore{}

	imp := pipeline.NewSnowpackImporter(nil, report, nrcs.NewCachedResolver(inner, 16), history, store, discardLogger(), observability.NewMetricsForTesting(), 0)
	res, err := imp.ImportSnotel(context.Background(), pipeline.SnotelOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, []string{"CO:TOWER"}, history.calls)
	assert.Equal(t, 2, res.Duplicates)
	require.Len(t, store.sites, 2)
	assert.Equal(t, "CO:TOWER", store.sites[0].SiteID)
	// two days of Tower history plus Lost Lake's current values
	assert.Len(t, store.measurements, 3)
}
