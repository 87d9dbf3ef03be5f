package usbr

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/adapter/upstream"
	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"github.com/couchcryptid/lake-powell-etl/internal/observability"
	"github.com/couchcryptid/lake-powell-etl/internal/reconcile"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyPage = `<!DOCTYPE html>
<html><body>
<table id="form1:datatable">
<thead><tr><th>Date</th><th>Elevation</th><th>Storage</th><th>Inflow</th><th>Total Release</th></tr></thead>
<tbody>
<tr><td> 27-Dec-2025 </td><td>3,540.12</td><td>6,508,998</td><td>4,512</td><td>8,020</td></tr>
<tr><td>28-Dec-2025</td><td>3,540.05</td><td>6,501,000</td><td>4,400</td><td>8,100</td></tr>
<tr><td>29-Dec-2025</td><td>-M</td><td>6,500,000</td><td>4,300</td><td>8,000</td></tr>
</tbody>
</table>
</body></html>`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(at))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func testLegacyClient(baseURL string) *LegacyClient {
	return &LegacyClient{
		fetch:     upstream.New(legacySource, 5*time.Second, observability.NewMetricsForTesting()),
		baseURL:   baseURL,
		siteID:    "919",
		attempts:  2,
		retryBase: time.Millisecond,
		logger:    discardLogger(),
	}
}

func TestParseLegacyPage(t *testing.T) {
	rec, err := ParseLegacyPage(strings.NewReader(legacyPage), day(2025, 12, 28))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, day(2025, 12, 28), rec.Date)
	assert.Equal(t, 3540.05, rec.Elevation)
	assert.Equal(t, int64(6501000), rec.Content)
	assert.Equal(t, int64(4400), rec.Inflow)
	assert.Equal(t, int64(8100), rec.Outflow)

	rec, err = ParseLegacyPage(strings.NewReader(legacyPage), day(2025, 12, 27))
	require.NoError(t, err)
	assert.Equal(t, 3540.12, rec.Elevation)
}

func TestParseLegacyPage_MissingDateOrValue(t *testing.T) {
	rec, err := ParseLegacyPage(strings.NewReader(legacyPage), day(2025, 12, 29))
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = ParseLegacyPage(strings.NewReader(legacyPage), day(2026, 1, 1))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestParseLegacyPage_FallbackTable(t *testing.T) {
	page := `<html><body>
<table><caption>Lake Powell</caption></table>
<table class="data"><tbody><tr><td>5-Jan-2026</td><td>3538.90</td><td>6400000</td><td>4000</td><td>7900</td></tr></tbody></table>
</body></html>`
	rec, err := ParseLegacyPage(strings.NewReader(page), day(2026, 1, 5))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 3538.90, rec.Elevation)
}

func TestParseLegacyPage_NoTable(t *testing.T) {
	_, err := ParseLegacyPage(strings.NewReader(`<html><body><p>maintenance</p></body></html>`), day(2026, 1, 5))
	assert.ErrorIs(t, err, ErrNoTable)
}

func TestLegacyClient_FetchDate_Retries(t *testing.T) {
	freezeClock(t, time.Date(2025, 12, 29, 8, 0, 0, 0, time.UTC))

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "919", r.URL.Query().Get("siteid"))
		assert.Equal(t, "2025-12-28", r.URL.Query().Get("as_of"))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, legacyPage)
	}))
	defer srv.Close()

	rec, err := testLegacyClient(srv.URL).FetchDate(context.Background(), day(2025, 12, 28))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLegacyClient_FetchDate_GivesUp(t *testing.T) {
	freezeClock(t, time.Date(2025, 12, 29, 8, 0, 0, 0, time.UTC))

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testLegacyClient(srv.URL).FetchDate(context.Background(), day(2025, 12, 28))
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLegacyClient_FetchDate_NotFoundIsEmpty(t *testing.T) {
	freezeClock(t, time.Date(2025, 12, 29, 8, 0, 0, 0, time.UTC))

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	rec, err := testLegacyClient(srv.URL).FetchDate(context.Background(), day(2025, 12, 28))
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLegacyClient_FetchDate_ClientErrorNotRetried(t *testing.T) {
	freezeClock(t, time.Date(2025, 12, 29, 8, 0, 0, 0, time.UTC))

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testLegacyClient(srv.URL).FetchDate(context.Background(), day(2025, 12, 28))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLegacyClient_RejectsFuture(t *testing.T) {
	freezeClock(t, time.Date(2025, 12, 29, 8, 0, 0, 0, time.UTC))

	c := testLegacyClient("http://127.0.0.1:1")
	_, err := c.FetchDate(context.Background(), day(2025, 12, 30))
	assert.Error(t, err)
	_, err = c.FetchRange(context.Background(), day(2025, 12, 28), day(2025, 12, 30))
	assert.Error(t, err)
}

func TestLegacyClient_FetchRange(t *testing.T) {
	freezeClock(t, time.Date(2025, 12, 29, 8, 0, 0, 0, time.UTC))

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, legacyPage)
	}))
	defer srv.Close()

	series, err := testLegacyClient(srv.URL).FetchRange(context.Background(), day(2025, 11, 10), day(2025, 12, 28))
	require.NoError(t, err)

	// Nov 19 through Dec 28 lie inside the 40-day window.
	assert.Equal(t, int32(40), calls.Load())
	require.Len(t, series[reconcile.Elevation], 2)
	assert.Equal(t, day(2025, 12, 27), series[reconcile.Elevation][0].Timestamp)
	assert.Equal(t, legacySource, series[reconcile.Elevation][0].Source)
	assert.Len(t, series[reconcile.Outflow], 2)
}

func testDashboardClient(baseURL string) *DashboardClient {
	return &DashboardClient{
		fetch:   upstream.New(dashboardSource, 5*time.Second, observability.NewMetricsForTesting()),
		baseURL: baseURL,
		logger:  discardLogger(),
	}
}

func TestDashboardClient_FetchRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/Pool Elevation.json":
			fmt.Fprint(w, `{"columns":["datetime","Pool Elevation"],"data":[["2023-12-31",3561.0],["2024-01-01",3560.1],["2024-01-02","3,560.00"]]}`)
		case "/Storage.json":
			fmt.Fprint(w, `<!DOCTYPE html><html><body>Not Found</body></html>`)
		case "/Storage.csv":
			fmt.Fprint(w, "datetime,Storage\n2024-01-01,\"6,500,000\"\n2024-01-02,6490000\n")
		case "/Inflow.json":
			fmt.Fprint(w, `[{"date":"2024-01-01","value":"4,000"},{"date":"2024-01-02","value":"-M"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	series, err := testDashboardClient(srv.URL).FetchRange(context.Background(), day(2024, 1, 1), day(2024, 1, 2))
	require.NoError(t, err)

	require.Len(t, series[reconcile.Elevation], 2)
	assert.Equal(t, 3560.1, series[reconcile.Elevation][0].Value)
	assert.Equal(t, 3560.0, series[reconcile.Elevation][1].Value)
	require.Len(t, series[reconcile.Content], 2)
	assert.Equal(t, 6500000.0, series[reconcile.Content][0].Value)
	require.Len(t, series[reconcile.Inflow], 1)
	assert.Equal(t, 4000.0, series[reconcile.Inflow][0].Value)
	assert.Empty(t, series[reconcile.Outflow])
}

func TestDashboardClient_NothingServed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := testDashboardClient(srv.URL).FetchRange(context.Background(), day(2024, 1, 1), day(2024, 1, 2))
	require.Error(t, err)
	assert.True(t, upstream.IsNotFound(err))
}

func TestParseHistoricalCSV(t *testing.T) {
	input := "\ufeffDate,Elevation,Storage,Inflow,Total Release\n" +
		"2010-03-01,\"3,620.40\",\"12,000,000\",6000,8000\n" +
		"03/02/2010,3620.30,11990000,,8100\n" +
		"2010/03/03,3620.10,11980000,6100,8100\n" +
		"04-Mar-2010,3620.00,,,\n" +
		"not a date,3620.00,1,2,3\n" +
		"2010-03-05,,11970000,6000,8000\n"

	recs, err := ParseHistoricalCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, recs, 4)

	assert.Equal(t, day(2010, 3, 1), recs[0].Date)
	assert.Equal(t, 3620.40, recs[0].Elevation)
	assert.Equal(t, int64(12000000), recs[0].Content)
	assert.Equal(t, int64(8000), recs[0].Outflow)

	assert.Equal(t, day(2010, 3, 2), recs[1].Date)
	assert.Zero(t, recs[1].Inflow)
	assert.Equal(t, day(2010, 3, 3), recs[2].Date)
	assert.Equal(t, day(2010, 3, 4), recs[3].Date)
	assert.Zero(t, recs[3].Content)
}

func TestParseHistoricalCSV_MissingColumns(t *testing.T) {
	_, err := ParseHistoricalCSV(strings.NewReader("Day,Level\n2010-03-01,3620\n"))
	assert.Error(t, err)
}
