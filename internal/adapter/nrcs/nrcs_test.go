package nrcs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/adapter/upstream"
	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"github.com/couchcryptid/lake-powell-etl/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func find(recs []domain.SnowpackRecord, wyDate time.Time, year int) *domain.SnowpackRecord {
	for i := range recs {
		if recs[i].WaterYearDate.Equal(wyDate) && recs[i].Year == year {
			return &recs[i]
		}
	}
	return nil
}

func TestParseBasinPlots(t *testing.T) {
	rows := []map[string]any{
		{"date": "10-01", "1986": "0.1", "2024": json.Number("1.5"), "Median ('91-'20)": "0.2", "10%": 0.0},
		{"date": "02-29", "2024": "10.0"},
		{"date": "10-01", "1987": "0.3"},
		{"date": "xx-yy", "2024": "1"},
		{"date": ""},
	}

	recs := ParseBasinPlots(rows, 2025, discardLogger())
	// Two distinct positions, 1986 through 2026.
	require.Len(t, recs, 2*41)

	oct1 := date(2025, 10, 1)
	r := find(recs, oct1, 1986)
	require.NotNil(t, r)
	assert.Equal(t, "10-01", r.DateStr)
	assert.Equal(t, 0.1, *r.SWE)
	assert.Equal(t, 0.2, *r.Median9120)
	assert.Equal(t, 0.0, *r.Percentile10)
	assert.Nil(t, r.MedianPOR)

	r = find(recs, oct1, 2024)
	require.NotNil(t, r)
	assert.Equal(t, 1.5, *r.SWE)

	// The duplicate row supplies SWE where the first had none.
	r = find(recs, oct1, 1987)
	require.NotNil(t, r)
	require.NotNil(t, r.SWE)
	assert.Equal(t, 0.3, *r.SWE)

	r = find(recs, date(2024, 2, 29), 2024)
	require.NotNil(t, r)
	assert.Equal(t, 10.0, *r.SWE)
	assert.Nil(t, find(recs, date(2024, 2, 29), 2026).SWE)
}

func TestBasinPlotsClient_CSVFallback(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "14", r.URL.Query().Get("hucFilter"))
		switch r.URL.Path {
		case "/basin.json":
			w.WriteHeader(http.StatusInternalServerError)
		case "/basin.csv":
			fmt.Fprint(w, "date,1986,2025,2026,Median ('91-'20)\n10-01,0.0,0.5,,0.1\n")
		}
	}))
	defer srv.Close()

	c := &BasinPlotsClient{
		fetch:   upstream.New(basinPlotsSource, 5*time.Second, observability.NewMetricsForTesting()),
		baseURL: srv.URL + "/basin",
		logger:  discardLogger(),
	}
	recs, err := c.FetchBasinPlots(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 41)

	r := find(recs, date(2025, 10, 1), 2025)
	require.NotNil(t, r)
	assert.Equal(t, 0.5, *r.SWE)
	assert.Equal(t, 0.1, *r.Median9120)
	assert.Nil(t, find(recs, date(2025, 10, 1), 2026).SWE)
}

func TestBasinPlotsClient_BothFail(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := &BasinPlotsClient{
		fetch:   upstream.New(basinPlotsSource, 5*time.Second, observability.NewMetricsForTesting()),
		baseURL: srv.URL + "/basin",
		logger:  discardLogger(),
	}
	_, err := c.FetchBasinPlots(context.Background())
	require.Error(t, err)
	assert.True(t, upstream.IsNotFound(err))
}

const report = `Colorado SNOTEL Report
                     Snow Water Equivalent      Precipitation
Data Site Name       Elev   Current  Median  Pct   Current  Median  Pct
-----------------------------------------------------------------
UPPER COLORADO RIVER BASIN
 Berthoud Summit      11300   12.5   14.0   89   18.2   20.0   91
 Copper Mountain      10550   -M     9.0    *    10.1   11.0   92
 Short Line   10000   1.0
GUNNISON
 Park Cone            9600    5.0    6.0    83   8.0    9.0    89
 Basin Index                                  88          91
Unindented Site      9000    1.0    1.0    100   1.0    1.0    100
 Bad Elevation        99999   1.0    1.0    100   1.0    1.0    100
`

func TestParseSnotelReport(t *testing.T) {
	sites := ParseSnotelReport(strings.NewReader(report))
	require.Len(t, sites, 3)

	b := sites[0]
	assert.Equal(t, "Berthoud Summit", b.Name)
	assert.Equal(t, 11300, b.Elevation)
	assert.Equal(t, "UPPER COLORADO RIVER BASIN", b.Basin)
	assert.Equal(t, 12.5, *b.SWECurrent)
	assert.Equal(t, 14.0, *b.SWEMedian)
	assert.Equal(t, 89.0, *b.SWEPercent)
	assert.Equal(t, 91.0, *b.PrecipPercent)

	c := sites[1]
	assert.Equal(t, "Copper Mountain", c.Name)
	assert.Nil(t, c.SWECurrent)
	assert.Nil(t, c.SWEPercent)
	assert.Equal(t, 10.1, *c.PrecipCurrent)

	assert.Equal(t, "Park Cone", sites[2].Name)
	assert.Equal(t, "GUNNISON", sites[2].Basin)
}

func TestParseSnotelReport_NoBasinNoSites(t *testing.T) {
	sites := ParseSnotelReport(strings.NewReader("Data Site Name\n Lonely Site    9000   1.0   1.0   100   1.0   1.0   100\n"))
	assert.Empty(t, sites)
}

const soapHeader = `<?xml version="1.0"?><soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"><soap:Body>`
const soapFooter = `</soap:Body></soap:Envelope>`

func soapFaultBody(msg string) string {
	return soapHeader + `<soap:Fault><faultcode>soap:Server</faultcode><faultstring>` + msg + `</faultstring></soap:Fault>` + soapFooter
}

func testAWDB(url string) *AWDBClient {
	return &AWDBClient{
		fetch:    upstream.New(awdbSource, 5*time.Second, observability.NewMetricsForTesting()),
		endpoint: url,
		logger:   discardLogger(),
	}
}

func TestAWDBClient_StationMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Content-Type"), "text/xml")
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<q0:getStationMetadata>")
		assert.Contains(t, string(body), `xmlns:q0="`+awdbNamespace+`"`)

		if strings.Contains(string(body), "<stationTriplet>CO:BERTHOUD:WTEQ</stationTriplet>") {
			fmt.Fprint(w, soapHeader+`<ns2:getStationMetadataResponse xmlns:ns2="`+awdbNamespace+`"><return>`+
				`<name>Berthoud Summit</name><stationTriplet>335:CO:SNTL</stationTriplet>`+
				`<elevation>11300.0</elevation><latitude>39.8</latitude><longitude>-105.78</longitude>`+
				`</return></ns2:getStationMetadataResponse>`+soapFooter)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, soapFaultBody("No station found"))
	}))
	defer srv.Close()

	c := testAWDB(srv.URL)
	md, err := c.StationMetadata(context.Background(), "CO:BERTHOUD:WTEQ")
	require.NoError(t, err)
	assert.Equal(t, "Berthoud Summit", md.Name)
	assert.Equal(t, "335:CO:SNTL", md.Triplet)
	assert.Equal(t, 11300.0, *md.Elevation)

	_, err = c.StationMetadata(context.Background(), "CO:NOPE:WTEQ")
	var fault *soapFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "No station found", fault.String)
}

func dataBody(begin string, values ...string) string {
	var b strings.Builder
	b.WriteString(soapHeader + `<ns2:getDataResponse xmlns:ns2="` + awdbNamespace + `"><return>`)
	b.WriteString(`<stationTriplet>CO:335:X</stationTriplet><beginDate>` + begin + `</beginDate>`)
	for _, v := range values {
		if v == "" {
			b.WriteString(`<values xsi:nil="true"/>`)
			continue
		}
		b.WriteString(`<values>` + v + `</values>`)
	}
	b.WriteString(`</return></ns2:getDataResponse>` + soapFooter)
	return b.String()
}

func TestAWDBClient_FetchHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body := string(raw)
		assert.Contains(t, body, "<duration>DAILY</duration>")
		assert.Contains(t, body, "<ordinal>1</ordinal>")
		assert.Contains(t, body, "<beginDate>2024-01-01</beginDate>")
		assert.Contains(t, body, "<endDate>2024-01-03</endDate>")
		switch {
		case strings.Contains(body, "<stationTriplets>CO:335:WTEQ</stationTriplets>"):
			fmt.Fprint(w, dataBody("2024-01-01 00:00:00", "10.1", "", "10.4"))
		case strings.Contains(body, "<elementCd>TMAX</elementCd>"):
			fmt.Fprint(w, dataBody("2024-01-02 00:00:00", "28", "30"))
		case strings.Contains(body, "<elementCd>SNWD</elementCd>"):
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, soapFaultBody("boom"))
		default:
			fmt.Fprint(w, soapHeader+`<ns2:getDataResponse xmlns:ns2="`+awdbNamespace+`"/>`+soapFooter)
		}
	}))
	defer srv.Close()

	ms, err := testAWDB(srv.URL).FetchHistory(context.Background(), "CO:335", date(2024, 1, 1), date(2024, 1, 3))
	require.NoError(t, err)
	require.Len(t, ms, 3)

	assert.Equal(t, date(2024, 1, 1), ms[0].Date)
	assert.Equal(t, "CO:335", ms[0].SiteID)
	assert.Equal(t, 10.1, *ms[0].SWE)
	assert.Nil(t, ms[0].TempMax)

	assert.Nil(t, ms[1].SWE)
	assert.Equal(t, 28.0, *ms[1].TempMax)

	assert.Equal(t, 10.4, *ms[2].SWE)
	assert.Equal(t, 30.0, *ms[2].TempMax)
	assert.Nil(t, ms[2].SnowDepth)
}

func TestAWDBClient_FetchHistory_AllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testAWDB(srv.URL).FetchHistory(context.Background(), "CO:335", date(2024, 1, 1), date(2024, 1, 3))
	assert.Error(t, err)
}

func TestElementTriplet(t *testing.T) {
	assert.Equal(t, "CO:335:PREC", elementTriplet("CO:335", "PREC"))
	assert.Equal(t, "CO:335:PREC", elementTriplet("CO:335:WTEQ", "PREC"))
}

func TestStationCandidates(t *testing.T) {
	assert.Equal(t, []string{"COLUMBIN", "COLUMB", "COLU"}, StationCandidates("Columbine Pass"))
	assert.Equal(t, []string{"LIZARD", "LIZARDHE", "LIZA"}, StationCandidates("Lizard Head Pass"))
	assert.Equal(t, []string{"TOWER", "TOWE"}, StationCandidates("Tower"))
	assert.Equal(t, []string{"UPPER", "UPPERSAN", "USM", "UPPERS", "UPPE"}, StationCandidates("Upper San Miguel"))
}

type fakeLookup struct {
	names map[string]string
	calls []string
}

func (f *fakeLookup) StationMetadata(_ context.Context, triplet string) (*StationMetadata, error) {
	f.calls = append(f.calls, triplet)
	if name, ok := f.names[triplet]; ok {
		return &StationMetadata{Name: name}, nil
	}
	return nil, fmt.Errorf("no station %s", triplet)
}

func TestResolver_ProbesStatesInOrder(t *testing.T) {
	lookup := &fakeLookup{names: map[string]string{
		"CO:LIZARD:WTEQ": "Elk Ridge",
		"UT:LIZARD:WTEQ": "Lizard Head Pass",
	}}
	r := NewResolver(lookup, nil, discardLogger())

	id, ok := r.ResolveStationID(context.Background(), "Lizard Head Pass")
	require.True(t, ok)
	assert.Equal(t, "UT:LIZARD", id)
	assert.Equal(t, []string{"CO:LIZARD:WTEQ", "CO:LIZARDHE:WTEQ", "CO:LIZA:WTEQ", "UT:LIZARD:WTEQ"}, lookup.calls)
}

func TestResolver_StaticTableFirst(t *testing.T) {
	lookup := &fakeLookup{}
	r := NewResolver(lookup, KnownStations, discardLogger())

	id, ok := r.ResolveStationID(context.Background(), " Berthoud Summit ")
	require.True(t, ok)
	assert.Equal(t, "CO:335", id)
	assert.Empty(t, lookup.calls)
}

func TestResolver_NoMatch(t *testing.T) {
	lookup := &fakeLookup{}
	r := NewResolver(lookup, nil, discardLogger())

	_, ok := r.ResolveStationID(context.Background(), "Tower")
	assert.False(t, ok)
	assert.Len(t, lookup.calls, 2*len(StateCodes))
}

func TestNamesMatch(t *testing.T) {
	assert.True(t, namesMatch("TOWER", "TOWER"))
	assert.True(t, namesMatch("PARK CONE", "PARK CONE SNOTEL"))
	assert.True(t, namesMatch("LIZARD HEAD PASS", "LIZARD HEAD"))
	assert.True(t, namesMatch("UPPER SAN MIGUEL", "SAN MIGUEL UPPER"))
	assert.False(t, namesMatch("ELK RIDGE", "TOWER"))
	assert.False(t, namesMatch("TOWER", ""))
}
