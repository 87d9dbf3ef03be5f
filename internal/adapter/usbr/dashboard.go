package usbr

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/adapter/upstream"
	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"github.com/couchcryptid/lake-powell-etl/internal/observability"
	"github.com/couchcryptid/lake-powell-etl/internal/reconcile"
)

const dashboardSource = "usbr-dashboard"

// dashboardSeries maps each metric to its series name on the hydrodata site.
var dashboardSeries = []struct {
	metric reconcile.Metric
	name   string
}{
	{reconcile.Elevation, "Pool Elevation"},
	{reconcile.Content, "Storage"},
	{reconcile.Inflow, "Inflow"},
	{reconcile.Outflow, "Total Release"},
}

// DashboardClient downloads whole-history series from the hydrodata
// dashboard and trims them to the requested range.
type DashboardClient struct {
	fetch   *upstream.Fetcher
	baseURL string
	logger  *slog.Logger
}

// NewDashboardClient creates a client for the reservoir's dashboard page.
func NewDashboardClient(res domain.Reservoir, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *DashboardClient {
	return &DashboardClient{
		fetch:   upstream.New(dashboardSource, timeout, metrics),
		baseURL: "https://www.usbr.gov/uc/water/hydrodata/reservoir_data/" + res.USBRSiteID,
		logger:  logger,
	}
}

// Strategy exposes the client to the reconciliation chain.
func (c *DashboardClient) Strategy() reconcile.Strategy {
	return reconcile.Strategy{Name: dashboardSource, Fetch: c.FetchRange}
}

// FetchRange returns every series the dashboard serves, restricted to
// [start, end]. A metric that no URL variant serves is left out.
func (c *DashboardClient) FetchRange(ctx context.Context, start, end time.Time) (reconcile.Series, error) {
	out := reconcile.Series{}
	var errs []error
	for _, s := range dashboardSeries {
		readings, err := c.fetchSeries(ctx, s.name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Debug("dashboard series unavailable", "series", s.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		for _, r := range readings {
			out.Add(s.metric, r)
		}
	}
	if len(errs) == len(dashboardSeries) {
		c.fetch.Record("error")
		return nil, errors.Join(errs...)
	}
	out = out.Within(start, end)
	if out.Empty() {
		c.fetch.Record("empty")
	} else {
		c.fetch.Record("success")
	}
	return out, nil
}

func (c *DashboardClient) fetchSeries(ctx context.Context, name string) ([]reconcile.Reading, error) {
	variants := []string{url.PathEscape(name), strings.ReplaceAll(name, " ", "_")}
	var lastErr error
	for _, ext := range []string{"json", "csv"} {
		for _, v := range variants {
			body, err := c.fetch.Get(ctx, fmt.Sprintf("%s/%s.%s", c.baseURL, v, ext))
			if err != nil {
				lastErr = err
				continue
			}
			if upstream.LooksLikeHTML(body) {
				lastErr = fmt.Errorf("html page instead of %s", ext)
				continue
			}
			var readings []reconcile.Reading
			if ext == "json" {
				readings, err = parseDashboardJSON(body)
			} else {
				readings, err = parseDashboardCSV(bytes.NewReader(body))
			}
			if err != nil {
				lastErr = err
				continue
			}
			return readings, nil
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no url variant served the series")
	}
	return nil, lastErr
}

// parseDashboardJSON accepts {"columns": [...], "data": [[...], ...]}, a bare
// array of rows, or an array of objects.
func parseDashboardJSON(body []byte) ([]reconcile.Reading, error) {
	var table struct {
		Columns []string `json:"columns"`
		Data    []any    `json:"data"`
	}
	var rows []any
	var columns []string
	if err := json.Unmarshal(body, &table); err == nil && table.Data != nil {
		rows, columns = table.Data, table.Columns
	} else if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode dashboard json: %w", err)
	}

	dateCol, valueCol := pickColumns(columns)
	var out []reconcile.Reading
	for _, row := range rows {
		var dateVal, value any
		switch r := row.(type) {
		case []any:
			if len(r) <= max(dateCol, valueCol) {
				continue
			}
			dateVal, value = r[dateCol], r[valueCol]
		case map[string]any:
			dateVal, value = objectField(r, "date", "datetime", "Date", "DateTime", "dateTime"), objectValue(r)
		default:
			continue
		}
		if reading, ok := toReading(dateVal, value); ok {
			out = append(out, reading)
		}
	}
	return out, nil
}

// parseDashboardCSV takes the first column whose header mentions a date and
// the first other column as the value.
func parseDashboardCSV(r io.Reader) ([]reconcile.Reading, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read dashboard csv header: %w", err)
	}
	dateCol, valueCol := pickColumns(header)

	var out []reconcile.Reading
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dashboard csv: %w", err)
		}
		if len(row) <= max(dateCol, valueCol) {
			continue
		}
		if reading, ok := toReading(row[dateCol], row[valueCol]); ok {
			out = append(out, reading)
		}
	}
	return out, nil
}

func pickColumns(columns []string) (dateCol, valueCol int) {
	dateCol = 0
	for i, c := range columns {
		if strings.Contains(strings.ToLower(c), "date") {
			dateCol = i
			break
		}
	}
	valueCol = 1
	if dateCol != 0 {
		valueCol = 0
	}
	return dateCol, valueCol
}

func objectField(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func objectValue(m map[string]any) any {
	if v := objectField(m, "value", "Value", "result"); v != nil {
		return v
	}
	for k, v := range m {
		if !strings.Contains(strings.ToLower(k), "date") {
			return v
		}
	}
	return nil
}

func toReading(dateVal, value any) (reconcile.Reading, bool) {
	s, ok := dateVal.(string)
	if !ok {
		return reconcile.Reading{}, false
	}
	ts, err := domain.ParseTimestamp(s)
	if err != nil {
		return reconcile.Reading{}, false
	}
	v := domain.ParseNumber(value)
	if v == nil {
		return reconcile.Reading{}, false
	}
	return reconcile.Reading{Timestamp: ts, Value: *v, Source: dashboardSource}, true
}
